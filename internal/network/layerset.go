package network

// LayerSet is an ordered collection of uniquely named layers.
type LayerSet struct {
	layers []Layer
	index  map[string]int
}

// NewLayerSet validates every layer and rejects duplicate names.
func NewLayerSet(layers ...Layer) (*LayerSet, error) {
	s := &LayerSet{
		layers: make([]Layer, 0, len(layers)),
		index:  make(map[string]int, len(layers)),
	}
	for _, l := range layers {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[l.Name]; dup {
			return nil, &InvalidLayerError{Layer: l.Name, Reason: "duplicate layer name"}
		}
		s.index[l.Name] = len(s.layers)
		s.layers = append(s.layers, l)
	}
	return s, nil
}

// Layers returns the layers in declaration order.
func (s *LayerSet) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Get looks a layer up by name.
func (s *LayerSet) Get(name string) (Layer, bool) {
	i, ok := s.index[name]
	if !ok {
		return Layer{}, false
	}
	return s.layers[i], true
}

// Len is the number of layers, linear ones included.
func (s *LayerSet) Len() int {
	return len(s.layers)
}

// NeuronCounts returns the neuron-bearing layers in declaration order.
func (s *LayerSet) NeuronCounts() []LayerSize {
	sizes := make([]LayerSize, 0, len(s.layers))
	for _, l := range s.layers {
		if l.HostsNeurons() {
			sizes = append(sizes, LayerSize{Name: l.Name, Neurons: l.NeuronCount()})
		}
	}
	return sizes
}

// TotalNeurons is the neuron population of the whole network.
func (s *LayerSet) TotalNeurons() int {
	return TotalNeurons(s.NeuronCounts())
}
