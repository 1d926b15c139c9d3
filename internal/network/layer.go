package network

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLayer is the sentinel wrapped by InvalidLayerError.
var ErrInvalidLayer = errors.New("invalid layer")

// InvalidLayerError reports a layer definition that cannot be mapped.
type InvalidLayerError struct {
	Layer  string
	Reason string
}

func (e *InvalidLayerError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidLayer, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalidLayer, e.Layer, e.Reason)
}

func (e *InvalidLayerError) Unwrap() error { return ErrInvalidLayer }

// LayerKind tags the variant a Layer holds.
type LayerKind string

const (
	StatefulNeuronLayer    LayerKind = "stateful"
	RecurrentStatefulLayer LayerKind = "recurrent"
	LinearLayer            LayerKind = "linear"
)

// ParseLayerKind accepts the canonical kind names plus the framework aliases
// used in exported models (leaky, synaptic, rsynaptic, fc).
func ParseLayerKind(s string) (LayerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stateful", "leaky", "synaptic", "lif":
		return StatefulNeuronLayer, nil
	case "recurrent", "rsynaptic", "rleaky":
		return RecurrentStatefulLayer, nil
	case "linear", "fc", "dense":
		return LinearLayer, nil
	}
	return "", fmt.Errorf("unknown layer kind %q", s)
}

// Layer is one network layer. Construct it with NewStatefulLayer,
// NewRecurrentLayer or NewLinearLayer; the size fields that matter depend on Kind.
type Layer struct {
	Name string
	Kind LayerKind

	// Neurons is the neuron population of stateful and recurrent layers.
	Neurons int

	// InFeatures and OutFeatures describe linear layers.
	InFeatures  int
	OutFeatures int
}

// NewStatefulLayer returns a leaky/synaptic neuron layer.
func NewStatefulLayer(name string, neurons int) Layer {
	return Layer{Name: name, Kind: StatefulNeuronLayer, Neurons: neurons}
}

// NewRecurrentLayer returns a recurrent neuron layer sized by its linear features.
func NewRecurrentLayer(name string, linearFeatures int) Layer {
	return Layer{Name: name, Kind: RecurrentStatefulLayer, Neurons: linearFeatures}
}

// NewLinearLayer returns a fully-connected transform.
func NewLinearLayer(name string, in, out int) Layer {
	return Layer{Name: name, Kind: LinearLayer, InFeatures: in, OutFeatures: out}
}

// HostsNeurons reports whether the layer places neurons on cores.
func (l Layer) HostsNeurons() bool {
	return l.Kind == StatefulNeuronLayer || l.Kind == RecurrentStatefulLayer
}

// NeuronCount is the number of neurons the layer needs placed; zero for linear layers.
func (l Layer) NeuronCount() int {
	if !l.HostsNeurons() {
		return 0
	}
	return l.Neurons
}

// Validate checks the size fields required by the layer's kind.
func (l Layer) Validate() error {
	if l.Name == "" {
		return &InvalidLayerError{Reason: "name must not be empty"}
	}
	switch l.Kind {
	case StatefulNeuronLayer, RecurrentStatefulLayer:
		if l.Neurons <= 0 {
			return &InvalidLayerError{Layer: l.Name, Reason: fmt.Sprintf("neuron count must be positive, got %d", l.Neurons)}
		}
	case LinearLayer:
		if l.InFeatures <= 0 || l.OutFeatures <= 0 {
			return &InvalidLayerError{Layer: l.Name, Reason: fmt.Sprintf("linear features must be positive, got %dx%d", l.InFeatures, l.OutFeatures)}
		}
	default:
		return &InvalidLayerError{Layer: l.Name, Reason: fmt.Sprintf("unknown kind %q", l.Kind)}
	}
	return nil
}

// LayerSize is one entry of the ordered layer -> neuron count mapping.
type LayerSize struct {
	Name    string `json:"name" yaml:"name"`
	Neurons int    `json:"neurons" yaml:"neurons"`
}

// ValidateSizes checks that names are unique and non-empty and sizes positive.
func ValidateSizes(sizes []LayerSize) error {
	seen := make(map[string]struct{}, len(sizes))
	for _, s := range sizes {
		if s.Name == "" {
			return &InvalidLayerError{Reason: "name must not be empty"}
		}
		if _, dup := seen[s.Name]; dup {
			return &InvalidLayerError{Layer: s.Name, Reason: "duplicate layer name"}
		}
		seen[s.Name] = struct{}{}
		if s.Neurons <= 0 {
			return &InvalidLayerError{Layer: s.Name, Reason: fmt.Sprintf("neuron count must be positive, got %d", s.Neurons)}
		}
	}
	return nil
}

// TotalNeurons sums the sizes.
func TotalNeurons(sizes []LayerSize) int {
	total := 0
	for _, s := range sizes {
		total += s.Neurons
	}
	return total
}

// NeuronID formats the "{layer}-{index}" key used by neuron_to_core.
func NeuronID(layer string, index int) string {
	return layer + "-" + strconv.Itoa(index)
}

// ParseNeuronID splits a NeuronID at its last dash, so layer names may contain dashes.
func ParseNeuronID(id string) (layer string, index int, err error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed neuron id %q", id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed neuron id %q", id)
	}
	return id[:i], index, nil
}
