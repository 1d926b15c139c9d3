// Package config loads the mapper settings and the network description.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/graph"
	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
)

// LayerSpec describes one layer of the network.
type LayerSpec struct {
	// Name is the layer name used in neuron ids (e.g. "lif1")
	Name string `yaml:"name" json:"name"`

	// Kind is one of stateful, recurrent or linear (aliases such as leaky, rsynaptic and fc are accepted)
	Kind string `yaml:"kind" json:"kind"`

	// Neurons is the membrane potential size of a stateful layer
	Neurons int `yaml:"neurons,omitempty" json:"neurons,omitempty"`

	// LinearFeatures is the neuron count of a recurrent layer
	LinearFeatures int `yaml:"linearFeatures,omitempty" json:"linearFeatures,omitempty"`

	// InFeatures and OutFeatures size a linear layer
	InFeatures  int `yaml:"inFeatures,omitempty" json:"inFeatures,omitempty"`
	OutFeatures int `yaml:"outFeatures,omitempty" json:"outFeatures,omitempty"`
}

// Layer converts the description to a network.Layer.
func (s LayerSpec) Layer() (network.Layer, error) {
	kind, err := network.ParseLayerKind(s.Kind)
	if err != nil {
		return network.Layer{}, &network.InvalidLayerError{Layer: s.Name, Reason: err.Error()}
	}
	var l network.Layer
	switch kind {
	case network.StatefulNeuronLayer:
		l = network.NewStatefulLayer(s.Name, s.Neurons)
	case network.RecurrentStatefulLayer:
		n := s.LinearFeatures
		if n == 0 {
			n = s.Neurons
		}
		l = network.NewRecurrentLayer(s.Name, n)
	case network.LinearLayer:
		l = network.NewLinearLayer(s.Name, s.InFeatures, s.OutFeatures)
	}
	return l, l.Validate()
}

// GraphSpec is the raw dataflow graph exported with the trained network.
type GraphSpec struct {
	// Nodes optionally declares the complete node list; edges may then only use these nodes
	Nodes []string `yaml:"nodes,omitempty" json:"nodes,omitempty"`

	// Edges are [source, target] pairs
	Edges [][]string `yaml:"edges" json:"edges"`
}

// NetworkDescription is the network.yaml input of a mapping run.
type NetworkDescription struct {
	Name   string      `yaml:"name,omitempty" json:"name,omitempty"`
	Layers []LayerSpec `yaml:"layers" json:"layers"`
	Graph  *GraphSpec  `yaml:"graph,omitempty" json:"graph,omitempty"`

	// Classifier overrides the default node naming rules
	Classifier graph.ClassifierConfig `yaml:"classifier,omitempty" json:"classifier,omitempty"`

	// OutputLayer is given a dedicated core; defaults to the last neuron layer
	OutputLayer string `yaml:"outputLayer,omitempty" json:"outputLayer,omitempty"`

	// Populations names the input, hidden and output neuron ids of the connectivity map
	Populations connectivity.Names `yaml:"populations,omitempty" json:"populations,omitempty"`

	// RouteLayer is the layer whose recurrent connectivity is routed over the core tree
	RouteLayer string `yaml:"routeLayer,omitempty" json:"routeLayer,omitempty"`
}

// Validate checks for invalid description values and reports all of them.
func (d *NetworkDescription) Validate() error {
	var errs []error
	if len(d.Layers) == 0 {
		errs = append(errs, fmt.Errorf("layers must not be empty"))
	}
	names := sets.New[string]()
	neuronLayers := sets.New[string]()
	for i, ls := range d.Layers {
		if ls.Name == "" {
			errs = append(errs, fmt.Errorf("layers[%d]: name must not be empty", i))
			continue
		}
		if names.Has(ls.Name) {
			errs = append(errs, fmt.Errorf("layers[%d]: duplicate layer name %q", i, ls.Name))
		}
		names.Insert(ls.Name)
		l, err := ls.Layer()
		if err != nil {
			errs = append(errs, fmt.Errorf("layers[%d]: %w", i, err))
			continue
		}
		if l.HostsNeurons() {
			neuronLayers.Insert(l.Name)
		}
	}
	if len(d.Layers) > 0 && neuronLayers.Len() == 0 {
		errs = append(errs, fmt.Errorf("at least one layer must host neurons"))
	}
	if d.OutputLayer != "" && !neuronLayers.Has(d.OutputLayer) {
		errs = append(errs, fmt.Errorf("outputLayer %q is not a neuron layer", d.OutputLayer))
	}
	if d.RouteLayer != "" && !neuronLayers.Has(d.RouteLayer) {
		errs = append(errs, fmt.Errorf("routeLayer %q is not a neuron layer", d.RouteLayer))
	}
	if d.Graph != nil {
		for i, e := range d.Graph.Edges {
			if len(e) != 2 {
				errs = append(errs, fmt.Errorf("graph.edges[%d]: want [source, target], got %d nodes", i, len(e)))
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

// LayerSet builds the ordered layer set.
func (d *NetworkDescription) LayerSet() (*network.LayerSet, error) {
	layers := make([]network.Layer, 0, len(d.Layers))
	for _, ls := range d.Layers {
		l, err := ls.Layer()
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return network.NewLayerSet(layers...)
}

// NewClassifier returns the node classifier with overrides applied to the defaults.
func (d *NetworkDescription) NewClassifier() graph.Classifier {
	return graph.NewClassifier(d.Classifier.Merge(graph.DefaultClassifierConfig()))
}

// BuildGraph builds the raw dataflow graph, or returns nil when none is described.
func (d *NetworkDescription) BuildGraph() (*graph.Graph, error) {
	if d.Graph == nil {
		return nil, nil
	}
	edges := make([]graph.Edge, 0, len(d.Graph.Edges))
	for i, e := range d.Graph.Edges {
		if len(e) != 2 {
			return nil, fmt.Errorf("graph.edges[%d]: want [source, target], got %d nodes", i, len(e))
		}
		edges = append(edges, graph.Edge{Source: e[0], Target: e[1]})
	}
	return graph.FromEdges(d.NewClassifier(), d.Graph.Nodes, edges)
}

// ParseNetworkDescription parses and validates a network description document.
func ParseNetworkDescription(data []byte) (*NetworkDescription, error) {
	var d NetworkDescription
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing network description: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network description: %w", err)
	}
	ctrl.Log.V(logging.DEBUG).Info("Parsed network description",
		"name", d.Name,
		"layers", len(d.Layers),
		"hasGraph", d.Graph != nil)
	return &d, nil
}

// LoadNetworkDescription reads and parses the network description at path.
func LoadNetworkDescription(path string) (*NetworkDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNetworkDescription(data)
}
