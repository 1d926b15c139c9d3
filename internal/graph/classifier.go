package graph

import "strings"

// NodeKind is the role a node plays in the dataflow graph.
type NodeKind string

const (
	// KindLinear is a fully-connected transform; removed by EliminateLinear.
	KindLinear NodeKind = "linear"
	// KindNeuron is a stateful neuron population.
	KindNeuron NodeKind = "neuron"
	// KindRecurrentWeight is the recurrent weight half of a recurrent neuron layer.
	KindRecurrentWeight NodeKind = "recurrent-weight"
	// KindPassThrough covers inputs, outputs and anything else left untouched.
	KindPassThrough NodeKind = "pass-through"
)

// DefaultSeparator splits an exported node name into base name and suffix.
const DefaultSeparator = "."

// Classifier decides node kinds and base names at graph construction time.
type Classifier interface {
	Classify(name string) NodeKind
	BaseName(name string) string
}

// ClassifierConfig describes how exported node names map to kinds.
type ClassifierConfig struct {
	// LinearPrefixes mark fully-connected nodes (e.g. "fc").
	LinearPrefixes []string `yaml:"linearPrefixes,omitempty" json:"linearPrefixes,omitempty"`
	// NeuronPrefixes mark stateful neuron nodes (e.g. "lif").
	NeuronPrefixes []string `yaml:"neuronPrefixes,omitempty" json:"neuronPrefixes,omitempty"`
	// RecurrentMarkers mark recurrent-weight nodes when found anywhere in the name.
	RecurrentMarkers []string `yaml:"recurrentMarkers,omitempty" json:"recurrentMarkers,omitempty"`
	// Separator ends the base name. Empty disables relabelling.
	Separator string `yaml:"separator,omitempty" json:"separator,omitempty"`
}

// DefaultClassifierConfig matches the node names produced by the NIR export of
// snnTorch models: fc*, lif*, and recurrent weights such as "lif1.w_rec".
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		LinearPrefixes:   []string{"fc"},
		NeuronPrefixes:   []string{"lif", "rec"},
		RecurrentMarkers: []string{"rec"},
		Separator:        DefaultSeparator,
	}
}

// Merge fills empty fields of c from defaults.
func (c ClassifierConfig) Merge(defaults ClassifierConfig) ClassifierConfig {
	if len(c.LinearPrefixes) == 0 {
		c.LinearPrefixes = defaults.LinearPrefixes
	}
	if len(c.NeuronPrefixes) == 0 {
		c.NeuronPrefixes = defaults.NeuronPrefixes
	}
	if len(c.RecurrentMarkers) == 0 {
		c.RecurrentMarkers = defaults.RecurrentMarkers
	}
	if c.Separator == "" {
		c.Separator = defaults.Separator
	}
	return c
}

// NameClassifier classifies nodes by name using a ClassifierConfig.
type NameClassifier struct {
	config ClassifierConfig
}

// NewClassifier returns a NameClassifier for config.
func NewClassifier(config ClassifierConfig) *NameClassifier {
	return &NameClassifier{config: config}
}

// Classify checks linear prefixes first, then recurrent markers, then neuron prefixes.
func (c *NameClassifier) Classify(name string) NodeKind {
	if hasAnyPrefix(name, c.config.LinearPrefixes) {
		return KindLinear
	}
	for _, m := range c.config.RecurrentMarkers {
		if m != "" && strings.Contains(name, m) {
			return KindRecurrentWeight
		}
	}
	if hasAnyPrefix(name, c.config.NeuronPrefixes) {
		return KindNeuron
	}
	return KindPassThrough
}

// BaseName returns the part of name before the first separator.
func (c *NameClassifier) BaseName(name string) string {
	if c.config.Separator == "" {
		return name
	}
	if i := strings.Index(name, c.config.Separator); i > 0 {
		return name[:i]
	}
	return name
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
