// Package buffers estimates buffer-lock contention from recorded cross-layer
// neuron accesses and a neuron placement.
package buffers

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
)

// ErrUnresolvedNeuron is wrapped by every UnresolvedNeuronError.
var ErrUnresolvedNeuron = allocator.ErrUnresolvedNeuron

// UnresolvedNeuronError reports an access to a neuron without a core.
type UnresolvedNeuronError = allocator.UnresolvedNeuronError

// AccessList is a sequence of (index_a, index_b) accesses between two fixed
// layers. It mirrors {"layers": [a, b], "indices": [[i, j], ...]}.
type AccessList struct {
	Layers  [2]string `json:"layers"`
	Indices [][2]int  `json:"indices"`
}

// Validate checks that both layer names are set.
func (a AccessList) Validate() error {
	if a.Layers[0] == "" || a.Layers[1] == "" {
		return fmt.Errorf("access list needs two layer names, got %q", a.Layers)
	}
	return nil
}

// Equal reports whether two access lists record the same accesses in the same order.
func (a AccessList) Equal(b AccessList) bool {
	return a.Layers == b.Layers && slices.Equal(a.Indices, b.Indices)
}

// Key formats the "{layer_a}-{index_a}-{dest_core}" buffer-lock key.
func Key(layer string, index, core int) string {
	return network.NeuronID(layer, index) + "-" + strconv.Itoa(core)
}

// BufferMap counts accesses per buffer-lock key.
type BufferMap map[string]int

// Keys returns the keys in sorted order.
func (m BufferMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Total is the number of accesses counted.
func (m BufferMap) Total() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// MapBuffers counts, for each access, the destination core of the layer_b
// neuron under the key of the layer_a neuron.
func MapBuffers(n2c allocator.NeuronToCore, access AccessList) (BufferMap, error) {
	if err := access.Validate(); err != nil {
		return nil, err
	}
	layerA, layerB := access.Layers[0], access.Layers[1]
	out := make(BufferMap)
	for _, pair := range access.Indices {
		core, err := n2c.Resolve(layerB, pair[1])
		if err != nil {
			return nil, err
		}
		out[Key(layerA, pair[0], core)]++
	}
	return out, nil
}
