package allocator

import (
	"context"
	"fmt"

	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
	ctrl "sigs.k8s.io/controller-runtime"
)

// ScatterAllocator shuffles all neurons under a seeded random source and packs
// them into the minimum number of cores. Reported ranges are only the min and
// max index of each layer's bucket on a core; they are not contiguous.
type ScatterAllocator struct {
	config Config
}

// NewScatterAllocator creates a new ScatterAllocator instance.
func NewScatterAllocator(cfg Config) (*ScatterAllocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Rand == nil {
		return nil, fmt.Errorf("scatter allocation requires a seeded random source")
	}
	return &ScatterAllocator{config: cfg}, nil
}

// Allocate places each shuffled neuron on the first core with room, searching
// round-robin from the last core used.
func (a *ScatterAllocator) Allocate(ctx context.Context, layers []network.LayerSize) (*Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	if err := network.ValidateSizes(layers); err != nil {
		return nil, err
	}

	capacity := a.config.Capacity
	total := network.TotalNeurons(layers)
	totalCores := (total + capacity - 1) / capacity
	if err := checkCoreBound(a.config, layers, totalCores); err != nil {
		return nil, err
	}

	neurons := make([]Neuron, 0, total)
	for _, l := range layers {
		for i := 0; i < l.Neurons; i++ {
			neurons = append(neurons, Neuron{Layer: l.Name, Index: i})
		}
	}
	a.config.Rand.Shuffle(len(neurons), func(i, j int) {
		neurons[i], neurons[j] = neurons[j], neurons[i]
	})

	b := newBuilder(capacity, total)
	for range totalCores {
		b.open()
	}
	core := 0
	for _, n := range neurons {
		for b.free(core) == 0 {
			core = (core + 1) % totalCores
		}
		b.place(core, n.Layer, n.Index)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alloc, nir := b.bucketTables(layers)
	res := &Result{
		Policy:         ScatterPolicy,
		Capacity:       capacity,
		CoreAllocation: alloc,
		NIRToCores:     nir,
		NeuronToCore:   b.n2c,
		Cores:          b.cores,
	}
	logger.V(logging.DEBUG).Info("Scatter allocation done", "neurons", total, "cores", totalCores, "capacity", capacity)
	return res, nil
}
