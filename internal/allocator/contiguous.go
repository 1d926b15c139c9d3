package allocator

import (
	"context"
	"fmt"

	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
	ctrl "sigs.k8s.io/controller-runtime"
)

// ContiguousAllocator packs layers sequentially so that every layer occupies
// one index range per core, spilling over into consecutive cores. The output
// layer never shares a core with another layer.
type ContiguousAllocator struct {
	config Config
}

// NewContiguousAllocator creates a new ContiguousAllocator instance.
func NewContiguousAllocator(cfg Config) (*ContiguousAllocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ContiguousAllocator{config: cfg}, nil
}

// Allocate fills the current core up to capacity before opening the next one.
func (a *ContiguousAllocator) Allocate(ctx context.Context, layers []network.LayerSize) (*Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	if err := network.ValidateSizes(layers); err != nil {
		return nil, err
	}
	output, err := outputLayer(a.config, layers)
	if err != nil {
		return nil, err
	}

	capacity := a.config.Capacity
	b := newBuilder(capacity, network.TotalNeurons(layers))
	cur := -1
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.Name == output {
			if a.config.strictOutput() && l.Neurons > capacity {
				return nil, &CapacityExceededError{
					Layer:    l.Name,
					Neurons:  l.Neurons,
					Capacity: capacity,
					Reason:   "output layer must fit on a single core",
				}
			}
			if cur >= 0 && b.cores[cur].Occupancy() > 0 {
				cur = b.open()
			}
		}
		for idx := 0; idx < l.Neurons; {
			if cur < 0 || b.free(cur) == 0 {
				cur = b.open()
			}
			take := min(b.free(cur), l.Neurons-idx)
			for i := idx; i < idx+take; i++ {
				b.place(cur, l.Name, i)
			}
			logger.V(logging.TRACE).Info("Placed layer range", "layer", l.Name, "core", cur, "start", idx, "end", idx+take-1)
			idx += take
		}
		if l.Name == output {
			cur = -1
		}
	}

	if err := checkCoreBound(a.config, layers, len(b.cores)); err != nil {
		return nil, err
	}
	alloc, nir := b.bucketTables(layers)
	res := &Result{
		Policy:         ContiguousPolicy,
		Capacity:       capacity,
		CoreAllocation: alloc,
		NIRToCores:     nir,
		NeuronToCore:   b.n2c,
		Cores:          b.cores,
	}
	logger.V(logging.DEBUG).Info("Contiguous allocation done", "layers", len(layers), "cores", len(b.cores), "capacity", capacity)
	return res, nil
}

// outputLayer resolves the layer given a dedicated core.
func outputLayer(cfg Config, layers []network.LayerSize) (string, error) {
	if len(layers) == 0 {
		return "", nil
	}
	if cfg.OutputLayer == "" {
		return layers[len(layers)-1].Name, nil
	}
	for _, l := range layers {
		if l.Name == cfg.OutputLayer {
			return l.Name, nil
		}
	}
	return "", &network.InvalidLayerError{Layer: cfg.OutputLayer, Reason: fmt.Sprintf("output layer not among the %d layers", len(layers))}
}
