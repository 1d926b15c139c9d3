package allocator

import (
	"fmt"

	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
)

// Range is an inclusive neuron index range of one layer hosted on one core.
type Range struct {
	Core  int
	Start int
	End   int
}

// Len is the number of indices covered.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// CoreCount is the number of neurons of one layer hosted on one core.
type CoreCount struct {
	Core  int
	Count int
}

// LayerRanges is the core_allocation entry of one layer.
type LayerRanges struct {
	Layer  string
	Ranges []Range
}

// CoreAllocation lists per-layer core ranges in layer declaration order.
type CoreAllocation []LayerRanges

// Get returns the ranges of layer.
func (a CoreAllocation) Get(layer string) ([]Range, bool) {
	for _, lr := range a {
		if lr.Layer == layer {
			return lr.Ranges, true
		}
	}
	return nil, false
}

// LayerCounts is the NIR_to_cores entry of one layer.
type LayerCounts struct {
	Layer  string
	Counts []CoreCount
}

// NIRToCores lists per-layer neuron counts per core in layer declaration order.
type NIRToCores []LayerCounts

// Get returns the per-core counts of layer.
func (n NIRToCores) Get(layer string) ([]CoreCount, bool) {
	for _, lc := range n {
		if lc.Layer == layer {
			return lc.Counts, true
		}
	}
	return nil, false
}

// NeuronToCore maps "{layer}-{index}" to a core id.
type NeuronToCore map[string]int

// CoreOf returns the core hosting neuron index of layer.
func (m NeuronToCore) CoreOf(layer string, index int) (int, bool) {
	c, ok := m[network.NeuronID(layer, index)]
	return c, ok
}

// Resolve is CoreOf returning an UnresolvedNeuronError for unplaced neurons.
func (m NeuronToCore) Resolve(layer string, index int) (int, error) {
	c, ok := m.CoreOf(layer, index)
	if !ok {
		return 0, &UnresolvedNeuronError{Layer: layer, Index: index}
	}
	return c, nil
}

// Neuron identifies one neuron by layer and index.
type Neuron struct {
	Layer string `json:"layer"`
	Index int    `json:"index"`
}

// Core is a placement bin. Neurons are in placement order.
type Core struct {
	ID      int      `json:"id"`
	Neurons []Neuron `json:"neurons"`
}

// Occupancy is the number of neurons hosted.
func (c *Core) Occupancy() int {
	return len(c.Neurons)
}

// Result is the read-only outcome of one allocation.
type Result struct {
	Policy         Policy
	Capacity       int
	CoreAllocation CoreAllocation
	NIRToCores     NIRToCores
	NeuronToCore   NeuronToCore
	Cores          []Core
}

// CoresUsed is the number of cores hosting at least one neuron.
func (r *Result) CoresUsed() int {
	n := 0
	for i := range r.Cores {
		if r.Cores[i].Occupancy() > 0 {
			n++
		}
	}
	return n
}

// Verify checks the placement invariants against the layers it was built from:
// no core over capacity, every neuron on exactly one core, and totals matching.
func (r *Result) Verify(layers []network.LayerSize) error {
	placed := 0
	seen := make(map[string]int, len(r.NeuronToCore))
	for i := range r.Cores {
		c := &r.Cores[i]
		if c.Occupancy() > r.Capacity {
			return fmt.Errorf("core %d hosts %d neurons, capacity %d", c.ID, c.Occupancy(), r.Capacity)
		}
		for _, n := range c.Neurons {
			id := network.NeuronID(n.Layer, n.Index)
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("neuron %s placed on cores %d and %d", id, prev, c.ID)
			}
			seen[id] = c.ID
		}
		placed += c.Occupancy()
	}
	if total := network.TotalNeurons(layers); placed != total {
		return fmt.Errorf("placed %d neurons, want %d", placed, total)
	}
	for _, l := range layers {
		for i := 0; i < l.Neurons; i++ {
			id := network.NeuronID(l.Name, i)
			core, ok := r.NeuronToCore[id]
			if !ok {
				return fmt.Errorf("neuron %s has no core", id)
			}
			if seen[id] != core {
				return fmt.Errorf("neuron %s maps to core %d but is hosted on core %d", id, core, seen[id])
			}
		}
	}
	return nil
}

// builder accumulates placement state shared by both policies.
type builder struct {
	capacity int
	cores    []Core
	n2c      NeuronToCore
}

func newBuilder(capacity, total int) *builder {
	return &builder{capacity: capacity, n2c: make(NeuronToCore, total)}
}

func (b *builder) open() int {
	b.cores = append(b.cores, Core{ID: len(b.cores)})
	return len(b.cores) - 1
}

func (b *builder) place(core int, layer string, index int) {
	b.cores[core].Neurons = append(b.cores[core].Neurons, Neuron{Layer: layer, Index: index})
	b.n2c[network.NeuronID(layer, index)] = core
}

func (b *builder) free(core int) int {
	return b.capacity - b.cores[core].Occupancy()
}

// bucketTables derives per-layer ranges and counts from core buckets, reporting
// the min and max index seen in each bucket.
func (b *builder) bucketTables(layers []network.LayerSize) (CoreAllocation, NIRToCores) {
	type span struct{ lo, hi, n int }
	perLayer := make(map[string][]span, len(layers))
	for _, l := range layers {
		perLayer[l.Name] = make([]span, len(b.cores))
	}
	for ci := range b.cores {
		for _, n := range b.cores[ci].Neurons {
			s := &perLayer[n.Layer][ci]
			if s.n == 0 || n.Index < s.lo {
				s.lo = n.Index
			}
			if s.n == 0 || n.Index > s.hi {
				s.hi = n.Index
			}
			s.n++
		}
	}
	alloc := make(CoreAllocation, 0, len(layers))
	nir := make(NIRToCores, 0, len(layers))
	for _, l := range layers {
		lr := LayerRanges{Layer: l.Name}
		lc := LayerCounts{Layer: l.Name}
		for ci, s := range perLayer[l.Name] {
			if s.n == 0 {
				continue
			}
			lr.Ranges = append(lr.Ranges, Range{Core: ci, Start: s.lo, End: s.hi})
			lc.Counts = append(lc.Counts, CoreCount{Core: ci, Count: s.n})
		}
		alloc = append(alloc, lr)
		nir = append(nir, lc)
	}
	return alloc, nir
}
