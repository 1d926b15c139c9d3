package topology

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
)

// Load is the static traffic estimate of one placement on one tree.
type Load struct {
	// Messages counts source -> target neuron connections that cross cores.
	Messages int `json:"messages"`
	// Deliveries counts distinct (source neuron, target core) pairs routed.
	Deliveries int `json:"deliveries"`
	// Forwarded counts, per tree node, the deliveries it relays without being
	// their source or destination.
	Forwarded map[int]int `json:"forwarded"`
}

// Hops is the total number of relays across all nodes.
func (l *Load) Hops() int {
	n := 0
	for _, c := range l.Forwarded {
		n += c
	}
	return n
}

// WastePercent relates relays to useful cross-core messages.
func (l *Load) WastePercent() float64 {
	if l.Messages == 0 {
		return 0
	}
	return float64(l.Hops()) / float64(l.Messages) * 100
}

// NodeLoad is one entry of Load.Busiest.
type NodeLoad struct {
	Node      int `json:"node"`
	Forwarded int `json:"forwarded"`
}

// Busiest returns nodes ordered by relay count, highest first, ties by id.
func (l *Load) Busiest() []NodeLoad {
	out := make([]NodeLoad, 0, len(l.Forwarded))
	for n, c := range l.Forwarded {
		out = append(out, NodeLoad{Node: n, Forwarded: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Forwarded != out[j].Forwarded {
			return out[i].Forwarded > out[j].Forwarded
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// RouteLoad routes every connection of m, a (source, target) matrix where any
// positive entry is a connection, from the core of source neuron i in srcLayer
// to the core of target neuron j in tgtLayer. Each source neuron sends one
// message per distinct remote target core.
func RouteLoad(t *Tree, n2c allocator.NeuronToCore, m mat.Matrix, srcLayer, tgtLayer string) (*Load, error) {
	rows, cols := m.Dims()
	load := &Load{Forwarded: make(map[int]int)}
	for i := 0; i < rows; i++ {
		srcCore, err := n2c.Resolve(srcLayer, i)
		if err != nil {
			return nil, err
		}
		if !t.IsCore(srcCore) {
			return nil, fmt.Errorf("neuron %s-%d is on core %d, tree has %d cores", srcLayer, i, srcCore, t.Cores())
		}
		targets := sets.New[int]()
		for j := 0; j < cols; j++ {
			if m.At(i, j) <= 0 {
				continue
			}
			tgtCore, err := n2c.Resolve(tgtLayer, j)
			if err != nil {
				return nil, err
			}
			if tgtCore == srcCore {
				continue
			}
			if !t.IsCore(tgtCore) {
				return nil, fmt.Errorf("neuron %s-%d is on core %d, tree has %d cores", tgtLayer, j, tgtCore, t.Cores())
			}
			load.Messages++
			targets.Insert(tgtCore)
		}
		for _, tgtCore := range sets.List(targets) {
			p, err := t.Path(srcCore, tgtCore)
			if err != nil {
				return nil, err
			}
			for _, n := range p[1 : len(p)-1] {
				load.Forwarded[n]++
			}
			load.Deliveries++
		}
	}
	return load, nil
}
