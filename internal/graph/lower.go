package graph

import (
	"context"

	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	ctrl "sigs.k8s.io/controller-runtime"
)

type stage int

const (
	stageEmpty stage = iota
	stageLoaded
	stageEliminated
	stageFolded
)

// FoldedPair records one recurrent 2-cycle collapsed into a self-loop.
// U and V are the node names at detection time.
type FoldedPair struct {
	U       string `json:"u"`
	V       string `json:"v"`
	Removed string `json:"removed"`
	Kept    string `json:"kept"`
	Renamed string `json:"renamed"`
}

// Lowered is the outcome of a full lowering run.
type Lowered struct {
	Graph          *Graph
	RecurrentEdges []FoldedPair
	FinalNodes     []string
	FinalEdges     []Edge
	// Eliminated lists the linear nodes removed, in arena order.
	Eliminated []string
}

// Lowerer runs the two lowering steps in order on a private copy of a graph.
type Lowerer struct {
	stage      stage
	graph      *Graph
	eliminated []string
	folded     []FoldedPair
}

// NewLowerer returns a Lowerer with no graph loaded.
func NewLowerer() *Lowerer {
	return &Lowerer{}
}

// Load clones g and resets the step sequence.
func (l *Lowerer) Load(g *Graph) error {
	if g == nil {
		return &OrderingError{Operation: "Load", Requires: "a non-nil graph"}
	}
	l.graph = g.Clone()
	l.eliminated = nil
	l.folded = nil
	l.stage = stageLoaded
	return nil
}

// EliminateLinear bypasses and deletes every linear node present when the step
// starts. Each predecessor is connected to each successor; self-loops on the
// linear node itself are not bypassed.
func (l *Lowerer) EliminateLinear(ctx context.Context) error {
	if l.stage != stageLoaded {
		return &OrderingError{Operation: "EliminateLinear", Requires: "Load"}
	}
	logger := ctrl.LoggerFrom(ctx)
	g := l.graph

	var linear []NodeID
	for _, n := range g.Nodes() {
		if n.Kind == KindLinear {
			linear = append(linear, n.ID)
		}
	}

	for _, id := range linear {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !g.valid(id) {
			continue
		}
		name := g.nodes[id].Name
		preds := g.Predecessors(id)
		succs := g.Successors(id)
		added := 0
		for _, p := range preds {
			if p == id {
				continue
			}
			for _, s := range succs {
				if s == id {
					continue
				}
				g.link(p, s)
				added++
			}
		}
		g.remove(id)
		l.eliminated = append(l.eliminated, name)
		logger.V(logging.TRACE).Info("Eliminated linear node", "node", name,
			"predecessors", len(preds), "successors", len(succs), "bypassEdges", added)
	}

	logger.V(logging.DEBUG).Info("Linear elimination done", "eliminated", len(l.eliminated),
		"nodes", g.NodeCount(), "edges", g.EdgeCount())
	l.stage = stageEliminated
	return nil
}

// FoldRecurrent collapses every bidirectional pair of distinct nodes into a
// self-loop on the neuron side, then relabels that node to its base name.
func (l *Lowerer) FoldRecurrent(ctx context.Context) error {
	if l.stage != stageEliminated {
		return &OrderingError{Operation: "FoldRecurrent", Requires: "EliminateLinear"}
	}
	logger := ctrl.LoggerFrom(ctx)
	g := l.graph

	type pair struct{ u, v NodeID }
	var pairs []pair
	for _, r := range g.nodes {
		if !r.alive {
			continue
		}
		u := r.ID
		for _, v := range g.Successors(u) {
			// one orientation per unordered pair; edge order visits u < v first
			if v > u && g.succ[v].Has(u) {
				pairs = append(pairs, pair{u: u, v: v})
			}
		}
	}

	removed := make(map[NodeID]bool)
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if removed[p.u] || removed[p.v] || !g.valid(p.u) || !g.valid(p.v) {
			continue
		}
		uName, vName := g.nodes[p.u].Name, g.nodes[p.v].Name
		g.unlink(p.u, p.v)
		g.unlink(p.v, p.u)

		x, y := p.u, p.v
		if g.nodes[p.v].Kind == KindRecurrentWeight {
			x, y = p.v, p.u
		}
		xName, yName := g.nodes[x].Name, g.nodes[y].Name
		g.remove(x)
		removed[x] = true
		g.link(y, y)

		survivor := g.rename(y, g.classifier.BaseName(g.nodes[y].Name))
		if survivor != y {
			removed[y] = true
		}
		fp := FoldedPair{
			U:       uName,
			V:       vName,
			Removed: xName,
			Kept:    yName,
			Renamed: g.nodes[survivor].Name,
		}
		l.folded = append(l.folded, fp)
		logger.V(logging.TRACE).Info("Folded recurrent pair", "u", uName, "v", vName,
			"removed", fp.Removed, "node", fp.Renamed)
	}

	logger.V(logging.DEBUG).Info("Recurrent folding done", "folded", len(l.folded),
		"nodes", g.NodeCount(), "edges", g.EdgeCount())
	l.stage = stageFolded
	return nil
}

// Result returns the lowered graph. It is only available after FoldRecurrent.
func (l *Lowerer) Result() (*Lowered, error) {
	if l.stage != stageFolded {
		return nil, &OrderingError{Operation: "Result", Requires: "FoldRecurrent"}
	}
	return &Lowered{
		Graph:          l.graph,
		RecurrentEdges: l.folded,
		FinalNodes:     l.graph.NodeNames(),
		FinalEdges:     l.graph.Edges(),
		Eliminated:     l.eliminated,
	}, nil
}

// Lower runs both lowering steps on a copy of g. The input graph is not modified.
func Lower(ctx context.Context, g *Graph) (*Lowered, error) {
	l := NewLowerer()
	if err := l.Load(g); err != nil {
		return nil, err
	}
	if err := l.EliminateLinear(ctx); err != nil {
		return nil, err
	}
	if err := l.FoldRecurrent(ctx); err != nil {
		return nil, err
	}
	res, err := l.Result()
	if err != nil {
		return nil, err
	}
	ctrl.LoggerFrom(ctx).Info("Lowered graph", "nodes", len(res.FinalNodes),
		"edges", len(res.FinalEdges), "recurrentPairs", len(res.RecurrentEdges))
	return res, nil
}
