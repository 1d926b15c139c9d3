package graph

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// NodeID is a handle into the node arena. Handles are never reused.
type NodeID int

// Node is the public view of an arena record.
type Node struct {
	ID   NodeID
	Kind NodeKind
	Name string
}

// Edge is a directed dependency between two named nodes. It encodes as a
// two-element JSON array, the processed_edges.json format.
type Edge struct {
	Source string
	Target string
}

// MarshalJSON encodes the edge as [source, target].
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Source, e.Target})
}

// UnmarshalJSON decodes a [source, target] pair.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("edge must have exactly two nodes, got %d", len(pair))
	}
	e.Source, e.Target = pair[0], pair[1]
	return nil
}

type record struct {
	Node
	alive bool
}

// Graph is a directed graph with set semantics on edges. Self-loops are allowed.
// It is not safe for concurrent mutation; lowering owns it exclusively.
type Graph struct {
	classifier Classifier
	nodes      []record
	byName     map[string]NodeID
	succ       []sets.Set[NodeID]
	pred       []sets.Set[NodeID]
}

// New returns an empty graph. A nil classifier uses DefaultClassifierConfig.
func New(classifier Classifier) *Graph {
	if classifier == nil {
		classifier = NewClassifier(DefaultClassifierConfig())
	}
	return &Graph{
		classifier: classifier,
		byName:     make(map[string]NodeID),
	}
}

// FromEdges builds a graph from an edge list. When nodes is non-nil it is the
// complete node list: nodes are added in that order and any edge naming a node
// outside it is a MalformedGraphError. Otherwise nodes are added as edges mention them.
func FromEdges(classifier Classifier, nodes []string, edges []Edge) (*Graph, error) {
	g := New(classifier)
	declared := nodes != nil
	for _, name := range nodes {
		if _, err := g.AddNode(name); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if declared {
			if _, ok := g.byName[e.Source]; !ok {
				return nil, malformedf("edge (%s, %s) references unknown node %q", e.Source, e.Target, e.Source)
			}
			if _, ok := g.byName[e.Target]; !ok {
				return nil, malformedf("edge (%s, %s) references unknown node %q", e.Source, e.Target, e.Target)
			}
		}
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Classifier returns the classifier the graph was built with.
func (g *Graph) Classifier() Classifier {
	return g.classifier
}

// AddNode adds a node classified by name. Adding an existing name returns its handle.
func (g *Graph) AddNode(name string) (NodeID, error) {
	if name == "" {
		return 0, malformedf("node name must not be empty")
	}
	if id, ok := g.byName[name]; ok {
		return id, nil
	}
	return g.insert(name, g.classifier.Classify(name)), nil
}

// AddNodeWithKind adds a node with an explicit kind, bypassing the classifier.
// Re-adding an existing name with a different kind is a MalformedGraphError.
func (g *Graph) AddNodeWithKind(name string, kind NodeKind) (NodeID, error) {
	if name == "" {
		return 0, malformedf("node name must not be empty")
	}
	if id, ok := g.byName[name]; ok {
		if g.nodes[id].Kind != kind {
			return 0, malformedf("node %q already declared as %s, not %s", name, g.nodes[id].Kind, kind)
		}
		return id, nil
	}
	return g.insert(name, kind), nil
}

func (g *Graph) insert(name string, kind NodeKind) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, record{Node: Node{ID: id, Kind: kind, Name: name}, alive: true})
	g.succ = append(g.succ, sets.New[NodeID]())
	g.pred = append(g.pred, sets.New[NodeID]())
	g.byName[name] = id
	return id
}

// AddEdge adds (src, dst), adding either node if it is not present yet.
func (g *Graph) AddEdge(src, dst string) error {
	u, err := g.AddNode(src)
	if err != nil {
		return err
	}
	v, err := g.AddNode(dst)
	if err != nil {
		return err
	}
	g.link(u, v)
	return nil
}

// HasEdge reports whether (src, dst) is present.
func (g *Graph) HasEdge(src, dst string) bool {
	u, ok := g.byName[src]
	if !ok {
		return false
	}
	v, ok := g.byName[dst]
	if !ok {
		return false
	}
	return g.succ[u].Has(v)
}

// Lookup returns the live node carrying name.
func (g *Graph) Lookup(name string) (Node, bool) {
	id, ok := g.byName[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[id].Node, true
}

// Node returns the node behind a handle, if it is still valid.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if !g.valid(id) {
		return Node{}, false
	}
	return g.nodes[id].Node, true
}

// Nodes returns the live nodes in arena order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.byName))
	for _, r := range g.nodes {
		if r.alive {
			out = append(out, r.Node)
		}
	}
	return out
}

// NodeNames returns the live node names in arena order.
func (g *Graph) NodeNames() []string {
	nodes := g.Nodes()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

// NodeCount is the number of live nodes.
func (g *Graph) NodeCount() int {
	return len(g.byName)
}

// Edges returns every edge ordered by source handle, then target handle.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, r := range g.nodes {
		if !r.alive {
			continue
		}
		for _, v := range sets.List(g.succ[r.ID]) {
			out = append(out, Edge{Source: r.Name, Target: g.nodes[v].Name})
		}
	}
	return out
}

// EdgeCount is the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, r := range g.nodes {
		if r.alive {
			n += g.succ[r.ID].Len()
		}
	}
	return n
}

// Predecessors returns the handles with an edge into id, ascending.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	if !g.valid(id) {
		return nil
	}
	return sets.List(g.pred[id])
}

// Successors returns the handles id has an edge to, ascending.
func (g *Graph) Successors(id NodeID) []NodeID {
	if !g.valid(id) {
		return nil
	}
	return sets.List(g.succ[id])
}

// Clone returns a deep copy that shares only the classifier.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		classifier: g.classifier,
		nodes:      make([]record, len(g.nodes)),
		byName:     make(map[string]NodeID, len(g.byName)),
		succ:       make([]sets.Set[NodeID], len(g.succ)),
		pred:       make([]sets.Set[NodeID], len(g.pred)),
	}
	copy(c.nodes, g.nodes)
	for k, v := range g.byName {
		c.byName[k] = v
	}
	for i := range g.succ {
		c.succ[i] = g.succ[i].Clone()
		c.pred[i] = g.pred[i].Clone()
	}
	return c
}

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes) && g.nodes[id].alive
}

func (g *Graph) link(u, v NodeID) {
	g.succ[u].Insert(v)
	g.pred[v].Insert(u)
}

func (g *Graph) unlink(u, v NodeID) {
	g.succ[u].Delete(v)
	g.pred[v].Delete(u)
}

// remove invalidates id and drops every incident edge.
func (g *Graph) remove(id NodeID) {
	for _, v := range g.succ[id].UnsortedList() {
		g.unlink(id, v)
	}
	for _, u := range g.pred[id].UnsortedList() {
		g.unlink(u, id)
	}
	g.nodes[id].alive = false
	if g.byName[g.nodes[id].Name] == id {
		delete(g.byName, g.nodes[id].Name)
	}
}

// rename relabels id. If another live node already carries name, id is merged
// into it: its edges move to the survivor and id is invalidated. The returned
// handle is the surviving node.
func (g *Graph) rename(id NodeID, name string) NodeID {
	old := g.nodes[id].Name
	if old == name {
		return id
	}
	target, exists := g.byName[name]
	if !exists {
		delete(g.byName, old)
		g.nodes[id].Name = name
		g.byName[name] = id
		return id
	}
	redirect := func(n NodeID) NodeID {
		if n == id {
			return target
		}
		return n
	}
	for _, u := range g.pred[id].UnsortedList() {
		g.link(redirect(u), target)
	}
	for _, v := range g.succ[id].UnsortedList() {
		g.link(target, redirect(v))
	}
	g.remove(id)
	return target
}
