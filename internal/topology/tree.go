// Package topology builds the routing trees that connect cores and estimates
// how much traffic a placement forwards through them.
//
// Two shapes are supported. The binary tree places cores on every node, with
// node i parenting 2i+1 and 2i+2. The HBS tree keeps cores at the leaves under
// switches of four, then joins switches pairwise up to a single root.
package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Kind selects the tree shape.
type Kind string

const (
	BinaryKind Kind = "binary"
	HBSKind    Kind = "hbs"
)

// LeafGroupSize is the number of cores under one HBS leaf switch.
const LeafGroupSize = 4

// ParseKind maps a tree name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case BinaryKind, "neurogrid":
		return BinaryKind, nil
	case HBSKind:
		return HBSKind, nil
	default:
		return "", fmt.Errorf("unsupported core tree %q", s)
	}
}

// Tree is a rooted tree over core ids and, for HBS, switch ids. Its shape is
// fixed at construction; Path caches search results and is not safe for
// concurrent use.
type Tree struct {
	kind     Kind
	cores    int
	nodes    int
	root     int
	children map[int][]int
	parent   map[int]int
	g        *simple.UndirectedGraph
	paths    map[int]path.Shortest
}

// New builds a tree of kind over coreCount cores.
func New(kind Kind, coreCount int) (*Tree, error) {
	switch kind {
	case BinaryKind:
		return BinaryTree(coreCount)
	case HBSKind:
		return HBSTree(coreCount)
	default:
		return nil, fmt.Errorf("unsupported core tree %q", kind)
	}
}

func newTree(kind Kind, coreCount int) (*Tree, error) {
	if coreCount < 1 {
		return nil, fmt.Errorf("core tree needs at least one core, got %d", coreCount)
	}
	return &Tree{
		kind:     kind,
		cores:    coreCount,
		children: make(map[int][]int),
		parent:   make(map[int]int),
		g:        simple.NewUndirectedGraph(),
		paths:    make(map[int]path.Shortest),
	}, nil
}

// BinaryTree builds the Neurogrid-style tree: node i has children 2i+1 and
// 2i+2 when they are below coreCount, and node 0 is the root.
func BinaryTree(coreCount int) (*Tree, error) {
	t, err := newTree(BinaryKind, coreCount)
	if err != nil {
		return nil, err
	}
	for i := 0; i < coreCount; i++ {
		t.g.AddNode(simple.Node(i))
	}
	for i := 0; i < coreCount; i++ {
		for _, c := range []int{2*i + 1, 2*i + 2} {
			if c < coreCount {
				t.link(i, c)
			}
		}
	}
	t.nodes = coreCount
	t.root = 0
	return t, nil
}

// HBSTree groups cores under leaf switches of LeafGroupSize and joins switches
// pairwise level by level. Switch ids start at coreCount and the root is the
// last switch created.
func HBSTree(coreCount int) (*Tree, error) {
	t, err := newTree(HBSKind, coreCount)
	if err != nil {
		return nil, err
	}
	next := coreCount
	var level []int
	for i := 0; i < coreCount; i += LeafGroupSize {
		sw := next
		next++
		t.g.AddNode(simple.Node(sw))
		for c := i; c < min(i+LeafGroupSize, coreCount); c++ {
			t.link(sw, c)
		}
		level = append(level, sw)
	}
	for len(level) > 1 {
		var up []int
		for i := 0; i < len(level); i += 2 {
			sw := next
			next++
			t.link(sw, level[i])
			if i+1 < len(level) {
				t.link(sw, level[i+1])
			}
			up = append(up, sw)
		}
		level = up
	}
	t.nodes = next
	t.root = level[0]
	return t, nil
}

func (t *Tree) link(parent, child int) {
	t.children[parent] = append(t.children[parent], child)
	t.parent[child] = parent
	t.g.SetEdge(t.g.NewEdge(simple.Node(parent), simple.Node(child)))
}

// Kind is the tree shape.
func (t *Tree) Kind() Kind { return t.kind }

// Root is the root node id.
func (t *Tree) Root() int { return t.root }

// Cores is the number of cores.
func (t *Tree) Cores() int { return t.cores }

// Nodes is the number of nodes, cores and switches together.
func (t *Tree) Nodes() int { return t.nodes }

// IsCore reports whether node is a core rather than a switch.
func (t *Tree) IsCore(node int) bool { return node >= 0 && node < t.cores }

// Children returns the children of node in construction order.
func (t *Tree) Children(node int) []int { return t.children[node] }

// Parent returns the parent of node; the root has none.
func (t *Tree) Parent(node int) (int, bool) {
	p, ok := t.parent[node]
	return p, ok
}

// Path returns the unique path from a to b, both endpoints included.
func (t *Tree) Path(a, b int) ([]int, error) {
	if a < 0 || a >= t.nodes || b < 0 || b >= t.nodes {
		return nil, fmt.Errorf("path %d -> %d: node outside tree of %d nodes", a, b, t.nodes)
	}
	sp, ok := t.paths[a]
	if !ok {
		sp = path.DijkstraFrom(simple.Node(a), t.g)
		t.paths[a] = sp
	}
	nodes, _ := sp.To(int64(b))
	if len(nodes) == 0 {
		return nil, fmt.Errorf("path %d -> %d: nodes are not connected", a, b)
	}
	return ids(nodes), nil
}

func ids(nodes []graph.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = int(n.ID())
	}
	return out
}

// MarshalJSON writes the binary tree as {"parent": [children], ...} in node
// order and the HBS tree as nested {"core": id, "children": [...]} objects.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t.kind == HBSKind {
		return json.Marshal(t.nested(t.root))
	}
	parents := make([]int, 0, len(t.children))
	for p := range t.children {
		parents = append(parents, p)
	}
	sort.Ints(parents)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range parents {
		if i > 0 {
			buf.WriteByte(',')
		}
		kids, err := json.Marshal(t.children[p])
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(p)))
		buf.WriteByte(':')
		buf.Write(kids)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NestedNode is one node of the nested HBS tree document.
type NestedNode struct {
	Core     int          `json:"core"`
	Children []NestedNode `json:"children,omitempty"`
}

func (t *Tree) nested(node int) NestedNode {
	n := NestedNode{Core: node}
	for _, c := range t.children[node] {
		n.Children = append(n.Children, t.nested(c))
	}
	return n
}
