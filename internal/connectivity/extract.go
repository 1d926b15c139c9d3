package connectivity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// RecurrentMarker is the value stored for hidden -> hidden connections.
const RecurrentMarker = 1.0

// Names holds the id prefixes of the three neuron populations.
type Names struct {
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Hidden string `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// DefaultNames returns the prefixes used by the two-layer recurrent SNN export.
func DefaultNames() Names {
	return Names{Input: "in", Hidden: "lif1", Output: "lif2"}
}

func (n Names) withDefaults() Names {
	d := DefaultNames()
	if n.Input == "" {
		n.Input = d.Input
	}
	if n.Hidden == "" {
		n.Hidden = d.Hidden
	}
	if n.Output == "" {
		n.Output = d.Output
	}
	return n
}

// NeuronID formats the id of neuron index in population prefix.
func NeuronID(prefix string, index int) string {
	return prefix + "_" + strconv.Itoa(index)
}

// Entry is a single source -> target connection.
type Entry struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Map is the sparse connectivity map: source id -> target id -> weight.
type Map map[string]map[string]float64

func (m Map) set(src, tgt string, w float64) {
	row, ok := m[src]
	if !ok {
		row = make(map[string]float64)
		m[src] = row
	}
	row[tgt] = w
}

// Len is the number of connections.
func (m Map) Len() int {
	n := 0
	for _, row := range m {
		n += len(row)
	}
	return n
}

// Entries lists every connection ordered by source then target. Ids compare by
// prefix and then numerically by index, so "in_2" sorts before "in_10".
func (m Map) Entries() []Entry {
	out := make([]Entry, 0, m.Len())
	for src, row := range m {
		for tgt, w := range row {
			out = append(out, Entry{Source: src, Target: tgt, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareIDs(out[i].Source, out[j].Source); c != 0 {
			return c < 0
		}
		return compareIDs(out[i].Target, out[j].Target) < 0
	})
	return out
}

// Extract builds the connectivity map from the three weight matrices of a
// recurrent network. Matrices are (target, source); any of them may be nil.
// Input -> hidden and hidden -> output entries carry the weight, hidden ->
// hidden entries carry RecurrentMarker. Zero and non-finite cells are skipped.
func Extract(inHidden, hiddenHidden, hiddenOut mat.Matrix, names Names) (Map, error) {
	names = names.withDefaults()
	if err := checkShapes(inHidden, hiddenHidden, hiddenOut); err != nil {
		return nil, err
	}

	m := make(Map)
	if inHidden != nil {
		walk(inHidden, func(tgt, src int, w float64) {
			m.set(NeuronID(names.Input, src), NeuronID(names.Hidden, tgt), w)
		})
	}
	if hiddenHidden != nil {
		walk(hiddenHidden, func(tgt, src int, _ float64) {
			m.set(NeuronID(names.Hidden, src), NeuronID(names.Hidden, tgt), RecurrentMarker)
		})
	}
	if hiddenOut != nil {
		walk(hiddenOut, func(tgt, src int, w float64) {
			m.set(NeuronID(names.Hidden, src), NeuronID(names.Output, tgt), w)
		})
	}
	return m, nil
}

// walk calls fn for every finite non-zero cell.
func walk(w mat.Matrix, fn func(row, col int, v float64)) {
	r, c := w.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := w.At(i, j); v != 0 && isFinite(v) {
				fn(i, j, v)
			}
		}
	}
}

func checkShapes(inHidden, hiddenHidden, hiddenOut mat.Matrix) error {
	hidden := -1
	if inHidden != nil {
		hidden, _ = inHidden.Dims()
	}
	if hiddenHidden != nil {
		r, c := hiddenHidden.Dims()
		if r != c || (hidden >= 0 && r != hidden) {
			want := r
			if hidden >= 0 {
				want = hidden
			}
			return &ShapeError{Matrix: "hidden_hidden", Want: [2]int{want, want}, Got: [2]int{r, c}}
		}
		hidden = r
	}
	if hiddenOut != nil && hidden >= 0 {
		r, c := hiddenOut.Dims()
		if c != hidden {
			return &ShapeError{Matrix: "hidden_output", Want: [2]int{r, hidden}, Got: [2]int{r, c}}
		}
	}
	return nil
}

// compareIDs orders "prefix_index" ids by prefix, then by numeric index.
func compareIDs(a, b string) int {
	ap, ai := splitID(a)
	bp, bi := splitID(b)
	if ap != bp {
		return strings.Compare(ap, bp)
	}
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	}
	return strings.Compare(a, b)
}

func splitID(id string) (string, int) {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return id, -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return id, -1
	}
	return id[:i], n
}

// String renders the map size for logging.
func (m Map) String() string {
	return fmt.Sprintf("connectivity{sources: %d, connections: %d}", len(m), m.Len())
}
