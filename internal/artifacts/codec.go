package artifacts

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"sigs.k8s.io/yaml"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/buffers"
	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/graph"
	"github.com/llm-d/llm-d-neuron-mapper/internal/topology"
)

// Encode renders v as indented JSON.
func Encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Decode parses JSON into a value of type T.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// DecodeCoreAllocation parses core_allocation.json.
func DecodeCoreAllocation(data []byte) (allocator.CoreAllocation, error) {
	return Decode[allocator.CoreAllocation](data)
}

// DecodeNIRToCores parses nir_to_cores.json.
func DecodeNIRToCores(data []byte) (allocator.NIRToCores, error) {
	return Decode[allocator.NIRToCores](data)
}

// DecodeNeuronToCore parses neuron_to_core.json.
func DecodeNeuronToCore(data []byte) (allocator.NeuronToCore, error) {
	return Decode[allocator.NeuronToCore](data)
}

// DecodeConnectivity parses neuron_connectivity.json.
func DecodeConnectivity(data []byte) (connectivity.Map, error) {
	return Decode[connectivity.Map](data)
}

// DecodeEdges parses processed_edges.json.
func DecodeEdges(data []byte) ([]graph.Edge, error) {
	return Decode[[]graph.Edge](data)
}

// DecodeBufferMap parses buffer_map.json.
func DecodeBufferMap(data []byte) (buffers.BufferMap, error) {
	return Decode[buffers.BufferMap](data)
}

// DecodeRouteLoad parses route_load.json.
func DecodeRouteLoad(data []byte) (*topology.Load, error) {
	return Decode[*topology.Load](data)
}

// EncodeMatrix renders a dense real matrix as nested row-major arrays.
// Non-finite values cannot be represented in JSON and are rejected.
func EncodeMatrix(m mat.Matrix) ([]byte, error) {
	rows := connectivity.Rows(m)
	for i, row := range rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("matrix cell (%d, %d) is not finite", i, j)
			}
		}
	}
	return json.Marshal(rows)
}

// DecodeMatrix parses nested row-major arrays into a dense matrix.
func DecodeMatrix(data []byte) (*mat.Dense, error) {
	rows, err := Decode[[][]float64](data)
	if err != nil {
		return nil, err
	}
	return connectivity.NewDense(rows)
}

// EncodeBinaryMatrix renders a 0/1 matrix with integer cells.
func EncodeBinaryMatrix(m mat.Matrix) ([]byte, error) {
	r, c := m.Dims()
	rows := make([][]int, r)
	for i := range rows {
		rows[i] = make([]int, c)
		for j := range rows[i] {
			if m.At(i, j) != 0 {
				rows[i][j] = 1
			}
		}
	}
	return json.Marshal(rows)
}

// DecodeBinaryMatrix parses a 0/1 integer matrix.
func DecodeBinaryMatrix(data []byte) (*mat.Dense, error) {
	rows, err := Decode[[][]int](data)
	if err != nil {
		return nil, err
	}
	f := make([][]float64, len(rows))
	for i, row := range rows {
		f[i] = make([]float64, len(row))
		for j, v := range row {
			f[i][j] = float64(v)
		}
	}
	return connectivity.NewDense(f)
}

// DecodeBinaryTree parses a binary core_tree.json into parent -> children.
func DecodeBinaryTree(data []byte) (map[int][]int, error) {
	return Decode[map[int][]int](data)
}

// DecodeHBSTree parses a nested HBS core_tree.json.
func DecodeHBSTree(data []byte) (topology.NestedNode, error) {
	return Decode[topology.NestedNode](data)
}

// Weight matrix roles in a weights document.
const (
	InputHidden  = "input_hidden"
	HiddenHidden = "hidden_hidden"
	HiddenOutput = "hidden_output"
)

// Weights maps a connection role to a dense (target, source) matrix.
type Weights map[string][][]float64

// Matrix returns the matrix for role, or nil when the document has none.
func (w Weights) Matrix(role string) (*mat.Dense, error) {
	rows, ok := w[role]
	if !ok {
		return nil, nil
	}
	m, err := connectivity.NewDense(rows)
	if err != nil {
		return nil, fmt.Errorf("weights %s: %w", role, err)
	}
	return m, nil
}

// DecodeWeights parses a weights document in JSON or YAML.
func DecodeWeights(data []byte) (Weights, error) {
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing weights: %w", err)
	}
	if len(w) == 0 {
		return nil, fmt.Errorf("weights document has no matrices")
	}
	return w, nil
}

// DecodeAccessList parses an access list document in JSON or YAML.
func DecodeAccessList(data []byte) (buffers.AccessList, error) {
	var a buffers.AccessList
	if err := yaml.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("parsing access list: %w", err)
	}
	return a, a.Validate()
}
