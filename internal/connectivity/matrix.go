package connectivity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the weight above which a connection is routed.
const DefaultThreshold = 0.0435

// NewDense builds a matrix from row-major data. Ragged or empty input is an error.
func NewDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrShape)
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, &ShapeError{Matrix: fmt.Sprintf("row %d", i), Want: [2]int{1, c}, Got: [2]int{1, len(row)}}
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

// Rows returns m as row-major slices.
func Rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// ExcitatoryMatrix transposes a (target, source) weight matrix to
// (source, target) and zeroes every entry that is not a finite positive weight.
func ExcitatoryMatrix(w mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(w.T())
	keepExcitatory(&out)
	return &out
}

// RecurrentExcitatoryMatrix applies the excitatory filter to a recurrent
// weight matrix without transposing it.
func RecurrentExcitatoryMatrix(w mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(w)
	keepExcitatory(&out)
	return &out
}

// BinaryMatrix marks with 1 every entry strictly greater than threshold.
// Non-finite entries map to 0.
func BinaryMatrix(m mat.Matrix, threshold float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); isFinite(v) && v > threshold {
				out.Set(i, j, 1)
			}
		}
	}
	return out
}

func keepExcitatory(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		if v <= 0 || !isFinite(v) {
			return 0
		}
		return v
	}, m)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
