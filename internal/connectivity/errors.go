package connectivity

import (
	"errors"
	"fmt"
)

// ErrShape is wrapped by every ShapeError.
var ErrShape = errors.New("matrix shape mismatch")

// ShapeError reports matrices whose dimensions do not chain.
type ShapeError struct {
	Matrix string
	Want   [2]int
	Got    [2]int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s is %dx%d, want %dx%d",
		ErrShape, e.Matrix, e.Got[0], e.Got[1], e.Want[0], e.Want[1])
}

func (e *ShapeError) Unwrap() error { return ErrShape }
