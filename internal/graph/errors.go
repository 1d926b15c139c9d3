package graph

import (
	"errors"
	"fmt"
)

var (
	ErrOrdering       = errors.New("operation invoked out of order")
	ErrMalformedGraph = errors.New("malformed graph")
)

// OrderingError reports a lowering step run before its prerequisite.
type OrderingError struct {
	Operation string
	Requires  string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s: %s requires %s", ErrOrdering, e.Operation, e.Requires)
}

func (e *OrderingError) Unwrap() error { return ErrOrdering }

// MalformedGraphError reports an edge or node that cannot be part of the graph.
type MalformedGraphError struct {
	Msg string
}

func (e *MalformedGraphError) Error() string {
	if e.Msg == "" {
		return ErrMalformedGraph.Error()
	}
	return fmt.Sprintf("%s: %s", ErrMalformedGraph, e.Msg)
}

func (e *MalformedGraphError) Unwrap() error { return ErrMalformedGraph }

func malformedf(format string, args ...any) error {
	return &MalformedGraphError{Msg: fmt.Sprintf(format, args...)}
}
