package allocator

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded is wrapped by every CapacityExceededError.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// CapacityExceededError reports a layer, or the whole population when Layer is
// empty, that cannot be placed under the configured capacity.
type CapacityExceededError struct {
	Layer    string
	Neurons  int
	Capacity int
	Reason   string
}

func (e *CapacityExceededError) Error() string {
	subject := "network"
	if e.Layer != "" {
		subject = fmt.Sprintf("layer %q", e.Layer)
	}
	msg := fmt.Sprintf("%s: %s with %d neurons, core capacity %d", ErrCapacityExceeded, subject, e.Neurons, e.Capacity)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// ErrUnresolvedNeuron is wrapped by every UnresolvedNeuronError.
var ErrUnresolvedNeuron = errors.New("unresolved neuron")

// UnresolvedNeuronError reports a neuron without a core assignment.
type UnresolvedNeuronError struct {
	Layer string
	Index int
}

func (e *UnresolvedNeuronError) Error() string {
	return fmt.Sprintf("%s: %s-%d has no core assignment", ErrUnresolvedNeuron, e.Layer, e.Index)
}

func (e *UnresolvedNeuronError) Unwrap() error { return ErrUnresolvedNeuron }
