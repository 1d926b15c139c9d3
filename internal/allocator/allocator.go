/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package allocator places neurons onto fixed-capacity cores.
package allocator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
)

// Allocator assigns every neuron of an ordered list of layers to a core
type Allocator interface {
	// Allocate places the neurons of layers, in declaration order, onto cores
	Allocate(ctx context.Context, layers []network.LayerSize) (*Result, error)
}

// Policy is an enumeration of the placement policies an Allocator can follow
type Policy int

// enumeration of Policy
const (
	ContiguousPolicy Policy = iota
	ScatterPolicy
)

// DefaultPolicy keeps per-layer index ranges contiguous, which address decoding relies on.
const DefaultPolicy = ContiguousPolicy

func (p Policy) String() string {
	switch p {
	case ContiguousPolicy:
		return "contiguous"
	case ScatterPolicy:
		return "scatter"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a policy name to a Policy. The empty string selects DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultPolicy, nil
	case "contiguous", "sequential":
		return ContiguousPolicy, nil
	case "scatter", "random":
		return ScatterPolicy, nil
	default:
		return 0, fmt.Errorf("unsupported allocation policy: %q", s)
	}
}

// Config holds the settings shared by all policies
type Config struct {
	// Capacity is the number of neurons a single core hosts
	Capacity int
	// MaxCores bounds the number of cores used; zero means unbounded
	MaxCores int
	// StrictOutput requires the output layer to fit on one dedicated core (default true)
	StrictOutput *bool
	// OutputLayer names the layer given a dedicated core; defaults to the last layer
	OutputLayer string
	// Rand drives the scatter shuffle; required by ScatterPolicy
	Rand *rand.Rand
}

func (c Config) strictOutput() bool {
	return c.StrictOutput == nil || *c.StrictOutput
}

func (c Config) validate() error {
	if c.Capacity < 1 {
		return &CapacityExceededError{Capacity: c.Capacity, Reason: "core capacity must be at least 1"}
	}
	if c.MaxCores < 0 {
		return fmt.Errorf("max cores must not be negative, got %d", c.MaxCores)
	}
	return nil
}

// NewAllocator is a factory that creates a new Allocator based on the provided policy
func NewAllocator(policy Policy, cfg Config) (Allocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch policy {
	case ContiguousPolicy:
		return NewContiguousAllocator(cfg)
	case ScatterPolicy:
		return NewScatterAllocator(cfg)
	default:
		return nil, fmt.Errorf("unsupported allocation policy: %v", policy)
	}
}

// checkCoreBound enforces MaxCores for a placement needing cores cores.
func checkCoreBound(cfg Config, layers []network.LayerSize, cores int) error {
	if cfg.MaxCores > 0 && cores > cfg.MaxCores {
		return &CapacityExceededError{
			Neurons:  network.TotalNeurons(layers),
			Capacity: cfg.Capacity,
			Reason:   fmt.Sprintf("needs %d cores, at most %d available", cores, cfg.MaxCores),
		}
	}
	return nil
}
