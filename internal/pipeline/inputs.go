package pipeline

import (
	"fmt"
	"os"

	"github.com/llm-d/llm-d-neuron-mapper/internal/artifacts"
	"github.com/llm-d/llm-d-neuron-mapper/internal/buffers"
	"github.com/llm-d/llm-d-neuron-mapper/internal/config"
)

// Inputs are the documents a run consumes.
type Inputs struct {
	Network *config.NetworkDescription

	// Weights holds the trained matrices by role; nil skips connectivity.
	Weights artifacts.Weights

	// Accesses is the buffer access list; nil skips buffer mapping.
	Accesses *buffers.AccessList
}

// LoadInputs reads the files named by cfg.
func LoadInputs(cfg *config.MapperConfig) (Inputs, error) {
	var in Inputs
	d, err := config.LoadNetworkDescription(cfg.Network)
	if err != nil {
		return in, fmt.Errorf("loading network %s: %w", cfg.Network, err)
	}
	in.Network = d

	if cfg.Weights != "" {
		data, err := os.ReadFile(cfg.Weights)
		if err != nil {
			return in, fmt.Errorf("loading weights: %w", err)
		}
		if in.Weights, err = artifacts.DecodeWeights(data); err != nil {
			return in, err
		}
	}

	if cfg.Accesses != "" {
		data, err := os.ReadFile(cfg.Accesses)
		if err != nil {
			return in, fmt.Errorf("loading access list: %w", err)
		}
		access, err := artifacts.DecodeAccessList(data)
		if err != nil {
			return in, err
		}
		in.Accesses = &access
	}
	return in, nil
}
