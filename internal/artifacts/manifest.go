package artifacts

import (
	"time"

	"github.com/google/uuid"

	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
)

// Manifest describes one mapping run and the artifacts it produced.
type Manifest struct {
	RunID     string              `json:"runId"`
	CreatedAt time.Time           `json:"createdAt"`
	Policy    string              `json:"policy"`
	Capacity  int                 `json:"capacity"`
	Seed      *uint64             `json:"seed,omitempty"`
	CoresUsed int                 `json:"coresUsed"`
	Topology  string              `json:"topology,omitempty"`
	Layers    []network.LayerSize `json:"layers"`
	Artifacts []string            `json:"artifacts"`
}

// NewManifest returns a manifest with a fresh run id stamped at now.
func NewManifest(now time.Time) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: now.UTC(),
	}
}

// DecodeManifest parses mapping_manifest.json.
func DecodeManifest(data []byte) (*Manifest, error) {
	m, err := Decode[*Manifest](data)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(m.RunID); err != nil {
		return nil, err
	}
	return m, nil
}
