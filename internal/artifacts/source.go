package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var errNoArtifacts = errors.New("no artifacts found")

// Source reads back an artifact set written by a Sink.
type Source interface {
	Fetch(ctx context.Context) (*Set, error)
}

// DirSource reads artifact files from Dir.
type DirSource struct {
	Dir string
}

// Fetch loads every artifact file of Dir in name order.
func (s *DirSource) Fetch(ctx context.Context) (*Set, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	set := NewSet()
	for _, e := range entries {
		if e.IsDir() || !isArtifactKey(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		set.AddRaw(e.Name(), data)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", errNoArtifacts, s.Dir)
	}
	return set, nil
}

// ConfigMapSource reads artifacts from the data keys of a ConfigMap.
type ConfigMapSource struct {
	Client    client.Client
	Namespace string
	Name      string
}

// Fetch loads every artifact key of the ConfigMap in key order.
func (s *ConfigMapSource) Fetch(ctx context.Context) (*Set, error) {
	cm := &corev1.ConfigMap{}
	if err := s.Client.Get(ctx, client.ObjectKey{Namespace: s.Namespace, Name: s.Name}, cm); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(cm.Data))
	for key := range cm.Data {
		if isArtifactKey(key) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in ConfigMap %s/%s", errNoArtifacts, s.Namespace, s.Name)
	}
	sort.Strings(keys)
	set := NewSet()
	for _, key := range keys {
		set.AddRaw(key, []byte(cm.Data[key]))
	}
	return set, nil
}

// isArtifactKey checks if a file name or ConfigMap key holds a JSON artifact.
func isArtifactKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".json")
}
