package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
)

// Sink is a destination for a complete artifact set.
type Sink interface {
	Publish(ctx context.Context, set *Set) error
}

// DirSink writes each artifact as a file under Dir.
type DirSink struct {
	Dir string
}

// NewDirSink returns a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Publish creates Dir if needed and writes every artifact into it.
func (s *DirSink) Publish(ctx context.Context, set *Set) error {
	logger := ctrl.LoggerFrom(ctx)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, name := range set.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, _ := set.Get(name)
		path := filepath.Join(s.Dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		logger.V(logging.DEBUG).Info("Wrote artifact", "path", path, "bytes", len(data))
	}
	logger.Info("Published artifacts", "dir", s.Dir, "count", set.Len())
	return nil
}

// MaxConfigMapBytes is the API server limit on ConfigMap data.
const MaxConfigMapBytes = 1 << 20

// ManagedByLabel marks ConfigMaps written by the mapper.
const ManagedByLabel = "app.kubernetes.io/managed-by"

// ConfigMapSink stores every artifact as a data key of a single ConfigMap,
// creating it or updating it in place.
type ConfigMapSink struct {
	Client    client.Client
	Namespace string
	Name      string
	Labels    map[string]string
}

// NewConfigMapSink returns a sink writing to namespace/name.
func NewConfigMapSink(c client.Client, namespace, name string) *ConfigMapSink {
	return &ConfigMapSink{
		Client:    c,
		Namespace: namespace,
		Name:      name,
		Labels:    map[string]string{ManagedByLabel: "neuron-mapper"},
	}
}

// Publish upserts the ConfigMap. Existing keys not in set are kept.
func (s *ConfigMapSink) Publish(ctx context.Context, set *Set) error {
	logger := ctrl.LoggerFrom(ctx)
	if size := set.Size(); size > MaxConfigMapBytes {
		return fmt.Errorf("artifacts total %d bytes, ConfigMap limit is %d", size, MaxConfigMapBytes)
	}

	cm := &corev1.ConfigMap{}
	key := client.ObjectKey{Namespace: s.Namespace, Name: s.Name}
	err := s.Client.Get(ctx, key, cm)
	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.Name,
				Namespace: s.Namespace,
				Labels:    s.Labels,
			},
			Data: toData(set, nil),
		}
		if err := s.Client.Create(ctx, cm); err != nil {
			return fmt.Errorf("creating ConfigMap %s: %w", key, err)
		}
		logger.Info("Created artifact ConfigMap", "configMap", key, "keys", set.Len())
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting ConfigMap %s: %w", key, err)
	}

	cm.Data = toData(set, cm.Data)
	if cm.Labels == nil {
		cm.Labels = map[string]string{}
	}
	for k, v := range s.Labels {
		cm.Labels[k] = v
	}
	if err := s.Client.Update(ctx, cm); err != nil {
		return fmt.Errorf("updating ConfigMap %s: %w", key, err)
	}
	logger.Info("Updated artifact ConfigMap", "configMap", key, "keys", set.Len())
	return nil
}

func toData(set *Set, existing map[string]string) map[string]string {
	data := make(map[string]string, len(existing)+set.Len())
	for k, v := range existing {
		data[k] = v
	}
	for _, name := range set.Names() {
		d, _ := set.Get(name)
		data[name] = string(d)
	}
	return data
}
