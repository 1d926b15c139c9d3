package kube

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: https://127.0.0.1:6443
contexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: abc
`

func TestNewScheme(t *testing.T) {
	gvks, _, err := NewScheme().ObjectKinds(&corev1.ConfigMap{})
	require.NoError(t, err)
	require.Len(t, gvks, 1)
	assert.Equal(t, "ConfigMap", gvks[0].Kind)
}

func TestRestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))

	t.Run("explicit path", func(t *testing.T) {
		cfg, err := RestConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "https://127.0.0.1:6443", cfg.Host)
		assert.Equal(t, "abc", cfg.BearerToken)
	})

	t.Run("KUBECONFIG env", func(t *testing.T) {
		t.Setenv("KUBECONFIG", path)
		cfg, err := RestConfig("")
		require.NoError(t, err)
		assert.Equal(t, "https://127.0.0.1:6443", cfg.Host)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := RestConfig(filepath.Join(t.TempDir(), "none"))
		assert.Error(t, err)
	})
}
