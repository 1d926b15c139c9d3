package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/topology"
)

// EnvPrefix prefixes every environment variable read by the mapper.
const EnvPrefix = "NEURON_MAPPER"

// Keys shared by flags, env variables and the config file.
const (
	KeyConfigFile   = "config"
	KeyNetwork      = "network"
	KeyWeights      = "weights"
	KeyAccesses     = "accesses"
	KeyOutputDir    = "output-dir"
	KeyCapacity     = "capacity"
	KeyMaxCores     = "max-cores"
	KeyPolicy       = "policy"
	KeySeed         = "seed"
	KeyStrictOutput = "strict-output"
	KeyTopology     = "topology"
	KeyThreshold    = "threshold"
	KeyConfigMap    = "configmap"
	KeyKubeconfig   = "kubeconfig"
	KeyMetricsFile  = "metrics-file"
	KeyLogLevel     = "log-level"
	KeyDevelopment  = "log-development"
)

// DefaultCapacity is the neuron capacity of a core.
const DefaultCapacity = 25

// MapperConfig holds the settings of one mapping run.
type MapperConfig struct {
	Network   string `json:"network,omitempty"`
	Weights   string `json:"weights,omitempty"`
	Accesses  string `json:"accesses,omitempty"`
	OutputDir string `json:"output-dir,omitempty"`

	Capacity int    `json:"capacity,omitempty"`
	MaxCores int    `json:"max-cores,omitempty"`
	Policy   string `json:"policy,omitempty"`
	Seed     uint64 `json:"seed,omitempty"`

	// StrictOutput is nil when unset, which means true
	StrictOutput *bool `json:"strict-output,omitempty"`

	Topology  string  `json:"topology,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`

	// ConfigMap is "namespace/name" of the ConfigMap artifacts are published to
	ConfigMap   string `json:"configmap,omitempty"`
	// Kubeconfig defaults to $KUBECONFIG, then the in-cluster config
	Kubeconfig  string `json:"kubeconfig,omitempty"`
	MetricsFile string `json:"metrics-file,omitempty"`

	LogLevel       string `json:"log-level,omitempty"`
	LogDevelopment bool   `json:"log-development,omitempty"`
}

// AddFlags registers the mapper flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfigFile, "", "Path to a mapper config file (yaml, json or toml)")
	fs.String(KeyNetwork, "", "Path to the network description (network.yaml)")
	fs.String(KeyWeights, "", "Path to the trained weight matrices (json or yaml)")
	fs.String(KeyAccesses, "", "Path to the buffer access list (json or yaml)")
	fs.String(KeyOutputDir, "", "Directory artifacts are written to")
	fs.Int(KeyCapacity, DefaultCapacity, "Neurons per core")
	fs.Int(KeyMaxCores, 0, "Maximum number of cores, 0 for unbounded")
	fs.String(KeyPolicy, allocator.DefaultPolicy.String(), "Allocation policy: contiguous or scatter")
	fs.Uint64(KeySeed, 0, "Seed of the scatter policy")
	fs.Bool(KeyStrictOutput, true, "Require the output layer to fit on one dedicated core")
	fs.String(KeyTopology, string(topology.BinaryKind), "Core routing tree: binary or hbs")
	fs.Float64(KeyThreshold, connectivity.DefaultThreshold, "Threshold of the binary connectivity matrix")
	fs.String(KeyConfigMap, "", "Publish artifacts to this ConfigMap (namespace/name)")
	fs.String(KeyKubeconfig, "", "Kubeconfig used by the ConfigMap sink")
	fs.String(KeyMetricsFile, "", "Write run metrics in text exposition format to this file")
	fs.String(KeyLogLevel, "info", "Log verbosity: info, debug or trace")
	fs.Bool(KeyDevelopment, false, "Use development (console) logging")
}

// NewViper returns a viper instance reading NEURON_MAPPER_* env variables and bound to fs.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}
	return v, nil
}

// Load resolves the mapper config from v, reading the config file it names if any.
// Precedence is flags, then env, then config file, then flag defaults.
func Load(v *viper.Viper) (*MapperConfig, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	cfg := &MapperConfig{
		Network:        v.GetString(KeyNetwork),
		Weights:        v.GetString(KeyWeights),
		Accesses:       v.GetString(KeyAccesses),
		OutputDir:      v.GetString(KeyOutputDir),
		Capacity:       v.GetInt(KeyCapacity),
		MaxCores:       v.GetInt(KeyMaxCores),
		Policy:         v.GetString(KeyPolicy),
		Seed:           v.GetUint64(KeySeed),
		Topology:       v.GetString(KeyTopology),
		Threshold:      v.GetFloat64(KeyThreshold),
		ConfigMap:      v.GetString(KeyConfigMap),
		Kubeconfig:     v.GetString(KeyKubeconfig),
		MetricsFile:    v.GetString(KeyMetricsFile),
		LogLevel:       v.GetString(KeyLogLevel),
		LogDevelopment: v.GetBool(KeyDevelopment),
	}
	if v.IsSet(KeyStrictOutput) {
		cfg.StrictOutput = ptr.To(v.GetBool(KeyStrictOutput))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for invalid config values and reports all of them.
func (c *MapperConfig) Validate() error {
	var errs []error
	if c.Network == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyNetwork))
	}
	if c.OutputDir == "" && c.ConfigMap == "" {
		errs = append(errs, fmt.Errorf("one of %s or %s is required", KeyOutputDir, KeyConfigMap))
	}
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyCapacity, c.Capacity))
	}
	if c.MaxCores < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyMaxCores, c.MaxCores))
	}
	if _, err := allocator.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := topology.ParseKind(c.Topology); err != nil {
		errs = append(errs, err)
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %g", KeyThreshold, c.Threshold))
	}
	if c.ConfigMap != "" {
		if _, _, err := c.ConfigMapRef(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := logging.ParseVerbosity(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return utilerrors.NewAggregate(errs)
}

// AllocationPolicy returns the parsed allocation policy.
func (c *MapperConfig) AllocationPolicy() allocator.Policy {
	p, _ := allocator.ParsePolicy(c.Policy)
	return p
}

// TopologyKind returns the parsed core tree kind.
func (c *MapperConfig) TopologyKind() topology.Kind {
	k, _ := topology.ParseKind(c.Topology)
	return k
}

// StrictOutputEnabled reports the effective StrictOutput value.
func (c *MapperConfig) StrictOutputEnabled() bool {
	return ptr.Deref(c.StrictOutput, true)
}

// ConfigMapRef splits ConfigMap into namespace and name.
func (c *MapperConfig) ConfigMapRef() (namespace, name string, err error) {
	parts := strings.Split(c.ConfigMap, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%s must be namespace/name, got %q", KeyConfigMap, c.ConfigMap)
	}
	return parts[0], parts[1], nil
}

// LoggingOptions returns the logger options selected by the config.
func (c *MapperConfig) LoggingOptions() logging.Options {
	v, _ := logging.ParseVerbosity(c.LogLevel)
	return logging.Options{Verbosity: v, Development: c.LogDevelopment}
}
