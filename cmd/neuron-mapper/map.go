package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-neuron-mapper/internal/artifacts"
	"github.com/llm-d/llm-d-neuron-mapper/internal/config"
	"github.com/llm-d/llm-d-neuron-mapper/internal/kube"
	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/metrics"
	"github.com/llm-d/llm-d-neuron-mapper/internal/pipeline"
)

func newMapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Map a network onto cores and publish the artifacts",
		Example: `  neuron-mapper map --network network.yaml --capacity 25 --output-dir out/
  NEURON_MAPPER_POLICY=scatter neuron-mapper map --network network.yaml --seed 42 --configmap neuro/snn-mapping`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LoggingOptions())
			ctx := ctrl.LoggerInto(cmd.Context(), logger)
			return runMap(ctx, cmd, cfg)
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func runMap(ctx context.Context, cmd *cobra.Command, cfg *config.MapperConfig) error {
	logger := ctrl.LoggerFrom(ctx)
	in, err := pipeline.LoadInputs(cfg)
	if err != nil {
		return err
	}
	sinks, err := newSinks(cfg)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	res, runErr := pipeline.NewRunner(pipeline.OptionsFromConfig(cfg), recorder, sinks...).Run(ctx, in)
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error(err, "Failed to write metrics file", "path", cfg.MetricsFile)
		}
	}
	if runErr != nil {
		logger.Error(runErr, "Mapping failed", "network", cfg.Network)
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d neurons on %d cores (policy %s, capacity %d)\n",
		res.Manifest.RunID, len(res.Allocation.NeuronToCore), res.Allocation.CoresUsed(),
		res.Manifest.Policy, res.Manifest.Capacity)
	if res.RouteLoad != nil {
		fmt.Fprintf(out, "route load on %s: %d messages, %d forwarded hops (%.1f%% waste)\n",
			res.RouteLayer, res.RouteLoad.Messages, res.RouteLoad.Hops(), res.RouteLoad.WastePercent())
	}
	return nil
}

func newSinks(cfg *config.MapperConfig) ([]artifacts.Sink, error) {
	var sinks []artifacts.Sink
	if cfg.OutputDir != "" {
		sinks = append(sinks, artifacts.NewDirSink(cfg.OutputDir))
	}
	if cfg.ConfigMap != "" {
		namespace, name, err := cfg.ConfigMapRef()
		if err != nil {
			return nil, err
		}
		restConfig, err := kube.RestConfig(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		c, err := kube.NewClient(restConfig)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, artifacts.NewConfigMapSink(c, namespace, name))
	}
	return sinks, nil
}
