package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/artifacts"
	"github.com/llm-d/llm-d-neuron-mapper/internal/config"
	"github.com/llm-d/llm-d-neuron-mapper/internal/kube"
	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
)

type inspectOptions struct {
	dir        string
	configMap  string
	kubeconfig string
	top        int
	logLevel   string
}

func newInspectCommand() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the artifacts of a previous mapping run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.top < 0 {
				return fmt.Errorf("--top must not be negative, got %d", opts.top)
			}
			verbosity, err := logging.ParseVerbosity(opts.logLevel)
			if err != nil {
				return err
			}
			logger := logging.Setup(logging.Options{Verbosity: verbosity})
			ctx := ctrl.LoggerInto(cmd.Context(), logger)
			source, err := opts.source()
			if err != nil {
				return err
			}
			return inspect(ctx, source, cmd.OutOrStdout(), opts.top)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.dir, config.KeyOutputDir, "", "Directory holding the artifacts")
	fs.StringVar(&opts.configMap, config.KeyConfigMap, "", "ConfigMap holding the artifacts (namespace/name)")
	fs.StringVar(&opts.kubeconfig, config.KeyKubeconfig, "", "Kubeconfig used to read the ConfigMap")
	fs.IntVar(&opts.top, "top", 5, "Number of busiest tree nodes to list")
	fs.StringVar(&opts.logLevel, config.KeyLogLevel, "info", "Log verbosity: info, debug or trace")
	cmd.MarkFlagsMutuallyExclusive(config.KeyOutputDir, config.KeyConfigMap)
	cmd.MarkFlagsOneRequired(config.KeyOutputDir, config.KeyConfigMap)
	return cmd
}

func (o *inspectOptions) source() (artifacts.Source, error) {
	if o.dir != "" {
		return &artifacts.DirSource{Dir: o.dir}, nil
	}
	ref := config.MapperConfig{ConfigMap: o.configMap}
	namespace, name, err := ref.ConfigMapRef()
	if err != nil {
		return nil, err
	}
	restConfig, err := kube.RestConfig(o.kubeconfig)
	if err != nil {
		return nil, err
	}
	c, err := kube.NewClient(restConfig)
	if err != nil {
		return nil, err
	}
	return &artifacts.ConfigMapSource{Client: c, Namespace: namespace, Name: name}, nil
}

func inspect(ctx context.Context, source artifacts.Source, out io.Writer, top int) error {
	set, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching artifacts: %w", err)
	}
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Fetched artifacts", "names", set.Names())

	data, ok := set.Get(artifacts.ManifestFile)
	if !ok {
		return fmt.Errorf("%s not found", artifacts.ManifestFile)
	}
	manifest, err := artifacts.DecodeManifest(data)
	if err != nil {
		return fmt.Errorf("decoding manifest: %w", err)
	}
	fmt.Fprintf(out, "run:       %s\n", manifest.RunID)
	fmt.Fprintf(out, "created:   %s\n", manifest.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Fprintf(out, "policy:    %s\n", manifest.Policy)
	if manifest.Seed != nil {
		fmt.Fprintf(out, "seed:      %d\n", *manifest.Seed)
	}
	fmt.Fprintf(out, "capacity:  %d\n", manifest.Capacity)
	fmt.Fprintf(out, "cores:     %d\n", manifest.CoresUsed)
	if manifest.Topology != "" {
		fmt.Fprintf(out, "topology:  %s\n", manifest.Topology)
	}

	if data, ok := set.Get(artifacts.CoreAllocationFile); ok {
		alloc, err := artifacts.DecodeCoreAllocation(data)
		if err != nil {
			return fmt.Errorf("decoding core allocation: %w", err)
		}
		var counts allocator.NIRToCores
		if data, ok := set.Get(artifacts.NIRToCoresFile); ok {
			if counts, err = artifacts.DecodeNIRToCores(data); err != nil {
				return fmt.Errorf("decoding nir to cores: %w", err)
			}
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LAYER\tCORE\tSTART\tEND\tNEURONS")
		for _, lr := range alloc {
			for _, r := range lr.Ranges {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", lr.Layer, r.Core, r.Start, r.End, neuronsOnCore(counts, lr.Layer, r.Core))
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if data, ok := set.Get(artifacts.RouteLoadFile); ok {
		load, err := artifacts.DecodeRouteLoad(data)
		if err != nil {
			return fmt.Errorf("decoding route load: %w", err)
		}
		fmt.Fprintf(out, "\nroute load: %d messages, %d deliveries, %d forwarded hops (%.1f%% waste)\n",
			load.Messages, load.Deliveries, load.Hops(), load.WastePercent())
		busiest := load.Busiest()
		if top = max(top, 0); len(busiest) > top {
			busiest = busiest[:top]
		}
		for _, n := range busiest {
			fmt.Fprintf(out, "  node %d forwards %d\n", n.Node, n.Forwarded)
		}
	}
	return nil
}

// neuronsOnCore reads the per-core count of layer from nir_to_cores.json.
// Scatter ranges are min/max bounds, not counts.
func neuronsOnCore(counts allocator.NIRToCores, layer string, core int) string {
	cc, _ := counts.Get(layer)
	for _, c := range cc {
		if c.Core == core {
			return strconv.Itoa(c.Count)
		}
	}
	return "-"
}
