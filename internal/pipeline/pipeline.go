package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/artifacts"
	"github.com/llm-d/llm-d-neuron-mapper/internal/buffers"
	"github.com/llm-d/llm-d-neuron-mapper/internal/config"
	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/graph"
	"github.com/llm-d/llm-d-neuron-mapper/internal/logging"
	"github.com/llm-d/llm-d-neuron-mapper/internal/metrics"
	"github.com/llm-d/llm-d-neuron-mapper/internal/network"
	"github.com/llm-d/llm-d-neuron-mapper/internal/topology"
)

// Stage names reported to the metrics recorder.
const (
	StageLowering     = "lowering"
	StageAllocation   = "allocation"
	StageConnectivity = "connectivity"
	StageBuffers      = "buffers"
	StageRouting      = "routing"
	StagePublish      = "publish"
)

// Options are the placement settings of a run.
type Options struct {
	Policy   allocator.Policy
	Capacity int
	MaxCores int
	// StrictOutput is nil for the allocator default (strict)
	StrictOutput *bool
	// Seed drives the scatter shuffle
	Seed      uint64
	Topology  topology.Kind
	Threshold float64
}

// OptionsFromConfig converts a validated mapper config.
func OptionsFromConfig(cfg *config.MapperConfig) Options {
	return Options{
		Policy:       cfg.AllocationPolicy(),
		Capacity:     cfg.Capacity,
		MaxCores:     cfg.MaxCores,
		StrictOutput: cfg.StrictOutput,
		Seed:         cfg.Seed,
		Topology:     cfg.TopologyKind(),
		Threshold:    cfg.Threshold,
	}
}

// Result holds everything a successful run produced.
type Result struct {
	// Lowered is nil when the network has no graph
	Lowered    *graph.Lowered
	Layers     []network.LayerSize
	Allocation *allocator.Result

	// Connectivity and the matrices are nil without weights
	Connectivity        connectivity.Map
	Excitatory          *mat.Dense
	RecurrentExcitatory *mat.Dense
	Binary              *mat.Dense

	// BufferMap is nil without an access list
	BufferMap buffers.BufferMap

	Tree *topology.Tree
	// RouteLoad is nil when there is no recurrent connectivity to route
	RouteLoad  *topology.Load
	RouteLayer string

	Manifest  *artifacts.Manifest
	Artifacts *artifacts.Set
}

// Runner executes mapping runs and publishes their artifacts.
type Runner struct {
	opts     Options
	recorder *metrics.Recorder
	sinks    []artifacts.Sink
	now      func() time.Time
}

// NewRunner returns a Runner. recorder may be nil.
func NewRunner(opts Options, recorder *metrics.Recorder, sinks ...artifacts.Sink) *Runner {
	if opts.Topology == "" {
		opts.Topology = topology.BinaryKind
	}
	return &Runner{
		opts:     opts,
		recorder: recorder,
		sinks:    sinks,
		now:      time.Now,
	}
}

// Run maps in onto cores and publishes the artifacts to every sink. Nothing is
// published when a stage fails.
func (r *Runner) Run(ctx context.Context, in Inputs) (res *Result, err error) {
	logger := ctrl.LoggerFrom(ctx)
	defer func() {
		if r.recorder != nil {
			r.recorder.ObserveRun(r.opts.Policy.String(), err)
		}
	}()

	if in.Network == nil {
		return nil, fmt.Errorf("network description is required")
	}
	layerSet, err := in.Network.LayerSet()
	if err != nil {
		return nil, err
	}
	res = &Result{Layers: layerSet.NeuronCounts()}

	stages := []struct {
		name string
		run  func(context.Context, Inputs, *network.LayerSet, *Result) error
	}{
		{StageLowering, r.lower},
		{StageAllocation, r.allocate},
		{StageConnectivity, r.connect},
		{StageBuffers, r.mapBuffers},
		{StageRouting, r.route},
		{StagePublish, r.publish},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := s.run(ctx, in, layerSet, res); err != nil {
			logger.V(logging.DEBUG).Info("Stage failed", "stage", s.name, "error", err.Error())
			return nil, err
		}
		if r.recorder != nil {
			r.recorder.ObserveStage(s.name, time.Since(start))
		}
	}

	logger.Info("Mapping complete",
		"runId", res.Manifest.RunID,
		"policy", r.opts.Policy.String(),
		"cores", res.Allocation.CoresUsed(),
		"artifacts", res.Artifacts.Len())
	return res, nil
}

func (r *Runner) lower(ctx context.Context, in Inputs, _ *network.LayerSet, res *Result) error {
	g, err := in.Network.BuildGraph()
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}
	if g == nil {
		ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("No graph described, skipping lowering")
		return nil
	}
	lowered, err := graph.Lower(ctx, g)
	if err != nil {
		return fmt.Errorf("lowering graph: %w", err)
	}
	res.Lowered = lowered
	if r.recorder != nil {
		r.recorder.ObserveLowering(lowered)
	}
	return nil
}

func (r *Runner) allocate(ctx context.Context, in Inputs, _ *network.LayerSet, res *Result) error {
	cfg := allocator.Config{
		Capacity:     r.opts.Capacity,
		MaxCores:     r.opts.MaxCores,
		StrictOutput: r.opts.StrictOutput,
		OutputLayer:  in.Network.OutputLayer,
		Rand:         rand.New(rand.NewPCG(r.opts.Seed, r.opts.Seed)),
	}
	a, err := allocator.NewAllocator(r.opts.Policy, cfg)
	if err != nil {
		return err
	}
	placement, err := a.Allocate(ctx, res.Layers)
	if err != nil {
		return fmt.Errorf("allocating neurons: %w", err)
	}
	if err := placement.Verify(res.Layers); err != nil {
		return fmt.Errorf("verifying placement: %w", err)
	}
	res.Allocation = placement
	if r.recorder != nil {
		r.recorder.ObserveAllocation(placement)
	}
	return nil
}

func (r *Runner) connect(ctx context.Context, in Inputs, _ *network.LayerSet, res *Result) error {
	if in.Weights == nil {
		ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("No weights supplied, skipping connectivity")
		return nil
	}
	inHidden, err := weightMatrix(in.Weights, artifacts.InputHidden)
	if err != nil {
		return err
	}
	hiddenHidden, err := weightMatrix(in.Weights, artifacts.HiddenHidden)
	if err != nil {
		return err
	}
	hiddenOut, err := weightMatrix(in.Weights, artifacts.HiddenOutput)
	if err != nil {
		return err
	}

	m, err := connectivity.Extract(inHidden, hiddenHidden, hiddenOut, in.Network.Populations)
	if err != nil {
		return fmt.Errorf("extracting connectivity: %w", err)
	}
	res.Connectivity = m
	// excitatory_matrix.json holds the hidden -> output connection
	if hiddenOut != nil {
		res.Excitatory = connectivity.ExcitatoryMatrix(hiddenOut)
	}
	if hiddenHidden != nil {
		res.RecurrentExcitatory = connectivity.RecurrentExcitatoryMatrix(hiddenHidden)
		res.Binary = connectivity.BinaryMatrix(res.RecurrentExcitatory, r.opts.Threshold)
	}
	if r.recorder != nil {
		r.recorder.ObserveConnectivity(m)
	}
	return nil
}

// weightMatrix returns an untyped nil when role is absent so that nil checks
// on the mat.Matrix interface hold.
func weightMatrix(w artifacts.Weights, role string) (mat.Matrix, error) {
	d, err := w.Matrix(role)
	if err != nil || d == nil {
		return nil, err
	}
	return d, nil
}

func (r *Runner) mapBuffers(ctx context.Context, in Inputs, _ *network.LayerSet, res *Result) error {
	if in.Accesses == nil {
		return nil
	}
	bm, err := buffers.NewMapper(res.Allocation.NeuronToCore).Map(ctx, *in.Accesses)
	if err != nil {
		return fmt.Errorf("mapping buffers: %w", err)
	}
	res.BufferMap = bm
	if r.recorder != nil {
		r.recorder.ObserveBuffers(bm)
	}
	return nil
}

func (r *Runner) route(ctx context.Context, in Inputs, layers *network.LayerSet, res *Result) error {
	logger := ctrl.LoggerFrom(ctx)
	tree, err := topology.New(r.opts.Topology, res.Allocation.CoresUsed())
	if err != nil {
		return fmt.Errorf("building core tree: %w", err)
	}
	res.Tree = tree

	if res.Binary == nil {
		return nil
	}
	layer := routeLayer(in.Network, layers)
	if layer == "" {
		logger.V(logging.DEBUG).Info("No recurrent layer to route")
		return nil
	}
	// the binary matrix is (target, source)
	load, err := topology.RouteLoad(tree, res.Allocation.NeuronToCore, res.Binary.T(), layer, layer)
	if err != nil {
		return fmt.Errorf("estimating route load for %s: %w", layer, err)
	}
	res.RouteLoad = load
	res.RouteLayer = layer
	logger.V(logging.DEBUG).Info("Estimated route load",
		"layer", layer,
		"messages", load.Messages,
		"hops", load.Hops(),
		"wastePercent", load.WastePercent())
	if r.recorder != nil {
		r.recorder.ObserveRouteLoad(load)
	}
	return nil
}

// routeLayer is the configured route layer or the first recurrent layer.
func routeLayer(d *config.NetworkDescription, layers *network.LayerSet) string {
	if d.RouteLayer != "" {
		return d.RouteLayer
	}
	for _, l := range layers.Layers() {
		if l.Kind == network.RecurrentStatefulLayer {
			return l.Name
		}
	}
	return ""
}

func (r *Runner) publish(ctx context.Context, _ Inputs, _ *network.LayerSet, res *Result) error {
	set, err := r.encode(res)
	if err != nil {
		return err
	}
	manifest := artifacts.NewManifest(r.now())
	manifest.Policy = r.opts.Policy.String()
	manifest.Capacity = r.opts.Capacity
	manifest.CoresUsed = res.Allocation.CoresUsed()
	manifest.Topology = string(r.opts.Topology)
	manifest.Layers = res.Layers
	manifest.Artifacts = set.Names()
	if r.opts.Policy == allocator.ScatterPolicy {
		manifest.Seed = ptr.To(r.opts.Seed)
	}
	if err := set.Add(artifacts.ManifestFile, manifest); err != nil {
		return err
	}
	res.Manifest = manifest
	res.Artifacts = set

	ctx = ctrl.LoggerInto(ctx, ctrl.LoggerFrom(ctx).WithValues("runId", manifest.RunID))
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, set); err != nil {
			return fmt.Errorf("publishing artifacts: %w", err)
		}
	}
	return nil
}

func (r *Runner) encode(res *Result) (*artifacts.Set, error) {
	set := artifacts.NewSet()
	addMatrix := func(name string, m *mat.Dense, enc func(mat.Matrix) ([]byte, error)) error {
		if m == nil {
			return nil
		}
		data, err := enc(m)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", name, err)
		}
		set.AddRaw(name, data)
		return nil
	}

	a := res.Allocation
	if err := set.Add(artifacts.CoreAllocationFile, a.CoreAllocation); err != nil {
		return nil, err
	}
	if err := set.Add(artifacts.NIRToCoresFile, a.NIRToCores); err != nil {
		return nil, err
	}
	if err := set.Add(artifacts.NeuronToCoreFile, a.NeuronToCore); err != nil {
		return nil, err
	}
	if res.Lowered != nil {
		if err := set.Add(artifacts.ProcessedEdgesFile, res.Lowered.FinalEdges); err != nil {
			return nil, err
		}
	}
	if res.Connectivity != nil {
		if err := set.Add(artifacts.NeuronConnectivityFile, res.Connectivity); err != nil {
			return nil, err
		}
	}
	if err := addMatrix(artifacts.ExcitatoryMatrixFile, res.Excitatory, artifacts.EncodeMatrix); err != nil {
		return nil, err
	}
	if err := addMatrix(artifacts.RecurrentExcitatoryMatrixFile, res.RecurrentExcitatory, artifacts.EncodeMatrix); err != nil {
		return nil, err
	}
	if err := addMatrix(artifacts.ConnectivityMatrixFile, res.Binary, artifacts.EncodeBinaryMatrix); err != nil {
		return nil, err
	}
	if res.BufferMap != nil {
		if err := set.Add(artifacts.BufferMapFile, res.BufferMap); err != nil {
			return nil, err
		}
	}
	if err := set.Add(artifacts.CoreTreeFile, res.Tree); err != nil {
		return nil, err
	}
	if res.RouteLoad != nil {
		if err := set.Add(artifacts.RouteLoadFile, res.RouteLoad); err != nil {
			return nil, err
		}
	}
	return set, nil
}
