// Package metrics records statistics of a mapping run in a Prometheus registry
// and exports them in the text exposition format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/buffers"
	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/graph"
	"github.com/llm-d/llm-d-neuron-mapper/internal/topology"
)

const namespace = "neuron_mapper"

// Run results reported by ObserveRun.
const (
	ResultSuccess          = "success"
	ResultCapacityExceeded = "capacity_exceeded"
	ResultUnresolved       = "unresolved_neuron"
	ResultMalformedGraph   = "malformed_graph"
	ResultError            = "error"
)

// Recorder owns a private registry and the collectors of one mapper process.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	layerNeurons  *prometheus.GaugeVec
	layerCores    *prometheus.GaugeVec
	coresUsed     prometheus.Gauge
	coreFill      prometheus.Histogram
	coreCapacity  prometheus.Gauge
	graphNodes    prometheus.Gauge
	graphEdges    prometheus.Gauge
	foldedPairs   prometheus.Gauge
	eliminated    prometheus.Gauge
	connections   prometheus.Gauge
	bufferLocks   prometheus.Gauge
	bufferAccess  prometheus.Gauge
	routeMessages prometheus.Gauge
	routeHops     prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Mapping runs by allocation policy and result.",
		}, []string{"policy", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Wall time of each mapping stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"stage"}),
		layerNeurons: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "layer_neurons",
			Help: "Neurons per layer.",
		}, []string{"layer"}),
		layerCores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "layer_cores",
			Help: "Cores hosting at least one neuron of the layer.",
		}, []string{"layer"}),
		coresUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cores_used",
			Help: "Cores hosting at least one neuron.",
		}),
		coreFill: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "core_fill_ratio",
			Help:    "Occupancy over capacity of each used core.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		coreCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "core_capacity",
			Help: "Neurons a single core hosts.",
		}),
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lowered_graph_nodes",
			Help: "Nodes left after lowering.",
		}),
		graphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lowered_graph_edges",
			Help: "Edges left after lowering.",
		}),
		foldedPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "folded_recurrent_pairs",
			Help: "Recurrent 2-cycles folded into self-loops.",
		}),
		eliminated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "eliminated_linear_nodes",
			Help: "Linear nodes bypassed and removed.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "neuron_connections",
			Help: "Entries of the sparse connectivity map.",
		}),
		bufferLocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_lock_keys",
			Help: "Distinct (neuron, destination core) buffer locks.",
		}),
		bufferAccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_lock_accesses",
			Help: "Accesses counted across all buffer locks.",
		}),
		routeMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "route_messages",
			Help: "Connections that cross cores.",
		}),
		routeHops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "route_forwarded_hops",
			Help: "Relays through intermediate tree nodes.",
		}),
	}
	r.registry.MustRegister(
		r.runs, r.stageDuration,
		r.layerNeurons, r.layerCores, r.coresUsed, r.coreFill, r.coreCapacity,
		r.graphNodes, r.graphEdges, r.foldedPairs, r.eliminated,
		r.connections, r.bufferLocks, r.bufferAccess,
		r.routeMessages, r.routeHops,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records the duration of a named stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun counts a finished run, classifying err.
func (r *Recorder) ObserveRun(policy string, err error) {
	r.runs.WithLabelValues(policy, classify(err)).Inc()
}

func classify(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, allocator.ErrCapacityExceeded):
		return ResultCapacityExceeded
	case errors.Is(err, allocator.ErrUnresolvedNeuron):
		return ResultUnresolved
	case errors.Is(err, graph.ErrMalformedGraph):
		return ResultMalformedGraph
	default:
		return ResultError
	}
}

// ObserveAllocation records the placement.
func (r *Recorder) ObserveAllocation(res *allocator.Result) {
	r.coresUsed.Set(float64(res.CoresUsed()))
	r.coreCapacity.Set(float64(res.Capacity))
	for i := range res.Cores {
		if occ := res.Cores[i].Occupancy(); occ > 0 {
			r.coreFill.Observe(float64(occ) / float64(res.Capacity))
		}
	}
	for _, lc := range res.NIRToCores {
		total := 0
		for _, c := range lc.Counts {
			total += c.Count
		}
		r.layerNeurons.WithLabelValues(lc.Layer).Set(float64(total))
		r.layerCores.WithLabelValues(lc.Layer).Set(float64(len(lc.Counts)))
	}
}

// ObserveLowering records the lowered graph.
func (r *Recorder) ObserveLowering(l *graph.Lowered) {
	r.graphNodes.Set(float64(len(l.FinalNodes)))
	r.graphEdges.Set(float64(len(l.FinalEdges)))
	r.foldedPairs.Set(float64(len(l.RecurrentEdges)))
	r.eliminated.Set(float64(len(l.Eliminated)))
}

// ObserveConnectivity records the sparse map size.
func (r *Recorder) ObserveConnectivity(m connectivity.Map) {
	r.connections.Set(float64(m.Len()))
}

// ObserveBuffers records the buffer map.
func (r *Recorder) ObserveBuffers(bm buffers.BufferMap) {
	r.bufferLocks.Set(float64(len(bm)))
	r.bufferAccess.Set(float64(bm.Total()))
}

// ObserveRouteLoad records the route-load estimate.
func (r *Recorder) ObserveRouteLoad(l *topology.Load) {
	r.routeMessages.Set(float64(l.Messages))
	r.routeHops.Set(float64(l.Hops()))
}
