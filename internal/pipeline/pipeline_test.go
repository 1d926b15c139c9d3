package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
	"github.com/llm-d/llm-d-neuron-mapper/internal/artifacts"
	"github.com/llm-d/llm-d-neuron-mapper/internal/buffers"
	"github.com/llm-d/llm-d-neuron-mapper/internal/config"
	"github.com/llm-d/llm-d-neuron-mapper/internal/connectivity"
	"github.com/llm-d/llm-d-neuron-mapper/internal/graph"
	"github.com/llm-d/llm-d-neuron-mapper/internal/metrics"
	"github.com/llm-d/llm-d-neuron-mapper/internal/topology"
)

const networkYAML = `
name: snn
layers:
  - {name: fc1, kind: linear, inFeatures: 3, outFeatures: 4}
  - {name: lif1, kind: rsynaptic, linearFeatures: 4}
  - {name: fc2, kind: linear, inFeatures: 4, outFeatures: 2}
  - {name: lif2, kind: leaky, neurons: 2}
graph:
  edges:
    - [input, fc1]
    - [fc1, lif1.lif]
    - [lif1.lif, lif1.w_rec]
    - [lif1.w_rec, lif1.lif]
    - [lif1.lif, fc2]
    - [fc2, lif2]
    - [lif2, output]
`

// memorySink keeps every published set.
type memorySink struct {
	sets []*artifacts.Set
	err  error
}

func (s *memorySink) Publish(_ context.Context, set *artifacts.Set) error {
	if s.err != nil {
		return s.err
	}
	s.sets = append(s.sets, set)
	return nil
}

func snnInputs() Inputs {
	d, err := config.ParseNetworkDescription([]byte(networkYAML))
	Expect(err).NotTo(HaveOccurred())
	return Inputs{
		Network: d,
		Weights: artifacts.Weights{
			artifacts.InputHidden: {
				{0.2, 0, -0.1},
				{0, 0.3, 0},
				{0, 0, 0.4},
				{0.1, 0.1, 0.1},
			},
			artifacts.HiddenHidden: {
				{0, 0, 0, 0.5},
				{0.5, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, -0.2, 0.01},
			},
			artifacts.HiddenOutput: {
				{0.7, 0, 0, 0},
				{0, 0, 0, -0.7},
			},
		},
		Accesses: &buffers.AccessList{
			Layers:  [2]string{"lif1", "lif2"},
			Indices: [][2]int{{0, 0}, {0, 1}, {3, 1}},
		},
	}
}

func defaultOptions() Options {
	return Options{
		Policy:    allocator.ContiguousPolicy,
		Capacity:  3,
		Topology:  topology.HBSKind,
		Threshold: connectivity.DefaultThreshold,
	}
}

var _ = Describe("Runner", func() {
	var (
		ctx      context.Context
		recorder *metrics.Recorder
		sink     *memorySink
	)

	BeforeEach(func() {
		ctx = context.Background()
		recorder = metrics.NewRecorder()
		sink = &memorySink{}
	})

	Context("with the two-layer recurrent network", func() {
		It("should lower, place, and derive every artifact", func() {
			res, err := NewRunner(defaultOptions(), recorder, sink).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())

			By("lowering the graph")
			Expect(res.Lowered.FinalNodes).To(Equal([]string{"input", "lif1", "lif2", "output"}))
			Expect(res.Lowered.FinalEdges).To(ContainElement(graph.Edge{Source: "lif1", Target: "lif1"}))

			By("placing the output layer on its own core")
			Expect(res.Allocation.CoresUsed()).To(Equal(3))
			Expect(res.Allocation.NeuronToCore).To(HaveKeyWithValue("lif1-3", 1))
			Expect(res.Allocation.NeuronToCore).To(HaveKeyWithValue("lif2-0", 2))
			Expect(res.Allocation.NeuronToCore).To(HaveKeyWithValue("lif2-1", 2))

			By("extracting connectivity")
			Expect(res.Connectivity).To(HaveKey("in_0"))
			Expect(res.Connectivity["lif1_3"]).To(HaveKeyWithValue("lif1_0", connectivity.RecurrentMarker))
			rows, cols := res.Excitatory.Dims()
			Expect([]int{rows, cols}).To(Equal([]int{4, 2}))
			Expect(res.Excitatory.At(0, 0)).To(Equal(0.7))
			Expect(res.Excitatory.At(3, 1)).To(Equal(0.0))
			Expect(res.Binary.At(3, 3)).To(Equal(0.0))

			By("counting buffer locks per destination core")
			Expect(res.BufferMap).To(Equal(buffers.BufferMap{"lif1-0-2": 2, "lif1-3-2": 1}))

			By("routing the recurrent layer over the HBS tree")
			Expect(res.RouteLayer).To(Equal("lif1"))
			Expect(res.RouteLoad.Messages).To(Equal(1))
			Expect(res.RouteLoad.Forwarded).To(Equal(map[int]int{3: 1}))
		})

		It("should publish the artifacts and manifest once", func() {
			res, err := NewRunner(defaultOptions(), recorder, sink).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())
			Expect(sink.sets).To(HaveLen(1))

			set := sink.sets[0]
			Expect(set.Names()).To(Equal([]string{
				artifacts.CoreAllocationFile,
				artifacts.NIRToCoresFile,
				artifacts.NeuronToCoreFile,
				artifacts.ProcessedEdgesFile,
				artifacts.NeuronConnectivityFile,
				artifacts.ExcitatoryMatrixFile,
				artifacts.RecurrentExcitatoryMatrixFile,
				artifacts.ConnectivityMatrixFile,
				artifacts.BufferMapFile,
				artifacts.CoreTreeFile,
				artifacts.RouteLoadFile,
				artifacts.ManifestFile,
			}))

			data, ok := set.Get(artifacts.ManifestFile)
			Expect(ok).To(BeTrue())
			manifest, err := artifacts.DecodeManifest(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(manifest.RunID).To(Equal(res.Manifest.RunID))
			Expect(manifest.CoresUsed).To(Equal(3))
			Expect(manifest.Policy).To(Equal("contiguous"))
			Expect(manifest.Seed).To(BeNil())
			Expect(manifest.Artifacts).To(HaveLen(11))

			data, _ = set.Get(artifacts.NeuronToCoreFile)
			n2c, err := artifacts.DecodeNeuronToCore(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(n2c).To(Equal(res.Allocation.NeuronToCore))
		})

		It("should record the run in metrics", func() {
			_, err := NewRunner(defaultOptions(), recorder, sink).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())
			text, err := recorder.Text()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(ContainSubstring(`neuron_mapper_runs_total{policy="contiguous",result="success"} 1`))
			Expect(string(text)).To(ContainSubstring("neuron_mapper_cores_used 3"))
			Expect(string(text)).To(ContainSubstring(`neuron_mapper_stage_duration_seconds_count{stage="publish"} 1`))
		})

		It("should build the excitatory matrix from the hidden to output weights alone", func() {
			in := snnInputs()
			in.Weights = artifacts.Weights{
				artifacts.HiddenOutput: {
					{0.7, 0, 0, 0},
					{0, 0.3, 0, -0.7},
				},
			}
			res, err := NewRunner(defaultOptions(), nil, sink).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Excitatory).NotTo(BeNil())
			Expect(connectivity.Rows(res.Excitatory)).To(Equal([][]float64{
				{0.7, 0},
				{0, 0.3},
				{0, 0},
				{0, 0},
			}))
			Expect(res.RecurrentExcitatory).To(BeNil())

			data, ok := sink.sets[0].Get(artifacts.ExcitatoryMatrixFile)
			Expect(ok).To(BeTrue())
			decoded, err := artifacts.DecodeMatrix(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(decoded, res.Excitatory)).To(BeTrue())
		})

		It("should skip optional stages without weights or accesses", func() {
			in := snnInputs()
			in.Weights = nil
			in.Accesses = nil
			res, err := NewRunner(defaultOptions(), nil, sink).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connectivity).To(BeNil())
			Expect(res.BufferMap).To(BeNil())
			Expect(res.RouteLoad).To(BeNil())
			Expect(res.Tree).NotTo(BeNil())
			Expect(sink.sets[0].Names()).NotTo(ContainElement(artifacts.BufferMapFile))
		})

		It("should write a directory that reads back", func() {
			dir := filepath.Join(GinkgoT().TempDir(), "out")
			_, err := NewRunner(defaultOptions(), nil, artifacts.NewDirSink(dir)).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())
			got, err := (&artifacts.DirSource{Dir: dir}).Fetch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Len()).To(Equal(12))
		})
	})

	Context("with scatter placement", func() {
		It("should be reproducible for a seed and record it", func() {
			opts := defaultOptions()
			opts.Policy = allocator.ScatterPolicy
			opts.Seed = 42

			first, err := NewRunner(opts, nil).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())
			second, err := NewRunner(opts, nil).Run(ctx, snnInputs())
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Allocation.NeuronToCore).To(Equal(first.Allocation.NeuronToCore))
			Expect(first.Allocation.CoresUsed()).To(Equal(2))
			Expect(first.Manifest.Seed).To(Equal(ptr.To(uint64(42))))
		})
	})

	Context("when a stage fails", func() {
		It("should publish nothing when the output layer does not fit", func() {
			opts := defaultOptions()
			opts.Capacity = 1
			dir := filepath.Join(GinkgoT().TempDir(), "out")

			_, err := NewRunner(opts, recorder, sink, artifacts.NewDirSink(dir)).Run(ctx, snnInputs())
			var capErr *allocator.CapacityExceededError
			Expect(errors.As(err, &capErr)).To(BeTrue())
			Expect(capErr.Layer).To(Equal("lif2"))
			Expect(sink.sets).To(BeEmpty())
			_, statErr := os.Stat(dir)
			Expect(os.IsNotExist(statErr)).To(BeTrue())

			text, err := recorder.Text()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(ContainSubstring(`result="capacity_exceeded"} 1`))
		})

		It("should report unresolved buffer accesses", func() {
			in := snnInputs()
			in.Accesses.Indices = append(in.Accesses.Indices, [2]int{0, 9})
			_, err := NewRunner(defaultOptions(), nil, sink).Run(ctx, in)
			Expect(errors.Is(err, buffers.ErrUnresolvedNeuron)).To(BeTrue())
			Expect(sink.sets).To(BeEmpty())
		})

		It("should report mismatched weight shapes", func() {
			in := snnInputs()
			in.Weights[artifacts.HiddenOutput] = [][]float64{{1, 2, 3}}
			_, err := NewRunner(defaultOptions(), nil, sink).Run(ctx, in)
			Expect(errors.Is(err, connectivity.ErrShape)).To(BeTrue())
			Expect(sink.sets).To(BeEmpty())
		})

		It("should surface sink errors", func() {
			sink.err = errors.New("disk full")
			_, err := NewRunner(defaultOptions(), nil, sink).Run(ctx, snnInputs())
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})

		It("should stop on a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := NewRunner(defaultOptions(), nil, sink).Run(cctx, snnInputs())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("should require a network", func() {
			_, err := NewRunner(defaultOptions(), nil).Run(ctx, Inputs{})
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("LoadInputs", func() {
	It("should read the network, weights and access list", func() {
		dir := GinkgoT().TempDir()
		write := func(name, body string) string {
			p := filepath.Join(dir, name)
			Expect(os.WriteFile(p, []byte(body), 0o600)).To(Succeed())
			return p
		}
		cfg := &config.MapperConfig{
			Network:  write("network.yaml", networkYAML),
			Weights:  write("weights.json", `{"hidden_hidden": [[0, 1], [1, 0]]}`),
			Accesses: write("accesses.yaml", "layers: [lif1, lif2]\nindices:\n  - [0, 1]\n"),
		}
		in, err := LoadInputs(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Network.Layers).To(HaveLen(4))
		Expect(in.Weights).To(HaveKey(artifacts.HiddenHidden))
		Expect(in.Accesses.Indices).To(Equal([][2]int{{0, 1}}))
	})

	It("should fail on a missing network file", func() {
		_, err := LoadInputs(&config.MapperConfig{Network: filepath.Join(GinkgoT().TempDir(), "none.yaml")})
		Expect(err).To(HaveOccurred())
	})
})
