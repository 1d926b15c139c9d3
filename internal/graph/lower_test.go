package graph

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func mustGraph(edges ...Edge) *Graph {
	g, err := FromEdges(nil, nil, edges)
	Expect(err).NotTo(HaveOccurred())
	return g
}

func e(src, dst string) Edge {
	return Edge{Source: src, Target: dst}
}

var _ = Describe("Lower", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("with a two-layer recurrent SNN export", func() {
		var g *Graph

		BeforeEach(func() {
			g = mustGraph(
				e("input", "fc1"),
				e("fc1", "lif1.lif"),
				e("lif1.lif", "lif1.w_rec"),
				e("lif1.w_rec", "lif1.lif"),
				e("lif1.lif", "fc2"),
				e("fc2", "lif2"),
				e("lif2", "output"),
			)
		})

		It("should produce the hardware graph", func() {
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"input", "lif1", "lif2", "output"}))
			Expect(res.FinalEdges).To(Equal([]Edge{
				e("input", "lif1"),
				e("lif1", "lif1"),
				e("lif1", "lif2"),
				e("lif2", "output"),
			}))
			Expect(res.Eliminated).To(Equal([]string{"fc1", "fc2"}))
		})

		It("should report the folded pair", func() {
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RecurrentEdges).To(ConsistOf(FoldedPair{
				U:       "lif1.lif",
				V:       "lif1.w_rec",
				Removed: "lif1.w_rec",
				Kept:    "lif1.lif",
				Renamed: "lif1",
			}))
		})

		It("should leave the input graph untouched", func() {
			before := g.Edges()
			_, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Edges()).To(Equal(before))
			Expect(g.NodeCount()).To(Equal(7))
		})
	})

	Context("linear elimination", func() {
		It("should connect every predecessor to every successor", func() {
			g := mustGraph(
				e("A", "fcF"), e("B", "fcF"),
				e("fcF", "C"), e("fcF", "D"),
			)
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalEdges).To(ConsistOf(e("A", "C"), e("A", "D"), e("B", "C"), e("B", "D")))
			Expect(res.FinalNodes).NotTo(ContainElement("fcF"))
		})

		It("should delete a linear node without predecessors", func() {
			g := mustGraph(e("fc0", "lif1"), e("lif1", "output"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"lif1", "output"}))
			Expect(res.FinalEdges).To(Equal([]Edge{e("lif1", "output")}))
		})

		It("should delete a linear node without successors", func() {
			g := mustGraph(e("input", "fc9"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"input"}))
			Expect(res.FinalEdges).To(BeEmpty())
		})

		It("should not bypass a linear self-loop", func() {
			g := mustGraph(e("a", "fc1"), e("fc1", "fc1"), e("fc1", "b"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalEdges).To(Equal([]Edge{e("a", "b")}))
		})

		It("should collapse chains of linear nodes", func() {
			g := mustGraph(e("a", "fc1"), e("fc1", "fc2"), e("fc2", "b"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalEdges).To(Equal([]Edge{e("a", "b")}))
			Expect(res.Eliminated).To(Equal([]string{"fc1", "fc2"}))
		})
	})

	Context("recurrent folding", func() {
		It("should keep the neuron side and relabel it to its base name", func() {
			g := mustGraph(e("lif1.w_rec", "lif1.lif"), e("lif1.lif", "lif1.w_rec"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"lif1"}))
			Expect(res.FinalEdges).To(Equal([]Edge{e("lif1", "lif1")}))
			Expect(res.RecurrentEdges).To(HaveLen(1))
			Expect(res.RecurrentEdges[0].Removed).To(Equal("lif1.w_rec"))
		})

		It("should merge into an existing node with the same base name", func() {
			g := mustGraph(
				e("input", "lif1"),
				e("lif1.lif", "lif1.w_rec"),
				e("lif1.w_rec", "lif1.lif"),
				e("lif1.lif", "lif2"),
			)
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"input", "lif1", "lif2"}))
			Expect(res.FinalEdges).To(Equal([]Edge{
				e("input", "lif1"),
				e("lif1", "lif1"),
				e("lif1", "lif2"),
			}))
		})

		It("should remove the first node when neither side is a recurrent weight", func() {
			g := mustGraph(e("a", "b"), e("b", "a"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"b"}))
			Expect(res.FinalEdges).To(Equal([]Edge{e("b", "b")}))
		})

		It("should skip pairs whose node was removed by an earlier fold", func() {
			g := mustGraph(
				e("a", "r.rec"), e("r.rec", "a"),
				e("r.rec", "c"), e("c", "r.rec"),
			)
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RecurrentEdges).To(HaveLen(1))
			Expect(res.FinalNodes).To(Equal([]string{"a", "c"}))
			Expect(res.FinalEdges).To(Equal([]Edge{e("a", "a")}))
		})

		It("should ignore existing self-loops", func() {
			g := mustGraph(e("lif1", "lif1"), e("lif1", "out"))
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RecurrentEdges).To(BeEmpty())
			Expect(res.FinalEdges).To(Equal([]Edge{e("lif1", "lif1"), e("lif1", "out")}))
		})

		It("should use the classifier supplied at construction", func() {
			cls := NewClassifier(ClassifierConfig{
				LinearPrefixes:   []string{"dense"},
				NeuronPrefixes:   []string{"neuron"},
				RecurrentMarkers: []string{"loop"},
				Separator:        "/",
			})
			g, err := FromEdges(cls, nil, []Edge{
				e("in", "dense_0"),
				e("dense_0", "neuron/state"),
				e("neuron/state", "neuron/loop"),
				e("neuron/loop", "neuron/state"),
			})
			Expect(err).NotTo(HaveOccurred())
			res, err := Lower(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalNodes).To(Equal([]string{"in", "neuron"}))
			Expect(res.FinalEdges).To(Equal([]Edge{e("in", "neuron"), e("neuron", "neuron")}))
		})
	})

	Context("step ordering", func() {
		var l *Lowerer

		BeforeEach(func() {
			l = NewLowerer()
		})

		It("should reject elimination before a graph is loaded", func() {
			err := l.EliminateLinear(ctx)
			Expect(errors.Is(err, ErrOrdering)).To(BeTrue())
			var oe *OrderingError
			Expect(errors.As(err, &oe)).To(BeTrue())
			Expect(oe.Operation).To(Equal("EliminateLinear"))
		})

		It("should reject a nil graph", func() {
			Expect(errors.Is(l.Load(nil), ErrOrdering)).To(BeTrue())
		})

		It("should reject folding before elimination", func() {
			Expect(l.Load(mustGraph(e("a", "b")))).To(Succeed())
			err := l.FoldRecurrent(ctx)
			Expect(errors.Is(err, ErrOrdering)).To(BeTrue())
		})

		It("should reject folding twice", func() {
			Expect(l.Load(mustGraph(e("a", "b")))).To(Succeed())
			Expect(l.EliminateLinear(ctx)).To(Succeed())
			Expect(l.FoldRecurrent(ctx)).To(Succeed())
			Expect(errors.Is(l.FoldRecurrent(ctx), ErrOrdering)).To(BeTrue())
		})

		It("should reject reading the result before folding", func() {
			Expect(l.Load(mustGraph(e("a", "b")))).To(Succeed())
			Expect(l.EliminateLinear(ctx)).To(Succeed())
			_, err := l.Result()
			Expect(errors.Is(err, ErrOrdering)).To(BeTrue())
		})

		It("should stop on a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			Expect(l.Load(mustGraph(e("a", "fc1"), e("fc1", "b")))).To(Succeed())
			Expect(l.EliminateLinear(cctx)).To(MatchError(context.Canceled))
		})
	})
})
