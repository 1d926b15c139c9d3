package buffers

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
)

var _ = Describe("MapBuffers", func() {
	var n2c allocator.NeuronToCore

	BeforeEach(func() {
		n2c = allocator.NeuronToCore{
			"lif1-0": 0, "lif1-1": 0, "lif1-2": 1,
			"lif2-0": 2, "lif2-1": 2, "lif2-2": 3,
		}
	})

	It("should count accesses per source neuron and destination core", func() {
		bm, err := MapBuffers(n2c, AccessList{
			Layers:  [2]string{"lif1", "lif2"},
			Indices: [][2]int{{0, 0}, {0, 1}, {0, 2}, {2, 2}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(bm).To(Equal(BufferMap{
			"lif1-0-2": 2,
			"lif1-0-3": 1,
			"lif1-2-3": 1,
		}))
		Expect(bm.Keys()).To(Equal([]string{"lif1-0-2", "lif1-0-3", "lif1-2-3"}))
		Expect(bm.Total()).To(Equal(4))
	})

	It("should return an empty map for an empty list", func() {
		bm, err := MapBuffers(n2c, AccessList{Layers: [2]string{"lif1", "lif2"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(bm).To(BeEmpty())
	})

	It("should fail on a neuron without a core", func() {
		_, err := MapBuffers(n2c, AccessList{
			Layers:  [2]string{"lif1", "lif2"},
			Indices: [][2]int{{0, 0}, {1, 9}},
		})
		Expect(errors.Is(err, ErrUnresolvedNeuron)).To(BeTrue())
		var ue *UnresolvedNeuronError
		Expect(errors.As(err, &ue)).To(BeTrue())
		Expect(ue.Layer).To(Equal("lif2"))
		Expect(ue.Index).To(Equal(9))
	})

	It("should reject a list without layer names", func() {
		_, err := MapBuffers(n2c, AccessList{Indices: [][2]int{{0, 0}}})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Mapper", func() {
	var (
		ctx    context.Context
		mapper *Mapper
		access AccessList
	)

	BeforeEach(func() {
		ctx = context.Background()
		mapper = NewMapper(allocator.NeuronToCore{"a-0": 0, "b-0": 1, "b-1": 2})
		access = AccessList{Layers: [2]string{"a", "b"}, Indices: [][2]int{{0, 0}}}
	})

	It("should reuse the map while the list is unchanged", func() {
		first, err := mapper.Map(ctx, access)
		Expect(err).NotTo(HaveOccurred())
		second, err := mapper.Map(ctx, AccessList{Layers: [2]string{"a", "b"}, Indices: [][2]int{{0, 0}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		Expect(mapper.Recomputations()).To(Equal(1))
	})

	It("should recompute when the list changes", func() {
		_, err := mapper.Map(ctx, access)
		Expect(err).NotTo(HaveOccurred())
		access.Indices = append(access.Indices, [2]int{0, 1})
		bm, err := mapper.Map(ctx, access)
		Expect(err).NotTo(HaveOccurred())
		Expect(bm).To(Equal(BufferMap{"a-0-1": 1, "a-0-2": 1}))
		Expect(mapper.Recomputations()).To(Equal(2))
	})

	It("should not cache a failed computation", func() {
		_, err := mapper.Map(ctx, AccessList{Layers: [2]string{"a", "b"}, Indices: [][2]int{{0, 5}}})
		Expect(err).To(HaveOccurred())
		_, err = mapper.Map(ctx, access)
		Expect(err).NotTo(HaveOccurred())
		Expect(mapper.Recomputations()).To(Equal(1))
	})
})
