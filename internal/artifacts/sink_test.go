package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/llm-d/llm-d-neuron-mapper/internal/allocator"
)

const testNamespace = "mapper-ns"

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	return scheme
}

func makeSet() *Set {
	set := NewSet()
	Expect(set.Add(NeuronToCoreFile, allocator.NeuronToCore{"A-0": 0, "A-1": 1})).To(Succeed())
	Expect(set.Add(CoreAllocationFile, allocator.CoreAllocation{
		{Layer: "A", Ranges: []allocator.Range{{Core: 0, Start: 0, End: 0}, {Core: 1, Start: 1, End: 1}}},
	})).To(Succeed())
	return set
}

var _ = Describe("Set", func() {
	It("should keep insertion order and replace in place", func() {
		set := NewSet()
		set.AddRaw("b.json", []byte("1"))
		set.AddRaw("a.json", []byte("2"))
		set.AddRaw("b.json", []byte("33"))
		Expect(set.Names()).To(Equal([]string{"b.json", "a.json"}))
		Expect(set.Size()).To(Equal(3))
		data, ok := set.Get("b.json")
		Expect(ok).To(BeTrue())
		Expect(string(data)).To(Equal("33"))
	})
})

var _ = Describe("DirSink", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = filepath.Join(GinkgoT().TempDir(), "out")
	})

	It("should write every artifact and read them back", func() {
		set := makeSet()
		Expect(NewDirSink(dir).Publish(ctx, set)).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, CoreAllocationFile))
		Expect(err).NotTo(HaveOccurred())
		alloc, err := DecodeCoreAllocation(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(alloc).To(HaveLen(1))
		Expect(alloc[0].Ranges).To(HaveLen(2))

		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)).To(Succeed())
		got, err := (&DirSource{Dir: dir}).Fetch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Names()).To(Equal([]string{CoreAllocationFile, NeuronToCoreFile}))
	})

	It("should fail to read an empty directory", func() {
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		_, err := (&DirSource{Dir: dir}).Fetch(ctx)
		Expect(err).To(MatchError(errNoArtifacts))
	})
})

var _ = Describe("ConfigMapSink", func() {
	var (
		ctx       context.Context
		k8sClient client.Client
		key       client.ObjectKey
	)

	BeforeEach(func() {
		ctx = context.Background()
		key = client.ObjectKey{Namespace: testNamespace, Name: "mapping"}
	})

	Context("when the ConfigMap does not exist", func() {
		BeforeEach(func() {
			k8sClient = fake.NewClientBuilder().WithScheme(newScheme()).Build()
		})

		It("should create it with one key per artifact", func() {
			sink := NewConfigMapSink(k8sClient, key.Namespace, key.Name)
			Expect(sink.Publish(ctx, makeSet())).To(Succeed())

			cm := &corev1.ConfigMap{}
			Expect(k8sClient.Get(ctx, key, cm)).To(Succeed())
			Expect(cm.Data).To(HaveKey(NeuronToCoreFile))
			Expect(cm.Data).To(HaveKey(CoreAllocationFile))
			Expect(cm.Labels).To(HaveKeyWithValue(ManagedByLabel, "neuron-mapper"))

			n2c, err := DecodeNeuronToCore([]byte(cm.Data[NeuronToCoreFile]))
			Expect(err).NotTo(HaveOccurred())
			Expect(n2c).To(Equal(allocator.NeuronToCore{"A-0": 0, "A-1": 1}))
		})

		It("should reject a set over the ConfigMap size limit", func() {
			set := NewSet()
			set.AddRaw("big.json", []byte(strings.Repeat("0", MaxConfigMapBytes+1)))
			err := NewConfigMapSink(k8sClient, key.Namespace, key.Name).Publish(ctx, set)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when the ConfigMap already exists", func() {
		BeforeEach(func() {
			existing := &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{Name: key.Name, Namespace: key.Namespace, Labels: map[string]string{"team": "snn"}},
				Data: map[string]string{
					NeuronToCoreFile: "{}",
					"README":         "kept",
				},
			}
			k8sClient = fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(existing).Build()
		})

		It("should update artifact keys and keep the others", func() {
			sink := NewConfigMapSink(k8sClient, key.Namespace, key.Name)
			Expect(sink.Publish(ctx, makeSet())).To(Succeed())

			cm := &corev1.ConfigMap{}
			Expect(k8sClient.Get(ctx, key, cm)).To(Succeed())
			Expect(cm.Data).To(HaveKeyWithValue("README", "kept"))
			Expect(cm.Data[NeuronToCoreFile]).To(ContainSubstring(`"A-1": 1`))
			Expect(cm.Labels).To(HaveKeyWithValue("team", "snn"))
			Expect(cm.Labels).To(HaveKey(ManagedByLabel))

			got, err := (&ConfigMapSource{Client: k8sClient, Namespace: key.Namespace, Name: key.Name}).Fetch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Names()).To(Equal([]string{CoreAllocationFile, NeuronToCoreFile}))
		})
	})
})
