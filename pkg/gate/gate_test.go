package gate

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dynadata/internal/testutils"
	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/source"
)

type Person = testutils.Person

func TestGate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gate")
}

var _ = Describe("Gates", func() {
	var src *source.SourceCache[string, *Person]

	BeforeEach(func() {
		src = source.NewSourceCache(testutils.PersonKey, source.Options[*Person]{})
	})

	AfterEach(func() {
		src.Dispose()
	})

	Describe("DeferUntilLoaded", func() {
		It("should hold back the empty snapshot", func() {
			agg, err := testutils.NewChangeSetAggregator(DeferUntilLoaded(src.Connect()))
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.Messages()).To(BeEmpty())

			Expect(src.AddOrUpdate(&Person{Name: "A"})).To(Succeed())
			Expect(src.Remove("A")).To(Succeed())
			Expect(agg.Messages()).To(HaveLen(2))
		})

		It("should pass a non-empty snapshot", func() {
			Expect(src.AddOrUpdate(&Person{Name: "A"})).To(Succeed())
			agg, err := testutils.NewChangeSetAggregator(DeferUntilLoaded(src.Connect()))
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.Messages()).To(HaveLen(1))
		})

		It("should keep the gate per subscription", func() {
			o := DeferUntilLoaded(src.Connect())
			a1, err := testutils.NewChangeSetAggregator(o)
			Expect(err).NotTo(HaveOccurred())
			Expect(src.AddOrUpdate(&Person{Name: "A"})).To(Succeed())
			Expect(src.Clear()).To(Succeed())

			a2, err := testutils.NewChangeSetAggregator(o)
			Expect(err).NotTo(HaveOccurred())
			Expect(a1.Messages()).To(HaveLen(2))
			Expect(a2.Messages()).To(BeEmpty())
		})
	})

	Describe("SkipInitial", func() {
		It("should drop a non-empty snapshot", func() {
			Expect(src.AddOrUpdate(&Person{Name: "A"})).To(Succeed())
			agg, err := testutils.NewChangeSetAggregator(SkipInitial(src.Connect()))
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.Messages()).To(BeEmpty())

			Expect(src.AddOrUpdate(&Person{Name: "B"})).To(Succeed())
			Expect(agg.Messages()).To(HaveLen(1))
			Expect(agg.Keys()).To(Equal([]string{"B"}))
		})

		It("should drop an empty snapshot", func() {
			agg, err := testutils.NewChangeSetAggregator(SkipInitial(src.Connect()))
			Expect(err).NotTo(HaveOccurred())
			Expect(src.AddOrUpdate(&Person{Name: "A"})).To(Succeed())
			Expect(agg.Messages()).To(HaveLen(1))
		})

		It("should work on positional streams", func() {
			list := source.NewSourceList(source.Options[int]{})
			defer list.Dispose()
			Expect(list.AddRange([]int{1, 2})).To(Succeed())

			got, sub, err := testutils.Collect(SkipInitial(list.Connect()))
			Expect(err).NotTo(HaveOccurred())
			defer sub.Dispose()
			Expect(list.Add(3)).To(Succeed())
			Expect(*got).To(Equal([]changeset.ListChangeSet[int]{{changeset.NewListAdd(3, 2)}}))
		})
	})
})
