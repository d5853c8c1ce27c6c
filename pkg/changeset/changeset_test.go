package changeset

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type point struct{ X, Y int }

func TestChangeSet(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ChangeSet")
}

var _ = Describe("ChangeSet", func() {
	It("should count changes by reason", func() {
		cs := ChangeSet[string, int]{
			NewAdd("a", 1),
			NewAdd("b", 2),
			NewUpdate("a", 3, 1),
			NewRefresh("b", 2),
			NewRemove("a", 3),
			NewClear([]KeyValue[string, int]{{Key: "b", Value: 2}, {Key: "c", Value: 4}}),
		}
		Expect(cs.Len()).To(Equal(6))
		Expect(cs.Adds()).To(Equal(2))
		Expect(cs.Updates()).To(Equal(1))
		Expect(cs.Refreshes()).To(Equal(1))
		Expect(cs.Moves()).To(Equal(0))
		Expect(cs.Removes()).To(Equal(3))
	})

	It("should flatten a clear into removals", func() {
		cs := ChangeSet[string, int]{
			NewAdd("x", 0),
			NewClear([]KeyValue[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}}),
		}
		flat := cs.Flatten()
		Expect(flat).To(HaveLen(3))
		Expect(flat[0].Reason).To(Equal(Add))
		Expect(flat[1]).To(Equal(NewRemove("a", 1)))
		Expect(flat[2]).To(Equal(NewRemove("b", 2)))
	})

	It("should carry no index on keyed changes", func() {
		c := NewAdd("a", 1)
		Expect(c.CurrentIndex).To(Equal(NoIndex))
		Expect(c.PreviousIndex).To(Equal(NoIndex))
	})

	It("should print changes", func() {
		Expect(NewUpdate("a", 2, 1).String()).To(Equal("update(a: 1 -> 2)"))
		Expect(NewMove("a", 1, 3, 0).String()).To(Equal("move(a: 0 -> 3)"))
		Expect(ChangeSet[string, int]{NewAdd("a", 1), NewRemove("b", 2)}.String()).
			To(Equal("[add(a: 1), remove(b: 2)]"))
	})
})

var _ = Describe("ListChangeSet", func() {
	It("should count range items", func() {
		cs := ListChangeSet[int]{
			NewListRange(AddRange, []int{1, 2, 3}, 0),
			NewListAdd(4, 3),
			NewListRange(RemoveRange, []int{2, 3}, 1),
			NewListMove(4, 0, 1),
			NewListRange(Clear, []int{4, 1}, 0),
		}
		Expect(cs.Adds()).To(Equal(4))
		Expect(cs.Removes()).To(Equal(4))
		Expect(cs.Moves()).To(Equal(1))
	})

	It("should flatten ranges into the equivalent singleton changes", func() {
		cs := ListChangeSet[string]{
			NewListRange(AddRange, []string{"a", "b", "c"}, 2),
			NewListRange(RemoveRange, []string{"a", "b"}, 2),
			NewListRange(Clear, []string{"x", "c"}, 0),
		}
		Expect(cs.Flatten()).To(Equal(ListChangeSet[string]{
			NewListAdd("a", 2),
			NewListAdd("b", 3),
			NewListAdd("c", 4),
			NewListRemove("a", 2),
			NewListRemove("b", 2),
			NewListRemove("x", 0),
			NewListRemove("c", 0),
		}))
	})

	It("should tell range reasons", func() {
		Expect(AddRange.IsRange()).To(BeTrue())
		Expect(RemoveRange.IsRange()).To(BeTrue())
		Expect(Clear.IsRange()).To(BeTrue())
		Expect(Add.IsRange()).To(BeFalse())
		Expect(Replace).To(Equal(Update))
		Expect(Reason(42).String()).To(Equal("<invalid>"))
	})
})

var _ = Describe("Equality", func() {
	It("should compare by value", func() {
		Expect(SemanticEqual(point{1, 2}, point{1, 2})).To(BeTrue())
		Expect(SemanticEqual(&point{1, 2}, &point{1, 2})).To(BeTrue())
		Expect(SemanticEqual(&point{1, 2}, &point{2, 1})).To(BeFalse())
	})

	It("should compare by identity", func() {
		p := &point{1, 2}
		Expect(IdentityEqual(p, p)).To(BeTrue())
		Expect(IdentityEqual(p, &point{1, 2})).To(BeFalse())
	})

	It("should never suppress", func() {
		Expect(NeverEqual(1, 1)).To(BeFalse())
	})
})
