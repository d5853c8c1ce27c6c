package util

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestUtil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Util")
}

var _ = Describe("Util", func() {
	It("should map", func() {
		Expect(Map(func(i int) int { return i * 2 }, []int{1, 2, 3})).To(Equal([]int{2, 4, 6}))
		Expect(Map(func(i int) int { return i }, nil)).To(BeEmpty())
	})

	It("should map and sort", func() {
		names := MapSorted(func(p struct{ Name string }) string { return p.Name },
			[]struct{ Name string }{{"C"}, {"A"}, {"B"}})
		Expect(names).To(Equal([]string{"A", "B", "C"}))
		Expect(MapSorted(func(i int) int { return -i }, []int{1, 3, 2})).To(Equal([]int{-3, -2, -1}))
	})

	It("should stringify", func() {
		Expect(Stringify(map[string]any{"a": 1})).To(Equal(`{"a":1}`))
		Expect(Stringify(struct{ X int }{1})).To(Equal(`{"X":1}`))
		Expect(Stringify(func() {})).To(HavePrefix("(func())"))
	})
})
