package group

import (
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/dynadata/internal/testutils"
	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/invalidate"
	"github.com/l7mp/dynadata/pkg/source"
	"github.com/l7mp/dynadata/pkg/stream"
)

type Person = testutils.Person

var (
	loglevel = -10
	logger   = zap.New(zap.UseFlagOptions(&zap.Options{
		Development:     true,
		DestWriter:      GinkgoWriter,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(loglevel),
	}))
)

func TestGroup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Group")
}

func byAge(p *Person) int { return p.Age }

// checkPartition verifies that every item of src is in exactly one group and that the group key
// matches the current age of the item.
func checkPartition(src *source.SourceCache[string, *Person], groups map[int]*Group[string, *Person, int]) {
	seen := sets.New[string]()
	for key, g := range groups {
		Expect(g.Key()).To(Equal(key))
		Expect(g.Count()).To(BeNumerically(">", 0))
		for _, p := range g.Items() {
			Expect(p.Age).To(Equal(key))
			Expect(seen.Has(p.Name)).To(BeFalse(), "%s is in more than one group", p.Name)
			seen.Insert(p.Name)
		}
	}
	Expect(seen.Equal(sets.New(src.Keys()...))).To(BeTrue())
}

var _ = Describe("On", func() {
	var src *source.SourceCache[string, *Person]

	BeforeEach(func() {
		src = source.NewSourceCache(testutils.PersonKey, source.Options[*Person]{Logger: logger})
	})

	AfterEach(func() {
		src.Dispose()
	})

	It("should create and collapse groups", func() {
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{Logger: logger}))
		Expect(err).NotTo(HaveOccurred())
		Expect(agg.Messages()).To(HaveLen(1))
		Expect(agg.Messages()[0]).To(BeEmpty())

		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10}, &Person{Name: "B", Age: 10},
			&Person{Name: "C", Age: 20})).To(Succeed())
		Expect(agg.Last().Adds()).To(Equal(2))
		Expect(agg.Keys()).To(Equal([]int{10, 20}))
		Expect(agg.Data()[10].Count()).To(Equal(2))

		Expect(src.Remove("C")).To(Succeed())
		Expect(agg.Last()).To(HaveLen(1))
		Expect(agg.Last()[0].Reason).To(Equal(changeset.Remove))
		Expect(agg.Last()[0].Key).To(Equal(20))

		Expect(src.Remove("A")).To(Succeed())
		Expect(agg.Last()).To(HaveLen(1))
		Expect(agg.Last()[0].Reason).To(Equal(changeset.Update))
		Expect(agg.Data()[10].Keys()).To(Equal([]string{"B"}))
		checkPartition(src, agg.Data())
	})

	It("should move an item whose key changed on update", func() {
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10}, &Person{Name: "B", Age: 10})).To(Succeed())
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())

		g10 := agg.Data()[10]
		members, err := testutils.NewChangeSetAggregator(g10.Connect())
		Expect(err).NotTo(HaveOccurred())
		Expect(members.Keys()).To(Equal([]string{"A", "B"}))

		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 30})).To(Succeed())
		cs := agg.Last()
		Expect(cs.Adds()).To(Equal(1))
		Expect(cs.Updates()).To(Equal(1))
		Expect(members.Keys()).To(Equal([]string{"B"}))
		Expect(members.Last().Removes()).To(Equal(1))
		checkPartition(src, agg.Data())
	})

	It("should not report a group created and emptied in one batch", func() {
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10})).To(Succeed())

		Expect(src.Edit(func(u *source.CacheUpdater[string, *Person]) error {
			u.AddOrUpdate(&Person{Name: "B", Age: 50})
			u.Remove("B")
			return nil
		})).To(Succeed())
		Expect(agg.Messages()).To(HaveLen(2))
	})

	It("should complete the members of a removed group", func() {
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10})).To(Succeed())
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())

		g := agg.Data()[10]
		members, err := testutils.NewChangeSetAggregator(g.Connect())
		Expect(err).NotTo(HaveOccurred())

		Expect(src.Remove("A")).To(Succeed())
		Expect(members.Data()).To(BeEmpty())
		Expect(members.IsDone()).To(BeTrue())

		_, err = g.Connect().Subscribe(stream.ObserverFuncs[changeset.ChangeSet[string, *Person]]{})
		Expect(err).To(MatchError(stream.ErrCompleted))
	})

	It("should let group observers connect to the groups they receive", func() {
		memberCounts := map[int]int{}
		_, err := stream.SubscribeFunc(On(src.Connect(), byAge, Options[string]{}),
			func(cs changeset.ChangeSet[int, *Group[string, *Person, int]]) error {
				for _, c := range cs {
					if c.Reason != changeset.Add {
						continue
					}
					members, err := testutils.NewChangeSetAggregator(c.Current.Connect())
					if err != nil {
						return err
					}
					memberCounts[c.Key] = len(members.Data())
				}
				return nil
			})
		Expect(err).NotTo(HaveOccurred())

		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10}, &Person{Name: "B", Age: 10})).To(Succeed())
		Expect(memberCounts).To(Equal(map[int]int{10: 2}))
	})

	It("should remove every group on clear", func() {
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(src.AddOrUpdate(testutils.NewPeople(10, func(i int) int { return i % 3 })...)).To(Succeed())
		Expect(agg.Data()).To(HaveLen(3))

		Expect(src.Clear()).To(Succeed())
		Expect(agg.Last().Removes()).To(Equal(3))
		Expect(agg.Data()).To(BeEmpty())
	})

	It("should regroup on refresh", func() {
		p := &Person{Name: "A", Age: 10}
		Expect(src.AddOrUpdate(p, &Person{Name: "B", Age: 10})).To(Succeed())
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())

		Expect(src.Refresh("A")).To(Succeed())
		Expect(agg.Last().Updates()).To(Equal(1))

		p.Age = 11
		Expect(src.Refresh("A")).To(Succeed())
		Expect(agg.Last().Adds()).To(Equal(1))
		checkPartition(src, agg.Data())
	})

	It("should complete all groups when the source is disposed", func() {
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10})).To(Succeed())
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())
		members, err := testutils.NewChangeSetAggregator(agg.Data()[10].Connect())
		Expect(err).NotTo(HaveOccurred())

		src.Dispose()
		Expect(agg.IsDone()).To(BeTrue())
		Expect(members.IsDone()).To(BeTrue())
	})

	It("should let an observer dispose its subscription from within Next", func() {
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10})).To(Succeed())

		var sub stream.Subscription
		var first *Group[string, *Person, int]
		passes := 0
		sub, err := stream.SubscribeFunc(On(src.Connect(), byAge, Options[string]{Logger: logger}),
			func(cs changeset.ChangeSet[int, *Group[string, *Person, int]]) error {
				passes++
				if first == nil {
					first = cs[0].Current
					return nil
				}
				sub.Dispose()
				return nil
			})
		Expect(err).NotTo(HaveOccurred())
		members, err := testutils.NewChangeSetAggregator(first.Connect())
		Expect(err).NotTo(HaveOccurred())

		errCh := make(chan error, 1)
		go func() { errCh <- src.AddOrUpdate(&Person{Name: "B", Age: 20}) }()
		Eventually(errCh).Should(Receive(BeNil()))

		// the groups are completed once the pass that disposed the subscription is over
		Expect(members.IsDone()).To(BeTrue())
		Expect(src.AddOrUpdate(&Person{Name: "C", Age: 30})).To(Succeed())
		Expect(passes).To(Equal(2))
	})

	It("should let a member observer dispose the grouping from within Next", func() {
		Expect(src.AddOrUpdate(&Person{Name: "A", Age: 10})).To(Succeed())
		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge, Options[string]{}))
		Expect(err).NotTo(HaveOccurred())

		done := false
		_, err = agg.Data()[10].Connect().Subscribe(stream.ObserverFuncs[changeset.ChangeSet[string, *Person]]{
			NextFunc: func(cs changeset.ChangeSet[string, *Person]) error {
				if len(cs) > 0 && cs[0].Key == "B" {
					agg.Dispose()
				}
				return nil
			},
			DoneFunc: func() { done = true },
		})
		Expect(err).NotTo(HaveOccurred())

		errCh := make(chan error, 1)
		go func() { errCh <- src.AddOrUpdate(&Person{Name: "B", Age: 10}) }()
		Eventually(errCh).Should(Receive(BeNil()))

		Expect(done).To(BeTrue())
		n := len(agg.Messages())
		Expect(src.AddOrUpdate(&Person{Name: "C", Age: 30})).To(Succeed())
		Expect(agg.Messages()).To(HaveLen(n))
	})

	It("should keep the partition when many items change key in place", func() {
		rnd := rand.New(rand.NewSource(42))
		people := testutils.NewPeople(1000, func(int) int { return rnd.Intn(100) })
		Expect(src.AddOrUpdate(people...)).To(Succeed())

		w, err := invalidate.WatchValues(src.Connect(), byAge, logger)
		Expect(err).NotTo(HaveOccurred())
		defer w.Dispose()

		agg, err := testutils.NewChangeSetAggregator(On(src.Connect(), byAge,
			Options[string]{Regroup: w.Observable(), Logger: logger}))
		Expect(err).NotTo(HaveOccurred())
		defer agg.Dispose()

		distinct := func() int {
			ages := sets.New[int]()
			for _, p := range people {
				ages.Insert(p.Age)
			}
			return ages.Len()
		}
		total := func() int {
			n := 0
			for _, g := range agg.Data() {
				n += g.Count()
			}
			return n
		}

		Expect(agg.Data()).To(HaveLen(distinct()))
		Expect(total()).To(Equal(1000))
		checkPartition(src, agg.Data())

		for _, i := range rnd.Perm(1000)[:25] {
			people[i].Age = 200
		}
		Expect(w.Check()).To(Succeed())

		Expect(agg.Data()).To(HaveLen(distinct()))
		Expect(agg.Data()[200].Count()).To(Equal(25))
		Expect(total()).To(Equal(1000))
		checkPartition(src, agg.Data())
	})
})
