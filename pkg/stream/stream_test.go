package stream

import (
	"errors"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

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

func TestStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stream")
}

var _ = Describe("Subject", func() {
	var s *Subject[int]

	BeforeEach(func() {
		s = NewSubject[int](logger)
	})

	It("should deliver in registration order", func() {
		order := []string{}
		_, err := SubscribeFunc[int](s, func(v int) error { order = append(order, "first"); return nil })
		Expect(err).NotTo(HaveOccurred())
		_, err = SubscribeFunc[int](s, func(v int) error { order = append(order, "second"); return nil })
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Publish(1)).To(Succeed())
		Expect(order).To(Equal([]string{"first", "second"}))
		Expect(s.Len()).To(Equal(2))
	})

	It("should stop delivery to a disposed observer", func() {
		got := []int{}
		sub, err := SubscribeFunc[int](s, func(v int) error { got = append(got, v); return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Publish(1)).To(Succeed())
		sub.Dispose()
		sub.Dispose()
		Expect(s.Publish(2)).To(Succeed())
		Expect(got).To(Equal([]int{1}))
		Expect(s.Len()).To(Equal(0))
	})

	It("should allow disposing from within Next", func() {
		got := []int{}
		var sub Subscription
		sub, _ = SubscribeFunc[int](s, func(v int) error {
			got = append(got, v)
			sub.Dispose()
			return nil
		})
		Expect(s.Publish(1)).To(Succeed())
		Expect(s.Publish(2)).To(Succeed())
		Expect(got).To(Equal([]int{1}))
	})

	It("should abort the pass on the first observer error", func() {
		boom := errors.New("boom")
		second := false
		_, _ = SubscribeFunc[int](s, func(int) error { return boom })
		_, _ = SubscribeFunc[int](s, func(int) error { second = true; return nil })

		err := s.Publish(1)
		Expect(err).To(MatchError(boom))
		var derr *DeliveryError
		Expect(errors.As(err, &derr)).To(BeTrue())
		Expect(derr.SubscriptionID).To(Equal(int64(1)))
		Expect(second).To(BeFalse())
	})

	It("should complete observers once", func() {
		done := 0
		_, err := s.Subscribe(ObserverFuncs[int]{DoneFunc: func() { done++ }})
		Expect(err).NotTo(HaveOccurred())
		s.Complete()
		s.Complete()
		Expect(done).To(Equal(1))
		Expect(s.IsCompleted()).To(BeTrue())

		_, err = s.Subscribe(ObserverFuncs[int]{})
		Expect(err).To(MatchError(ErrCompleted))
	})
})

var _ = Describe("WithSnapshot", func() {
	It("should deliver the snapshot before live values", func() {
		var mu sync.Mutex
		s := NewSubject[int](logger)
		o := WithSnapshot[int](&mu, func() (int, error) { return 0, nil }, s)

		got := []int{}
		sub, err := SubscribeFunc(o, func(v int) error { got = append(got, v); return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Publish(1)).To(Succeed())
		Expect(got).To(Equal([]int{0, 1}))

		sub.Dispose()
		Expect(s.Len()).To(Equal(0))
	})

	It("should not register an observer that fails on the snapshot", func() {
		var mu sync.Mutex
		s := NewSubject[int](logger)
		o := WithSnapshot[int](&mu, func() (int, error) { return 0, nil }, s)

		_, err := SubscribeFunc(o, func(int) error { return errors.New("nope") })
		Expect(err).To(HaveOccurred())
		Expect(s.Len()).To(Equal(0))
	})

	It("should fail when the snapshot fails", func() {
		var mu sync.Mutex
		boom := errors.New("boom")
		o := WithSnapshot[int](&mu, func() (int, error) { return 0, boom }, NewSubject[int](logger))
		_, err := SubscribeFunc(o, func(int) error { return nil })
		Expect(err).To(MatchError(boom))
	})
})

var _ = Describe("Operators", func() {
	It("should map and signal", func() {
		s := NewSubject[int](logger)
		strs := []string{}
		_, err := SubscribeFunc(Map[int, string](s, func(v int) string { return string(rune('a' + v)) }),
			func(v string) error { strs = append(strs, v); return nil })
		Expect(err).NotTo(HaveOccurred())

		signals := 0
		_, err = SubscribeFunc(Signal[int](s), func(struct{}) error { signals++; return nil })
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Publish(0)).To(Succeed())
		Expect(s.Publish(2)).To(Succeed())
		Expect(strs).To(Equal([]string{"a", "c"}))
		Expect(signals).To(Equal(2))
	})

	It("should pass completion through Map", func() {
		s := NewSubject[int](logger)
		done := false
		_, err := Map[int, int](s, func(v int) int { return v }).Subscribe(ObserverFuncs[int]{
			DoneFunc: func() { done = true },
		})
		Expect(err).NotTo(HaveOccurred())
		s.Complete()
		Expect(done).To(BeTrue())
	})
})
