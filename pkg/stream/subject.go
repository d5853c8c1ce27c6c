package stream

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Subject multicasts published values to every registered observer, in registration order.
type Subject[T any] struct {
	handlers       []*handlerEntry[T]
	handlerCounter int64
	mutex          sync.RWMutex
	completed      bool
	log            logr.Logger
}

// handlerEntry is a registered observer.
type handlerEntry[T any] struct {
	Observer[T]
	id      int64
	stopped atomic.Bool
	subject *Subject[T]
}

// Dispose unregisters the observer. It is safe to call from within Next.
func (h *handlerEntry[T]) Dispose() {
	if h.stopped.CompareAndSwap(false, true) {
		h.subject.remove(h)
	}
}

// NewSubject returns a new subject.
func NewSubject[T any](logger logr.Logger) *Subject[T] {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Subject[T]{log: logger}
}

// Subscribe registers an observer. It fails with ErrCompleted once the subject has completed.
func (s *Subject[T]) Subscribe(o Observer[T]) (Subscription, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.completed {
		return nil, ErrCompleted
	}

	s.handlerCounter++
	h := &handlerEntry[T]{Observer: o, id: s.handlerCounter, subject: s}
	s.handlers = append(s.handlers, h)

	s.log.V(4).Info("registering observer", "handler-id", h.id, "observers", len(s.handlers))

	return h, nil
}

// Publish delivers v to every active observer. The first observer error stops the pass:
// observers later in the order do not receive v and the error is returned as a *DeliveryError.
func (s *Subject[T]) Publish(v T) error {
	s.mutex.RLock()
	handlers := slices.Clone(s.handlers)
	s.mutex.RUnlock()

	for _, h := range handlers {
		if h.stopped.Load() {
			continue
		}
		if err := h.Next(v); err != nil {
			s.log.V(2).Info("observer failed, aborting delivery", "handler-id", h.id, "error", err.Error())
			return &DeliveryError{SubscriptionID: h.id, Err: err}
		}
	}

	return nil
}

// Complete stops every observer, calls their Done callback and refuses further subscriptions.
// Calling it more than once is safe.
func (s *Subject[T]) Complete() {
	s.mutex.Lock()
	if s.completed {
		s.mutex.Unlock()
		return
	}
	s.completed = true
	handlers := s.handlers
	s.handlers = nil
	s.mutex.Unlock()

	s.log.V(4).Info("completing", "observers", len(handlers))

	for _, h := range handlers {
		if h.stopped.CompareAndSwap(false, true) {
			h.Done()
		}
	}
}

// Len returns the number of active observers.
func (s *Subject[T]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.handlers)
}

// IsCompleted reports whether Complete has been called.
func (s *Subject[T]) IsCompleted() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.completed
}

func (s *Subject[T]) remove(h *handlerEntry[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if i := slices.Index(s.handlers, h); i >= 0 {
		s.handlers = slices.Delete(s.handlers, i, i+1)
		s.log.V(4).Info("observer removed", "handler-id", h.id, "observers", len(s.handlers))
	}
}

// WithSnapshot returns an observable whose subscribers first receive the value returned by
// snapshot and then every value published on subject. The registration and the snapshot happen
// while holding lock, so the publisher, when it publishes under the same lock, can neither slip a
// value in between nor deliver one the snapshot already contains.
func WithSnapshot[T any](lock sync.Locker, snapshot func() (T, error), subject *Subject[T]) Observable[T] {
	return ObservableFunc[T](func(o Observer[T]) (Subscription, error) {
		lock.Lock()
		defer lock.Unlock()

		initial, err := snapshot()
		if err != nil {
			return nil, err
		}

		sub, err := subject.Subscribe(o)
		if err != nil {
			return nil, err
		}

		if err := o.Next(initial); err != nil {
			sub.Dispose()
			return nil, &DeliveryError{SubscriptionID: sub.(*handlerEntry[T]).id, Err: err}
		}

		return sub, nil
	})
}
