// Package stream is the minimal push-based observable substrate the change-set operators are
// built on. Delivery is synchronous: Next runs on the goroutine that published the value and an
// error returned by an observer travels back to the publisher.
package stream

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCompleted is returned when subscribing to a subject that has already completed.
var ErrCompleted = errors.New("stream completed")

// Observer receives the values of an observable.
type Observer[T any] interface {
	// Next delivers a value. A non-nil error aborts the current delivery pass and is returned
	// to the publisher.
	Next(T) error
	// Done is called once when the observable completes. No values are delivered after it.
	Done()
}

// ObserverFuncs is an adaptor to let you easily specify as many or as few of the observer
// functions as you want while still implementing Observer.
type ObserverFuncs[T any] struct {
	NextFunc func(T) error
	DoneFunc func()
}

// Next calls NextFunc if it is not nil.
func (o ObserverFuncs[T]) Next(v T) error {
	if o.NextFunc == nil {
		return nil
	}
	return o.NextFunc(v)
}

// Done calls DoneFunc if it is not nil.
func (o ObserverFuncs[T]) Done() {
	if o.DoneFunc != nil {
		o.DoneFunc()
	}
}

// Subscription is the token returned by Subscribe. Dispose stops further delivery and releases
// all resources held for the subscriber; it is idempotent.
type Subscription interface {
	Dispose()
}

// Observable is a source of values that can be subscribed to.
type Observable[T any] interface {
	Subscribe(Observer[T]) (Subscription, error)
}

// ObservableFunc turns a subscribe function into an Observable.
type ObservableFunc[T any] func(Observer[T]) (Subscription, error)

// Subscribe calls f.
func (f ObservableFunc[T]) Subscribe(o Observer[T]) (Subscription, error) { return f(o) }

// SubscribeFunc subscribes a plain callback to an observable.
func SubscribeFunc[T any](o Observable[T], next func(T) error) (Subscription, error) {
	return o.Subscribe(ObserverFuncs[T]{NextFunc: next})
}

// DeliveryError wraps an error returned by a subscriber while a value was being delivered.
type DeliveryError struct {
	SubscriptionID int64
	Err            error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to subscriber %d failed: %v", e.SubscriptionID, e.Err)
}

// Unwrap returns the subscriber's error.
func (e *DeliveryError) Unwrap() error { return e.Err }

type subscriptionFunc struct {
	once    sync.Once
	dispose func()
}

// NewSubscription returns a subscription that calls dispose on the first Dispose.
func NewSubscription(dispose func()) Subscription {
	return &subscriptionFunc{dispose: dispose}
}

func (s *subscriptionFunc) Dispose() {
	s.once.Do(func() {
		if s.dispose != nil {
			s.dispose()
		}
	})
}

// Map returns an observable that applies f to every value of o.
func Map[T, U any](o Observable[T], f func(T) U) Observable[U] {
	return ObservableFunc[U](func(obs Observer[U]) (Subscription, error) {
		return o.Subscribe(ObserverFuncs[T]{
			NextFunc: func(v T) error { return obs.Next(f(v)) },
			DoneFunc: obs.Done,
		})
	})
}

// Signal drops the values of o, keeping only the fact that something was emitted.
func Signal[T any](o Observable[T]) Observable[struct{}] {
	return Map(o, func(T) struct{} { return struct{}{} })
}
