// Package source implements the authoritative mutable collections: SourceCache (keyed) and
// SourceList (positional). A source applies every mutation to its state, records the matching
// changes and, before the mutation call returns, dispatches the captured change set to every
// subscriber of Connect, in production order.
//
// All mutation and subscription calls on a source are serialized by a single mutex. Delivery runs
// synchronously on the mutating goroutine while that mutex is held, so an observer must not mutate
// or connect to the source it observes from within its Next callback.
package source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/metrics"
	"github.com/l7mp/dynadata/pkg/recorder"
	"github.com/l7mp/dynadata/pkg/stream"
)

var (
	// ErrDisposed is returned by every mutation and subscription on a disposed source.
	ErrDisposed = errors.New("source disposed")

	ErrDuplicateKey    = recorder.ErrDuplicateKey
	ErrKeyNotFound     = recorder.ErrKeyNotFound
	ErrIndexOutOfRange = recorder.ErrIndexOutOfRange
)

// Options configures a source.
type Options[V any] struct {
	// Name identifies the source in logs and metrics. Defaults to a random name.
	Name string
	// Equal decides whether a replacement is equal to the item it replaces, in which case no
	// update is recorded. Defaults to changeset.SemanticEqual.
	Equal changeset.EqualFunc[V]
	// Logger is the base logger. Defaults to a discarding logger.
	Logger logr.Logger
}

func (o Options[V]) name(kind string) string {
	if o.Name != "" {
		return o.Name
	}
	return kind + "-" + uuid.NewString()[:8]
}

func (o Options[V]) logger() logr.Logger {
	if o.Logger.GetSink() == nil {
		return logr.Discard()
	}
	return o.Logger
}

// core is the dispatch machinery shared by the keyed and the positional source.
type core[C ~[]E, E any] struct {
	mu       sync.Mutex
	name     string
	subject  *stream.Subject[C]
	disposed bool
	reasonOf func(E) changeset.Reason
	log      logr.Logger
}

func newCore[C ~[]E, E any](name string, reasonOf func(E) changeset.Reason, log logr.Logger) *core[C, E] {
	return &core[C, E]{
		name:     name,
		subject:  stream.NewSubject[C](log),
		reasonOf: reasonOf,
		log:      log,
	}
}

// dispatch publishes a captured change set. Must be called with the mutex held.
func (c *core[C, E]) dispatch(cs C) error {
	if len(cs) == 0 {
		return nil
	}

	for _, ch := range cs {
		metrics.ChangesRecorded.WithLabelValues(c.name, c.reasonOf(ch).String()).Inc()
	}
	metrics.ChangeSetsDispatched.WithLabelValues(c.name).Inc()

	if c.log.V(8).Enabled() {
		c.log.V(8).Info("dispatching change set", "changes", fmt.Sprintf("%v", cs))
	} else {
		c.log.V(5).Info("dispatching change set", "size", len(cs))
	}

	if err := c.subject.Publish(cs); err != nil {
		return fmt.Errorf("source %s: %w", c.name, err)
	}
	return nil
}

// connect builds the snapshot-then-stream observable for a source.
func (c *core[C, E]) connect(snapshot func() C) stream.Observable[C] {
	inner := stream.WithSnapshot[C](&c.mu, func() (C, error) {
		if c.disposed {
			return nil, ErrDisposed
		}
		return snapshot(), nil
	}, c.subject)

	return stream.ObservableFunc[C](func(o stream.Observer[C]) (stream.Subscription, error) {
		sub, err := inner.Subscribe(o)
		if err != nil {
			return nil, err
		}
		metrics.Subscribers.WithLabelValues(c.name).Set(float64(c.subject.Len()))
		return stream.NewSubscription(func() {
			sub.Dispose()
			metrics.Subscribers.WithLabelValues(c.name).Set(float64(c.subject.Len()))
		}), nil
	})
}

// dispose completes every subscriber. Must be called with the mutex held.
func (c *core[C, E]) dispose() bool {
	if c.disposed {
		return false
	}
	c.disposed = true
	c.log.V(1).Info("disposing source", "subscribers", c.subject.Len())
	c.subject.Complete()
	metrics.Forget(c.name)
	return true
}
