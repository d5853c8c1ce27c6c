// Package invalidate provides the side channel through which operators learn that an item already
// in a collection changed in place, without a corresponding change in the main stream.
//
// An Invalidator is fed explicitly by the code that mutates items. A ValueWatcher tracks a
// projected field of every item of a keyed stream and, on Check, publishes the keys of the items
// whose field changed since it was last seen.
package invalidate

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/stream"
)

// Invalidator publishes the keys of items that must be re-evaluated.
type Invalidator[K comparable] struct {
	subject *stream.Subject[[]K]
	log     logr.Logger
}

// NewInvalidator creates an invalidation channel.
func NewInvalidator[K comparable](logger logr.Logger) *Invalidator[K] {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	log := logger.WithName("invalidator")
	return &Invalidator[K]{subject: stream.NewSubject[[]K](log), log: log}
}

// Invalidate publishes keys to every subscriber. Invalidating no keys is a no-op.
func (i *Invalidator[K]) Invalidate(keys ...K) error {
	if len(keys) == 0 {
		return nil
	}
	i.log.V(5).Info("invalidating", "keys", len(keys))
	return i.subject.Publish(slices.Clone(keys))
}

// Observable returns the stream of invalidated keys.
func (i *Invalidator[K]) Observable() stream.Observable[[]K] { return i.subject }

// Signal returns the stream of invalidations without the keys, suitable for operators that rescan
// all their items anyway.
func (i *Invalidator[K]) Signal() stream.Observable[struct{}] { return stream.Signal(i.Observable()) }

// Dispose completes all subscribers.
func (i *Invalidator[K]) Dispose() { i.subject.Complete() }

type tracked[V any, P comparable] struct {
	item V
	last P
}

// ValueWatcher follows a keyed stream and remembers the projected value of every item. Items are
// expected to be mutable in place, typically pointers, so that Check can observe new values.
type ValueWatcher[K comparable, V any, P comparable] struct {
	*Invalidator[K]
	mu       sync.Mutex
	selector func(V) P
	items    *orderedmap.OrderedMap[K, tracked[V, P]]
	sub      stream.Subscription
}

// WatchValues subscribes to upstream and starts tracking selector over its items.
func WatchValues[K comparable, V any, P comparable](upstream stream.Observable[changeset.ChangeSet[K, V]], selector func(V) P, logger logr.Logger) (*ValueWatcher[K, V, P], error) {
	w := &ValueWatcher[K, V, P]{
		Invalidator: NewInvalidator[K](logger),
		selector:    selector,
		items:       orderedmap.New[K, tracked[V, P]](),
	}

	sub, err := upstream.Subscribe(stream.ObserverFuncs[changeset.ChangeSet[K, V]]{
		NextFunc: func(cs changeset.ChangeSet[K, V]) error { w.track(cs); return nil },
		DoneFunc: w.Invalidator.Dispose,
	})
	if err != nil {
		return nil, err
	}
	w.sub = sub

	return w, nil
}

func (w *ValueWatcher[K, V, P]) track(cs changeset.ChangeSet[K, V]) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range cs {
		switch c.Reason {
		case changeset.Add, changeset.Update:
			w.items.Set(c.Key, tracked[V, P]{item: c.Current, last: w.selector(c.Current)})
		case changeset.Remove:
			w.items.Delete(c.Key)
		case changeset.Clear:
			w.items = orderedmap.New[K, tracked[V, P]]()
		}
	}
}

// Check re-reads the projected value of every tracked item and invalidates the keys whose value
// changed. It returns the error of the first failing subscriber.
func (w *ValueWatcher[K, V, P]) Check() error {
	w.mu.Lock()
	changed := []K{}
	for pair := w.items.Oldest(); pair != nil; pair = pair.Next() {
		if v := w.selector(pair.Value.item); v != pair.Value.last {
			changed = append(changed, pair.Key)
			pair.Value.last = v
		}
	}
	w.mu.Unlock()

	return w.Invalidate(changed...)
}

// Dispose stops following upstream and completes all subscribers.
func (w *ValueWatcher[K, V, P]) Dispose() {
	w.sub.Dispose()
	w.Invalidator.Dispose()
}
