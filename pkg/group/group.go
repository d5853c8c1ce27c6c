package group

import (
	"fmt"
	"sync"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/recorder"
	"github.com/l7mp/dynadata/pkg/stream"
)

// Group is the set of items sharing a group key. It is itself an observable keyed collection:
// Connect streams the member changes of the group.
type Group[K comparable, V any, G comparable] struct {
	key      G
	mu       *sync.Mutex // shared with the grouping operator
	cache    *recorder.Cache[K, V]
	subject  *stream.Subject[changeset.ChangeSet[K, V]]
	disposed bool
}

func newGroup[K comparable, V any, G comparable](key G, mu *sync.Mutex, op *operator[K, V, G]) *Group[K, V, G] {
	return &Group[K, V, G]{
		key:     key,
		mu:      mu,
		cache:   recorder.NewCache[K, V](changeset.NeverEqual[V]),
		subject: stream.NewSubject[changeset.ChangeSet[K, V]](op.log.WithValues("group", fmt.Sprintf("%v", key))),
	}
}

// Key returns the group key.
func (g *Group[K, V, G]) Key() G { return g.key }

// Count returns the number of members.
func (g *Group[K, V, G]) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Count()
}

// Lookup returns the member under key.
func (g *Group[K, V, G]) Lookup(key K) (V, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Lookup(key)
}

// Keys returns the member keys in the order they joined the group.
func (g *Group[K, V, G]) Keys() []K {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Keys()
}

// Items returns the members in the order they joined the group.
func (g *Group[K, V, G]) Items() []V {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Items()
}

// Connect returns the member change stream of the group: a snapshot of the current members
// followed by every later member change set. Subscribing to a removed group fails with
// stream.ErrCompleted.
func (g *Group[K, V, G]) Connect() stream.Observable[changeset.ChangeSet[K, V]] {
	return stream.WithSnapshot[changeset.ChangeSet[K, V]](g.mu, func() (changeset.ChangeSet[K, V], error) {
		if g.disposed {
			return nil, stream.ErrCompleted
		}
		return g.cache.Snapshot(), nil
	}, g.subject)
}

// String returns a human readable representation of the group.
func (g *Group[K, V, G]) String() string {
	return fmt.Sprintf("group(%v)", g.key)
}

// flush publishes the pending member changes. Must be called with the shared mutex held.
func (g *Group[K, V, G]) flush() error {
	cs := g.cache.CaptureChanges()
	if len(cs) == 0 {
		return nil
	}
	return g.subject.Publish(cs)
}

// dispose completes the member subscribers. Must be called with the shared mutex held.
func (g *Group[K, V, G]) dispose() {
	if g.disposed {
		return
	}
	g.disposed = true
	g.subject.Complete()
}
