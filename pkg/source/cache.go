package source

import (
	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/recorder"
	"github.com/l7mp/dynadata/pkg/stream"
)

// SourceCache is a thread-safe keyed source. Items are identified by the key returned by the key
// selector, which must be total and deterministic.
type SourceCache[K comparable, V any] struct {
	*core[changeset.ChangeSet[K, V], changeset.Change[K, V]]
	keyOf func(V) K
	cache *recorder.Cache[K, V]
	equal changeset.EqualFunc[V]
}

// NewSourceCache creates an empty keyed source.
func NewSourceCache[K comparable, V any](keyOf func(V) K, opts Options[V]) *SourceCache[K, V] {
	name := opts.name("cache")
	log := opts.logger().WithName("source-cache").WithValues("source", name)
	s := &SourceCache[K, V]{
		core: newCore[changeset.ChangeSet[K, V]](name,
			func(c changeset.Change[K, V]) changeset.Reason { return c.Reason }, log),
		keyOf: keyOf,
		cache: recorder.NewCache[K](opts.Equal),
		equal: opts.Equal,
	}
	log.V(1).Info("source created")
	return s
}

// CacheUpdater is the mutation surface handed to Edit. It must not be used after Edit returns.
type CacheUpdater[K comparable, V any] struct {
	keyOf func(V) K
	cache *recorder.Cache[K, V]
}

// AddOrUpdate adds new items and replaces existing ones.
func (u *CacheUpdater[K, V]) AddOrUpdate(items ...V) {
	for _, item := range items {
		u.cache.AddOrUpdate(u.keyOf(item), item)
	}
}

// Add adds an item that must not be present yet.
func (u *CacheUpdater[K, V]) Add(item V) error { return u.cache.Add(u.keyOf(item), item) }

// Update replaces an item that must already be present.
func (u *CacheUpdater[K, V]) Update(item V) error { return u.cache.Update(u.keyOf(item), item) }

// Remove removes the items under keys. Absent keys are ignored.
func (u *CacheUpdater[K, V]) Remove(keys ...K) {
	for _, k := range keys {
		u.cache.Remove(k)
	}
}

// RemoveItems removes items by their key. Absent items are ignored.
func (u *CacheUpdater[K, V]) RemoveItems(items ...V) {
	for _, item := range items {
		u.cache.Remove(u.keyOf(item))
	}
}

// Refresh asks downstream operators to re-evaluate the items under keys.
func (u *CacheUpdater[K, V]) Refresh(keys ...K) {
	for _, k := range keys {
		u.cache.Refresh(k)
	}
}

// Clear removes every item.
func (u *CacheUpdater[K, V]) Clear() { u.cache.Clear() }

// Lookup returns the item under key, reflecting the edits made so far.
func (u *CacheUpdater[K, V]) Lookup(key K) (V, bool) { return u.cache.Lookup(key) }

// Count returns the number of items, reflecting the edits made so far.
func (u *CacheUpdater[K, V]) Count() int { return u.cache.Count() }

// Edit runs f as one atomic batch: every change f makes is dispatched as a single change set once f
// returns. There is no rollback: if f fails, the changes it made so far are still applied and
// dispatched and f's error is returned.
func (s *SourceCache[K, V]) Edit(f func(u *CacheUpdater[K, V]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}

	ferr := f(&CacheUpdater[K, V]{keyOf: s.keyOf, cache: s.cache})
	if err := s.dispatch(s.cache.CaptureChanges()); err != nil {
		return err
	}
	return ferr
}

// AddOrUpdate adds or replaces items as one change set.
func (s *SourceCache[K, V]) AddOrUpdate(items ...V) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { u.AddOrUpdate(items...); return nil })
}

// Add adds a new item. It fails with ErrDuplicateKey if the key is already present.
func (s *SourceCache[K, V]) Add(item V) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { return u.Add(item) })
}

// Update replaces an existing item. It fails with ErrKeyNotFound if the key is not present.
func (s *SourceCache[K, V]) Update(item V) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { return u.Update(item) })
}

// Remove removes the items under keys as one change set.
func (s *SourceCache[K, V]) Remove(keys ...K) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { u.Remove(keys...); return nil })
}

// RemoveItems removes items by their key as one change set.
func (s *SourceCache[K, V]) RemoveItems(items ...V) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { u.RemoveItems(items...); return nil })
}

// Refresh emits refresh changes for the items under keys.
func (s *SourceCache[K, V]) Refresh(keys ...K) error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { u.Refresh(keys...); return nil })
}

// Clear removes every item.
func (s *SourceCache[K, V]) Clear() error {
	return s.Edit(func(u *CacheUpdater[K, V]) error { u.Clear(); return nil })
}

// Lookup returns the item under key.
func (s *SourceCache[K, V]) Lookup(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Lookup(key)
}

// Keys returns the keys in insertion order.
func (s *SourceCache[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys()
}

// Items returns the items in insertion order.
func (s *SourceCache[K, V]) Items() []V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Items()
}

// Count returns the number of items.
func (s *SourceCache[K, V]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Count()
}

// Connect returns the change stream of the source. Every subscriber first receives a change set
// adding all current items (empty if the source is empty), then every later change set.
func (s *SourceCache[K, V]) Connect() stream.Observable[changeset.ChangeSet[K, V]] {
	return s.connect(func() changeset.ChangeSet[K, V] { return s.cache.Snapshot() })
}

// Dispose completes all subscribers and releases the state. Later mutations and subscriptions fail
// with ErrDisposed. Disposing twice is safe.
func (s *SourceCache[K, V]) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dispose() {
		s.cache = recorder.NewCache[K](s.equal)
	}
}
