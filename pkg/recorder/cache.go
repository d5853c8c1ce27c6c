// Package recorder implements change-aware collections: mutable containers that apply edits in
// place and record every edit as a change in a pending change set. Recorders are not safe for
// concurrent use; the sources in pkg/source serialize access to them.
package recorder

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/l7mp/dynadata/pkg/changeset"
)

// Cache is a keyed change-aware collection. Iteration order is insertion order.
type Cache[K comparable, V any] struct {
	items   *orderedmap.OrderedMap[K, V]
	equal   changeset.EqualFunc[V]
	changes changeset.ChangeSet[K, V]
}

// NewCache creates an empty cache. Replacements for which equal returns true are not recorded; a
// nil equal defaults to changeset.SemanticEqual.
func NewCache[K comparable, V any](equal changeset.EqualFunc[V]) *Cache[K, V] {
	if equal == nil {
		equal = changeset.SemanticEqual[V]
	}
	return &Cache[K, V]{
		items: orderedmap.New[K, V](),
		equal: equal,
	}
}

// AddOrUpdate stores item under key, recording an add for a new key and an update for a changed
// item. Replacing an item with an equal one is a no-op.
func (c *Cache[K, V]) AddOrUpdate(key K, item V) {
	old, exists := c.items.Get(key)
	if !exists {
		c.items.Set(key, item)
		c.changes = append(c.changes, changeset.NewAdd(key, item))
		return
	}

	if c.equal(old, item) {
		return
	}

	c.items.Set(key, item)
	c.changes = append(c.changes, changeset.NewUpdate(key, item, old))
}

// Add stores a new item and fails with ErrDuplicateKey if key is already present.
func (c *Cache[K, V]) Add(key K, item V) error {
	if _, exists := c.items.Get(key); exists {
		return fmt.Errorf("add %v: %w", key, ErrDuplicateKey)
	}
	c.AddOrUpdate(key, item)
	return nil
}

// Update replaces an existing item and fails with ErrKeyNotFound if key is not present.
func (c *Cache[K, V]) Update(key K, item V) error {
	if _, exists := c.items.Get(key); !exists {
		return fmt.Errorf("update %v: %w", key, ErrKeyNotFound)
	}
	c.AddOrUpdate(key, item)
	return nil
}

// Remove deletes the item under key and reports whether it was present. Removing an absent key
// records nothing.
func (c *Cache[K, V]) Remove(key K) bool {
	old, exists := c.items.Delete(key)
	if !exists {
		return false
	}
	c.changes = append(c.changes, changeset.NewRemove(key, old))
	return true
}

// Refresh records a refresh for the item under key without changing it.
func (c *Cache[K, V]) Refresh(key K) bool {
	item, exists := c.items.Get(key)
	if !exists {
		return false
	}
	c.changes = append(c.changes, changeset.NewRefresh(key, item))
	return true
}

// Clear removes every item, recording a single clear that carries all of them.
func (c *Cache[K, V]) Clear() {
	if c.items.Len() == 0 {
		return
	}
	c.changes = append(c.changes, changeset.NewClear(c.KeyValues()))
	c.items = orderedmap.New[K, V]()
}

// Lookup returns the item stored under key.
func (c *Cache[K, V]) Lookup(key K) (V, bool) { return c.items.Get(key) }

// Count returns the number of items.
func (c *Cache[K, V]) Count() int { return c.items.Len() }

// Keys returns the keys in insertion order.
func (c *Cache[K, V]) Keys() []K {
	ret := make([]K, 0, c.items.Len())
	for pair := c.items.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, pair.Key)
	}
	return ret
}

// Items returns the items in insertion order.
func (c *Cache[K, V]) Items() []V {
	ret := make([]V, 0, c.items.Len())
	for pair := c.items.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, pair.Value)
	}
	return ret
}

// KeyValues returns the key-item pairs in insertion order.
func (c *Cache[K, V]) KeyValues() []changeset.KeyValue[K, V] {
	ret := make([]changeset.KeyValue[K, V], 0, c.items.Len())
	for pair := c.items.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, changeset.KeyValue[K, V]{Key: pair.Key, Value: pair.Value})
	}
	return ret
}

// Snapshot returns a change set that adds every current item, in insertion order.
func (c *Cache[K, V]) Snapshot() changeset.ChangeSet[K, V] {
	ret := make(changeset.ChangeSet[K, V], 0, c.items.Len())
	for pair := c.items.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, changeset.NewAdd(pair.Key, pair.Value))
	}
	return ret
}

// HasChanges is true if changes were recorded since the last capture.
func (c *Cache[K, V]) HasChanges() bool { return len(c.changes) > 0 }

// CaptureChanges returns the pending change set and starts a new, empty one.
func (c *Cache[K, V]) CaptureChanges() changeset.ChangeSet[K, V] {
	ret := c.changes
	c.changes = nil
	return ret
}
