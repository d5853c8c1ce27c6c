package changeset

import (
	"fmt"

	"github.com/l7mp/dynadata/pkg/util"
)

// Reason tells what kind of mutation a change records.
type Reason int

const (
	Add Reason = iota
	Remove
	Update
	Move
	Refresh
	Clear
	AddRange
	RemoveRange
)

// Replace is the same as Update: the item under a key or at an index was swapped.
const Replace = Update

// String returns the name of the reason.
func (r Reason) String() string {
	switch r {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Move:
		return "move"
	case Refresh:
		return "refresh"
	case Clear:
		return "clear"
	case AddRange:
		return "add-range"
	case RemoveRange:
		return "remove-range"
	default:
		return "<invalid>"
	}
}

// IsRange is true for reasons that carry a sequence of items instead of a single one.
func (r Reason) IsRange() bool { return r == AddRange || r == RemoveRange || r == Clear }

// NoIndex marks a change on a collection without positional semantics.
const NoIndex = -1

// KeyValue is an item together with its key.
type KeyValue[K comparable, V any] struct {
	Key   K
	Value V
}

// Change registers a single mutation on a keyed collection. By convention, Previous is only
// meaningful for updates and Range only for clears.
type Change[K comparable, V any] struct {
	Reason        Reason
	Key           K
	Current       V
	Previous      V
	CurrentIndex  int
	PreviousIndex int
	Range         []KeyValue[K, V]
}

// NewAdd records the insertion of a new key.
func NewAdd[K comparable, V any](key K, current V) Change[K, V] {
	return Change[K, V]{Reason: Add, Key: key, Current: current, CurrentIndex: NoIndex, PreviousIndex: NoIndex}
}

// NewRemove records the removal of a key; current is the item that was removed.
func NewRemove[K comparable, V any](key K, current V) Change[K, V] {
	return Change[K, V]{Reason: Remove, Key: key, Current: current, CurrentIndex: NoIndex, PreviousIndex: NoIndex}
}

// NewUpdate records the replacement of the item under key.
func NewUpdate[K comparable, V any](key K, current, previous V) Change[K, V] {
	return Change[K, V]{Reason: Update, Key: key, Current: current, Previous: previous,
		CurrentIndex: NoIndex, PreviousIndex: NoIndex}
}

// NewRefresh records that the item under key should be re-evaluated although it was not replaced.
func NewRefresh[K comparable, V any](key K, current V) Change[K, V] {
	return Change[K, V]{Reason: Refresh, Key: key, Current: current, CurrentIndex: NoIndex, PreviousIndex: NoIndex}
}

// NewMove records that the item under key changed position.
func NewMove[K comparable, V any](key K, current V, currentIndex, previousIndex int) Change[K, V] {
	return Change[K, V]{Reason: Move, Key: key, Current: current, CurrentIndex: currentIndex,
		PreviousIndex: previousIndex}
}

// NewClear records the removal of all items in one go.
func NewClear[K comparable, V any](items []KeyValue[K, V]) Change[K, V] {
	return Change[K, V]{Reason: Clear, Range: items, CurrentIndex: NoIndex, PreviousIndex: NoIndex}
}

// String returns a human readable representation of the change.
func (c Change[K, V]) String() string {
	switch c.Reason {
	case Update:
		return fmt.Sprintf("%s(%v: %s -> %s)", c.Reason, c.Key, util.Stringify(c.Previous),
			util.Stringify(c.Current))
	case Move:
		return fmt.Sprintf("%s(%v: %d -> %d)", c.Reason, c.Key, c.PreviousIndex, c.CurrentIndex)
	case Clear:
		return fmt.Sprintf("%s(%d items)", c.Reason, len(c.Range))
	default:
		return fmt.Sprintf("%s(%v: %s)", c.Reason, c.Key, util.Stringify(c.Current))
	}
}

// ListChange registers a single mutation on a positional collection. Indices are authoritative.
// Range changes (AddRange, RemoveRange, Clear) carry their items in Range and the origin index in
// CurrentIndex.
type ListChange[T any] struct {
	Reason        Reason
	Current       T
	Previous      T
	CurrentIndex  int
	PreviousIndex int
	Range         []T
}

// NewListAdd records an insertion at index.
func NewListAdd[T any](item T, index int) ListChange[T] {
	return ListChange[T]{Reason: Add, Current: item, CurrentIndex: index, PreviousIndex: NoIndex}
}

// NewListRemove records a removal from index.
func NewListRemove[T any](item T, index int) ListChange[T] {
	return ListChange[T]{Reason: Remove, Current: item, CurrentIndex: index, PreviousIndex: NoIndex}
}

// NewListUpdate records the replacement of the item at index.
func NewListUpdate[T any](current, previous T, index int) ListChange[T] {
	return ListChange[T]{Reason: Update, Current: current, Previous: previous, CurrentIndex: index,
		PreviousIndex: index}
}

// NewListRefresh records that the item at index should be re-evaluated.
func NewListRefresh[T any](item T, index int) ListChange[T] {
	return ListChange[T]{Reason: Refresh, Current: item, CurrentIndex: index, PreviousIndex: index}
}

// NewListMove records that item moved from one index to another.
func NewListMove[T any](item T, currentIndex, previousIndex int) ListChange[T] {
	return ListChange[T]{Reason: Move, Current: item, CurrentIndex: currentIndex, PreviousIndex: previousIndex}
}

// NewListRange records a contiguous range operation starting at index.
func NewListRange[T any](reason Reason, items []T, index int) ListChange[T] {
	return ListChange[T]{Reason: reason, Range: items, CurrentIndex: index, PreviousIndex: NoIndex}
}

// String returns a human readable representation of the change.
func (c ListChange[T]) String() string {
	switch c.Reason {
	case Update:
		return fmt.Sprintf("%s(@%d: %s -> %s)", c.Reason, c.CurrentIndex, util.Stringify(c.Previous),
			util.Stringify(c.Current))
	case Move:
		return fmt.Sprintf("%s(%d -> %d)", c.Reason, c.PreviousIndex, c.CurrentIndex)
	case AddRange, RemoveRange, Clear:
		return fmt.Sprintf("%s(@%d: %d items)", c.Reason, c.CurrentIndex, len(c.Range))
	default:
		return fmt.Sprintf("%s(@%d: %s)", c.Reason, c.CurrentIndex, util.Stringify(c.Current))
	}
}
