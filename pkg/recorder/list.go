package recorder

import (
	"fmt"
	"slices"

	"github.com/l7mp/dynadata/pkg/changeset"
)

// List is a positional change-aware collection.
type List[T any] struct {
	items   []T
	equal   changeset.EqualFunc[T]
	changes changeset.ListChangeSet[T]
}

// NewList creates an empty list. The equal function is used by Set to suppress replacements with
// an equal item and by Remove and IndexOf to find items; nil defaults to changeset.SemanticEqual.
func NewList[T any](equal changeset.EqualFunc[T]) *List[T] {
	if equal == nil {
		equal = changeset.SemanticEqual[T]
	}
	return &List[T]{equal: equal}
}

// Add appends an item.
func (l *List[T]) Add(item T) {
	l.changes = append(l.changes, changeset.NewListAdd(item, len(l.items)))
	l.items = append(l.items, item)
}

// AddRange appends items as a single range change. An empty range is a no-op.
func (l *List[T]) AddRange(items []T) {
	// cannot fail: the end of the list is always a valid insertion point
	_ = l.InsertRange(items, len(l.items))
}

// Insert puts item at index, shifting later items up.
func (l *List[T]) Insert(index int, item T) error {
	if index < 0 || index > len(l.items) {
		return fmt.Errorf("insert at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	l.changes = append(l.changes, changeset.NewListAdd(item, index))
	l.items = slices.Insert(l.items, index, item)
	return nil
}

// InsertRange puts items at index as a single range change.
func (l *List[T]) InsertRange(items []T, index int) error {
	if index < 0 || index > len(l.items) {
		return fmt.Errorf("insert range at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	if len(items) == 0 {
		return nil
	}
	l.changes = append(l.changes, changeset.NewListRange(changeset.AddRange, slices.Clone(items), index))
	l.items = slices.Insert(l.items, index, items...)
	return nil
}

// RemoveAt removes the item at index.
func (l *List[T]) RemoveAt(index int) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("remove at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	l.changes = append(l.changes, changeset.NewListRemove(l.items[index], index))
	l.items = slices.Delete(l.items, index, index+1)
	return nil
}

// RemoveRange removes up to count items starting at index as a single range change. The range is
// truncated at the end of the list; a zero-length range is a no-op.
func (l *List[T]) RemoveRange(index, count int) error {
	if index < 0 || index > len(l.items) {
		return fmt.Errorf("remove range at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	end := min(index+max(count, 0), len(l.items))
	if end == index {
		return nil
	}
	removed := slices.Clone(l.items[index:end])
	l.changes = append(l.changes, changeset.NewListRange(changeset.RemoveRange, removed, index))
	l.items = slices.Delete(l.items, index, end)
	return nil
}

// Remove deletes the first item equal to item and reports whether one was found.
func (l *List[T]) Remove(item T) bool {
	index := l.IndexOf(item)
	if index < 0 {
		return false
	}
	_ = l.RemoveAt(index)
	return true
}

// Move relocates the item at from so that it ends up at index to. It is recorded as one move,
// never as a removal followed by an add.
func (l *List[T]) Move(from, to int) error {
	if from < 0 || from >= len(l.items) || to < 0 || to >= len(l.items) {
		return fmt.Errorf("move %d -> %d (count %d): %w", from, to, len(l.items), ErrIndexOutOfRange)
	}
	if from == to {
		return nil
	}
	item := l.items[from]
	l.items = slices.Insert(slices.Delete(l.items, from, from+1), to, item)
	l.changes = append(l.changes, changeset.NewListMove(item, to, from))
	return nil
}

// Set replaces the item at index. Replacing an item with an equal one is a no-op.
func (l *List[T]) Set(index int, item T) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("set at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	previous := l.items[index]
	if l.equal(previous, item) {
		return nil
	}
	l.changes = append(l.changes, changeset.NewListUpdate(item, previous, index))
	l.items[index] = item
	return nil
}

// Refresh records a refresh of the item at index without changing it.
func (l *List[T]) Refresh(index int) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("refresh at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	l.changes = append(l.changes, changeset.NewListRefresh(l.items[index], index))
	return nil
}

// Clear removes every item as a single clear change.
func (l *List[T]) Clear() {
	if len(l.items) == 0 {
		return
	}
	l.changes = append(l.changes, changeset.NewListRange(changeset.Clear, l.items, 0))
	l.items = nil
}

// At returns the item at index.
func (l *List[T]) At(index int) (T, error) {
	if index < 0 || index >= len(l.items) {
		var zero T
		return zero, fmt.Errorf("at %d (count %d): %w", index, len(l.items), ErrIndexOutOfRange)
	}
	return l.items[index], nil
}

// IndexOf returns the index of the first item equal to item, or -1.
func (l *List[T]) IndexOf(item T) int {
	return slices.IndexFunc(l.items, func(t T) bool { return l.equal(t, item) })
}

// Count returns the number of items.
func (l *List[T]) Count() int { return len(l.items) }

// Items returns a copy of the items.
func (l *List[T]) Items() []T { return slices.Clone(l.items) }

// Snapshot returns a change set that adds every current item as one range. It is empty when the
// list is.
func (l *List[T]) Snapshot() changeset.ListChangeSet[T] {
	if len(l.items) == 0 {
		return changeset.ListChangeSet[T]{}
	}
	return changeset.ListChangeSet[T]{changeset.NewListRange(changeset.AddRange, l.Items(), 0)}
}

// HasChanges is true if changes were recorded since the last capture.
func (l *List[T]) HasChanges() bool { return len(l.changes) > 0 }

// CaptureChanges returns the pending change set and starts a new, empty one.
func (l *List[T]) CaptureChanges() changeset.ListChangeSet[T] {
	ret := l.changes
	l.changes = nil
	return ret
}
