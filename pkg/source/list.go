package source

import (
	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/recorder"
	"github.com/l7mp/dynadata/pkg/stream"
)

// SourceList is a thread-safe positional source.
type SourceList[T any] struct {
	*core[changeset.ListChangeSet[T], changeset.ListChange[T]]
	list  *recorder.List[T]
	equal changeset.EqualFunc[T]
}

// NewSourceList creates an empty positional source.
func NewSourceList[T any](opts Options[T]) *SourceList[T] {
	name := opts.name("list")
	log := opts.logger().WithName("source-list").WithValues("source", name)
	s := &SourceList[T]{
		core: newCore[changeset.ListChangeSet[T]](name,
			func(c changeset.ListChange[T]) changeset.Reason { return c.Reason }, log),
		list:  recorder.NewList(opts.Equal),
		equal: opts.Equal,
	}
	log.V(1).Info("source created")
	return s
}

// ListUpdater is the mutation surface handed to Edit. It must not be used after Edit returns.
type ListUpdater[T any] struct {
	list *recorder.List[T]
}

// Add appends an item.
func (u *ListUpdater[T]) Add(item T) { u.list.Add(item) }

// AddRange appends items.
func (u *ListUpdater[T]) AddRange(items []T) { u.list.AddRange(items) }

// Insert inserts an item at index, which may be equal to the length of the list.
func (u *ListUpdater[T]) Insert(index int, item T) error { return u.list.Insert(index, item) }

// InsertRange inserts items starting at index.
func (u *ListUpdater[T]) InsertRange(items []T, index int) error {
	return u.list.InsertRange(items, index)
}

// RemoveAt removes the item at index.
func (u *ListUpdater[T]) RemoveAt(index int) error { return u.list.RemoveAt(index) }

// RemoveRange removes count items starting at index.
func (u *ListUpdater[T]) RemoveRange(index, count int) error { return u.list.RemoveRange(index, count) }

// Remove removes the first occurrence of item and reports whether it was found.
func (u *ListUpdater[T]) Remove(item T) bool { return u.list.Remove(item) }

// Move moves the item at from to index to.
func (u *ListUpdater[T]) Move(from, to int) error { return u.list.Move(from, to) }

// Set replaces the item at index.
func (u *ListUpdater[T]) Set(index int, item T) error { return u.list.Set(index, item) }

// Refresh asks downstream operators to re-evaluate the item at index.
func (u *ListUpdater[T]) Refresh(index int) error { return u.list.Refresh(index) }

// Clear removes every item.
func (u *ListUpdater[T]) Clear() { u.list.Clear() }

// At returns the item at index, reflecting the edits made so far.
func (u *ListUpdater[T]) At(index int) (T, error) { return u.list.At(index) }

// IndexOf returns the index of the first occurrence of item, or -1.
func (u *ListUpdater[T]) IndexOf(item T) int { return u.list.IndexOf(item) }

// Count returns the number of items, reflecting the edits made so far.
func (u *ListUpdater[T]) Count() int { return u.list.Count() }

// Edit runs f as one atomic batch: every change f makes is dispatched as a single change set once f
// returns. If f fails, the changes it made so far are still dispatched and f's error is returned.
func (s *SourceList[T]) Edit(f func(l *ListUpdater[T]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}

	ferr := f(&ListUpdater[T]{list: s.list})
	if err := s.dispatch(s.list.CaptureChanges()); err != nil {
		return err
	}
	return ferr
}

// Add appends an item.
func (s *SourceList[T]) Add(item T) error {
	return s.Edit(func(l *ListUpdater[T]) error { l.Add(item); return nil })
}

// AddRange appends items as a single range change.
func (s *SourceList[T]) AddRange(items []T) error {
	return s.Edit(func(l *ListUpdater[T]) error { l.AddRange(items); return nil })
}

// Insert puts item at index.
func (s *SourceList[T]) Insert(index int, item T) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.Insert(index, item) })
}

// InsertRange puts items at index as a single range change.
func (s *SourceList[T]) InsertRange(items []T, index int) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.InsertRange(items, index) })
}

// RemoveAt removes the item at index.
func (s *SourceList[T]) RemoveAt(index int) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.RemoveAt(index) })
}

// RemoveRange removes up to count items starting at index as a single range change.
func (s *SourceList[T]) RemoveRange(index, count int) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.RemoveRange(index, count) })
}

// Remove removes the first item equal to item. Removing an absent item is a no-op.
func (s *SourceList[T]) Remove(item T) error {
	return s.Edit(func(l *ListUpdater[T]) error { l.Remove(item); return nil })
}

// Move relocates the item at from to index to.
func (s *SourceList[T]) Move(from, to int) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.Move(from, to) })
}

// Set replaces the item at index.
func (s *SourceList[T]) Set(index int, item T) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.Set(index, item) })
}

// Refresh emits a refresh change for the item at index.
func (s *SourceList[T]) Refresh(index int) error {
	return s.Edit(func(l *ListUpdater[T]) error { return l.Refresh(index) })
}

// Clear removes every item.
func (s *SourceList[T]) Clear() error {
	return s.Edit(func(l *ListUpdater[T]) error { l.Clear(); return nil })
}

// Items returns a copy of the items.
func (s *SourceList[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Items()
}

// Count returns the number of items.
func (s *SourceList[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Count()
}

// Connect returns the change stream of the source. Every subscriber first receives one change set
// holding a single AddRange of the current items (no changes if the list is empty), then every
// later change set.
func (s *SourceList[T]) Connect() stream.Observable[changeset.ListChangeSet[T]] {
	return s.connect(func() changeset.ListChangeSet[T] { return s.list.Snapshot() })
}

// Dispose completes all subscribers and releases the state. Disposing twice is safe.
func (s *SourceList[T]) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dispose() {
		s.list = recorder.NewList(s.equal)
	}
}
