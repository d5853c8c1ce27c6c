// Package mirror replays change streams onto plain Go slices owned by the caller.
//
// The returned observables are pass-through: every change set is first applied to the
// destination and then forwarded unchanged. A destination must be fed by a single subscription
// and must not be modified by anyone else, otherwise the mirror gets out of sync.
package mirror

import (
	"errors"
	"fmt"
	"slices"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/stream"
)

// ErrOutOfSync is returned when a change cannot be replayed onto the destination, typically
// because the destination was modified externally.
var ErrOutOfSync = errors.New("mirror out of sync")

// Clone mirrors a keyed stream onto dest. Items appear in the order their keys were first added,
// or at the index carried by the change when the stream is positional. The destination is reset
// on subscription.
func Clone[K comparable, V any](upstream stream.Observable[changeset.ChangeSet[K, V]], dest *[]V) stream.Observable[changeset.ChangeSet[K, V]] {
	return stream.ObservableFunc[changeset.ChangeSet[K, V]](func(o stream.Observer[changeset.ChangeSet[K, V]]) (stream.Subscription, error) {
		m := &keyed[K, V]{dest: dest}
		*dest = (*dest)[:0]

		return upstream.Subscribe(stream.ObserverFuncs[changeset.ChangeSet[K, V]]{
			NextFunc: func(cs changeset.ChangeSet[K, V]) error {
				if err := m.apply(cs); err != nil {
					return err
				}
				return o.Next(cs)
			},
			DoneFunc: o.Done,
		})
	})
}

// keyed keeps the keys parallel to the destination so that keyed changes can be located.
type keyed[K comparable, V any] struct {
	keys []K
	dest *[]V
}

func (m *keyed[K, V]) insert(index int, key K, item V) {
	if index < 0 || index > len(m.keys) {
		index = len(m.keys)
	}
	m.keys = slices.Insert(m.keys, index, key)
	*m.dest = slices.Insert(*m.dest, index, item)
}

func (m *keyed[K, V]) delete(index int) {
	m.keys = slices.Delete(m.keys, index, index+1)
	*m.dest = slices.Delete(*m.dest, index, index+1)
}

func (m *keyed[K, V]) apply(cs changeset.ChangeSet[K, V]) error {
	for _, c := range cs {
		if c.Reason == changeset.Clear {
			m.keys = m.keys[:0]
			*m.dest = (*m.dest)[:0]
			continue
		}

		i := slices.Index(m.keys, c.Key)
		if len(m.keys) != len(*m.dest) {
			return fmt.Errorf("%w: destination has %d items, expected %d", ErrOutOfSync,
				len(*m.dest), len(m.keys))
		}

		switch c.Reason {
		case changeset.Add, changeset.Update:
			if i >= 0 {
				(*m.dest)[i] = c.Current
				continue
			}
			m.insert(c.CurrentIndex, c.Key, c.Current)
		case changeset.Remove:
			if i < 0 {
				return fmt.Errorf("%w: no item for key %v", ErrOutOfSync, c.Key)
			}
			m.delete(i)
		case changeset.Move:
			if i < 0 {
				return fmt.Errorf("%w: no item for key %v", ErrOutOfSync, c.Key)
			}
			m.delete(i)
			m.insert(c.CurrentIndex, c.Key, c.Current)
		}
	}
	return nil
}

// CloneList mirrors a positional stream onto dest, index for index. The destination is reset on
// subscription.
func CloneList[T any](upstream stream.Observable[changeset.ListChangeSet[T]], dest *[]T) stream.Observable[changeset.ListChangeSet[T]] {
	return stream.ObservableFunc[changeset.ListChangeSet[T]](func(o stream.Observer[changeset.ListChangeSet[T]]) (stream.Subscription, error) {
		*dest = (*dest)[:0]

		return upstream.Subscribe(stream.ObserverFuncs[changeset.ListChangeSet[T]]{
			NextFunc: func(cs changeset.ListChangeSet[T]) error {
				if err := applyList(dest, cs); err != nil {
					return err
				}
				return o.Next(cs)
			},
			DoneFunc: o.Done,
		})
	})
}

func checkIndex(index, length int) error {
	if index < 0 || index > length {
		return fmt.Errorf("%w: index %d out of range [0, %d]", ErrOutOfSync, index, length)
	}
	return nil
}

func applyList[T any](dest *[]T, cs changeset.ListChangeSet[T]) error {
	for _, c := range cs {
		l := len(*dest)
		switch c.Reason {
		case changeset.Clear:
			*dest = (*dest)[:0]
		case changeset.Add:
			if err := checkIndex(c.CurrentIndex, l); err != nil {
				return err
			}
			*dest = slices.Insert(*dest, c.CurrentIndex, c.Current)
		case changeset.AddRange:
			if err := checkIndex(c.CurrentIndex, l); err != nil {
				return err
			}
			*dest = slices.Insert(*dest, c.CurrentIndex, c.Range...)
		case changeset.Remove:
			if err := checkIndex(c.CurrentIndex, l-1); err != nil {
				return err
			}
			*dest = slices.Delete(*dest, c.CurrentIndex, c.CurrentIndex+1)
		case changeset.RemoveRange:
			if err := checkIndex(c.CurrentIndex, l); err != nil {
				return err
			}
			if err := checkIndex(c.CurrentIndex+len(c.Range), l); err != nil {
				return err
			}
			*dest = slices.Delete(*dest, c.CurrentIndex, c.CurrentIndex+len(c.Range))
		case changeset.Update:
			if err := checkIndex(c.CurrentIndex, l-1); err != nil {
				return err
			}
			(*dest)[c.CurrentIndex] = c.Current
		case changeset.Move:
			if err := checkIndex(c.PreviousIndex, l-1); err != nil {
				return err
			}
			if err := checkIndex(c.CurrentIndex, l-1); err != nil {
				return err
			}
			item := (*dest)[c.PreviousIndex]
			*dest = slices.Insert(slices.Delete(*dest, c.PreviousIndex, c.PreviousIndex+1), c.CurrentIndex, item)
		}
	}
	return nil
}
