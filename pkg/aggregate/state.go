package aggregate

import (
	"slices"

	"github.com/l7mp/dynadata/pkg/changeset"
)

// entry is an item together with its last projected value. Removals and updates subtract the
// stored value, so an item mutated in place before it leaves still leaves the sum consistent.
type entry[V any] struct {
	item  V
	value float64
}

type cacheState[K comparable, V any] struct {
	project func(V) float64
	items   map[K]entry[V]
}

func newCacheState[K comparable, V any](project func(V) float64) func() state[changeset.ChangeSet[K, V]] {
	return func() state[changeset.ChangeSet[K, V]] {
		return &cacheState[K, V]{project: project, items: map[K]entry[V]{}}
	}
}

func (s *cacheState[K, V]) apply(cs changeset.ChangeSet[K, V], acc *accumulator) {
	for _, c := range cs {
		switch c.Reason {
		case changeset.Add:
			if old, ok := s.items[c.Key]; ok {
				// tolerate a repeated add by treating it as an update
				acc.remove(old.value)
			}
			e := entry[V]{item: c.Current, value: s.project(c.Current)}
			s.items[c.Key] = e
			acc.add(e.value)
		case changeset.Remove:
			old, ok := s.items[c.Key]
			if !ok {
				continue
			}
			delete(s.items, c.Key)
			acc.remove(old.value)
		case changeset.Update:
			e := entry[V]{item: c.Current, value: s.project(c.Current)}
			if old, ok := s.items[c.Key]; ok {
				acc.sum += e.value - old.value
			} else {
				acc.add(e.value)
			}
			s.items[c.Key] = e
		case changeset.Refresh:
			old, ok := s.items[c.Key]
			if !ok {
				continue
			}
			if v := s.project(old.item); v != old.value {
				acc.sum += v - old.value
				s.items[c.Key] = entry[V]{item: old.item, value: v}
			}
		case changeset.Clear:
			clear(s.items)
			acc.reset()
		}
	}
}

func (s *cacheState[K, V]) rescan(acc *accumulator) {
	acc.reset()
	for k, e := range s.items {
		e.value = s.project(e.item)
		s.items[k] = e
		acc.add(e.value)
	}
}

type listState[T any] struct {
	project func(T) float64
	items   []entry[T]
}

func newListState[T any](project func(T) float64) func() state[changeset.ListChangeSet[T]] {
	return func() state[changeset.ListChangeSet[T]] {
		return &listState[T]{project: project}
	}
}

func (s *listState[T]) apply(cs changeset.ListChangeSet[T], acc *accumulator) {
	for _, c := range cs {
		switch c.Reason {
		case changeset.Clear:
			s.items = nil
			acc.reset()
		case changeset.AddRange:
			added := make([]entry[T], len(c.Range))
			for i, item := range c.Range {
				added[i] = entry[T]{item: item, value: s.project(item)}
				acc.add(added[i].value)
			}
			s.items = slices.Insert(s.items, c.CurrentIndex, added...)
		case changeset.RemoveRange:
			end := c.CurrentIndex + len(c.Range)
			for _, e := range s.items[c.CurrentIndex:end] {
				acc.remove(e.value)
			}
			s.items = slices.Delete(s.items, c.CurrentIndex, end)
		case changeset.Add:
			e := entry[T]{item: c.Current, value: s.project(c.Current)}
			s.items = slices.Insert(s.items, c.CurrentIndex, e)
			acc.add(e.value)
		case changeset.Remove:
			acc.remove(s.items[c.CurrentIndex].value)
			s.items = slices.Delete(s.items, c.CurrentIndex, c.CurrentIndex+1)
		case changeset.Update:
			e := entry[T]{item: c.Current, value: s.project(c.Current)}
			acc.sum += e.value - s.items[c.CurrentIndex].value
			s.items[c.CurrentIndex] = e
		case changeset.Move:
			e := s.items[c.PreviousIndex]
			s.items = slices.Insert(slices.Delete(s.items, c.PreviousIndex, c.PreviousIndex+1), c.CurrentIndex, e)
		case changeset.Refresh:
			e := s.items[c.CurrentIndex]
			if v := s.project(e.item); v != e.value {
				acc.sum += v - e.value
				s.items[c.CurrentIndex] = entry[T]{item: e.item, value: v}
			}
		}
	}
}

func (s *listState[T]) rescan(acc *accumulator) {
	acc.reset()
	for i := range s.items {
		s.items[i].value = s.project(s.items[i].item)
		acc.add(s.items[i].value)
	}
}
