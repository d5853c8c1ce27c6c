package changeset

import (
	"strings"

	"github.com/l7mp/dynadata/pkg/util"
)

// ChangeSet is an ordered batch of changes on a keyed collection, produced by one mutation call or
// one atomic edit. Replaying the changes in order onto the prior state gives the new state. A
// captured change set is never modified again.
type ChangeSet[K comparable, V any] []Change[K, V]

// Len returns the number of changes in the set.
func (cs ChangeSet[K, V]) Len() int { return len(cs) }

// Adds returns the number of items added.
func (cs ChangeSet[K, V]) Adds() int { return cs.count(Add) }

// Removes returns the number of items removed, including the items dropped by a clear.
func (cs ChangeSet[K, V]) Removes() int {
	n := 0
	for _, c := range cs {
		switch c.Reason {
		case Remove:
			n++
		case Clear:
			n += len(c.Range)
		}
	}
	return n
}

// Updates returns the number of items replaced.
func (cs ChangeSet[K, V]) Updates() int { return cs.count(Update) }

// Moves returns the number of items moved.
func (cs ChangeSet[K, V]) Moves() int { return cs.count(Move) }

// Refreshes returns the number of items refreshed.
func (cs ChangeSet[K, V]) Refreshes() int { return cs.count(Refresh) }

func (cs ChangeSet[K, V]) count(reason Reason) int {
	n := 0
	for _, c := range cs {
		if c.Reason == reason {
			n++
		}
	}
	return n
}

// Flatten expands clears into the equivalent sequence of singleton removals.
func (cs ChangeSet[K, V]) Flatten() ChangeSet[K, V] {
	ret := make(ChangeSet[K, V], 0, len(cs))
	for _, c := range cs {
		if c.Reason != Clear {
			ret = append(ret, c)
			continue
		}
		for _, kv := range c.Range {
			ret = append(ret, NewRemove(kv.Key, kv.Value))
		}
	}
	return ret
}

// String returns a human readable representation of the change set.
func (cs ChangeSet[K, V]) String() string {
	return "[" + strings.Join(util.Map(Change[K, V].String, cs), ", ") + "]"
}

// ListChangeSet is an ordered batch of changes on a positional collection.
type ListChangeSet[T any] []ListChange[T]

// Len returns the number of changes in the set.
func (cs ListChangeSet[T]) Len() int { return len(cs) }

// Adds returns the number of items added, counting every item of a range.
func (cs ListChangeSet[T]) Adds() int {
	n := 0
	for _, c := range cs {
		switch c.Reason {
		case Add:
			n++
		case AddRange:
			n += len(c.Range)
		}
	}
	return n
}

// Removes returns the number of items removed, counting every item of a range or a clear.
func (cs ListChangeSet[T]) Removes() int {
	n := 0
	for _, c := range cs {
		switch c.Reason {
		case Remove:
			n++
		case RemoveRange, Clear:
			n += len(c.Range)
		}
	}
	return n
}

// Updates returns the number of items replaced.
func (cs ListChangeSet[T]) Updates() int { return cs.count(Update) }

// Moves returns the number of items moved.
func (cs ListChangeSet[T]) Moves() int { return cs.count(Move) }

// Refreshes returns the number of items refreshed.
func (cs ListChangeSet[T]) Refreshes() int { return cs.count(Refresh) }

func (cs ListChangeSet[T]) count(reason Reason) int {
	n := 0
	for _, c := range cs {
		if c.Reason == reason {
			n++
		}
	}
	return n
}

// Flatten expands range changes into the equivalent sequence of singleton changes: an AddRange at
// index i becomes adds at i, i+1, ...; a RemoveRange or a Clear becomes repeated removals at the
// origin index.
func (cs ListChangeSet[T]) Flatten() ListChangeSet[T] {
	ret := make(ListChangeSet[T], 0, len(cs))
	for _, c := range cs {
		switch c.Reason {
		case AddRange:
			for i, item := range c.Range {
				ret = append(ret, NewListAdd(item, c.CurrentIndex+i))
			}
		case RemoveRange, Clear:
			for _, item := range c.Range {
				ret = append(ret, NewListRemove(item, c.CurrentIndex))
			}
		default:
			ret = append(ret, c)
		}
	}
	return ret
}

// String returns a human readable representation of the change set.
func (cs ListChangeSet[T]) String() string {
	return "[" + strings.Join(util.Map(ListChange[T].String, cs), ", ") + "]"
}
