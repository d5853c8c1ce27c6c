// Package testutils contains helpers shared by the test suites.
package testutils

import (
	"fmt"
	"slices"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/stream"
)

// Person is the item type used throughout the tests. Age is mutated in place in some tests, so
// sources hold *Person.
type Person struct {
	Name string
	Age  int
}

func (p *Person) String() string { return fmt.Sprintf("%s(%d)", p.Name, p.Age) }

// PersonKey is the key selector of Person.
func PersonKey(p *Person) string { return p.Name }

// PersonAge projects the age of a person.
func PersonAge(p *Person) float64 { return float64(p.Age) }

// NewPeople creates n people named "Name1".."Name<n>" with ages assigned by age.
func NewPeople(n int, age func(i int) int) []*Person {
	ret := make([]*Person, n)
	for i := range ret {
		ret[i] = &Person{Name: fmt.Sprintf("Name%d", i+1), Age: age(i + 1)}
	}
	return ret
}

// ChangeSetAggregator subscribes to a keyed stream, records every change set and replays them
// into a local copy of the data.
type ChangeSetAggregator[K comparable, V any] struct {
	mu       sync.Mutex
	messages []changeset.ChangeSet[K, V]
	data     *orderedmap.OrderedMap[K, V]
	done     bool
	sub      stream.Subscription
}

// NewChangeSetAggregator subscribes to o.
func NewChangeSetAggregator[K comparable, V any](o stream.Observable[changeset.ChangeSet[K, V]]) (*ChangeSetAggregator[K, V], error) {
	a := &ChangeSetAggregator[K, V]{data: orderedmap.New[K, V]()}
	sub, err := o.Subscribe(stream.ObserverFuncs[changeset.ChangeSet[K, V]]{
		NextFunc: func(cs changeset.ChangeSet[K, V]) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.messages = append(a.messages, cs)
			for _, c := range cs.Flatten() {
				switch c.Reason {
				case changeset.Add, changeset.Update:
					a.data.Set(c.Key, c.Current)
				case changeset.Remove:
					a.data.Delete(c.Key)
				}
			}
			return nil
		},
		DoneFunc: func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.done = true
		},
	})
	if err != nil {
		return nil, err
	}
	a.sub = sub
	return a, nil
}

// Messages returns the change sets received so far.
func (a *ChangeSetAggregator[K, V]) Messages() []changeset.ChangeSet[K, V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

// Last returns the last change set received.
func (a *ChangeSetAggregator[K, V]) Last() changeset.ChangeSet[K, V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return nil
	}
	return a.messages[len(a.messages)-1]
}

// Data returns the replayed items by key.
func (a *ChangeSetAggregator[K, V]) Data() map[K]V {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := make(map[K]V, a.data.Len())
	for pair := a.data.Oldest(); pair != nil; pair = pair.Next() {
		ret[pair.Key] = pair.Value
	}
	return ret
}

// Keys returns the replayed keys in the order they were first added.
func (a *ChangeSetAggregator[K, V]) Keys() []K {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := make([]K, 0, a.data.Len())
	for pair := a.data.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, pair.Key)
	}
	return ret
}

// IsDone reports whether the stream completed.
func (a *ChangeSetAggregator[K, V]) IsDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Dispose unsubscribes.
func (a *ChangeSetAggregator[K, V]) Dispose() { a.sub.Dispose() }

// ListChangeSetAggregator is the positional version of ChangeSetAggregator.
type ListChangeSetAggregator[T any] struct {
	mu       sync.Mutex
	messages []changeset.ListChangeSet[T]
	data     []T
	done     bool
	sub      stream.Subscription
}

// NewListChangeSetAggregator subscribes to o. Range changes are replayed through their singleton
// equivalents.
func NewListChangeSetAggregator[T any](o stream.Observable[changeset.ListChangeSet[T]]) (*ListChangeSetAggregator[T], error) {
	a := &ListChangeSetAggregator[T]{}
	sub, err := o.Subscribe(stream.ObserverFuncs[changeset.ListChangeSet[T]]{
		NextFunc: func(cs changeset.ListChangeSet[T]) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.messages = append(a.messages, cs)
			for _, c := range cs.Flatten() {
				switch c.Reason {
				case changeset.Add:
					a.data = slices.Insert(a.data, c.CurrentIndex, c.Current)
				case changeset.Remove:
					a.data = slices.Delete(a.data, c.CurrentIndex, c.CurrentIndex+1)
				case changeset.Update:
					a.data[c.CurrentIndex] = c.Current
				case changeset.Move:
					item := a.data[c.PreviousIndex]
					a.data = slices.Insert(slices.Delete(a.data, c.PreviousIndex, c.PreviousIndex+1),
						c.CurrentIndex, item)
				}
			}
			return nil
		},
		DoneFunc: func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.done = true
		},
	})
	if err != nil {
		return nil, err
	}
	a.sub = sub
	return a, nil
}

// Messages returns the change sets received so far.
func (a *ListChangeSetAggregator[T]) Messages() []changeset.ListChangeSet[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

// Data returns the replayed items.
func (a *ListChangeSetAggregator[T]) Data() []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.data)
}

// IsDone reports whether the stream completed.
func (a *ListChangeSetAggregator[T]) IsDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Dispose unsubscribes.
func (a *ListChangeSetAggregator[T]) Dispose() { a.sub.Dispose() }

// Collect subscribes to o and appends every value it emits to a slice.
func Collect[T any](o stream.Observable[T]) (*[]T, stream.Subscription, error) {
	var mu sync.Mutex
	ret := &[]T{}
	sub, err := stream.SubscribeFunc(o, func(v T) error {
		mu.Lock()
		defer mu.Unlock()
		*ret = append(*ret, v)
		return nil
	})
	return ret, sub, err
}
