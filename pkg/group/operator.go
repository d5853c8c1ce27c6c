// Package group implements dynamic grouping: a keyed change stream is partitioned into groups of
// items sharing the key computed by a group selector, and the groups are kept consistent as items
// are added, removed, updated or re-keyed after an in-place mutation.
//
// The operator emits a keyed change stream of groups: a group is added when its first member
// arrives, removed when its last member leaves, and updated when its membership changes. Each
// group is an observable collection of its members. Within one pass all member changes are applied
// before any of them is published, so a re-keyed item is never seen in both or in neither group.
//
// Member change sets are published while the operator state is locked: member observers must not
// call back into Group methods from within Next. Group-level change sets are emitted after the
// lock is released, so group-level observers may connect to the groups they receive.
package group

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/stream"
)

// Options configures a grouping.
type Options[K comparable] struct {
	// Regroup delivers the keys of items whose group key may have changed in place. Each key is
	// re-evaluated and the item is moved to its new group if needed.
	Regroup stream.Observable[[]K]
	// Logger is the base logger. Defaults to a discarding logger.
	Logger logr.Logger
}

type operator[K comparable, V any, G comparable] struct {
	pass     sync.Mutex // serializes processing passes, including the downstream emission
	mu       sync.Mutex // protects the state below, shared with the groups
	groupOf  func(V) G
	groups   *orderedmap.OrderedMap[G, *Group[K, V, G]]
	index    map[K]G // item key -> current group key
	first    bool
	released bool
	stopped  atomic.Bool // set on disposal, read without locks
	done     atomic.Bool
	out      stream.Observer[changeset.ChangeSet[G, *Group[K, V, G]]]
	log      logr.Logger
}

// batch collects the group-level effects of one pass.
type batch[K comparable, V any, G comparable] struct {
	order   []*Group[K, V, G]
	seen    sets.Set[*Group[K, V, G]]
	added   sets.Set[*Group[K, V, G]]
	removed sets.Set[*Group[K, V, G]]
}

func newBatch[K comparable, V any, G comparable]() *batch[K, V, G] {
	return &batch[K, V, G]{
		seen:    sets.New[*Group[K, V, G]](),
		added:   sets.New[*Group[K, V, G]](),
		removed: sets.New[*Group[K, V, G]](),
	}
}

func (b *batch[K, V, G]) touch(g *Group[K, V, G]) {
	if !b.seen.Has(g) {
		b.seen.Insert(g)
		b.order = append(b.order, g)
	}
}

// result coalesces the pass into group-level changes: a group created and emptied within the same
// pass is not reported at all.
func (b *batch[K, V, G]) result() changeset.ChangeSet[G, *Group[K, V, G]] {
	ret := changeset.ChangeSet[G, *Group[K, V, G]]{}
	for _, g := range b.order {
		switch added, removed := b.added.Has(g), b.removed.Has(g); {
		case added && removed:
		case added:
			ret = append(ret, changeset.NewAdd(g.key, g))
		case removed:
			ret = append(ret, changeset.NewRemove(g.key, g))
		default:
			ret = append(ret, changeset.NewUpdate(g.key, g, g))
		}
	}
	return ret
}

// On groups the items of a keyed stream by the key returned by groupOf. Every subscription keeps
// its own groups. Disposing the subscription, even from within Next, stops delivery at once; the
// groups are completed as soon as no pass is running.
func On[K comparable, V any, G comparable](upstream stream.Observable[changeset.ChangeSet[K, V]], groupOf func(V) G, opts Options[K]) stream.Observable[changeset.ChangeSet[G, *Group[K, V, G]]] {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	log := logger.WithName("group")

	return stream.ObservableFunc[changeset.ChangeSet[G, *Group[K, V, G]]](func(o stream.Observer[changeset.ChangeSet[G, *Group[K, V, G]]]) (stream.Subscription, error) {
		op := &operator[K, V, G]{
			groupOf: groupOf,
			groups:  orderedmap.New[G, *Group[K, V, G]](),
			index:   map[K]G{},
			first:   true,
			out:     o,
			log:     log,
		}

		var regroupSub stream.Subscription
		upSub, err := upstream.Subscribe(stream.ObserverFuncs[changeset.ChangeSet[K, V]]{
			NextFunc: func(cs changeset.ChangeSet[K, V]) error {
				return op.process(func(b *batch[K, V, G]) { op.apply(b, cs) })
			},
			DoneFunc: func() {
				op.stop()
				if regroupSub != nil {
					regroupSub.Dispose()
				}
				if op.done.CompareAndSwap(false, true) {
					o.Done()
				}
			},
		})
		if err != nil {
			return nil, err
		}

		if opts.Regroup != nil {
			regroupSub, err = opts.Regroup.Subscribe(stream.ObserverFuncs[[]K]{
				NextFunc: func(keys []K) error {
					return op.process(func(b *batch[K, V, G]) {
						log.V(4).Info("regrouping", "keys", len(keys))
						for _, k := range keys {
							op.regroup(b, k)
						}
					})
				},
			})
			if err != nil {
				upSub.Dispose()
				op.stop()
				return nil, err
			}
		}

		return stream.NewSubscription(func() {
			op.stop()
			upSub.Dispose()
			if regroupSub != nil {
				regroupSub.Dispose()
			}
		}), nil
	})
}

// process runs one pass: apply mutates the groups, then the member changes are published, removed
// groups are completed and finally the group-level change set is emitted.
func (op *operator[K, V, G]) process(apply func(b *batch[K, V, G])) error {
	op.pass.Lock()
	defer op.tryRelease()
	defer op.pass.Unlock()

	if op.stopped.Load() {
		return nil
	}

	op.mu.Lock()

	b := newBatch[K, V, G]()
	apply(b)

	var errs []error
	for _, g := range b.order {
		if err := g.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, g := range b.order {
		if b.removed.Has(g) {
			g.dispose()
		}
	}

	out := b.result()
	emit := len(out) > 0 || op.first
	op.first = false
	op.log.V(5).Info("pass done", "group-changes", len(out), "groups", op.groups.Len())
	op.mu.Unlock()

	if emit && !op.stopped.Load() {
		if err := op.out.Next(out); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (op *operator[K, V, G]) apply(b *batch[K, V, G], cs changeset.ChangeSet[K, V]) {
	for _, c := range cs {
		switch c.Reason {
		case changeset.Add, changeset.Update:
			op.upsert(b, c.Key, c.Current)
		case changeset.Remove:
			op.remove(b, c.Key)
		case changeset.Refresh:
			op.regroup(b, c.Key)
		case changeset.Clear:
			op.clear(b)
		}
	}
}

func (op *operator[K, V, G]) getOrCreate(b *batch[K, V, G], key G) *Group[K, V, G] {
	if g, ok := op.groups.Get(key); ok {
		return g
	}
	g := newGroup[K, V](key, &op.mu, op)
	op.groups.Set(key, g)
	b.added.Insert(g)
	op.log.V(5).Info("group created", "group", key)
	return g
}

func (op *operator[K, V, G]) insert(b *batch[K, V, G], key K, item V, groupKey G) {
	g := op.getOrCreate(b, groupKey)
	g.cache.AddOrUpdate(key, item)
	op.index[key] = groupKey
	b.touch(g)
}

func (op *operator[K, V, G]) upsert(b *batch[K, V, G], key K, item V) {
	groupKey := op.groupOf(item)
	if old, ok := op.index[key]; ok {
		if old == groupKey {
			g, _ := op.groups.Get(old)
			g.cache.AddOrUpdate(key, item)
			b.touch(g)
			return
		}
		op.remove(b, key)
	}
	op.insert(b, key, item, groupKey)
}

// remove uses the reverse index: the item is gone, its group key cannot be recomputed.
func (op *operator[K, V, G]) remove(b *batch[K, V, G], key K) {
	groupKey, ok := op.index[key]
	if !ok {
		return
	}
	delete(op.index, key)

	g, _ := op.groups.Get(groupKey)
	g.cache.Remove(key)
	b.touch(g)

	if g.cache.Count() == 0 {
		op.groups.Delete(groupKey)
		b.removed.Insert(g)
		op.log.V(5).Info("group collapsed", "group", groupKey)
	}
}

func (op *operator[K, V, G]) regroup(b *batch[K, V, G], key K) {
	groupKey, ok := op.index[key]
	if !ok {
		return
	}
	g, _ := op.groups.Get(groupKey)
	item, _ := g.cache.Lookup(key)

	if newKey := op.groupOf(item); newKey != groupKey {
		op.remove(b, key)
		op.insert(b, key, item, newKey)
		return
	}

	g.cache.Refresh(key)
	b.touch(g)
}

func (op *operator[K, V, G]) clear(b *batch[K, V, G]) {
	for pair := op.groups.Oldest(); pair != nil; pair = pair.Next() {
		g := pair.Value
		g.cache.Clear()
		b.touch(g)
		b.removed.Insert(g)
	}
	op.groups = orderedmap.New[G, *Group[K, V, G]]()
	clear(op.index)
}

// stop marks the operator stopped. It never blocks, so it is safe to call from within Next.
func (op *operator[K, V, G]) stop() {
	op.stopped.Store(true)
	op.tryRelease()
}

// tryRelease drops the state and completes every group once the operator is stopped and no pass
// is running. Every pass calls it after unlocking, so the state is released by whoever leaves
// the pass lock last.
func (op *operator[K, V, G]) tryRelease() {
	if !op.stopped.Load() || !op.pass.TryLock() {
		return
	}
	defer op.pass.Unlock()
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.released {
		return
	}
	op.released = true
	op.log.V(4).Info("releasing groups", "groups", op.groups.Len())
	for pair := op.groups.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.dispose()
	}
	op.groups = orderedmap.New[G, *Group[K, V, G]]()
	clear(op.index)
}
