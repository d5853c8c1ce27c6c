// Package aggregate implements incremental scalar reductions (sum, average, count) over change
// streams. Each subscription keeps a running count and sum, updated from the changes it receives,
// and emits the reduced value once per change set.
package aggregate

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/stream"
)

// Kind selects the reduced value.
type Kind int

const (
	KindSum Kind = iota
	KindAverage
	KindCount
)

// String returns the name of the reduction.
func (k Kind) String() string {
	switch k {
	case KindSum:
		return "sum"
	case KindAverage:
		return "avg"
	case KindCount:
		return "count"
	default:
		return "<invalid>"
	}
}

// Options configures an aggregation.
type Options struct {
	// Invalidate forces a full rescan of the current items whenever it emits. Use it when a
	// projected field of an item may change in place, without a change in the stream.
	Invalidate stream.Observable[struct{}]
	// Logger is the base logger. Defaults to a discarding logger.
	Logger logr.Logger
}

func (o Options) logger(kind Kind) logr.Logger {
	logger := o.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return logger.WithName("aggregate").WithValues("kind", kind.String())
}

// accumulator is the running state of a reduction.
type accumulator struct {
	count int
	sum   float64
}

func (a *accumulator) add(v float64)    { a.count++; a.sum += v }
func (a *accumulator) remove(v float64) { a.count--; a.sum -= v }
func (a *accumulator) reset()           { a.count, a.sum = 0, 0 }

func (a *accumulator) value(kind Kind) float64 {
	switch kind {
	case KindAverage:
		if a.count == 0 {
			return 0
		}
		return a.sum / float64(a.count)
	case KindCount:
		return float64(a.count)
	default:
		return a.sum
	}
}

// state folds change sets of type C into an accumulator and can rebuild it from the items it holds.
type state[C any] interface {
	apply(cs C, acc *accumulator)
	rescan(acc *accumulator)
}

// aggregate is the operator skeleton shared by keyed and positional streams.
func aggregate[C any](upstream stream.Observable[C], kind Kind, opts Options, newState func() state[C]) stream.Observable[float64] {
	log := opts.logger(kind)

	return stream.ObservableFunc[float64](func(o stream.Observer[float64]) (stream.Subscription, error) {
		var (
			mu       sync.Mutex
			acc      accumulator
			st       = newState()
			finished atomic.Bool // read without mu so that dispose never blocks
			invSub   stream.Subscription
		)

		emit := func() error {
			v := acc.value(kind)
			log.V(5).Info("emitting", "value", v, "count", acc.count)
			return o.Next(v)
		}

		finish := func() {
			mu.Lock()
			defer mu.Unlock()
			if !finished.CompareAndSwap(false, true) {
				return
			}
			st = nil
			if invSub != nil {
				invSub.Dispose()
			}
			o.Done()
		}

		upSub, err := upstream.Subscribe(stream.ObserverFuncs[C]{
			NextFunc: func(cs C) error {
				mu.Lock()
				defer mu.Unlock()
				if finished.Load() {
					return nil
				}
				st.apply(cs, &acc)
				return emit()
			},
			DoneFunc: finish,
		})
		if err != nil {
			return nil, err
		}

		if opts.Invalidate != nil {
			sub, err := opts.Invalidate.Subscribe(stream.ObserverFuncs[struct{}]{
				NextFunc: func(struct{}) error {
					mu.Lock()
					defer mu.Unlock()
					if finished.Load() {
						return nil
					}
					log.V(4).Info("invalidated: rescanning")
					st.rescan(&acc)
					return emit()
				},
			})
			if err != nil {
				upSub.Dispose()
				return nil, err
			}
			mu.Lock()
			invSub = sub
			mu.Unlock()
		}

		// Dispose may run from within o.Next while mu is held, so it must not take mu.
		return stream.NewSubscription(func() {
			finished.Store(true)
			upSub.Dispose()
			if invSub != nil {
				invSub.Dispose()
			}
		}), nil
	})
}

// Sum emits the sum of project over the items of a keyed stream.
func Sum[K comparable, V any](upstream stream.Observable[changeset.ChangeSet[K, V]], project func(V) float64, opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindSum, opts, newCacheState[K](project))
}

// Avg emits the average of project over the items of a keyed stream, or 0 when it is empty.
func Avg[K comparable, V any](upstream stream.Observable[changeset.ChangeSet[K, V]], project func(V) float64, opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindAverage, opts, newCacheState[K](project))
}

// Count emits the number of items of a keyed stream.
func Count[K comparable, V any](upstream stream.Observable[changeset.ChangeSet[K, V]], opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindCount, opts, newCacheState[K](func(V) float64 { return 0 }))
}

// SumList emits the sum of project over the items of a positional stream.
func SumList[T any](upstream stream.Observable[changeset.ListChangeSet[T]], project func(T) float64, opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindSum, opts, newListState(project))
}

// AvgList emits the average of project over the items of a positional stream, or 0 when it is
// empty.
func AvgList[T any](upstream stream.Observable[changeset.ListChangeSet[T]], project func(T) float64, opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindAverage, opts, newListState(project))
}

// CountList emits the number of items of a positional stream.
func CountList[T any](upstream stream.Observable[changeset.ListChangeSet[T]], opts Options) stream.Observable[float64] {
	return aggregate(upstream, KindCount, opts, newListState(func(T) float64 { return 0 }))
}
