// Package gate holds back the initial part of a change stream.
//
// Sources deliver a snapshot batch on subscription, even when they are empty. DeferUntilLoaded
// waits until there is something to show, SkipInitial drops the snapshot and keeps the live
// changes only. The gate state is kept per subscription.
package gate

import (
	"sync/atomic"

	"github.com/l7mp/dynadata/pkg/stream"
)

// DeferUntilLoaded suppresses empty batches until the first non-empty batch arrives. From then on
// every batch is forwarded.
func DeferUntilLoaded[S ~[]E, E any](upstream stream.Observable[S]) stream.Observable[S] {
	return stream.ObservableFunc[S](func(o stream.Observer[S]) (stream.Subscription, error) {
		var loaded atomic.Bool
		return upstream.Subscribe(stream.ObserverFuncs[S]{
			NextFunc: func(cs S) error {
				if !loaded.Load() {
					if len(cs) == 0 {
						return nil
					}
					loaded.Store(true)
				}
				return o.Next(cs)
			},
			DoneFunc: o.Done,
		})
	})
}

// SkipInitial drops the first batch, which is the snapshot delivered on subscription, and
// forwards every later batch.
func SkipInitial[S ~[]E, E any](upstream stream.Observable[S]) stream.Observable[S] {
	return stream.ObservableFunc[S](func(o stream.Observer[S]) (stream.Subscription, error) {
		var skipped atomic.Bool
		return upstream.Subscribe(stream.ObserverFuncs[S]{
			NextFunc: func(cs S) error {
				if skipped.CompareAndSwap(false, true) {
					return nil
				}
				return o.Next(cs)
			},
			DoneFunc: o.Done,
		})
	})
}
