// Package metrics defines the Prometheus collectors updated by sources. Collectors are always
// updated; exposing them is opt-in through Register.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dynadata"

var (
	// ChangesRecorded counts recorded changes per source and reason.
	ChangesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "changes_recorded_total",
		Help:      "Number of changes recorded by a source, by reason.",
	}, []string{"source", "reason"})

	// ChangeSetsDispatched counts change sets published to the subscribers of a source.
	ChangeSetsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "changesets_dispatched_total",
		Help:      "Number of change sets dispatched by a source.",
	}, []string{"source"})

	// Subscribers tracks the number of active subscribers of a source.
	Subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Number of active subscribers of a source.",
	}, []string{"source"})
)

// Register adds the collectors to reg. Registering twice on the same registerer is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{ChangesRecorded, ChangeSetsDispatched, Subscribers} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Forget drops the series of a source, typically when it is disposed.
func Forget(source string) {
	ChangesRecorded.DeletePartialMatch(prometheus.Labels{"source": source})
	ChangeSetsDispatched.DeleteLabelValues(source)
	Subscribers.DeleteLabelValues(source)
}
