// Package metrics exposes prometheus instrumentation for the list controller.
//
// All Recorder methods are safe to call on a nil receiver so components can
// run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threadsauto"

// Recorder holds the controller metrics registered on one registry.
type Recorder struct {
	fetches         *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	coalesced       *prometheus.CounterVec
	retries         *prometheus.CounterVec
	pushEvents      *prometheus.CounterVec
	pushDropped     *prometheus.CounterVec
	locationChanges *prometheus.CounterVec
	polls           prometheus.Counter
}

// New creates a Recorder and registers it on reg. A nil registerer leaves
// the collectors unregistered, which is what tests use.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "fetches_total",
			Help:      "Fetches issued to the data source by trigger priority and outcome.",
		}, []string{"priority", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent in one refresh session including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"priority"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "coalesced_requests_total",
			Help:      "Refresh requests that did not start a fetch of their own, by how they were resolved.",
		}, []string{"mode"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "retries_total",
			Help:      "Delayed retries by error kind.",
		}, []string{"kind"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Push events received by event name.",
		}, []string{"event"}),
		pushDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "invalidations_dropped_total",
			Help:      "Debounced push invalidations dropped by a guard.",
		}, []string{"reason"}),
		locationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "changes_total",
			Help:      "Location changes observed by origin.",
		}, []string{"origin"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Poll ticks that requested a refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			r.fetches,
			r.fetchDuration,
			r.coalesced,
			r.retries,
			r.pushEvents,
			r.pushDropped,
			r.locationChanges,
			r.polls,
		)
	}
	return r
}

// Handler serves the metrics of gatherer in the prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch records one finished refresh session.
func (r *Recorder) ObserveFetch(priority, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(priority, outcome).Inc()
	r.fetchDuration.WithLabelValues(priority).Observe(d.Seconds())
}

// Coalesced records a request folded into another session. mode is one of
// "join", "follow_up", "supersede" or "satisfied".
func (r *Recorder) Coalesced(mode string) {
	if r == nil {
		return
	}
	r.coalesced.WithLabelValues(mode).Inc()
}

// Retry records a delayed retry.
func (r *Recorder) Retry(kind string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(kind).Inc()
}

// PushEvent records a received push event.
func (r *Recorder) PushEvent(event string) {
	if r == nil {
		return
	}
	r.pushEvents.WithLabelValues(event).Inc()
}

// PushDropped records a push invalidation dropped by a guard.
func (r *Recorder) PushDropped(reason string) {
	if r == nil {
		return
	}
	r.pushDropped.WithLabelValues(reason).Inc()
}

// LocationChange records an observed location change.
func (r *Recorder) LocationChange(origin string) {
	if r == nil {
		return
	}
	r.locationChanges.WithLabelValues(origin).Inc()
}

// PollTick records a poll tick.
func (r *Recorder) PollTick() {
	if r == nil {
		return
	}
	r.polls.Inc()
}
