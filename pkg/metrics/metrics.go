// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package metrics holds the Prometheus collectors of the engagement engine.
// Every method is nil-safe so components can run without a Recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "offer_engagement"

// Recorder groups the application collectors.
type Recorder struct {
	decisions      *prometheus.CounterVec
	fires          *prometheus.CounterVec
	sessions       prometheus.Counter
	suppressions   *prometheus.CounterVec
	bufferedEvents prometheus.Gauge
	syncs          *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	pending        prometheus.Gauge
	storeFailures  *prometheus.CounterVec
}

func New() *Recorder {
	return &Recorder{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eligibility_decisions_total",
				Help:      "Eligibility decisions by channel, trigger and outcome",
			},
			[]string{"channel", "trigger", "outcome"},
		),
		fires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_fires_total",
				Help:      "Offers fired per channel after passing the frequency cap",
			},
			[]string{"channel"},
		),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Background to active transitions",
		}),
		suppressions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "post_session_suppressions_total",
				Help:      "Post-session evaluations skipped by a one-shot suppression",
			},
			[]string{"cause"},
		),
		bufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_buffered_events",
			Help:      "Stat events waiting for upload",
		}),
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_sync_total",
				Help:      "Stats sync attempts by result",
			},
			[]string{"result"},
		),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_sync_duration_seconds",
			Help:      "Round-trip time of stats uploads",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_offer_requests",
			Help:      "Offer requests waiting for a terminal outcome",
		}),
		storeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_failures_total",
				Help:      "Persistent store failures by component",
			},
			[]string{"component"},
		),
	}
}

// Collectors returns everything that must be registered with a prometheus.Registerer.
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.decisions,
		r.fires,
		r.sessions,
		r.suppressions,
		r.bufferedEvents,
		r.syncs,
		r.syncDuration,
		r.pending,
		r.storeFailures,
	}
}

func (r *Recorder) Decision(channel, trigger string, allowed bool, reason string) {
	if r == nil {
		return
	}
	outcome := "allow"
	if !allowed {
		outcome = reason
	}
	r.decisions.WithLabelValues(channel, trigger, outcome).Inc()
}

func (r *Recorder) Fire(channel string) {
	if r == nil {
		return
	}
	r.fires.WithLabelValues(channel).Inc()
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.sessions.Inc()
}

func (r *Recorder) Suppressed(cause string) {
	if r == nil {
		return
	}
	r.suppressions.WithLabelValues(cause).Inc()
}

func (r *Recorder) BufferedEvents(n int) {
	if r == nil {
		return
	}
	r.bufferedEvents.Set(float64(n))
}

func (r *Recorder) Sync(result string, seconds float64) {
	if r == nil {
		return
	}
	r.syncs.WithLabelValues(result).Inc()
	r.syncDuration.Observe(seconds)
}

func (r *Recorder) PendingRequests(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

func (r *Recorder) StoreFailure(component string) {
	if r == nil {
		return
	}
	r.storeFailures.WithLabelValues(component).Inc()
}
