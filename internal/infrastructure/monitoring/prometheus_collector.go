package monitoring

import (
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	eventsEmitted       *prometheus.CounterVec
	candidatesBuffered  prometheus.Counter
	candidatesFlushed   prometheus.Counter
	negotiationDuration prometheus.Histogram
	statsEntriesSent    prometheus.Counter
	stateChanges        *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		eventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlink_events_emitted_total",
			Help: "Total number of peer events emitted, by kind",
		}, []string{"kind"}),

		candidatesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peerlink_ice_candidates_buffered_total",
			Help: "Total number of remote ICE candidates buffered before the remote description",
		}),

		candidatesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peerlink_ice_candidates_flushed_total",
			Help: "Total number of buffered ICE candidates flushed into the native connection",
		}),

		negotiationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peerlink_negotiation_duration_seconds",
			Help:    "Duration of SDP negotiation steps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		statsEntriesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peerlink_stats_entries_sent_total",
			Help: "Total number of deduplicated stats entries sent upstream",
		}),

		stateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlink_connection_state_changes_total",
			Help: "Total number of peer connection state transitions, by target state",
		}, []string{"state"}),
	}
}

func (p *PrometheusCollector) EventEmitted(kind string) {
	p.eventsEmitted.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) CandidateBuffered() {
	p.candidatesBuffered.Inc()
}

func (p *PrometheusCollector) CandidatesFlushed(n int) {
	p.candidatesFlushed.Add(float64(n))
}

func (p *PrometheusCollector) NegotiationDuration(d time.Duration) {
	p.negotiationDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) StatsEntriesSent(n int) {
	p.statsEntriesSent.Add(float64(n))
}

func (p *PrometheusCollector) ConnectionState(state domain.PeerConnectionState) {
	p.stateChanges.WithLabelValues(string(state)).Inc()
}

var _ ports.SessionMetrics = (*PrometheusCollector)(nil)
