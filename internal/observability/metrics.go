package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the review engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Classifications  *prometheus.CounterVec
	Retrievals       *prometheus.CounterVec
	RetrievalLatency prometheus.Histogram
	CacheLookups     *prometheus.CounterVec
	Cards            *prometheus.CounterVec
	ChatRequests     prometheus.Counter
	ChatLatency      prometheus.Histogram
	ChatErrors       *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_engine_classifications_total",
			Help: "Queries classified, by query type",
		}, []string{"type"}),

		// outcome: hit, relaxed, floor_fallback, empty, failure
		Retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_engine_retrievals_total",
			Help: "Retrieval runs by outcome",
		}, []string{"outcome"}),

		RetrievalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_engine_retrieval_duration_seconds",
			Help:    "Retrieval latency including embedding and index search",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_engine_conversation_cache_lookups_total",
			Help: "Conversation cache lookups by result",
		}, []string{"result"}),

		Cards: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_engine_cards_total",
			Help: "Entity cards by validation result",
		}, []string{"result"}),

		ChatRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "review_engine_chat_requests_total",
			Help: "Chat turns processed",
		}),

		ChatLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_engine_chat_duration_seconds",
			Help:    "Chat model latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		ChatErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_engine_chat_errors_total",
			Help: "Chat failures by stage",
		}, []string{"stage"}),
	}
}

// RecordClassification counts one classified query.
func (m *Metrics) RecordClassification(queryType string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(queryType).Inc()
}

// RecordRetrieval counts one retrieval and observes its latency.
func (m *Metrics) RecordRetrieval(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(outcome).Inc()
	m.RetrievalLatency.Observe(elapsed.Seconds())
}

// RecordCacheLookup counts a conversation cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordCards counts emitted and dropped cards.
func (m *Metrics) RecordCards(valid, invalid int) {
	if m == nil {
		return
	}
	m.Cards.WithLabelValues("valid").Add(float64(valid))
	m.Cards.WithLabelValues("invalid").Add(float64(invalid))
}

// RecordChat records a completed chat call.
func (m *Metrics) RecordChat(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.Inc()
	m.ChatLatency.Observe(elapsed.Seconds())
}

// RecordChatError records a failed chat call.
func (m *Metrics) RecordChatError(stage string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(stage).Inc()
}
