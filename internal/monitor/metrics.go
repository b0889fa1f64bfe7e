package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/theirongolddev/voxdeck/internal/model"
)

type metrics struct {
	ttfb       *prometheus.GaugeVec
	ttfbHist   *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
	batches    *prometheus.CounterVec
	messages   prometheus.Counter
	connected  prometheus.Gauge
	connects   prometheus.Counter
	sseClients prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		ttfb: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxdeck_ttfb_ms",
			Help: "Latest time to first byte per pipeline stage (ms)",
		}, []string{"stage"}),

		ttfbHist: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxdeck_ttfb_observed_ms",
			Help:    "Time to first byte per pipeline stage, one sample per batch (ms)",
			Buckets: prometheus.ExponentialBuckets(25, 1.6, 12),
		}, []string{"stage"}),

		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_tokens_estimated_total",
			Help: "Tokens estimated from character counts, by kind (prompt, completion, total)",
		}, []string{"kind"}),

		batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_metric_batches_total",
			Help: "Metric batches applied, by type (ttfb, characters)",
		}, []string{"type"}),

		messages: f.NewCounter(prometheus.CounterOpts{
			Name: "voxdeck_messages_total",
			Help: "Conversation turns observed",
		}),

		connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxdeck_connected",
			Help: "1 while a backend connection is up",
		}),

		connects: f.NewCounter(prometheus.CounterOpts{
			Name: "voxdeck_connects_total",
			Help: "Connection attempts",
		}),

		sseClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxdeck_stream_clients",
			Help: "Open /v1/stream subscribers",
		}),
	}
}

// record applies the change between two snapshots.
func (m *metrics) record(curr Snapshot, d Delta) {
	for _, st := range model.Stages {
		m.ttfb.WithLabelValues(string(st)).Set(curr.TTFB.Get(st))
	}
	if d.TTFBBatches > 0 {
		m.batches.WithLabelValues("ttfb").Add(float64(d.TTFBBatches))
		for _, st := range model.Stages {
			if v := curr.TTFB.Get(st); v > 0 {
				m.ttfbHist.WithLabelValues(string(st)).Observe(v)
			}
		}
	}
	if d.CharacterBatches > 0 {
		m.batches.WithLabelValues("characters").Add(float64(d.CharacterBatches))
	}
	if d.PromptTokens > 0 {
		m.tokens.WithLabelValues("prompt").Add(float64(d.PromptTokens))
	}
	if d.CompletionTokens > 0 {
		m.tokens.WithLabelValues("completion").Add(float64(d.CompletionTokens))
	}
	if d.Tokens > 0 {
		m.tokens.WithLabelValues("total").Add(float64(d.Tokens))
	}
	if d.Messages > 0 {
		m.messages.Add(float64(d.Messages))
	}
}
