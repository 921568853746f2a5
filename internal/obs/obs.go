// Package obs is the observability facade shared by the producer engine: a
// zap logger plus a small set of Prometheus collectors, both optional and
// both safe to use as no-ops when the caller doesn't wire them in.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics holds the producer's Prometheus collectors. Registration is the
// caller's responsibility via Register; an unregistered Metrics value is
// still safe to observe against, it just never gets scraped.
type Metrics struct {
	BatchesTotal    *prometheus.CounterVec
	BatchBytes      prometheus.Histogram
	InFlight        prometheus.Gauge
	GapWaitsTotal   prometheus.Counter
	AutoClaimsTotal prometheus.Counter
}

// NewMetrics builds a fresh, unregistered set of collectors scoped by
// producerID so multiple producer instances in one process don't collide.
func NewMetrics(producerID string) *Metrics {
	labels := prometheus.Labels{"producer_id": producerID}
	return &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "producer_batches_total",
			Help:        "Batches sent by the idempotent producer, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		BatchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "producer_batch_bytes",
			Help:        "Size in bytes of sealed batches (sum of message lengths before encoding) of the idempotent producer.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(64, 4, 10),
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "producer_inflight",
			Help:        "Batches currently between submission and completion.",
			ConstLabels: labels,
		}),
		GapWaitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "producer_gap_waits_total",
			Help:        "Times the engine waited on a sequence gap before resubmitting.",
			ConstLabels: labels,
		}),
		AutoClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "producer_autoclaims_total",
			Help:        "Times the engine auto-claimed a new epoch after a stale-epoch fencing response.",
			ConstLabels: labels,
		}),
	}
}

// Register registers every collector against reg. Safe to call with a nil
// reg (a no-op in that case).
func (m *Metrics) Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.BatchesTotal, m.BatchBytes, m.InFlight, m.GapWaitsTotal, m.AutoClaimsTotal)
}

// NopLogger returns a logger that discards everything, the default when the
// caller doesn't supply one.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
