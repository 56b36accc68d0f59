package acctsync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "fogwallet"
	metricsSubsystem = "account"
)

var (
	// Account state after the last applied write.
	prometheusKnowableBlockCount prometheus.Gauge
	prometheusFoundBlockCount    prometheus.Gauge
	prometheusTrackedTxOuts      prometheus.Gauge
	prometheusUnscannedRanges    prometheus.Gauge

	// Writes applied by the session, by kind.
	prometheusWrites *prometheus.CounterVec

	// Spend reports that conflicted with an already recorded spend.
	prometheusConflictingSpends prometheus.Counter

	// Time spent applying and persisting a write.
	prometheusWriteDuration prometheus.Histogram
)

var prometheusMetricsInitOnce sync.Once

// initPrometheusMetrics registers the session metrics. Registering the same
// metric twice panics, so this only happens once per process.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusKnowableBlockCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "knowable_block_count",
		Help:      "Number of blocks for which the account state is complete",
	})

	prometheusFoundBlockCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "all_txouts_found_block_count",
		Help:      "Number of blocks through which all outputs were found",
	})

	prometheusTrackedTxOuts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "tracked_txouts",
		Help:      "Number of outputs tracked for the account",
	})

	prometheusUnscannedRanges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "unscanned_missed_ranges",
		Help:      "Number of missed block ranges not yet scanned",
	})

	prometheusWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "writes_total",
		Help:      "Number of writes applied to the account",
	}, []string{"kind"})

	prometheusConflictingSpends = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "conflicting_spends_total",
			Help:      "Number of spend reports conflicting with a recorded spend",
		},
	)

	prometheusWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "write_duration_seconds",
			Help:      "Time taken to apply and persist a write",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
}
