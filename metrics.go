package sessionguard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one guard counter or histogram.
type MetricID uint16

const (
	// MetricBootstrapStarted counts Start calls that ran a bootstrap.
	MetricBootstrapStarted MetricID = iota
	// MetricBootstrapConfirmed counts bootstraps whose session the backend confirmed.
	MetricBootstrapConfirmed
	// MetricBootstrapUnverified counts bootstraps that kept a session after an unclassified validation error.
	MetricBootstrapUnverified
	// MetricBootstrapStale counts bootstraps that cleared a stale session.
	MetricBootstrapStale
	// MetricBootstrapUserMissing counts bootstraps that cleared a session with no user.
	MetricBootstrapUserMissing
	// MetricBootstrapNoSession counts bootstraps that found nothing persisted.
	MetricBootstrapNoSession
	// MetricBootstrapFetchFailed counts bootstraps ended by a non-retryable fetch error.
	MetricBootstrapFetchFailed
	// MetricBootstrapFetchExhausted counts bootstraps that ran out of fetch attempts.
	MetricBootstrapFetchExhausted
	// MetricBootstrapCanceled counts bootstraps canceled during backoff.
	MetricBootstrapCanceled
	// MetricBootstrapUnconfigured counts bootstraps skipped for lack of a backend.
	MetricBootstrapUnconfigured
	// MetricFetchRetry counts backoff waits between fetch attempts.
	MetricFetchRetry
	// MetricLocalSignOutFailure counts local sign-outs that failed and were ignored.
	MetricLocalSignOutFailure
	// MetricSessionChange counts session change events applied to the state.
	MetricSessionChange
	// MetricStateWriteSkipped counts writes dropped because the guard was closed.
	MetricStateWriteSkipped
	// MetricBootstrapLatency is the bootstrap duration histogram.
	MetricBootstrapLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and one latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
// Histogram buckets are per-bucket counts, not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricBootstrapLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricBootstrapLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every metric. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricBootstrapLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricBootstrapLatency].buckets[i])
		}
		s.Histograms[MetricBootstrapLatency] = buckets
	}
	return s
}

// bucketIndex maps d onto the upper bounds 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
