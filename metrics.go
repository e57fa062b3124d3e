package goAccess

import (
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	// MetricLoginStart counts StartLogin calls that issued a challenge.
	MetricLoginStart MetricID = iota
	// MetricLoginTrusted counts trusted-device short-circuits.
	MetricLoginTrusted
	// MetricLoginRateLimited counts rate-limited login starts.
	MetricLoginRateLimited
	// MetricVerifySuccess counts successful code verifications.
	MetricVerifySuccess
	// MetricVerifyFailure counts failed code verifications.
	MetricVerifyFailure
	// MetricVerifyExhausted counts challenges closed by the attempt cap.
	MetricVerifyExhausted
	// MetricCodeSent counts login codes handed to the sender.
	MetricCodeSent
	// MetricCodeSendFailed counts failed out-of-band deliveries.
	MetricCodeSendFailed
	// MetricSessionIssued counts session tokens minted.
	MetricSessionIssued
	// MetricSessionRejected counts token verifications that failed.
	MetricSessionRejected
	// MetricDeviceIssued counts trusted devices issued.
	MetricDeviceIssued
	// MetricDeviceRevoked counts trusted devices revoked.
	MetricDeviceRevoked
	// MetricAccessRequested counts new access requests.
	MetricAccessRequested
	// MetricBulkItemApplied counts successful bulk-action items.
	MetricBulkItemApplied
	// MetricBulkItemRejected counts failed bulk-action items.
	MetricBulkItemRejected
	// MetricAnomalyEmitted counts monitoring anomalies emitted.
	MetricAnomalyEmitted
	// MetricTokenVerifyLatency is the histogram slot for ValidateToken.
	MetricTokenVerifyLatency
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

// Metrics is the in-process counter table. Increment is lock-free and
// allocation-free; counters are approximate and reset on restart.
type Metrics struct {
	enabled    bool
	counters   [metricIDCount]paddedCounter
	histograms [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a counter table per the config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a token-verification latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || id != MetricTokenVerifyLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	buckets := make([]uint64, histBucketCount)
	for i := 0; i < histBucketCount; i++ {
		buckets[i] = atomic.LoadUint64(&m.histograms[MetricTokenVerifyLatency].buckets[i])
	}
	s.Histograms[MetricTokenVerifyLatency] = buckets

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
