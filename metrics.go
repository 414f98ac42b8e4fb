package rolecalc

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSignInSuccess counts sign-ins that produced a token without a challenge.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts sign-ins rejected by the provider.
	MetricSignInFailure
	// MetricChallengeIssued counts challenges (MFA or phone OTP) handed out by the provider.
	MetricChallengeIssued
	// MetricChallengeSuccess counts challenge answers that produced a token.
	MetricChallengeSuccess
	// MetricChallengeFailure counts rejected challenge answers.
	MetricChallengeFailure
	// MetricRegistrationSuccess counts accepted registrations.
	MetricRegistrationSuccess
	// MetricRegistrationFailure counts rejected registrations.
	MetricRegistrationFailure
	// MetricConfirmationSuccess counts confirmed registrations.
	MetricConfirmationSuccess
	// MetricConfirmationFailure counts rejected confirmation codes.
	MetricConfirmationFailure
	// MetricPhoneOTPRequested counts phone OTP requests.
	MetricPhoneOTPRequested
	// MetricFlowSuperseded counts late responses discarded because a newer flow started.
	MetricFlowSuperseded
	// MetricPermissionDeniedLocal counts operations refused by the local policy.
	MetricPermissionDeniedLocal
	// MetricPermissionDeniedRemote counts operations refused by the service with 403.
	MetricPermissionDeniedRemote
	// MetricCalculationSuccess counts calculations answered by the service.
	MetricCalculationSuccess
	// MetricCalculationFailure counts calculations the service rejected.
	MetricCalculationFailure
	// MetricCalculationOffline counts calculations computed locally in offline mode.
	MetricCalculationOffline
	// MetricNetworkFailure counts transport failures reaching any service.
	MetricNetworkFailure
	// MetricSessionRestored counts principals restored from the session store.
	MetricSessionRestored
	// MetricSessionCleared counts sessions cleared because the service rejected the token.
	MetricSessionCleared
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricRoleCatalogRefresh counts successful role catalog loads.
	MetricRoleCatalogRefresh
	// MetricRoleCatalogRefreshFailure counts failed role catalog loads.
	MetricRoleCatalogRefreshFailure
	// MetricAdminAction counts admin surface calls accepted by the service.
	MetricAdminAction
	// MetricAdminActionFailure counts admin surface calls that failed.
	MetricAdminActionFailure
	// MetricCalculateLatency is the round-trip latency histogram of Calculate.
	MetricCalculateLatency
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

// Metrics holds lock-free engine counters. A nil or disabled Metrics ignores
// every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram. Only MetricCalculateLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricCalculateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled Metrics returns empty maps.
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

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCalculateLatency].buckets[i])
		}
		s.Histograms[MetricCalculateLatency] = buckets
	}

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
