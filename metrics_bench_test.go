package rolecalc

import (
	"testing"
	"time"
)

// calculationOutcomes is the counter mix one busy calculator produces: mostly
// successful calculations, some local denials and the odd offline answer.
var calculationOutcomes = [...]MetricID{
	MetricCalculationSuccess,
	MetricCalculationSuccess,
	MetricCalculationSuccess,
	MetricCalculationSuccess,
	MetricPermissionDeniedLocal,
	MetricCalculationSuccess,
	MetricCalculationOffline,
	MetricNetworkFailure,
}

func BenchmarkMetricsCalculationSuccess(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		b.Run(name, func(b *testing.B) {
			m := NewMetrics(MetricsConfig{Enabled: enabled})
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricCalculationSuccess)
				}
			})
		})
	}
}

// One round trip records its outcome and its latency.
func BenchmarkMetricsCalculationRoundTrip(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	latencies := [...]time.Duration{3 * time.Millisecond, 12 * time.Millisecond, 40 * time.Millisecond, 250 * time.Millisecond}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Inc(calculationOutcomes[i%len(calculationOutcomes)])
			m.Observe(MetricCalculateLatency, latencies[i%len(latencies)])
			i++
		}
	})
}

func BenchmarkMetricsCalculationOutcomeMix(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		var s uint64 = 0x9e3779b97f4a7c15
		for pb.Next() {
			// xorshift64*
			s ^= s >> 12
			s ^= s << 25
			s ^= s >> 27
			m.Inc(calculationOutcomes[(s*2685821657736338717)%uint64(len(calculationOutcomes))])
		}
	})
}

// Snapshot is what the loadtest exporter scrapes while calculators keep
// counting.
func BenchmarkMetricsSnapshotUnderLoad(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				m.Inc(calculationOutcomes[i%len(calculationOutcomes)])
				m.Observe(MetricCalculateLatency, time.Duration(i%50)*time.Millisecond)
			}
		}
	}()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}

	b.StopTimer()
	close(stop)
	<-done
}
