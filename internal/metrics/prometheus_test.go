package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSessionStarted()
	m.RecordSegmentSealed(150, 4_800_044)
	m.RecordSegmentResolved("succeeded")
	m.RecordTranscriptionFailure("retryable", 1.5)
	m.RecordKeepAwakeAcquired("inhibit")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range []string{
		"meetscribe_active_sessions",
		"meetscribe_segments_sealed_total",
		"meetscribe_segment_outcomes_total",
		"meetscribe_transcription_failures_total",
		"meetscribe_keep_awake_acquired_total",
	} {
		if !names[name] {
			t.Errorf("Expected metric %s to be registered", name)
		}
	}
}

func TestNewMetricsSeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors, so tests never collide.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSegmentResolved("dropped")
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.SetFeedClients(2)
}

func TestInFlightGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSegmentSealed(150, 1024)
	m.RecordSegmentSealed(150, 1024)
	m.RecordSegmentResolved("succeeded")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "inflight_segments") {
			if got := f.GetMetric()[0].GetGauge().GetValue(); got != 1 {
				t.Errorf("Expected 1 in-flight segment, got %f", got)
			}
			return
		}
	}
	t.Error("Expected in-flight gauge to be gathered")
}
