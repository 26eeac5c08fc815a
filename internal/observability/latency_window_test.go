package observability

import (
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageDeliveryLag, 500)
	w.Observe(StageDeliveryLag, 700)
	w.Observe(StageDeliveryLag, 900)
	w.Observe("", 10)
	w.Observe(StageStreamPoll, -1)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageDeliveryLag {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageDeliveryLag)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 800 {
		t.Fatalf("TargetP95MS = %.2f, want 800", s.TargetP95MS)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(2)
	w.Observe(StageIngestAppend, 1)
	w.Observe(StageIngestAppend, 2)
	w.Observe(StageIngestAppend, 30)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 16 {
		t.Fatalf("AvgMS = %.2f, want 16", s.AvgMS)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncActiveSessions()
	m.SetActiveSessions(3)
	m.ObserveSessionEvent("start")
	m.ObserveIngest("events", "ok")
	m.StreamOpened("sse")
	m.StreamClosed("sse")
	m.ObserveStreamEvent("ping")
	m.ObserveStoreError("append")
	m.ObserveProviderError("openai", "502")
	m.ObserveLatency(StageStreamPoll, time.Millisecond)
	if snap := m.LatencySnapshot(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v, want empty", snap)
	}
}

func TestMetricsObserveLatencyFeedsWindow(t *testing.T) {
	m := NewMetrics("lingocast_test_latency_window")
	m.ObserveLatency(StageIngestAppend, 12*time.Millisecond)

	snap := m.LatencySnapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 12 {
		t.Fatalf("snapshot = %+v, want one ingest_append sample of 12ms", snap)
	}
}
