package resource

import (
	"testing"
	"time"
)

func TestSample(t *testing.T) {
	s := Sample()
	if s.SampledAt.IsZero() {
		t.Error("sample has no timestamp")
	}
	if s.NumGoroutines < 1 {
		t.Errorf("expected at least one goroutine, got %d", s.NumGoroutines)
	}
	t.Logf("memory %d/%d MB (%.1f%%), heap %d MB", s.MemoryUsedMB, s.MemoryTotalMB, s.MemoryUsagePercent, s.HeapAllocMB)
}

func TestMonitorRefreshes(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	first := m.GetStats().SampledAt

	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.GetStats().SampledAt.After(first) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("monitor did not refresh its sample")
}

func TestMonitorStopTwice(t *testing.T) {
	m := NewMonitor(time.Hour)
	m.Start()
	m.Stop()
	m.Stop()
}
