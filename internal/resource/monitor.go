// Package resource samples process and system memory/CPU usage for
// training progress reports and the service health endpoint.
package resource

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is one resource sample.
type Stats struct {
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsedMB       uint64    `json:"memory_used_mb"`
	MemoryTotalMB      uint64    `json:"memory_total_mb"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	HeapAllocMB        uint64    `json:"heap_alloc_mb"`
	NumGC              uint32    `json:"num_gc"`
	NumGoroutines      int       `json:"num_goroutines"`
	SampledAt          time.Time `json:"sampled_at"`
}

// Sample takes a synchronous reading. System figures fall back to the Go
// runtime's view when the platform query fails.
func Sample() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Stats{
		HeapAllocMB:   ms.HeapAlloc / 1024 / 1024,
		NumGC:         ms.NumGC,
		NumGoroutines: runtime.NumGoroutine(),
		SampledAt:     time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsedMB = vm.Used / 1024 / 1024
		s.MemoryTotalMB = vm.Total / 1024 / 1024
		s.MemoryUsagePercent = vm.UsedPercent
	} else {
		s.MemoryUsedMB = ms.Alloc / 1024 / 1024
		s.MemoryTotalMB = ms.Sys / 1024 / 1024
		if ms.Sys > 0 {
			s.MemoryUsagePercent = float64(ms.Alloc) / float64(ms.Sys) * 100
		}
	}

	// Interval 0 compares against the previous call, so it never blocks.
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUUsagePercent = pct[0]
	}
	return s
}

// Monitor keeps a periodically refreshed sample for readers that should
// not pay for a system query on every call.
type Monitor struct {
	mu             sync.RWMutex
	stats          Stats
	updateInterval time.Duration
	stopChan       chan struct{}
	stopOnce       sync.Once
}

// NewMonitor creates a monitor that refreshes every updateInterval.
func NewMonitor(updateInterval time.Duration) *Monitor {
	return &Monitor{
		updateInterval: updateInterval,
		stopChan:       make(chan struct{}),
		stats:          Sample(),
	}
}

// Start begins background sampling.
func (m *Monitor) Start() {
	go m.monitorLoop()
}

// Stop ends background sampling. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// GetStats returns the latest sample.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := Sample()
			m.mu.Lock()
			m.stats = s
			m.mu.Unlock()
		case <-m.stopChan:
			return
		}
	}
}
