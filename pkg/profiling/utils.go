package profiling

import (
	"log"
	"runtime"
	"time"
)

// WebhookProfiler profiles webhook operations
type WebhookProfiler struct {
	startTime time.Time
	requestID string
}

// NewWebhookProfiler creates a new webhook profiler
func NewWebhookProfiler(requestID string) *WebhookProfiler {
	return &WebhookProfiler{
		startTime: time.Now(),
		requestID: requestID,
	}
}

// Finish completes webhook profiling
func (whp *WebhookProfiler) Finish(success bool) time.Duration {
	duration := time.Since(whp.startTime)
	status := "✅"
	if !success {
		status = "❌"
	}

	log.Printf("🌐 Webhook[%s] %s: %.3fms", whp.requestID, status, float64(duration.Nanoseconds())/1000000.0)
	return duration
}

// MemoryProfiler logs memory usage at a fixed interval
type MemoryProfiler struct {
	interval time.Duration
	stopChan chan struct{}
}

// NewMemoryProfiler creates a new memory profiler
func NewMemoryProfiler(interval time.Duration) *MemoryProfiler {
	return &MemoryProfiler{
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins memory profiling
func (mp *MemoryProfiler) Start() {
	go func() {
		ticker := time.NewTicker(mp.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mp.logMemoryStats()
			case <-mp.stopChan:
				return
			}
		}
	}()
}

// Stop ends memory profiling
func (mp *MemoryProfiler) Stop() {
	close(mp.stopChan)
}

func (mp *MemoryProfiler) logMemoryStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	log.Printf("📊 Memory: Alloc=%.2fMB, TotalAlloc=%.2fMB, Sys=%.2fMB, GC=%d, Goroutines=%d",
		bToMb(m.Alloc), bToMb(m.TotalAlloc), bToMb(m.Sys), m.NumGC, runtime.NumGoroutine())
}

// GCStats provides garbage collection statistics
type GCStats struct {
	NumGC        uint32    `json:"gc_runs"`
	PauseTotal   float64   `json:"pause_total_ms"`
	PauseRecent  float64   `json:"pause_recent_us"`
	LastGC       time.Time `json:"last_gc"`
	GCCPUPercent float64   `json:"cpu_percent"`
}

// GetGCStats returns current garbage collection statistics
func GetGCStats() GCStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var recentPause time.Duration
	if m.NumGC > 0 {
		recentPause = time.Duration(m.PauseNs[(m.NumGC+255)%256])
	}

	return GCStats{
		NumGC:        m.NumGC,
		PauseTotal:   float64(m.PauseTotalNs) / 1000000.0,
		PauseRecent:  float64(recentPause.Nanoseconds()) / 1000.0,
		LastGC:       time.Unix(0, int64(m.LastGC)),
		GCCPUPercent: m.GCCPUFraction * 100,
	}
}

// LogGCStats logs garbage collection statistics
func LogGCStats() {
	stats := GetGCStats()
	log.Printf("🗑️  GC: Runs=%d, TotalPause=%.2fms, RecentPause=%.2fμs, CPU=%.2f%%, LastGC=%s",
		stats.NumGC, stats.PauseTotal, stats.PauseRecent, stats.GCCPUPercent,
		stats.LastGC.Format("15:04:05"))
}

// ForceGC triggers garbage collection and returns the statistics after it
func ForceGC() GCStats {
	before := GetGCStats()
	runtime.GC()
	after := GetGCStats()

	log.Printf("🗑️  Forced GC: %d→%d runs, pause: %.2fμs", before.NumGC, after.NumGC, after.PauseRecent)
	return after
}
