package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a snapshot of the daemon process
type RuntimeStats struct {
	Goroutines  int64         `json:"goroutines"`
	HeapBytes   int64         `json:"heap_bytes"`
	SystemBytes int64         `json:"system_bytes"`
	GCCount     uint32        `json:"gc_count"`
	LastGCPause time.Duration `json:"last_gc_pause_ns"`
	CPUCount    int           `json:"cpu_count"`
	Uptime      time.Duration `json:"uptime_ns"`
	CollectedAt time.Time     `json:"collected_at"`
}

// RuntimeMetrics samples Go runtime gauges for the licensing daemon
type RuntimeMetrics struct {
	goroutines  metric.Int64Gauge
	heapBytes   metric.Int64Gauge
	systemBytes metric.Int64Gauge
	gcPause     metric.Float64Histogram
	uptime      metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
	lastGC    uint32
}

// NewRuntimeMetrics creates the runtime instruments on meter
func NewRuntimeMetrics(meter metric.Meter, interval time.Duration) (*RuntimeMetrics, error) {
	rm := &RuntimeMetrics{startTime: time.Now(), interval: interval}

	var err error
	if rm.goroutines, err = meter.Int64Gauge("process_goroutines",
		metric.WithDescription("Number of active goroutines")); err != nil {
		return nil, fmt.Errorf("failed to create goroutine gauge: %w", err)
	}
	if rm.heapBytes, err = meter.Int64Gauge("process_heap_bytes",
		metric.WithDescription("Heap bytes in use"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("failed to create heap gauge: %w", err)
	}
	if rm.systemBytes, err = meter.Int64Gauge("process_system_bytes",
		metric.WithDescription("Memory obtained from the OS"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("failed to create system memory gauge: %w", err)
	}
	if rm.gcPause, err = meter.Float64Histogram("process_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create gc pause histogram: %w", err)
	}
	if rm.uptime, err = meter.Float64Gauge("process_uptime_seconds",
		metric.WithDescription("Daemon uptime"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create uptime gauge: %w", err)
	}

	return rm, nil
}

// Collect samples the runtime and records the gauges
func (rm *RuntimeMetrics) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines:  int64(runtime.NumGoroutine()),
		HeapBytes:   int64(mem.HeapAlloc),
		SystemBytes: int64(mem.Sys),
		GCCount:     mem.NumGC,
		LastGCPause: time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		CPUCount:    runtime.NumCPU(),
		Uptime:      time.Since(rm.startTime),
		CollectedAt: time.Now(),
	}

	rm.goroutines.Record(ctx, stats.Goroutines)
	rm.heapBytes.Record(ctx, stats.HeapBytes)
	rm.systemBytes.Record(ctx, stats.SystemBytes)
	rm.uptime.Record(ctx, stats.Uptime.Seconds())
	if stats.GCCount != rm.lastGC && stats.LastGCPause > 0 {
		rm.gcPause.Record(ctx, stats.LastGCPause.Seconds())
		rm.lastGC = stats.GCCount
	}

	return stats
}

// Run collects every interval until ctx is done
func (rm *RuntimeMetrics) Run(ctx context.Context) error {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	rm.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			rm.Collect(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
