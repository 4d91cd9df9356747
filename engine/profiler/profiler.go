package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-batch/engine/batch"
)

// Profiler tracks frame rate, memory and batcher statistics and logs them at a fixed interval.
type Profiler struct {
	logger         *slog.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// peaks since the last report
	maxDraws        int
	maxUploadBytes  int
	fullRewrites    int
	resizes         int
	fallbackObjects int
}

// ProfilerOption is a functional option used to configure a Profiler during construction.
type ProfilerOption func(*Profiler)

// WithInterval sets how often the profiler reports.
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = d
	}
}

// WithLogger sets the logger reports go to. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// NewProfiler creates a new Profiler reporting once per second.
//
// Parameters:
//   - options: optional ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		logger:         slog.Default(),
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Tick should be called once per frame with the frame's batcher statistics.
// When the update interval has elapsed it logs FPS, heap usage, allocation rate, GC pauses and
// the batcher's draw and upload figures.
//
// Parameters:
//   - stats: the statistics of the frame that just ended
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats batch.FrameStats) bool {
	p.frameCount++
	p.maxDraws = max(p.maxDraws, stats.Draws)
	p.maxUploadBytes = max(p.maxUploadBytes, stats.VertexBytes+stats.TableBytes)
	p.fullRewrites += stats.FullRewrites
	p.resizes += stats.Resized
	p.fallbackObjects = max(p.fallbackObjects, stats.Fallback)

	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}
	seconds := max(elapsed.Seconds(), 1e-9)

	runtime.ReadMemStats(&p.memStats)
	allocRate := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / seconds

	gcCount := p.memStats.NumGC
	var lastPause, maxPause time.Duration
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		lastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPause = max(maxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.logger.Info("profiler",
		"fps", float64(p.frameCount)/seconds,
		"heapMB", float64(p.memStats.Alloc)/1024/1024,
		"allocMBps", allocRate,
		"gc", gcCount,
		"gcLast", lastPause,
		"gcMax", maxPause,
		"maxDraws", p.maxDraws,
		"maxUploadBytes", p.maxUploadBytes,
		"fullRewrites", p.fullRewrites,
		"resizes", p.resizes,
		"maxFallback", p.fallbackObjects,
		"batch", stats,
	)

	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.maxDraws, p.maxUploadBytes, p.fullRewrites, p.resizes, p.fallbackObjects = 0, 0, 0, 0, 0
	return true
}
