package profiler

import (
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
)

// PassStats is the accumulated CPU time of one render pass over a report interval.
type PassStats struct {
	Name    string
	Runs    int
	Total   time.Duration
	Average time.Duration
}

// Report is one interval of frame statistics.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64
	Passes      []PassStats
}

// Profiler tracks frame rate, memory statistics and per-pass timings.
// Outputs a Report to the logger at a configurable interval.
type Profiler struct {
	mu             sync.Mutex
	log            logger.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	passOrder []string
	passes    map[string]*PassStats
	last      Report
	now       func() time.Time
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		passes:         make(map[string]*PassStats),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.log = logger.OrNop(p.log)
	p.lastTime = p.now()
	return p
}

// RecordPass adds the duration of one pass execution to the current interval.
//
// Parameters:
//   - name: the pass name
//   - d: the time the pass took
func (p *Profiler) RecordPass(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.passes[name]
	if !ok {
		s = &PassStats{Name: name}
		p.passes[name] = s
		p.passOrder = append(p.passOrder, name)
	}
	s.Runs++
	s.Total += d
}

// Tick should be called once per frame to track frame timing.
// Logs a Report when the update interval has elapsed, then starts a new interval.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	r := Report{FPS: float64(p.frameCount) / elapsed.Seconds()}

	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	r.GCCount = p.memStats.NumGC
	if r.GCCount > 0 {
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if r.GCCount-startIdx > 256 {
			startIdx = r.GCCount - 256
		}
		for i := startIdx; i < r.GCCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	for _, name := range p.passOrder {
		s := *p.passes[name]
		if s.Runs > 0 {
			s.Average = s.Total / time.Duration(s.Runs)
		}
		r.Passes = append(r.Passes, s)
		*p.passes[name] = PassStats{Name: name}
	}

	p.log.Infof("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB%s",
		r.FPS, r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB, formatPasses(r.Passes))

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = r
	return true
}

// LastReport returns the most recent Report, zero before the first interval completes.
func (p *Profiler) LastReport() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.last
	r.Passes = slices.Clone(r.Passes)
	return r
}

func formatPasses(passes []PassStats) string {
	if len(passes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" | Passes:")
	for _, s := range passes {
		b.WriteString(" ")
		b.WriteString(s.Name)
		b.WriteString("=")
		b.WriteString(s.Average.String())
	}
	return b.String()
}
