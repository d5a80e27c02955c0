package profiling

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

// stat aggregates every span recorded under one name.
type stat struct {
	name  string
	count int
	total time.Duration
	max   time.Duration
	first time.Time
}

// Profiler records named spans. Spans may run concurrently, e.g. the
// snapshot loads of the dashboard.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	start   time.Time
	stats   map[string]*stat
}

var defaultProfiler = &Profiler{}

// Enable turns on the global profiler.
func Enable() {
	defaultProfiler.enable()
}

// Start begins a span; call Stop on the result, typically via defer.
func Start(name string) Stopper {
	return defaultProfiler.Start(name)
}

// Summarize prints the recorded spans in the order they first started.
func Summarize(w io.Writer) {
	defaultProfiler.Summarize(w)
}

func (p *Profiler) enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	p.start = time.Now()
	p.stats = make(map[string]*stat)
}

// Start begins a span on p.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return noopStopper{}
	}
	return &span{profiler: p, name: name, start: time.Now()}
}

func (p *Profiler) record(name string, start time.Time, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stats[name]
	if !ok {
		s = &stat{name: name, first: start}
		p.stats[name] = s
	}
	s.count++
	s.total += d
	s.max = max(s.max, d)
}

// Summarize prints the recorded spans of p.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	stats := make([]*stat, 0, len(p.stats))
	for _, s := range p.stats {
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].first.Before(stats[j].first) })

	elapsed := time.Since(p.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	for _, s := range stats {
		percentage := 0.0
		if elapsed > 0 {
			percentage = float64(s.total) / float64(elapsed) * 100
		}
		line := fmt.Sprintf("- %s (%v, %.1f%%)", s.name, s.total.Round(100*time.Microsecond), percentage)
		if s.count > 1 {
			line += fmt.Sprintf(" x%d, max %v", s.count, s.max.Round(100*time.Microsecond))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "total %v\n", elapsed.Round(100*time.Microsecond))
	fmt.Fprintln(w, "--------------------")
}

type span struct {
	profiler *Profiler
	name     string
	start    time.Time
	once     sync.Once
}

func (s *span) Stop() {
	s.once.Do(func() {
		s.profiler.record(s.name, s.start, time.Since(s.start))
	})
}

type noopStopper struct{}

func (noopStopper) Stop() {}
