package embedding

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a single self-overwriting progress line while
// batch workers report finished articles. Safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	w        io.Writer
	total    int
	done     int
	every    int
	reported int
	start    time.Time
	running  bool
}

// NewProgressTracker reports to w every `every` articles out of total.
// A nil writer discards the output.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	if w == nil {
		w = io.Discard
	}
	return &ProgressTracker{w: w, total: total, every: max(every, 1)}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.running = true
	p.done, p.reported = 0, 0
}

// Increment records n more finished articles, never counting past total.
func (p *ProgressTracker) Increment(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = min(p.done+n, p.total)
	if p.done-p.reported >= p.every {
		p.print()
		p.reported = p.done
	}
}

// Finish prints the last line with the articles actually processed,
// which is less than total after a canceled run.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.print()
	fmt.Fprintln(p.w)
	p.running = false
}

// Elapsed is the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	return time.Since(p.start)
}

// print writes the progress line. p.mu must be held.
func (p *ProgressTracker) print() {
	elapsed := time.Since(p.start)
	rate := float64(p.done) / elapsed.Seconds()
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.done) * 100 / float64(p.total)
	}
	fmt.Fprintf(p.w, "\rProgress: %d/%d (%.1f%%) - %.1f articles/s", p.done, p.total, pct, rate)
	if left := p.total - p.done; left > 0 && rate > 0 {
		eta := time.Duration(float64(left) / rate * float64(time.Second))
		fmt.Fprintf(p.w, " - eta %s", eta.Round(time.Second))
	}
}
