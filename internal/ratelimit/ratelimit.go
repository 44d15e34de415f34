// Package ratelimit tracks per-identity request counts in fixed windows.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults for task requests.
const (
	DefaultLimit         = 60
	DefaultWindow        = time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type window struct {
	start time.Time
	count int
}

// Tracker allows up to limit requests per key in each window.
type Tracker struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a tracker. Non-positive values fall back to the defaults.
func New(limit int, win time.Duration) *Tracker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &Tracker{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts a request for key and reports whether it is within the limit.
// Rejected requests are not counted.
func (t *Tracker) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= t.window {
		t.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= t.limit {
		return false
	}
	w.count++
	return true
}

// Sweep drops windows that have expired and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, w := range t.windows {
		if now.Sub(w.start) >= t.window {
			delete(t.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}

// Start sweeps expired windows every interval until Stop is called.
func (t *Tracker) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Stop ends the sweep loop started by Start.
func (t *Tracker) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.wg.Wait()
	t.stop = nil
}
