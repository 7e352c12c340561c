// Package heartbeat provides a single-timer periodic callback.
package heartbeat

import (
	"sync"
	"time"
)

// DefaultInterval is the keep-alive period used when none is configured.
const DefaultInterval = 30 * time.Second

// Scheduler fires a callback at a fixed period. At most one timer is live at
// a time: Start replaces any running schedule and Stop cancels it.
//
// Ticks are scheduled against the start time rather than the previous tick,
// so a slow callback does not make the period drift. The next tick is armed
// only after send returns, and periods missed while send was running are
// skipped, so callbacks never overlap or fire in a burst.
type Scheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	running bool
}

// New creates a stopped Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Start begins calling send every interval. A running schedule is fully
// stopped first. A non-positive interval selects DefaultInterval.
func (s *Scheduler) Start(send func(), interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	s.running = true
	s.schedule(s.gen, send, interval, time.Now(), 1)
}

// Stop cancels the schedule. It is safe to call when not running.
//
// A callback that has already been released by the timer when Stop is called
// may still run once; callers that need a hard cutoff should check their own
// state inside send.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Bumping the generation orphans a callback already in flight.
	s.gen++
	s.running = false
}

func (s *Scheduler) schedule(gen uint64, send func(), interval time.Duration, start time.Time, n int64) {
	next := start.Add(time.Duration(n) * interval)
	s.timer = time.AfterFunc(time.Until(next), func() {
		if !s.current(gen) {
			return
		}

		send()

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		s.schedule(gen, send, interval, start, nextTick(start, interval, time.Now()))
	})
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// nextTick returns the smallest n for which start+n*interval is after now.
func nextTick(start time.Time, interval time.Duration, now time.Time) int64 {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 1
	}
	return int64(elapsed/interval) + 1
}
