package heartbeat_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/relaychat/internal/heartbeat"
)

const interval = 100 * time.Millisecond

// waitCount polls until count reaches want or the deadline passes.
func waitCount(t *testing.T, count *atomic.Int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for count.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("callback fired %d times within %v, want at least %d", count.Load(), timeout, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// maxTicks is the most callbacks a schedule started at start may have fired.
// Timers never fire early, so this bound holds on a loaded machine too.
func maxTicks(start time.Time) int32 {
	return int32(time.Since(start) / interval)
}

func TestScheduler_FiresOncePerInterval(t *testing.T) {
	s := heartbeat.New()
	var count atomic.Int32

	start := time.Now()
	s.Start(func() { count.Add(1) }, interval)
	defer s.Stop()

	time.Sleep(interval / 2)
	if got := count.Load(); got != 0 {
		t.Fatalf("callback fired %d times before the first interval", got)
	}

	waitCount(t, &count, 3, 20*interval)
	if got, limit := count.Load(), maxTicks(start); got > limit {
		t.Errorf("callback fired %d times in %d elapsed intervals", got, limit)
	}
}

func TestScheduler_StartTwiceKeepsSingleTimer(t *testing.T) {
	s := heartbeat.New()
	var first, second atomic.Int32

	s.Start(func() { first.Add(1) }, interval)
	start := time.Now()
	s.Start(func() { second.Add(1) }, interval)
	defer s.Stop()

	waitCount(t, &second, 2, 20*interval)

	if got := first.Load(); got != 0 {
		t.Errorf("replaced schedule fired %d times, want 0", got)
	}
	if got, limit := second.Load(), maxTicks(start); got > limit {
		t.Errorf("active schedule fired %d times in %d elapsed intervals", got, limit)
	}
}

func TestScheduler_Stop(t *testing.T) {
	s := heartbeat.New()
	var count atomic.Int32

	s.Start(func() { count.Add(1) }, interval)
	waitCount(t, &count, 1, 20*interval)
	s.Stop()

	if s.Running() {
		t.Error("Running() = true after Stop")
	}

	after := count.Load()
	time.Sleep(3 * interval)
	if got := count.Load(); got != after {
		t.Errorf("callback fired %d more times after Stop", got-after)
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := heartbeat.New()

	// Should not panic when stopping a scheduler that never started
	s.Stop()
	s.Stop()

	s.Start(func() {}, interval)
	s.Stop()
	s.Stop()

	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestScheduler_Restart(t *testing.T) {
	s := heartbeat.New()
	var stopped, count atomic.Int32

	s.Start(func() { stopped.Add(1) }, interval)
	s.Stop()
	start := time.Now()
	s.Start(func() { count.Add(1) }, interval)
	defer s.Stop()

	if !s.Running() {
		t.Fatal("Running() = false after restart")
	}

	waitCount(t, &count, 1, 20*interval)
	if got, limit := count.Load(), maxTicks(start); got > limit {
		t.Errorf("callback fired %d times in %d elapsed intervals", got, limit)
	}
	if got := stopped.Load(); got != 0 {
		t.Errorf("stopped schedule fired %d times, want 0", got)
	}
}

func TestScheduler_SlowCallbackSkipsMissedTicks(t *testing.T) {
	const tick = 20 * time.Millisecond
	const stall = 150 * time.Millisecond

	s := heartbeat.New()

	var (
		mu       sync.Mutex
		fired    []time.Time
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	s.Start(func() {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}

		mu.Lock()
		fired = append(fired, time.Now())
		mu.Unlock()

		time.Sleep(stall)
	}, tick)

	time.Sleep(4 * stall)
	s.Stop()
	// Let a callback that was already running return.
	time.Sleep(2 * stall)

	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) < 2 {
		t.Fatalf("callback fired %d times, want at least 2", len(fired))
	}
	for i := 1; i < len(fired); i++ {
		if gap := fired[i].Sub(fired[i-1]); gap < stall {
			t.Errorf("ticks %d and %d fired %v apart, want at least %v", i-1, i, gap, stall)
		}
	}
}
