package timectrl

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeControllerStartAdvancesElapsed(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	var ticks int32
	var seen []time.Duration
	tc.AddListener(func(simTime time.Time) {
		atomic.AddInt32(&ticks, 1)
		if got := tc.Elapsed(); got != simTime.Sub(start) {
			t.Errorf("Elapsed() = %v inside listener, want %v", got, simTime.Sub(start))
		}
		seen = append(seen, tc.Elapsed())
	})

	if got := tc.Elapsed(); got != 0 {
		t.Fatalf("Elapsed() before Start = %v, want 0", got)
	}
	done := tc.Start(15 * time.Millisecond)
	<-done

	if got := tc.Elapsed(); got != 15*time.Millisecond {
		t.Fatalf("Elapsed() = %v, want 15ms", got)
	}
	if got := atomic.LoadInt32(&ticks); got != 3 {
		t.Fatalf("listener invoked %d times, want 3", got)
	}
	want := []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("tick %d elapsed = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestTimeControllerStopEndsUnboundedRun(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, RealTime)

	done := tc.Start(0)
	time.Sleep(5 * time.Millisecond)
	tc.Stop()
	tc.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Start loop did not exit after Stop")
	}
}

func TestTimeControllerStopFromListener(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, Accelerated)
	tc.AddListener(func(time.Time) {
		if tc.Elapsed() >= 4*time.Millisecond {
			tc.Stop()
		}
	})

	select {
	case <-tc.Start(0):
	case <-time.After(time.Second):
		t.Fatalf("Start loop did not exit after a listener stopped it")
	}
	if got := tc.Elapsed(); got != 4*time.Millisecond {
		t.Fatalf("Elapsed() = %v after stopping at 4ms", got)
	}
}
