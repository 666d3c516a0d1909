package timectrl

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestRotationClockDefaultRate(t *testing.T) {
	c, err := NewRotationClock(DefaultRotationPeriod, 0)
	if err != nil {
		t.Fatalf("NewRotationClock: %v", err)
	}
	if got := c.RatePerMs(); math.Abs(got-DefaultRotationRatePerMs) > 1e-12 {
		t.Fatalf("RatePerMs = %v, want %v", got, DefaultRotationRatePerMs)
	}
	if got := c.AngleAtTime(5 * time.Second); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("AngleAtTime(5s) = %v, want 0.3", got)
	}
}

func TestRotationClockWrapsAndIsMonotonic(t *testing.T) {
	c, err := NewRotationClock(time.Second, 1)
	if err != nil {
		t.Fatalf("NewRotationClock: %v", err)
	}

	prev := c.TotalAngle(0)
	for ms := 1; ms <= 5000; ms += 7 {
		elapsed := time.Duration(ms) * time.Millisecond
		total := c.TotalAngle(elapsed)
		if total <= prev {
			t.Fatalf("TotalAngle not increasing at %v: %v <= %v", elapsed, total, prev)
		}
		prev = total

		a := c.AngleAtTime(elapsed)
		if a < 0 || a >= 2*math.Pi {
			t.Fatalf("AngleAtTime(%v) = %v outside [0, 2π)", elapsed, a)
		}
	}

	// A whole number of periods brings the angle back to the start.
	if got := c.AngleAtTime(3 * time.Second); math.Abs(got-1) > 1e-9 {
		t.Fatalf("AngleAtTime(3 periods) = %v, want 1", got)
	}
}

func TestNewRotationClockRejectsBadInput(t *testing.T) {
	if _, err := NewRotationClock(0, 0); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("zero period error = %v, want ErrInvalidPeriod", err)
	}
	if _, err := NewRotationClock(time.Second, math.NaN()); err == nil {
		t.Fatalf("expected NaN initial angle to be rejected")
	}
}

func TestWrapAngle(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{2 * math.Pi, 0},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}
	for _, tc := range cases {
		if got := WrapAngle(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("WrapAngle(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGMSTAngleRange(t *testing.T) {
	start := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	prev := GMSTAngle(start)
	if prev < 0 || prev >= 2*math.Pi {
		t.Fatalf("GMSTAngle = %v outside [0, 2π)", prev)
	}

	// Sidereal time gains roughly 0.25° per minute.
	next := GMSTAngle(start.Add(time.Minute))
	delta := WrapAngle(next - prev)
	wantDelta := 2 * math.Pi / (23*3600 + 56*60 + 4.09) * 60
	if math.Abs(delta-wantDelta) > 1e-4 {
		t.Fatalf("GMST advanced %v rad in one minute, want ~%v", delta, wantDelta)
	}
}
