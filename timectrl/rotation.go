package timectrl

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// DefaultRotationRatePerMs is the scene spin rate in radians per millisecond
// (0.001 rad per frame at 60 frames per second). It is a visual rate, not the
// sidereal rate.
const DefaultRotationRatePerMs = 6e-5

// DefaultRotationPeriod is the time for one full turn at
// DefaultRotationRatePerMs, roughly 104.7 s.
var DefaultRotationPeriod = time.Duration(math.Round(2 * math.Pi / DefaultRotationRatePerMs * float64(time.Millisecond)))

// ErrInvalidPeriod is returned for a non-positive rotation period.
var ErrInvalidPeriod = errors.New("rotation period must be positive")

// RotationClock maps elapsed simulation time to the planet's rotation angle
// about its polar axis. It is immutable; the angle depends only on elapsed
// time, so concurrent readers need no locking.
type RotationClock struct {
	period  time.Duration
	rate    float64 // rad/ms
	initial float64
}

// NewRotationClock builds a clock turning once per period, starting from
// initialAngle radians.
func NewRotationClock(period time.Duration, initialAngle float64) (*RotationClock, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if math.IsNaN(initialAngle) || math.IsInf(initialAngle, 0) {
		return nil, fmt.Errorf("initial rotation angle %v is not finite", initialAngle)
	}
	return &RotationClock{
		period:  period,
		rate:    2 * math.Pi / durationMs(period),
		initial: WrapAngle(initialAngle),
	}, nil
}

// Period returns the time for one full turn.
func (c *RotationClock) Period() time.Duration { return c.period }

// RatePerMs returns the spin rate in radians per millisecond.
func (c *RotationClock) RatePerMs() float64 { return c.rate }

// InitialAngle returns the angle at elapsed time zero.
func (c *RotationClock) InitialAngle() float64 { return c.initial }

// TotalAngle returns the unwrapped angle after elapsed. It increases
// monotonically with elapsed.
func (c *RotationClock) TotalAngle(elapsed time.Duration) float64 {
	return c.initial + c.rate*durationMs(elapsed)
}

// AngleAtTime returns the rotation angle after elapsed, wrapped to [0, 2π).
func (c *RotationClock) AngleAtTime(elapsed time.Duration) float64 {
	return WrapAngle(c.TotalAngle(elapsed))
}

// WrapAngle folds radians into [0, 2π).
func WrapAngle(a float64) float64 {
	const twoPi = 2 * math.Pi
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}

// GMSTAngle returns Greenwich mean sidereal time at t in radians. Seeding a
// RotationClock with it lines the prime meridian up with the vernal equinox
// direction at that instant.
func GMSTAngle(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return WrapAngle(satellite.ThetaG_JD(jd))
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
