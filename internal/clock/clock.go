// Package clock abstracts wall-clock time and timer scheduling so that the
// trade engine's countdown and price-refresh timers can be driven by virtual
// time in tests instead of sleeping.
package clock

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Clock provides the current time and one-shot callback scheduling.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is a Clock backed by the real time package.
type System struct{}

// New returns the system clock.
func New() *System { return &System{} }

func (*System) Now() time.Time { return time.Now() }

func (*System) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{time.AfterFunc(d, f)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }
