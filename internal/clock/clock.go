// Package clock provides an injectable time source so expiry and scheduling
// logic can be driven deterministically in tests.
//
// Production code holds a Clock field set to Real(); tests construct a
// FakeClock with Fake(start) and move time forward with Advance.
package clock

import "time"

// Clock abstracts the time operations used by the realtime and scheduling code.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can cancel
	// or reschedule the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on its C channel every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the timer from firing. It reports whether the call stopped
// a pending timer.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset reschedules the timer to fire after d.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }

// Ticker delivers periodic ticks. C has capacity 1; slow readers drop ticks.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }
