// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations for testability. Production code
// injects Real(); tests inject Manual() with deterministic control of
// the current time.
//
// The interface is deliberately small: the broker needs wall-clock
// reads for journal timestamps and capture frames, one-shot timers for
// check-in deadlines, and delays for spawn retry backoff. Nothing in
// Switchyard needs a ticker.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the fire time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a one-shot Timer that fires on C after d.
	NewTimer(d time.Duration) *Timer

	// Sleep blocks the calling goroutine for d.
	Sleep(d time.Duration)
}

// Timer is a one-shot timer. C receives the fire time once the timer
// expires. Stop prevents an unfired timer from firing; it reports
// whether the timer was still pending.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop cancels the timer. It returns false if the timer already fired
// or was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
