// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of
// calling time.Now, time.After, time.NewTimer, or time.Sleep directly.
// In production, Real() provides the standard library behavior. In
// tests, Manual() provides a deterministic clock that advances only
// when Advance is called.
//
// Structs that use time carry a Clock field:
//
//	type Supervisor struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Manual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := &Supervisor{clock: c}
//	// ... start goroutines ...
//	c.AwaitWaiters(1)          // wait for the retry backoff to register
//	c.Advance(5 * time.Second) // fire it deterministically
//
// AwaitWaiters blocks until a given number of timers are registered,
// which eliminates the race between timer registration and time
// advancement that plagues tests built on real sleeps.
package clock
