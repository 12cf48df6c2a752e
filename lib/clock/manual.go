// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual returns a ManualClock pinned to the given time. Time stands
// still until Advance is called; timers and sleeps register pending
// waiters that fire when the clock moves past their deadline.
//
// ManualClock is safe for concurrent use by multiple goroutines.
func Manual(initial time.Time) *ManualClock {
	c := &ManualClock{now: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// ManualClock is a deterministic Clock for tests. Nothing fires until
// Advance moves the clock; waiters then fire in deadline order.
type ManualClock struct {
	mu         sync.Mutex
	now        time.Time
	waiters    []*manualWaiter
	registered *sync.Cond
}

type manualWaiter struct {
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has been
// advanced past the deadline. A non-positive duration fires
// immediately without registering a waiter.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	return c.register(d).ch
}

// NewTimer returns a one-shot Timer bound to the manual clock.
func (c *ManualClock) NewTimer(d time.Duration) *Timer {
	waiter := c.register(d)
	return &Timer{
		C: waiter.ch,
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Sleep blocks until the clock advances past the deadline. A
// non-positive duration returns immediately.
func (c *ManualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

func (c *ManualClock) register(d time.Duration) *manualWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &manualWaiter{ch: make(chan time.Time, 1)}
	if d <= 0 {
		waiter.stopped = true
		waiter.ch <- c.now
		return waiter
	}
	waiter.deadline = c.now.Add(d)
	c.waiters = append(c.waiters, waiter)
	c.registered.Broadcast()
	return waiter
}

// Advance moves the clock forward by d and fires every pending waiter
// whose deadline falls within the new time, in deadline order. Sends
// are buffered, so Advance never blocks on a slow receiver.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var expired []*manualWaiter
	var remaining []*manualWaiter
	for _, waiter := range c.waiters {
		switch {
		case waiter.stopped:
			// Dropped.
		case !waiter.deadline.After(target):
			waiter.stopped = true
			expired = append(expired, waiter)
		default:
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	for _, waiter := range expired {
		waiter.ch <- target
	}
}

// AwaitWaiters blocks until at least n timers or sleeps are pending.
// This removes the race between a goroutine registering a timer and
// the test advancing the clock:
//
//	go func() { manual.Sleep(5 * time.Second) }()
//	manual.AwaitWaiters(1)
//	manual.Advance(5 * time.Second)
func (c *ManualClock) AwaitWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.registered.Wait()
	}
}

// Pending returns the number of live waiters, for test assertions.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *ManualClock) pendingLocked() int {
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			count++
		}
	}
	return count
}
