// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"

	"github.com/switchyard-systems/switchyard/lib/capability"
)

// cacheCapacity bounds the per-process service capability cache.
// Clients resolve a handful of well-known services over and over
// during startup; 32 entries covers every real workload with room to
// spare.
const cacheCapacity = 32

// cache retains one send capability per resolved service name. The
// cached capability stays owned by the cache; callers get duplicates.
// Insertion order is kept for eviction: the oldest entry goes first
// once the cache is full. No liveness tracking happens here. A dead
// cached endpoint is discovered when a duplicate's delivery fails,
// and the caller invalidates the name.
type cache struct {
	capacity int
	names    []string
	entries  map[string]*capability.Capability
}

func newCache(capacity int) *cache {
	return &cache{
		capacity: capacity,
		entries:  make(map[string]*capability.Capability, capacity),
	}
}

// duplicate returns a fresh duplicate of the cached capability for
// name, if one is cached and still duplicable. A cache entry that
// fails to duplicate is dropped.
func (c *cache) duplicate(name string) (*capability.Capability, bool) {
	cached, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	duplicate, err := cached.DuplicateSend()
	if err != nil {
		c.remove(name)
		return nil, false
	}
	return duplicate, true
}

// store takes ownership of send as the cached capability for name,
// evicting the oldest entry if the cache is full.
func (c *cache) store(name string, send *capability.Capability) {
	if previous, ok := c.entries[name]; ok {
		previous.Close()
		c.entries[name] = send
		return
	}
	if len(c.names) >= c.capacity {
		oldest := c.names[0]
		c.names = c.names[1:]
		c.entries[oldest].Close()
		delete(c.entries, oldest)
	}
	c.names = append(c.names, name)
	c.entries[name] = send
}

// remove drops the entry for name, closing its capability.
func (c *cache) remove(name string) {
	cached, ok := c.entries[name]
	if !ok {
		return
	}
	cached.Close()
	delete(c.entries, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}
}

// drop closes every cached capability.
func (c *cache) drop() {
	for _, cached := range c.entries {
		cached.Close()
	}
	c.entries = make(map[string]*capability.Capability, c.capacity)
	c.names = nil
}

// cached returns a duplicate of the cached capability for name.
func (c *Client) cached(name string) (*capability.Capability, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cache.duplicate(name)
}

// adopt stores send in the cache and hands the caller a duplicate.
// If duplication fails (descriptor exhaustion), the original is
// returned uncached rather than lost.
func (c *Client) adopt(name string, send *capability.Capability) (*capability.Capability, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	duplicate, err := send.DuplicateSend()
	if err != nil {
		return send, nil
	}
	c.cache.store(name, send)
	return duplicate, nil
}

// Invalidate drops the cached capability for name. Callers do this
// after a delivery fails with a dead endpoint, so the next LookUp
// asks the broker again.
func (c *Client) Invalidate(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache.remove(name)
}

// Prefetch resolves names ahead of need, priming the cache the way a
// shim constructor does for its critical services. Pending and
// unknown names are skipped silently (their owners have not started);
// transport errors abort.
func (c *Client) Prefetch(names ...string) error {
	for _, name := range names {
		send, err := c.LookUp(name)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				continue
			}
			return err
		}
		send.Close()
	}
	return nil
}
