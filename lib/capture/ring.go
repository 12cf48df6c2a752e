// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/switchyard-systems/switchyard/lib/clock"
)

// DefaultRingCapacity is the default ring capacity in frames. A full
// ring of maximum-size messages is 256 MB, but real bootstrap traffic
// is small requests and replies; a thousand frames covers minutes of
// busy startup traffic.
const DefaultRingCapacity = 1024

// Direction tags which way a frame crossed the broker socket. The
// values are stored in dump containers; changing them breaks dump
// compatibility.
type Direction uint8

const (
	// Inbound frames are requests read from a client connection.
	Inbound Direction = 1

	// Outbound frames are replies written back to a client.
	Outbound Direction = 2
)

// String returns the human-readable direction name.
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Frame is one captured message. Data holds the raw serialized bytes
// exactly as they crossed the socket; Routine is extracted at capture
// time so listings can name frames without re-parsing them.
type Frame struct {
	Seq       uint64    `cbor:"seq"`
	Time      time.Time `cbor:"time"`
	Direction Direction `cbor:"direction"`
	PID       int32     `cbor:"pid"`
	Routine   uint32    `cbor:"routine"`
	Data      []byte    `cbor:"data"`
}

// Ring is a fixed-capacity circular buffer of captured frames. New
// frames overwrite the oldest once the ring is full. The sequence
// number rises monotonically across overwrites, so a reader that
// remembers the last sequence it saw can ask for everything since and
// detect gaps.
//
// All methods are safe for concurrent use.
type Ring struct {
	clk clock.Clock

	mutex  sync.Mutex
	frames []Frame
	// next is the slot the next frame lands in (0 to capacity-1).
	next int
	// total counts frames ever recorded and doubles as the next
	// frame's sequence number. The ring holds the most recent
	// min(total, capacity) frames.
	total uint64
}

// NewRing creates a ring holding up to capacity frames. A
// non-positive capacity gets DefaultRingCapacity.
func NewRing(capacity int, clk clock.Clock) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		clk:    clk,
		frames: make([]Frame, capacity),
	}
}

// Record appends one frame, overwriting the oldest if the ring is
// full. The data bytes are copied: callers reuse their read buffers
// for the next message.
func (ring *Ring) Record(direction Direction, pid int32, routine uint32, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)

	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	ring.frames[ring.next] = Frame{
		Seq:       ring.total,
		Time:      ring.clk.Now(),
		Direction: direction,
		PID:       pid,
		Routine:   routine,
		Data:      stored,
	}
	ring.next = (ring.next + 1) % len(ring.frames)
	ring.total++
}

// Snapshot returns the retained frames with sequence number at least
// since, oldest first. If since is older than the oldest retained
// frame, everything retained is returned (the caller missed frames;
// the gap shows in the sequence numbers).
func (ring *Ring) Snapshot(since uint64) []Frame {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	retained := ring.total
	if retained > uint64(len(ring.frames)) {
		retained = uint64(len(ring.frames))
	}
	oldest := ring.total - retained
	if since < oldest {
		since = oldest
	}
	if since >= ring.total {
		return nil
	}

	count := ring.total - since
	result := make([]Frame, 0, count)

	// next points one past the newest frame; the oldest retained
	// frame sits retained slots behind it.
	position := (ring.next - int(retained) + int(since-oldest)) % len(ring.frames)
	if position < 0 {
		position += len(ring.frames)
	}
	for i := uint64(0); i < count; i++ {
		result = append(result, ring.frames[position])
		position = (position + 1) % len(ring.frames)
	}
	return result
}

// Total returns the number of frames ever recorded. This is the
// sequence number a reader should store and pass to Snapshot later.
func (ring *Ring) Total() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.total
}
