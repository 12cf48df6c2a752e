// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package namespace implements the bootstrap service table: the map
// from service names to endpoint capabilities, with the status machine
// the protocol exposes.
//
// A name moves through three states. Unregistered names have been
// seen but hold nothing. Pending names carry registered interest, and
// possibly a pre-minted endpoint whose receive side is escrowed for a
// future owner. Checked-in names have a live endpoint: the table
// retains the send side and satisfies every look-up with a fresh
// duplicate of it.
//
// The whole table sits behind one mutex. That is a deliberate
// simplification: the operations are map touches plus a descriptor
// dup, contention is bounded by the number of supervised processes,
// and a single lock makes the race semantics exact: of two
// concurrent check-ins for one name, whichever takes the lock second
// loses, atomically.
//
// The table never polls for liveness and holds no timers. Owner death
// is reported from outside (connection teardown or the supervisor's
// reaper) via ReleaseOwner, which reverts the dead owner's names to
// unregistered so that later look-ups go pending rather than receiving
// a capability to a corpse. Send duplicates handed out earlier are
// left to discover the death themselves on their next delivery; that
// is the capability layer's lazy-invalidation contract.
package namespace
