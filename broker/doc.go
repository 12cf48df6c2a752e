// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker is the bootstrap message broker: the seqpacket
// listener, the per-connection read loop, and the dispatcher that
// routes requests to the namespace table.
//
// Each client holds one long-lived connection. Requests arrive as
// wire messages, capabilities ride along as descriptor rights, and
// every request gets exactly one reply, stamped with the reply
// direction tag and the request routine plus the reply offset. A
// malformed frame terminates its connection; an unknown routine gets
// an error reply and the connection stays up.
//
// Names checked in over a connection revert to pending when that
// connection drops. That is how service death propagates: the broker
// never polls processes, it watches sockets.
package broker
