// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability implements descriptor-backed message endpoints:
// the unit of authority everything else in Switchyard trades in.
//
// An endpoint is an AF_UNIX SOCK_SEQPACKET socket pair. A Capability
// wraps one side of it together with a kind:
//
//   - Receive: the unique consuming side. Whoever holds it owns the
//     endpoint; closing it (or exiting) kills the endpoint.
//   - Send: delivers datagrams to the endpoint; freely duplicable.
//   - SendOnce: delivers exactly one datagram, then invalidates.
//     Reply flows hand one of these to the server.
//
// Authority is enforced by the kernel, not by this package: holding a
// Capability value means holding an open descriptor, and transferring
// one to another process means passing that descriptor through an
// SCM_RIGHTS control message. The envelope functions here are the
// single implementation of that transfer; the order of descriptors in
// an envelope is the order in which the wire codec declared them.
//
// Two properties fall out of the descriptor rendering for free and
// are load-bearing:
//
//   - Lazy invalidation. Nothing tracks endpoint liveness. A send
//     capability whose endpoint died learns this on its next Deliver
//     as ErrDeadEndpoint (EPIPE underneath), exactly once the kernel
//     knows, never sooner.
//   - Buffered hand-off. Deliveries to an endpoint whose receive side
//     has not been claimed yet queue in the socket buffer, so a
//     service can be looked up and messaged before its owner checks
//     in.
//
// Nothing in this package knows about names, the broker, or the wire
// format; those layers sit above.
package capability
