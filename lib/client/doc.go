// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the bootstrap library supervised processes use to
// talk to the broker.
//
// A [Client] holds one connection to the broker's bootstrap socket
// (found via the SWITCHYARD_BOOTSTRAP_SOCKET environment variable in
// supervised children) and serializes request-reply cycles over it:
// check-in, look-up, register, endpoint look-up, list-services.
// Resolved send capabilities are cached per name, the way the
// original client shims cached their service ports; [Client.Invalidate]
// drops an entry once a delivery reports a dead endpoint.
//
// Service-level traffic between clients goes through [Exchange] and
// [Serve]: the requester mints a reply endpoint and attaches its
// send-once side to the request, the server answers on it exactly
// once, tagged as a reply. Neither side can construct a misdirected
// message through these entry points.
package client
