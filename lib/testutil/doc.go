// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Switchyard
// packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un) and CI temp
// directories routinely exceed it, making t.TempDir() unsuitable for
// socket files. [SocketPath] is the one-liner on top of it.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. They are
// the only sanctioned use of real wall-clock timeouts in the test
// suite; everything else goes through lib/clock.
//
// [UniqueID] generates monotonically increasing identifiers so that
// parallel subtests can mint distinguishable service names without
// reaching for time.Now().
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
