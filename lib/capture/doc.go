// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records broker protocol traffic for offline
// inspection.
//
// The broker taps every message it reads and every reply it writes
// into a fixed-capacity Ring of Frames, each carrying the raw wire
// bytes plus direction, peer PID, and a timestamp. The control plane
// dumps the ring to a compressed CBOR container that the CLI decodes
// back into readable messages.
//
// Capture holds serialized bytes only. Capabilities never enter the
// ring: a frame records that a descriptor slot was present, not the
// descriptor itself, so dumping a ring can never leak authority.
package capture
