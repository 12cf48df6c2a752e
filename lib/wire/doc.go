// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the bootstrap protocol's binary message
// format. The exact bytes are the compatibility surface with client
// shims, so the codec is hand-rolled here rather than riding on a
// general-purpose serialization library.
//
// # Format
//
// Every message is one transport datagram:
//
//	offset  size  field
//	0       4     magic 0x53575231, little-endian
//	4       1     format version (1)
//	5       4     direction tag: "REQ" (0x00524551) or "RPL" (0x0052504C)
//	9       4     routine number
//	13      ...   payload: a sequence of TLV entries
//
// One TLV entry:
//
//	offset  size  field
//	0       4     type tag
//	4       4     length L, which counts itself: L = 4 + 2 + len(key) + len(value)
//	8       2     key length K
//	10      K     key, UTF-8
//	10+K    ...   value, L-4-2-K bytes
//
// The cursor advance per entry is 4 + L (the type tag is outside L).
// All integers little-endian.
//
// Type tags: 1 dictionary (nested TLV sequence), 2 string (raw UTF-8),
// 3 int64 (8 bytes, two's complement), 4 bool (one byte, 0 or 1),
// 5 send capability, 6 receive capability (both: 8-byte handle). The
// tag set is closed; an unknown tag fails the whole decode. Skipping
// an unknown entry is not an option because a skipped capability entry
// would silently desynchronize the remaining capability slots from
// their envelope descriptors.
//
// # Capability slots
//
// Capability entries carry only a descriptor (kind + diagnostic
// handle) in the payload; the actual authority travels as file
// descriptors in the transport envelope. The invariant tying them
// together: descriptors appear in the envelope in exactly the order
// their entries appear in the serialized payload. Encode returns the
// slots in that order for the sender; Decode returns them in the same
// order for Bind to attach the received descriptors.
//
// Dictionaries serialize in sorted key order, which makes encoding
// deterministic: equal payloads give equal bytes and an unambiguous
// slot order.
//
// # Direction tags
//
// TagRequest and TagReply are disjoint constants. The dispatcher
// stamps TagReply at a single choke point on every reply path, and
// clients verify IsReply before unpacking any capability from a
// message. A decode failure (including a bad direction tag) poisons
// the whole message and terminates the connection that sent it.
package wire
