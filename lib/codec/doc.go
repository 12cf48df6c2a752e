// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Switchyard's standard CBOR encoding
// configuration.
//
// Switchyard draws a clear boundary between its serialization formats:
//
//   - The bootstrap wire protocol is the hand-specified TLV format in
//     lib/wire. Its exact bytes are the compatibility surface with
//     client shims, so it never rides on a general-purpose codec.
//   - CBOR is used everywhere a format is an implementation detail:
//     the control socket protocol, journal detail blobs, and capture
//     dump frame streams.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (control socket, capture dumps):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Control protocol types carry `cbor` struct tags; they are never
// serialized as JSON.
package codec
