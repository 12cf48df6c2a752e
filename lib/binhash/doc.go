// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content hashing for binary files.
//
// Switchyard records the digest of every executable it patches and of
// every patch manifest it applies. A patch record is only meaningful
// against the exact binary it was computed for: symbol addresses move
// between builds even when the symbol list does not. Journaling the
// digest alongside each patch event lets an operator tell after the
// fact whether a misbehaving process was running the binary its
// manifest was written against.
//
// The API surface:
//
//   - [HashFile] -- streams a file through BLAKE3, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [HashBytes] -- digest of an in-memory buffer (manifests)
//   - [FormatDigest] -- canonical hex string form, used in journal rows
//     and log output
//   - [ParseDigest] -- parses the hex form back, validating length
//
// This package has no dependencies on other Switchyard packages.
package binhash
