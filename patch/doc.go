// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch redirects functions inside loaded ELF modules to
// broker-aware replacements.
//
// Supervised clients resolve services through library routines that
// expect a supervisor this broker stands in for. Rather than modify
// modules on disk, the supervisor rewrites each routine's entry in the
// already-loaded image: an absolute jump to a replacement routine that
// speaks the broker's wire protocol. Replacements live in the same
// module as their targets, so a redirect is a pair of symbol names.
//
// The pieces:
//
//   - Symbols resolves function names to link-time addresses, reading
//     both the dynamic symbol table and the full .symtab so that
//     non-exported internal helpers are reachable. Client libraries
//     route the calls that matter through exactly such helpers.
//   - LoadBias converts link-time addresses to runtime addresses from
//     the process's memory mappings.
//   - Image is the only surface that touches executable memory:
//     MemoryImage (byte slice, tests), SelfImage (current process),
//     RemoteImage (ptrace-stopped child).
//   - Patcher writes trampolines through an Image and keeps one
//     reversible Record per patched address. Reinstallation is a
//     no-op; restoration puts the saved entry bytes back.
//   - Manifest and Apply drive the whole sequence from a JSONC file,
//     between a child's exec stop and its release.
//
// Everything above this package deals only in manifests and records.
package patch
