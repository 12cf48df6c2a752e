// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

// Image is a mutable view of a loaded module's text. It is the single
// surface through which this package touches executable memory; each
// implementation confines one flavor of unsafety (raw pointers for the
// current process, ptrace for a stopped child, plain slices for
// tests). Addresses are runtime virtual addresses in the image's
// process.
type Image interface {
	// ReadText copies len(buf) bytes starting at addr into buf.
	ReadText(addr uint64, buf []byte) error

	// WriteText copies data over the text starting at addr. The range
	// must have been made writable first.
	WriteText(addr uint64, data []byte) error

	// Protect opens (writable=true) or closes the write window over
	// the pages spanning [addr, addr+length). Implementations whose
	// write mechanism bypasses page protection treat this as a no-op.
	Protect(addr uint64, length int, writable bool) error
}
