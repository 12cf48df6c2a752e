// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SelfImage is an Image over the current process's own text. Reads and
// writes are ordinary memory accesses; Protect uses mprotect to open
// and close the write window. Rewriting your own text is only coherent
// on architectures whose instruction caches snoop stores (amd64). The
// supervisor always patches children through RemoteImage; SelfImage
// exists so the redirect machinery can be exercised in-process.
type SelfImage struct {
	pageSize uintptr
}

// NewSelfImage returns an image over the current process.
func NewSelfImage() *SelfImage {
	return &SelfImage{pageSize: uintptr(os.Getpagesize())}
}

func (s *SelfImage) ReadText(addr uint64, buf []byte) error {
	copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(buf)))
	return nil
}

func (s *SelfImage) WriteText(addr uint64, data []byte) error {
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data)), data)
	return nil
}

func (s *SelfImage) Protect(addr uint64, length int, writable bool) error {
	start := uintptr(addr) &^ (s.pageSize - 1)
	end := (uintptr(addr) + uintptr(length) + s.pageSize - 1) &^ (s.pageSize - 1)
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), end-start)

	protection := unix.PROT_READ | unix.PROT_EXEC
	if writable {
		protection |= unix.PROT_WRITE
	}
	if err := unix.Mprotect(region, protection); err != nil {
		return fmt.Errorf("mprotect [%#x, %#x): %w", start, end, err)
	}
	return nil
}
