// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RemoteImage is an Image over a ptrace-stopped child. Every call
// requires that the calling goroutine is the child's tracer and that
// the child is stopped; the supervisor holds both between the child's
// exec trap and detach, on a locked OS thread.
//
// Pokes go through the kernel, which both bypasses page protection and
// keeps the child's instruction cache coherent, so Protect has nothing
// to do here. That kernel-side coherency is what makes remote patching
// safe on arm64, where a userspace store to text would need explicit
// cache maintenance before execution.
type RemoteImage struct {
	pid int
}

// NewRemoteImage returns an image over the stopped process pid.
func NewRemoteImage(pid int) *RemoteImage {
	return &RemoteImage{pid: pid}
}

func (r *RemoteImage) ReadText(addr uint64, buf []byte) error {
	n, err := unix.PtracePeekData(r.pid, uintptr(addr), buf)
	if err != nil {
		return fmt.Errorf("ptrace peek pid %d at %#x: %w", r.pid, addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("ptrace peek pid %d at %#x: short read %d of %d", r.pid, addr, n, len(buf))
	}
	return nil
}

func (r *RemoteImage) WriteText(addr uint64, data []byte) error {
	n, err := unix.PtracePokeData(r.pid, uintptr(addr), data)
	if err != nil {
		return fmt.Errorf("ptrace poke pid %d at %#x: %w", r.pid, addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("ptrace poke pid %d at %#x: short write %d of %d", r.pid, addr, n, len(data))
	}
	return nil
}

func (r *RemoteImage) Protect(addr uint64, length int, writable bool) error {
	return nil
}
