// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"errors"
	"fmt"
)

// ErrTextProtected reports a write to text that has not been made
// writable.
var ErrTextProtected = errors.New("patch: text is not writable")

// MemoryImage is an Image over a byte slice. It backs the unit tests
// and, unlike the real images, actively enforces the protect-write-
// protect discipline: writes without a prior Protect fail.
type MemoryImage struct {
	base     uint64
	text     []byte
	writable bool
}

// NewMemoryImage wraps text as an image whose first byte lives at
// base. The image starts write-protected.
func NewMemoryImage(base uint64, text []byte) *MemoryImage {
	return &MemoryImage{base: base, text: text}
}

func (m *MemoryImage) region(addr uint64, length int) ([]byte, error) {
	end := addr + uint64(length)
	if addr < m.base || end < addr || end > m.base+uint64(len(m.text)) {
		return nil, fmt.Errorf("patch: range [%#x, %#x) outside image [%#x, %#x)",
			addr, end, m.base, m.base+uint64(len(m.text)))
	}
	offset := addr - m.base
	return m.text[offset : offset+uint64(length)], nil
}

func (m *MemoryImage) ReadText(addr uint64, buf []byte) error {
	region, err := m.region(addr, len(buf))
	if err != nil {
		return err
	}
	copy(buf, region)
	return nil
}

func (m *MemoryImage) WriteText(addr uint64, data []byte) error {
	if !m.writable {
		return ErrTextProtected
	}
	region, err := m.region(addr, len(data))
	if err != nil {
		return err
	}
	copy(region, data)
	return nil
}

func (m *MemoryImage) Protect(addr uint64, length int, writable bool) error {
	if _, err := m.region(addr, length); err != nil {
		return err
	}
	m.writable = writable
	return nil
}
