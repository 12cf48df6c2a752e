// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRedirectConflict reports an attempt to redirect an address that
// already carries a redirect to a different replacement. Stacking a
// second trampoline would capture trampoline bytes as the "original"
// text and make restoration impossible.
var ErrRedirectConflict = errors.New("patch: address already redirected to a different replacement")

// Record is one reversible redirect: which symbol, where its entry
// lives at runtime, where control is diverted to, and the entry bytes
// that were overwritten. The saved bytes are captured before the first
// installation and never rewritten afterwards.
type Record struct {
	Module      string
	Symbol      string
	Addr        uint64
	Replacement uint64
	Original    []byte
	Installed   bool
}

// Patcher installs redirects through one Image and remembers them by
// address. Reinstalling an address with the same replacement is a
// no-op returning the existing record. Not safe for concurrent use;
// the supervisor drives it inside a single stopped-child window.
type Patcher struct {
	image   Image
	records map[uint64]*Record
}

// NewPatcher returns a Patcher writing through image.
func NewPatcher(image Image) *Patcher {
	return &Patcher{image: image, records: make(map[uint64]*Record)}
}

// InstallRedirect overwrites the function entry at addr with an
// absolute jump to replacement, saving the original entry bytes in
// the returned record. addr and replacement are runtime addresses.
func (p *Patcher) InstallRedirect(module, symbol string, addr, replacement uint64) (*Record, error) {
	if record, ok := p.records[addr]; ok {
		if record.Replacement != replacement {
			return nil, fmt.Errorf("%#x (%s) already points at %#x: %w",
				addr, record.Symbol, record.Replacement, ErrRedirectConflict)
		}
		if record.Installed {
			return record, nil
		}
		// Restored earlier. Reinstall from the record; the saved
		// original bytes stay authoritative.
		if err := p.write(addr, trampoline(replacement)); err != nil {
			return nil, fmt.Errorf("redirecting %s: %w", symbol, err)
		}
		record.Installed = true
		return record, nil
	}

	original := make([]byte, TrampolineSize)
	if err := p.image.ReadText(addr, original); err != nil {
		return nil, fmt.Errorf("saving original bytes of %s: %w", symbol, err)
	}
	if err := p.write(addr, trampoline(replacement)); err != nil {
		return nil, fmt.Errorf("redirecting %s: %w", symbol, err)
	}
	record := &Record{
		Module:      module,
		Symbol:      symbol,
		Addr:        addr,
		Replacement: replacement,
		Original:    original,
		Installed:   true,
	}
	p.records[addr] = record
	return record, nil
}

// Restore writes a record's saved bytes back over the trampoline.
// Restoring a record that is not installed is a no-op. The record must
// have come from this Patcher's InstallRedirect.
func (p *Patcher) Restore(record *Record) error {
	if !record.Installed {
		return nil
	}
	if err := p.write(record.Addr, record.Original); err != nil {
		return fmt.Errorf("restoring %s: %w", record.Symbol, err)
	}
	record.Installed = false
	return nil
}

// write performs one protect, write, protect cycle.
func (p *Patcher) write(addr uint64, data []byte) error {
	if err := p.image.Protect(addr, len(data), true); err != nil {
		return err
	}
	if err := p.image.WriteText(addr, data); err != nil {
		return err
	}
	return p.image.Protect(addr, len(data), false)
}

// Records returns every record this Patcher holds, ordered by address.
func (p *Patcher) Records() []*Record {
	records := make([]*Record, 0, len(p.records))
	for _, record := range p.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Addr < records[j].Addr })
	return records
}
