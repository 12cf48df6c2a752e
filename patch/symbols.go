// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"debug/elf"
	"errors"
	"fmt"
)

// ErrSymbolMissing reports that a name is not present in any symbol
// table of a module. A missing redirect target is fatal for the
// process being patched: running it with the original routine intact
// fails much later and much more confusingly than aborting here.
var ErrSymbolMissing = errors.New("patch: symbol not found in module")

// Symbol is one function symbol at its link-time virtual address.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Symbols indexes the function symbols of one ELF module. Both the
// dynamic export table and the full .symtab are read: the routines
// worth redirecting are usually internal helpers that never appear in
// the export table.
type Symbols struct {
	path      string
	textVaddr uint64
	byName    map[string]Symbol
}

// LoadSymbols parses the ELF module at path and indexes its defined
// function symbols. Modules stripped of both symbol tables are
// rejected, since nothing in them can be located by name.
func LoadSymbols(path string) (*Symbols, error) {
	file, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	textVaddr, err := executableVaddr(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	byName := make(map[string]Symbol)
	dynamic, err := file.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("reading dynamic symbols of %s: %w", path, err)
	}
	indexFunctions(byName, dynamic)

	// .symtab entries override .dynsym ones. A name defined in both
	// tables carries the same address, and .symtab also covers the
	// non-exported functions.
	full, err := file.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("reading symbol table of %s: %w", path, err)
	}
	indexFunctions(byName, full)

	if len(byName) == 0 {
		return nil, fmt.Errorf("%s: no function symbols (stripped module?)", path)
	}
	return &Symbols{path: path, textVaddr: textVaddr, byName: byName}, nil
}

// indexFunctions adds defined function symbols to byName, skipping
// undefined references and non-function entries (objects, sections,
// file markers).
func indexFunctions(byName map[string]Symbol, symbols []elf.Symbol) {
	for _, s := range symbols {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Section == elf.SHN_UNDEF || s.Value == 0 {
			continue
		}
		byName[s.Name] = Symbol{Name: s.Name, Addr: s.Value, Size: s.Size}
	}
}

// executableVaddr returns the link-time virtual address of the lowest
// executable load segment. LoadBias subtracts it from the segment's
// runtime mapping to recover the module's load bias.
func executableVaddr(file *elf.File) (uint64, error) {
	var vaddr uint64
	found := false
	for _, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD || prog.Flags&elf.PF_X == 0 {
			continue
		}
		if !found || prog.Vaddr < vaddr {
			vaddr = prog.Vaddr
			found = true
		}
	}
	if !found {
		return 0, errors.New("no executable load segment")
	}
	return vaddr, nil
}

// Locate resolves a function name to its symbol. Missing names return
// an error wrapping ErrSymbolMissing.
func (s *Symbols) Locate(name string) (Symbol, error) {
	symbol, ok := s.byName[name]
	if !ok {
		return Symbol{}, fmt.Errorf("%s in %s: %w", name, s.path, ErrSymbolMissing)
	}
	return symbol, nil
}

// Path returns the module path the symbols were loaded from.
func (s *Symbols) Path() string { return s.path }

// ExecVaddr returns the link-time address of the module's executable
// load segment, for LoadBias.
func (s *Symbols) ExecVaddr() uint64 { return s.textVaddr }
