// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadBias computes the load bias of a module mapped into process pid:
// the difference between the runtime start of the module's executable
// mapping and the link-time page of its executable load segment
// (Symbols.ExecVaddr). Adding the bias to a symbol's link-time address
// yields its runtime address. Fixed-position executables map at their
// link addresses and get bias zero; position-independent ones get the
// ASLR slide.
//
// The module path must match the pathname column of the maps file,
// which the kernel reports canonicalized; resolve symlinks before
// calling.
func LoadBias(pid int, module string, execVaddr uint64) (uint64, error) {
	return loadBiasFrom(fmt.Sprintf("/proc/%d/maps", pid), module, execVaddr, uint64(os.Getpagesize()))
}

// loadBiasFrom is the testable version of LoadBias that accepts a maps
// file path and page size.
func loadBiasFrom(mapsPath, module string, execVaddr, pageSize uint64) (uint64, error) {
	file, err := os.Open(mapsPath)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", mapsPath, err)
	}
	defer file.Close()

	// Each line: "start-end perms offset dev inode pathname". The
	// mapping of interest is the lowest executable range backed by the
	// module.
	var lowest uint64
	found := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 || fields[5] != module {
			continue
		}
		if !strings.Contains(fields[1], "x") {
			continue
		}
		start, _, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		address, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		if !found || address < lowest {
			lowest = address
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading %s: %w", mapsPath, err)
	}
	if !found {
		return 0, fmt.Errorf("%s: no executable mapping of %s", mapsPath, module)
	}

	// The mapping starts at the page containing the segment, so
	// compare page-truncated addresses.
	return lowest - (execVaddr &^ (pageSize - 1)), nil
}
