// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// Rewrites this test binary's own text. Safe on this architecture:
// the instruction cache snoops stores, and the mprotect calls around
// each write serialize execution.
func TestSelfImageLiveRedirect(t *testing.T) {
	executable, err := os.Executable()
	if err != nil {
		t.Fatalf("Executable: %v", err)
	}
	symbols, err := LoadSymbols(executable)
	if err != nil {
		t.Fatalf("LoadSymbols: %v", err)
	}
	bias, err := LoadBias(os.Getpid(), executable, symbols.ExecVaddr())
	if err != nil {
		t.Fatalf("LoadBias: %v", err)
	}

	targetName, targetEntry := funcSymbol(t, symbolProbe)
	replacementName, replacementEntry := funcSymbol(t, symbolProbeReplacement)
	target, err := symbols.Locate(targetName)
	if err != nil {
		t.Fatalf("Locate(%s): %v", targetName, err)
	}
	replacement, err := symbols.Locate(replacementName)
	if err != nil {
		t.Fatalf("Locate(%s): %v", replacementName, err)
	}
	// Refuse to write anywhere but the exact entries the calls below
	// will land on.
	if bias+target.Addr != targetEntry {
		t.Fatalf("%s resolves to %#x, runtime entry is %#x", targetName, bias+target.Addr, targetEntry)
	}
	if bias+replacement.Addr != replacementEntry {
		t.Fatalf("%s resolves to %#x, runtime entry is %#x", replacementName, bias+replacement.Addr, replacementEntry)
	}

	if got := symbolProbe(4); got != 15 {
		t.Fatalf("baseline symbolProbe(4) = %d, want 15", got)
	}

	patcher := NewPatcher(NewSelfImage())
	record, err := patcher.InstallRedirect(executable, targetName, targetEntry, replacementEntry)
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		t.Skipf("text pages not writable here: %v", err)
	}
	if err != nil {
		t.Fatalf("InstallRedirect: %v", err)
	}

	redirected := symbolProbe(4)
	restoreErr := patcher.Restore(record)
	if redirected != -4 {
		t.Errorf("patched symbolProbe(4) = %d, want -4", redirected)
	}
	if restoreErr != nil {
		t.Fatalf("Restore: %v", restoreErr)
	}
	if got := symbolProbe(4); got != 15 {
		t.Errorf("restored symbolProbe(4) = %d, want 15", got)
	}
}
