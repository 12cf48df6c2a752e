// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testImage returns a write-protected image at base 0x1000 whose text
// is a recognizable byte ramp, plus a pristine copy for comparison.
func testImage(size int) (*MemoryImage, []byte) {
	text := make([]byte, size)
	for i := range text {
		text[i] = byte(i)
	}
	pristine := append([]byte(nil), text...)
	return NewMemoryImage(0x1000, text), pristine
}

func TestInstallRedirectWritesTrampoline(t *testing.T) {
	image, pristine := testImage(256)
	patcher := NewPatcher(image)

	record, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020)
	if err != nil {
		t.Fatalf("InstallRedirect: %v", err)
	}
	if !record.Installed {
		t.Error("record not marked installed")
	}
	if !bytes.Equal(record.Original, pristine[0x10:0x10+TrampolineSize]) {
		t.Errorf("saved originals = %x, want %x", record.Original, pristine[0x10:0x10+TrampolineSize])
	}

	written := make([]byte, TrampolineSize)
	if err := image.ReadText(0x1010, written); err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if want := trampoline(0x2020); !bytes.Equal(written, want) {
		t.Errorf("text after install = %x, want %x", written, want)
	}
}

func TestInstallRedirectIdempotent(t *testing.T) {
	image, pristine := testImage(256)
	patcher := NewPatcher(image)

	first, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020)
	if err != nil {
		t.Fatalf("first InstallRedirect: %v", err)
	}
	second, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020)
	if err != nil {
		t.Fatalf("second InstallRedirect: %v", err)
	}
	if first != second {
		t.Error("double installation produced two records")
	}
	if got := len(patcher.Records()); got != 1 {
		t.Errorf("Records() has %d entries, want 1", got)
	}
	// The saved bytes are still the pre-first-install text, not
	// trampoline bytes.
	if !bytes.Equal(second.Original, pristine[0x10:0x10+TrampolineSize]) {
		t.Errorf("double install corrupted saved originals: %x", second.Original)
	}
}

func TestInstallRedirectConflict(t *testing.T) {
	image, _ := testImage(256)
	patcher := NewPatcher(image)

	if _, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020); err != nil {
		t.Fatalf("InstallRedirect: %v", err)
	}
	if _, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x3030); !errors.Is(err, ErrRedirectConflict) {
		t.Errorf("conflicting InstallRedirect = %v, want ErrRedirectConflict", err)
	}
}

func TestRestoreAndReinstall(t *testing.T) {
	image, pristine := testImage(256)
	patcher := NewPatcher(image)

	record, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020)
	if err != nil {
		t.Fatalf("InstallRedirect: %v", err)
	}
	if err := patcher.Restore(record); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if record.Installed {
		t.Error("record still marked installed after restore")
	}

	current := make([]byte, TrampolineSize)
	if err := image.ReadText(0x1010, current); err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if !bytes.Equal(current, pristine[0x10:0x10+TrampolineSize]) {
		t.Errorf("text after restore = %x, want pristine %x", current, pristine[0x10:0x10+TrampolineSize])
	}

	// Restoring an uninstalled record is a no-op.
	if err := patcher.Restore(record); err != nil {
		t.Errorf("second Restore: %v", err)
	}

	// Reinstallation reuses the record and rewrites the jump.
	again, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020)
	if err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if again != record {
		t.Error("reinstall created a second record")
	}
	if err := image.ReadText(0x1010, current); err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if want := trampoline(0x2020); !bytes.Equal(current, want) {
		t.Errorf("text after reinstall = %x, want %x", current, want)
	}
}

func TestPatcherClosesWriteWindow(t *testing.T) {
	image, _ := testImage(256)
	patcher := NewPatcher(image)

	if _, err := patcher.InstallRedirect("mod", "target", 0x1010, 0x2020); err != nil {
		t.Fatalf("InstallRedirect: %v", err)
	}
	if err := image.WriteText(0x1010, []byte{0}); !errors.Is(err, ErrTextProtected) {
		t.Errorf("WriteText after install = %v, want ErrTextProtected", err)
	}
}

func TestApplyRedirectsResolvesSymbols(t *testing.T) {
	text := make([]byte, 0x400)
	image := NewMemoryImage(0x7000, text)
	symbols := &Symbols{
		path: "mod",
		byName: map[string]Symbol{
			"internal_lookup": {Name: "internal_lookup", Addr: 0x100, Size: 64},
			"broker_lookup":   {Name: "broker_lookup", Addr: 0x200, Size: 64},
		},
	}
	patcher := NewPatcher(image)

	redirects := []Redirect{{Symbol: "internal_lookup", Replacement: "broker_lookup"}}
	if err := applyRedirects(patcher, symbols, 0x7000, "mod", redirects, testLogger()); err != nil {
		t.Fatalf("applyRedirects: %v", err)
	}

	records := patcher.Records()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	record := records[0]
	if record.Addr != 0x7100 || record.Replacement != 0x7200 {
		t.Errorf("record = %#x -> %#x, want 0x7100 -> 0x7200", record.Addr, record.Replacement)
	}
	written := make([]byte, TrampolineSize)
	if err := image.ReadText(0x7100, written); err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if want := trampoline(0x7200); !bytes.Equal(written, want) {
		t.Errorf("text at 0x7100 = %x, want %x", written, want)
	}
}

func TestApplyRedirectsMissingSymbol(t *testing.T) {
	image := NewMemoryImage(0x7000, make([]byte, 0x400))
	symbols := &Symbols{path: "mod", byName: map[string]Symbol{
		"present": {Name: "present", Addr: 0x100, Size: 64},
	}}
	redirects := []Redirect{{Symbol: "absent", Replacement: "present"}}
	err := applyRedirects(NewPatcher(image), symbols, 0x7000, "mod", redirects, testLogger())
	if !errors.Is(err, ErrSymbolMissing) {
		t.Errorf("applyRedirects = %v, want ErrSymbolMissing", err)
	}
}

func TestApplyRedirectsRefusesTinyTarget(t *testing.T) {
	image := NewMemoryImage(0x7000, make([]byte, 0x400))
	symbols := &Symbols{path: "mod", byName: map[string]Symbol{
		"tiny":        {Name: "tiny", Addr: 0x100, Size: 4},
		"replacement": {Name: "replacement", Addr: 0x200, Size: 64},
	}}
	redirects := []Redirect{{Symbol: "tiny", Replacement: "replacement"}}
	err := applyRedirects(NewPatcher(image), symbols, 0x7000, "mod", redirects, testLogger())
	if err == nil {
		t.Error("redirect of a 4-byte function was accepted")
	}
}
