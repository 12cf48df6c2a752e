// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleMaps = `00400000-00452000 r--p 00000000 08:02 173521 /usr/bin/other
00452000-0049a000 r-xp 00052000 08:02 173521 /usr/bin/other
7f1200001000-7f1200002000 r--p 00000000 08:02 9001 /opt/mod/libdemo.so
7f1200003000-7f1200008000 r-xp 00002000 08:02 9001 /opt/mod/libdemo.so
7f1200008000-7f120000a000 rw-p 00007000 08:02 9001 /opt/mod/libdemo.so
7ffd4a000000-7ffd4a021000 rw-p 00000000 00:00 0 [stack]
7ffd4a0fe000-7ffd4a100000 r-xp 00000000 00:00 0 [vdso]
`

func writeMaps(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maps")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadBiasFromMaps(t *testing.T) {
	path := writeMaps(t, sampleMaps)

	// The executable segment links at 0x2100 (page 0x2000) and maps at
	// 0x7f1200003000, so the module slid by 0x7f1200001000.
	bias, err := loadBiasFrom(path, "/opt/mod/libdemo.so", 0x2100, 4096)
	if err != nil {
		t.Fatalf("loadBiasFrom: %v", err)
	}
	if want := uint64(0x7f1200001000); bias != want {
		t.Errorf("bias = %#x, want %#x", bias, want)
	}
}

func TestLoadBiasFixedPosition(t *testing.T) {
	path := writeMaps(t, sampleMaps)

	// A fixed-position executable maps at its link address.
	bias, err := loadBiasFrom(path, "/usr/bin/other", 0x452000, 4096)
	if err != nil {
		t.Fatalf("loadBiasFrom: %v", err)
	}
	if bias != 0 {
		t.Errorf("bias = %#x, want 0", bias)
	}
}

func TestLoadBiasModuleNotMapped(t *testing.T) {
	path := writeMaps(t, sampleMaps)
	if _, err := loadBiasFrom(path, "/opt/mod/absent.so", 0x1000, 4096); err == nil {
		t.Error("expected an error for an unmapped module")
	}
}
