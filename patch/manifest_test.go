// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/switchyard-systems/switchyard/lib/binhash"
)

func TestParseManifestJSONC(t *testing.T) {
	input := `{
	    // simulator SDK stub
	    "module": "/opt/switchyard/bin/switchyard-stub",
	    "redirects": [
	        {"symbol": "main.internalLookup", "replacement": "main.brokerLookup"},
	    ],
	}`
	manifest, err := ParseManifest([]byte(input))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if manifest.Module != "/opt/switchyard/bin/switchyard-stub" {
		t.Errorf("module = %q", manifest.Module)
	}
	if len(manifest.Redirects) != 1 {
		t.Fatalf("got %d redirects, want 1", len(manifest.Redirects))
	}
	redirect := manifest.Redirects[0]
	if redirect.Symbol != "main.internalLookup" || redirect.Replacement != "main.brokerLookup" {
		t.Errorf("redirect = %+v", redirect)
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no module", `{"redirects": [{"symbol": "a", "replacement": "b"}]}`},
		{"no redirects", `{"module": "/m"}`},
		{"empty symbol", `{"module": "/m", "redirects": [{"symbol": "", "replacement": "b"}]}`},
		{"empty replacement", `{"module": "/m", "redirects": [{"symbol": "a", "replacement": ""}]}`},
		{"self redirect", `{"module": "/m", "redirects": [{"symbol": "a", "replacement": "a"}]}`},
		{"bad digest", `{"module": "/m", "digest": "zz", "redirects": [{"symbol": "a", "replacement": "b"}]}`},
		{"not json", `module = "/m"`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(test.input)); err == nil {
				t.Errorf("ParseManifest accepted %q", test.input)
			}
		})
	}
}

func TestVerifyDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.bin")
	content := []byte("module bytes for digest pinning")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	manifest := &Manifest{
		Module:    path,
		Digest:    binhash.FormatDigest(binhash.HashBytes(content)),
		Redirects: []Redirect{{Symbol: "a", Replacement: "b"}},
	}
	if err := manifest.VerifyDigest(); err != nil {
		t.Fatalf("VerifyDigest with matching pin: %v", err)
	}

	manifest.Digest = binhash.FormatDigest(binhash.HashBytes([]byte("some other build")))
	if err := manifest.VerifyDigest(); err == nil {
		t.Error("VerifyDigest accepted a mismatched pin")
	}

	manifest.Digest = ""
	if err := manifest.VerifyDigest(); err != nil {
		t.Errorf("VerifyDigest without a pin: %v", err)
	}
}
