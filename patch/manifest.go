// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/switchyard-systems/switchyard/lib/binhash"
)

// Manifest declares the redirects to install in one module before a
// supervised child begins executing. Manifests are authored as JSONC
// (JSON extended with comments and trailing commas):
//
//	{
//	    // simulator SDK stub
//	    "module": "/opt/switchyard/bin/switchyard-stub",
//	    "digest": "4f0c...",    // optional blake3 pin
//	    "redirects": [
//	        {"symbol": "main.internalLookup", "replacement": "main.brokerLookup"},
//	    ],
//	}
type Manifest struct {
	// Module is the ELF whose text gets patched.
	Module string `json:"module"`

	// Digest optionally pins the module to a blake3 digest. Redirect
	// addresses resolved against one build must not be installed into
	// another, so a mismatch aborts the patch.
	Digest string `json:"digest"`

	// Redirects name the symbols to divert. Replacement symbols live
	// in the same module.
	Redirects []Redirect `json:"redirects"`
}

// Redirect diverts one symbol to a replacement symbol.
type Redirect struct {
	Symbol      string `json:"symbol"`
	Replacement string `json:"replacement"`
}

// ParseManifest strips JSONC comments and trailing commas from data,
// unmarshals the result, and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var manifest Manifest
	if err := json.Unmarshal(stripped, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ReadManifest reads a JSONC manifest file from disk and parses it.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// Validate checks structural requirements: a module path, at least one
// redirect, non-empty distinct symbol pairs, and a well-formed digest
// when one is pinned.
func (m *Manifest) Validate() error {
	if m.Module == "" {
		return fmt.Errorf("manifest: module is required")
	}
	if len(m.Redirects) == 0 {
		return fmt.Errorf("manifest: at least one redirect is required")
	}
	for i, redirect := range m.Redirects {
		if redirect.Symbol == "" {
			return fmt.Errorf("manifest: redirect %d: symbol is required", i)
		}
		if redirect.Replacement == "" {
			return fmt.Errorf("manifest: redirect %d: replacement is required", i)
		}
		if redirect.Symbol == redirect.Replacement {
			return fmt.Errorf("manifest: redirect %d: %s redirects to itself", i, redirect.Symbol)
		}
	}
	if m.Digest != "" {
		if _, err := binhash.ParseDigest(m.Digest); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
	}
	return nil
}

// VerifyDigest hashes the module and compares it against the pinned
// digest. A manifest without a digest passes.
func (m *Manifest) VerifyDigest() error {
	if m.Digest == "" {
		return nil
	}
	want, err := binhash.ParseDigest(m.Digest)
	if err != nil {
		return fmt.Errorf("manifest digest: %w", err)
	}
	have, err := binhash.HashFile(m.Module)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", m.Module, err)
	}
	if have != want {
		return fmt.Errorf("module %s digest mismatch: have %s, want %s",
			m.Module, binhash.FormatDigest(have), binhash.FormatDigest(want))
	}
	return nil
}
