// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Apply installs every redirect of manifest into the ptrace-stopped
// process pid. The module must already be mapped, which holds when the
// child is stopped at its exec trap. Returns the installed records,
// ordered by address.
//
// Apply aborts on the first unresolvable symbol or failed write. A
// partially patched child must never be released: the caller kills it
// and reports a startup failure instead.
func Apply(pid int, manifest *Manifest, logger *slog.Logger) ([]*Record, error) {
	if err := manifest.VerifyDigest(); err != nil {
		return nil, err
	}

	// The maps file reports canonical paths.
	module, err := filepath.Abs(manifest.Module)
	if err == nil {
		module, err = filepath.EvalSymlinks(module)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", manifest.Module, err)
	}

	symbols, err := LoadSymbols(module)
	if err != nil {
		return nil, err
	}
	bias, err := LoadBias(pid, module, symbols.ExecVaddr())
	if err != nil {
		return nil, err
	}

	patcher := NewPatcher(NewRemoteImage(pid))
	if err := applyRedirects(patcher, symbols, bias, module, manifest.Redirects, logger); err != nil {
		return nil, err
	}
	return patcher.Records(), nil
}

// applyRedirects resolves and installs each redirect through the given
// patcher. Split from Apply so the resolution and installation logic
// can run against any Image.
func applyRedirects(patcher *Patcher, symbols *Symbols, bias uint64, module string, redirects []Redirect, logger *slog.Logger) error {
	for _, redirect := range redirects {
		target, err := symbols.Locate(redirect.Symbol)
		if err != nil {
			return err
		}
		// A known-size target smaller than the jump cannot be patched
		// without clobbering whatever follows it.
		if target.Size != 0 && target.Size < TrampolineSize {
			return fmt.Errorf("patch: %s in %s is %d bytes, smaller than the %d-byte jump",
				redirect.Symbol, module, target.Size, TrampolineSize)
		}
		replacement, err := symbols.Locate(redirect.Replacement)
		if err != nil {
			return err
		}
		record, err := patcher.InstallRedirect(module, redirect.Symbol, bias+target.Addr, bias+replacement.Addr)
		if err != nil {
			return err
		}
		logger.Info("redirect installed",
			"module", module,
			"symbol", redirect.Symbol,
			"replacement", redirect.Replacement,
			"addr", fmt.Sprintf("%#x", record.Addr),
			"target", fmt.Sprintf("%#x", record.Replacement))
	}
	return nil
}
