// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/switchyard-systems/switchyard/lib/binhash"
	"github.com/switchyard-systems/switchyard/lib/testutil"
	"github.com/switchyard-systems/switchyard/supervisor"
)

// The resolve child calls brokenResolve, which always fails. The
// manifest below diverts it to realResolve inside the child's own
// text, so a patched child resolves through the broker and exits 0.
const (
	brokenSymbol = "github.com/switchyard-systems/switchyard/integration.brokenResolve"
	realSymbol   = "github.com/switchyard-systems/switchyard/integration.realResolve"
)

func requirePatchArch(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		t.Skipf("no trampoline encoding for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

// writeManifest pins this test binary and diverts the broken resolver,
// exercising the JSONC form a deployment would author by hand.
func writeManifest(t *testing.T) string {
	t.Helper()
	digest, err := binhash.HashFile(testExecutable)
	if err != nil {
		t.Fatalf("hashing test binary: %v", err)
	}
	manifest := fmt.Sprintf(`{
    // integration test binary, re-executed as the child
    "module": %q,
    "digest": %q,
    "redirects": [
        {"symbol": %q, "replacement": %q},
    ],
}
`, testExecutable, binhash.FormatDigest(digest), brokenSymbol, realSymbol)

	path := filepath.Join(t.TempDir(), "resolver.jsonc")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

// startResolver serves the named service in-process and supervises a
// resolve-mode child against it, returning the child's exit event.
func startResolver(t *testing.T, manifestPath string) supervisor.Event {
	t.Helper()
	stack := startStack(t)
	name := testutil.UniqueID("svc/resolve")

	resolver := childProgram("resolver", "resolve", name)
	resolver.Manifest = manifestPath

	sup := stack.newSupervisor(t, resolver)
	if err := sup.StartProgram(t.Context(), "resolver"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}

	// The provider arrives only after the resolver is running, so a
	// patched resolver observes pending first and has to retry.
	provider := stack.dialClient(t)
	receive, err := provider.CheckIn(name)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	t.Cleanup(func() { receive.Close() })

	return awaitEvent(t, sup.Events(), "resolver", supervisor.EventExited)
}

// TestPatchedChildResolves is the load-time patch end to end: the
// supervisor spawns the child ptrace-stopped, rewrites the broken
// resolver at its exec trap, and the released child succeeds where an
// unpatched one cannot.
func TestPatchedChildResolves(t *testing.T) {
	requirePatchArch(t)

	exited := startResolver(t, writeManifest(t))
	if exited.Err != nil {
		t.Fatalf("patched resolver exited with %v", exited.Err)
	}
}

// TestUnpatchedChildFails pins the premise of the patch test: without
// the redirect the resolve path really is broken.
func TestUnpatchedChildFails(t *testing.T) {
	exited := startResolver(t, "")
	if exited.Err == nil {
		t.Fatal("unpatched resolver exited 0; the broken path is not broken")
	}
}

// TestDigestMismatchAbortsSpawn: a manifest pinned to a different
// build must refuse to patch, and the spawn reports the failure.
func TestDigestMismatchAbortsSpawn(t *testing.T) {
	requirePatchArch(t)
	stack := startStack(t)
	name := testutil.UniqueID("svc/resolve")

	var stale [32]byte
	stale[0] = 0xde
	manifest := fmt.Sprintf(`{
    "module": %q,
    "digest": %q,
    "redirects": [{"symbol": %q, "replacement": %q}],
}
`, testExecutable, binhash.FormatDigest(stale), brokenSymbol, realSymbol)
	path := filepath.Join(t.TempDir(), "stale.jsonc")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	resolver := childProgram("resolver", "resolve", name)
	resolver.Manifest = path
	resolver.RestartAttempts = 0

	sup := stack.newSupervisor(t, resolver)
	err := sup.StartProgram(t.Context(), "resolver")
	if err == nil {
		t.Fatal("StartProgram succeeded with a mismatched digest pin")
	}
	var failure *supervisor.SpawnFailure
	if !errors.As(err, &failure) || failure.Phase != supervisor.PhasePatch {
		t.Fatalf("StartProgram: %v, want a patch-phase spawn failure", err)
	}
	if sup.Child("resolver") != nil {
		t.Fatal("failed spawn left a child record behind")
	}
}
