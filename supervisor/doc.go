// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor spawns and supervises the broker's client
// processes.
//
// Programs start in configuration order, each gated on the services
// it declares in wait_for: the next program does not spawn until
// those names are checked in. A program that carries a patch manifest
// is started ptrace-stopped at its exec trap, patched while no
// instruction of it has run, and only then released. There is no
// window in which the child can call an unpatched path. Patch and
// spawn failures kill the child and are retried with backoff up to
// the configured attempt budget; a terminal failure of a critical
// program shuts the whole broker down, the way the original
// environment treated its display server.
//
// Waiting never happens on the broker's threads. The supervisor runs
// beside the broker's accept loop, so a slow child cannot starve
// other children's namespace traffic.
//
// Child death is reaped promptly: the namespace entries the child
// owned revert to pending, the exit lands in the journal, and an
// [Event] goes to the Events channel. Shutdown terminates children in
// reverse spawn order, SIGTERM first, SIGKILL after a grace period.
package supervisor
