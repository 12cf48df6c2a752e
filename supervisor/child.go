// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/switchyard-systems/switchyard/lib/client"
	"github.com/switchyard-systems/switchyard/lib/config"
	"github.com/switchyard-systems/switchyard/lib/journal"
	"github.com/switchyard-systems/switchyard/patch"
)

// shutdownGrace is how long a child gets between SIGTERM and SIGKILL
// during shutdown.
const shutdownGrace = 5 * time.Second

// State is a child's lifecycle state.
type State int

const (
	// StateRunning: the child process is alive. It may or may not
	// have checked its services in yet.
	StateRunning State = iota + 1

	// StateTerminated: the child has been reaped.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Child is one supervised process.
type Child struct {
	program config.Program
	cmd     *exec.Cmd
	pid     int

	// done is closed by wait() after the child is reaped.
	done chan struct{}

	mutex    sync.Mutex
	state    State
	exitErr  error
	shutdown bool
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.pid }

// Done is closed once the child has been reaped.
func (c *Child) Done() <-chan struct{} { return c.done }

// State returns the child's current lifecycle state.
func (c *Child) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// ExitError returns the error cmd.Wait reported, nil for a clean
// exit. Meaningful only after Done is closed.
func (c *Child) ExitError() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.exitErr
}

// Terminate sends SIGTERM to the child.
func (c *Child) Terminate() error {
	return c.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL to the child's process group. The child is
// spawned as a group leader, so this takes any processes it forked
// down with it.
func (c *Child) Kill() {
	unix.Kill(-c.pid, unix.SIGKILL)
}

// markShutdown records that the supervisor itself is terminating this
// child, so its death must not be treated as a critical failure.
func (c *Child) markShutdown() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.shutdown = true
}

func (c *Child) killedByShutdown() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.shutdown
}

// wait reaps the child. Called exactly once, from the supervisor's
// reap goroutine.
func (c *Child) wait() error {
	err := c.cmd.Wait()
	c.mutex.Lock()
	c.state = StateTerminated
	c.exitErr = err
	c.mutex.Unlock()
	close(c.done)
	return err
}

// spawnPatched starts one child process. A program with a patch
// manifest is started ptrace-stopped at its exec trap, patched before
// any of its instructions run, and then released. The returned child
// is alive but not yet reaped; the caller owns reaping.
//
// Any failure past a successful start kills and reaps the process
// before the error returns, so a failed spawn leaves nothing behind.
func (s *Supervisor) spawnPatched(program config.Program) (*Child, error) {
	var manifest *patch.Manifest
	if program.Manifest != "" {
		var err error
		manifest, err = patch.ReadManifest(program.Manifest)
		if err != nil {
			return nil, &SpawnFailure{Program: program.Name, Phase: PhasePatch, Err: err}
		}
	}

	cmd := exec.Command(program.Path, program.Args...)
	cmd.Env = append(os.Environ(), client.SocketEnv+"="+s.socketPath)
	cmd.Env = append(cmd.Env, program.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
		Ptrace:    manifest != nil,
	}

	// Ptrace requests must come from the thread that started the
	// tracee. The whole start-trap-patch-detach sequence runs on one
	// locked OS thread; the spawning goroutine just waits for it.
	type startResult struct {
		pid     int
		records int
		err     error
	}
	resultCh := make(chan startResult, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := cmd.Start(); err != nil {
			resultCh <- startResult{err: &SpawnFailure{
				Program: program.Name, Phase: PhaseSpawn, Err: err}}
			return
		}
		pid := cmd.Process.Pid
		s.journalEvent(journal.KindSpawn, program.Name, pid, program.Path)

		if manifest == nil {
			resultCh <- startResult{pid: pid}
			return
		}

		fail := func(phase Phase, err error) {
			unix.Kill(pid, unix.SIGKILL)
			unix.PtraceDetach(pid)
			cmd.Wait()
			resultCh <- startResult{err: &SpawnFailure{
				Program: program.Name, Phase: phase, Err: err}}
		}

		// The child raised PTRACE_TRACEME and stops with SIGTRAP at
		// the end of its execve. No instruction of the new image has
		// run when this wait returns.
		var status unix.WaitStatus
		if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
			fail(PhaseSpawn, fmt.Errorf("waiting for exec trap: %w", err))
			return
		}
		if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
			fail(PhaseSpawn, fmt.Errorf("unexpected wait status %#x at exec trap", status))
			return
		}

		records, err := patch.Apply(pid, manifest, s.logger)
		if err != nil {
			fail(PhasePatch, err)
			return
		}
		s.journalEvent(journal.KindPatch, program.Name, pid,
			fmt.Sprintf("%s: %d redirects", manifest.Module, len(records)))

		if err := unix.PtraceDetach(pid); err != nil {
			fail(PhaseRelease, fmt.Errorf("releasing child: %w", err))
			return
		}
		resultCh <- startResult{pid: pid, records: len(records)}
	}()

	result := <-resultCh
	if result.err != nil {
		return nil, result.err
	}

	return &Child{
		program: program,
		cmd:     cmd,
		pid:     result.pid,
		done:    make(chan struct{}),
		state:   StateRunning,
	}, nil
}
