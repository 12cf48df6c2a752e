// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/switchyard-systems/switchyard/lib/clock"
	"github.com/switchyard-systems/switchyard/lib/config"
	"github.com/switchyard-systems/switchyard/lib/namespace"
	"github.com/switchyard-systems/switchyard/lib/testutil"
)

// childModeEnv switches the re-executed test binary into child mode.
// Spawn tests point program paths at os.Args[0] with this variable
// set, so the "child process" is this test binary running one of the
// behaviors below.
const childModeEnv = "SWITCHYARD_SUPERVISOR_TEST_MODE"

func TestMain(m *testing.M) {
	switch os.Getenv(childModeEnv) {
	case "":
		os.Exit(m.Run())
	case "exit-zero":
		os.Exit(0)
	case "exit-seven":
		os.Exit(7)
	case "sleep":
		// Block until SIGTERM, then exit cleanly.
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM)
		<-ch
		os.Exit(0)
	case "stubborn":
		// Ignore SIGTERM; only SIGKILL ends this one.
		signal.Ignore(syscall.SIGTERM)
		select {}
	default:
		os.Exit(3)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestSupervisor(t *testing.T, clk clock.Clock, programs ...config.Program) *Supervisor {
	t.Helper()
	logger := testLogger()
	table := namespace.New(logger)
	t.Cleanup(table.Close)
	return New(Config{
		SocketPath: testutil.SocketPath(t, "bootstrap"),
		Programs:   programs,
		Namespace:  table,
		Clock:      clk,
		Logger:     logger,
	})
}

// selfProgram builds a Program that re-executes this test binary in
// the given child mode.
func selfProgram(name, mode string) config.Program {
	return config.Program{
		Name:           name,
		Path:           os.Args[0],
		Env:            []string{childModeEnv + "=" + mode},
		StartTimeout:   config.Duration(30 * time.Second),
		RestartBackoff: config.Duration(time.Second),
	}
}

func TestSpawnAndReap(t *testing.T) {
	s := newTestSupervisor(t, clock.Real(), selfProgram("worker", "exit-zero"))

	if err := s.StartProgram(context.Background(), "worker"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}

	child := s.Child("worker")
	if child == nil {
		t.Fatal("no child record after start")
	}
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "child never reaped")
	if child.State() != StateTerminated {
		t.Fatalf("state = %v, want %v", child.State(), StateTerminated)
	}
	if err := child.ExitError(); err != nil {
		t.Fatalf("clean exit reported error: %v", err)
	}

	event := testutil.RequireReceive(t, s.Events(), time.Second, "no started event")
	if event.Type != EventStarted {
		t.Fatalf("first event = %v, want %v", event.Type, EventStarted)
	}
	event = testutil.RequireReceive(t, s.Events(), time.Second, "no exited event")
	if event.Type != EventExited || event.Program != "worker" {
		t.Fatalf("second event = %+v, want exited worker", event)
	}
}

func TestExitStatusReported(t *testing.T) {
	s := newTestSupervisor(t, clock.Real(), selfProgram("worker", "exit-seven"))

	if err := s.StartProgram(context.Background(), "worker"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}
	child := s.Child("worker")
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "child never reaped")

	err := child.ExitError()
	if err == nil {
		t.Fatal("exit status 7 reported as clean")
	}
	var exit *exec.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("error = %v, want exec.ExitError", err)
	}
	if exit.ExitCode() != 7 {
		t.Fatalf("exit code = %d, want 7", exit.ExitCode())
	}
}

func TestSpawnFailureRetriesWithBackoff(t *testing.T) {
	clk := clock.Manual(time.Unix(1700000000, 0))
	program := config.Program{
		Name:            "ghost",
		Path:            "/nonexistent/switchyard-test-binary",
		RestartAttempts: 2,
		RestartBackoff:  config.Duration(2 * time.Second),
		StartTimeout:    config.Duration(30 * time.Second),
	}
	s := newTestSupervisor(t, clk, program)

	done := make(chan error, 1)
	go func() {
		done <- s.StartProgram(context.Background(), "ghost")
	}()

	// Two retries, each gated on the backoff timer.
	for i := 0; i < 2; i++ {
		clk.AwaitWaiters(1)
		clk.Advance(2 * time.Second)
	}

	err := testutil.RequireReceive(t, done, 5*time.Second, "StartProgram never returned")
	if err == nil {
		t.Fatal("starting a nonexistent binary succeeded")
	}
	var failure *SpawnFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want SpawnFailure", err)
	}
	if failure.Phase != PhaseSpawn {
		t.Fatalf("phase = %q, want %q", failure.Phase, PhaseSpawn)
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	s := newTestSupervisor(t, clock.Real(), selfProgram("worker", "sleep"))

	if err := s.StartProgram(context.Background(), "worker"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}
	if err := s.StartProgram(context.Background(), "worker"); err == nil {
		t.Fatal("second start of a running program succeeded")
	}

	child := s.Child("worker")
	if err := s.Terminate("worker"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "child ignored SIGTERM")

	// A terminated program may be started again.
	if err := s.StartProgram(context.Background(), "worker"); err != nil {
		t.Fatalf("restart after exit: %v", err)
	}
	child = s.Child("worker")
	s.Terminate("worker")
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "restarted child ignored SIGTERM")
}

func TestStartUnknownProgram(t *testing.T) {
	s := newTestSupervisor(t, clock.Real())
	if err := s.StartProgram(context.Background(), "nobody"); err == nil {
		t.Fatal("starting an unconfigured program succeeded")
	}
}

func TestServiceCheckInGating(t *testing.T) {
	program := selfProgram("provider", "sleep")
	program.Services = []string{"svc/echo"}
	s := newTestSupervisor(t, clock.Real(), program)

	done := make(chan error, 1)
	go func() {
		done <- s.StartProgram(context.Background(), "provider")
	}()

	// StartProgram must still be blocked on the check-in.
	select {
	case err := <-done:
		t.Fatalf("StartProgram returned %v before the service checked in", err)
	case <-time.After(100 * time.Millisecond):
	}

	// Check in on the real child's behalf.
	child := awaitChild(t, s, "provider")
	receive, err := s.table.CheckIn("svc/echo", int32(child.PID()))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	defer receive.Close()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "StartProgram never returned"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}

	s.Terminate("provider")
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "child ignored SIGTERM")

	// The reaper reverts the dead owner's names to pending.
	infos := s.table.List()
	for _, info := range infos {
		if info.Name == "svc/echo" && info.Status == namespace.StatusCheckedIn {
			t.Fatal("dead owner's service still checked in")
		}
	}
}

func TestServiceCheckInTimeout(t *testing.T) {
	clk := clock.Manual(time.Unix(1700000000, 0))
	program := selfProgram("provider", "sleep")
	program.Services = []string{"svc/never"}
	program.StartTimeout = config.Duration(10 * time.Second)
	s := newTestSupervisor(t, clk, program)

	done := make(chan error, 1)
	go func() {
		done <- s.StartProgram(context.Background(), "provider")
	}()

	clk.AwaitWaiters(1)
	clk.Advance(10 * time.Second)

	err := testutil.RequireReceive(t, done, 5*time.Second, "StartProgram never returned")
	var failure *SpawnFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want SpawnFailure", err)
	}
	if failure.Phase != PhaseCheckIn {
		t.Fatalf("phase = %q, want %q", failure.Phase, PhaseCheckIn)
	}

	// The timed-out child is killed, not leaked.
	child := s.Child("provider")
	testutil.RequireClosed(t, child.Done(), 5*time.Second, "timed-out child not killed")
}

func TestChildDeathDuringCheckInWait(t *testing.T) {
	program := selfProgram("flaky", "exit-seven")
	program.Services = []string{"svc/never"}
	s := newTestSupervisor(t, clock.Real(), program)

	err := s.StartProgram(context.Background(), "flaky")
	var failure *SpawnFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want SpawnFailure", err)
	}
	if failure.Phase != PhaseCheckIn {
		t.Fatalf("phase = %q, want %q", failure.Phase, PhaseCheckIn)
	}
}

func TestRunCriticalDeath(t *testing.T) {
	critical := selfProgram("core", "exit-seven")
	critical.Critical = true
	s := newTestSupervisor(t, clock.Real(), critical)
	go drainEvents(s)

	err := runSupervisor(t, s, context.Background())
	if !errors.Is(err, ErrCriticalExit) {
		t.Fatalf("Run = %v, want ErrCriticalExit", err)
	}
}

func TestRunShutdownOnCancel(t *testing.T) {
	s := newTestSupervisor(t, clock.Real(),
		selfProgram("first", "sleep"),
		selfProgram("second", "sleep"))
	go drainEvents(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := awaitChild(t, s, "first")
	second := awaitChild(t, s, "second")

	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "Run never returned"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.RequireClosed(t, first.Done(), time.Second, "first child survived shutdown")
	testutil.RequireClosed(t, second.Done(), time.Second, "second child survived shutdown")

	// A critical child terminated by shutdown must not look like a
	// critical death.
	select {
	case <-s.criticalDeath:
		t.Fatal("shutdown triggered the critical-death path")
	default:
	}
}

func TestShutdownEscalatesToKill(t *testing.T) {
	clk := clock.Manual(time.Unix(1700000000, 0))
	s := newTestSupervisor(t, clk, selfProgram("mule", "stubborn"))
	go drainEvents(s)

	if err := s.StartProgram(context.Background(), "mule"); err != nil {
		t.Fatalf("StartProgram: %v", err)
	}
	child := s.Child("mule")

	done := make(chan struct{})
	go func() {
		s.shutdown()
		close(done)
	}()

	// shutdown waits out the SIGTERM grace period before SIGKILL.
	clk.AwaitWaiters(1)
	clk.Advance(shutdownGrace)

	testutil.RequireClosed(t, done, 10*time.Second, "shutdown never finished")
	testutil.RequireClosed(t, child.Done(), time.Second, "stubborn child survived SIGKILL")
	if child.ExitError() == nil {
		t.Fatal("SIGKILL reported as a clean exit")
	}
}

// awaitChild polls for the child record to appear; StartProgram
// installs it before it returns, but Run starts programs
// asynchronously to the test.
func awaitChild(t *testing.T, s *Supervisor, name string) *Child {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if child := s.Child(name); child != nil {
			return child
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("child %q never appeared", name)
	return nil
}

func drainEvents(s *Supervisor) {
	for range s.Events() {
	}
}

func runSupervisor(t *testing.T, s *Supervisor, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return testutil.RequireReceive(t, done, 15*time.Second, "Run never returned")
}
