// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/switchyard-systems/switchyard/lib/clock"
	"github.com/switchyard-systems/switchyard/lib/config"
	"github.com/switchyard-systems/switchyard/lib/journal"
	"github.com/switchyard-systems/switchyard/lib/namespace"
)

// Phase names the startup step a failure happened in. Operators read
// this to tell "the binary would not start" from "it started but its
// services never came up".
type Phase string

const (
	PhaseSpawn   Phase = "spawn"
	PhasePatch   Phase = "patch"
	PhaseRelease Phase = "release"
	PhaseCheckIn Phase = "check-in"
)

// SpawnFailure is the structured startup failure report: which
// program, which phase, and what went wrong.
type SpawnFailure struct {
	Program string
	Phase   Phase
	Err     error
}

func (e *SpawnFailure) Error() string {
	return fmt.Sprintf("starting %s: %s phase: %v", e.Program, e.Phase, e.Err)
}

func (e *SpawnFailure) Unwrap() error { return e.Err }

// ErrCriticalExit is returned by Run when a critical program died (or
// terminally failed to start) and the broker must shut down.
var ErrCriticalExit = errors.New("supervisor: critical program exited")

// EventType classifies supervisor events.
type EventType int

const (
	// EventStarted: the program finished its startup sequence.
	EventStarted EventType = iota + 1

	// EventExited: a running child exited, normally or by signal.
	EventExited

	// EventFailed: a program's start failed terminally.
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventExited:
		return "exited"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is one lifecycle notification, delivered on the Events
// channel. Err is set for EventFailed and for abnormal exits.
type Event struct {
	Type    EventType
	Program string
	PID     int
	Err     error
}

// Config wires a Supervisor together. Namespace and SocketPath are
// required. Journal may be nil (no persistent history); a nil Clock
// means the real one.
type Config struct {
	SocketPath string
	Programs   []config.Program
	Namespace  *namespace.Table
	Journal    *journal.Journal
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Supervisor owns the broker's client processes.
type Supervisor struct {
	socketPath string
	programs   []config.Program
	table      *namespace.Table
	journal    *journal.Journal
	clk        clock.Clock
	logger     *slog.Logger

	events chan Event

	mutex sync.Mutex
	// children is keyed by program name; a respawned program replaces
	// its old record. spawnOrder remembers first-spawn order for the
	// reverse-order shutdown.
	children   map[string]*Child
	spawnOrder []string

	// criticalDeath is closed (once) when a critical child dies.
	criticalDeath     chan struct{}
	criticalDeathOnce sync.Once
}

// New creates a supervisor from config.
func New(cfg Config) *Supervisor {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		socketPath:    cfg.SocketPath,
		programs:      cfg.Programs,
		table:         cfg.Namespace,
		journal:       cfg.Journal,
		clk:           clk,
		logger:        cfg.Logger,
		events:        make(chan Event, 64),
		children:      make(map[string]*Child),
		criticalDeath: make(chan struct{}),
	}
}

// Events delivers lifecycle notifications. The daemon must drain
// this channel; it is buffered deep enough that reaping never blocks
// on a briefly busy consumer.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Run starts every configured program in order, then supervises until
// ctx is cancelled or a critical program dies. On the way out it
// terminates the surviving children in reverse spawn order and waits
// for them. Run returns ErrCriticalExit for a critical death, nil for
// a clean cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	for i := range s.programs {
		program := s.programs[i]

		if err := s.awaitGates(ctx, program); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.shutdown()
			return err
		}
		if err := s.StartProgram(ctx, program.Name); err != nil {
			s.emit(Event{Type: EventFailed, Program: program.Name, Err: err})
			if program.Critical {
				s.logger.Error("critical program failed to start", "program", program.Name, "error", err)
				s.shutdown()
				return fmt.Errorf("%w: %v", ErrCriticalExit, err)
			}
			s.logger.Error("program failed to start", "program", program.Name, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	select {
	case <-ctx.Done():
		s.journalEvent(journal.KindShutdown, "", 0, "context cancelled")
		s.shutdown()
		return nil
	case <-s.criticalDeath:
		s.journalEvent(journal.KindShutdown, "", 0, "critical program exited")
		s.shutdown()
		return ErrCriticalExit
	}
}

// awaitGates blocks until every wait_for service of program is
// checked in. Blocking here holds up later programs, by design; it
// never holds up the broker, which serves on its own goroutines.
func (s *Supervisor) awaitGates(ctx context.Context, program config.Program) error {
	for _, name := range program.WaitFor {
		s.logger.Info("waiting for gate service", "program", program.Name, "service", name)
		if err := s.table.AwaitCheckIn(ctx, name); err != nil {
			return &SpawnFailure{Program: program.Name, Phase: PhaseSpawn,
				Err: fmt.Errorf("gate service: %w", err)}
		}
	}
	return nil
}

// StartProgram starts the named configured program, retrying per its
// restart policy. It is also the control plane's respawn entry point;
// starting a program whose child is still alive is an error.
func (s *Supervisor) StartProgram(ctx context.Context, name string) error {
	program, ok := s.findProgram(name)
	if !ok {
		return fmt.Errorf("unknown program %q", name)
	}
	if child := s.Child(name); child != nil && child.State() != StateTerminated {
		return fmt.Errorf("program %q is already running (pid %d)", name, child.PID())
	}

	attempt := 0
	for {
		err := s.startOnce(ctx, program)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= program.RestartAttempts {
			s.journalEvent(journal.KindFailure, program.Name, 0, err.Error())
			return err
		}
		attempt++
		s.logger.Warn("start failed, retrying",
			"program", program.Name,
			"attempt", attempt,
			"of", program.RestartAttempts,
			"backoff", program.RestartBackoff.Std(),
			"error", err)
		s.journalEvent(journal.KindRetry, program.Name, 0,
			fmt.Sprintf("attempt %d/%d: %v", attempt, program.RestartAttempts, err))

		select {
		case <-ctx.Done():
			return err
		case <-s.clk.After(program.RestartBackoff.Std()):
		}
	}
}

// startOnce runs one spawn-patch-release-await cycle. Any failure
// leaves no child behind: the process is killed and reaped before the
// error returns.
func (s *Supervisor) startOnce(ctx context.Context, program config.Program) error {
	child, err := s.spawnPatched(program)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	if !contains(s.spawnOrder, program.Name) {
		s.spawnOrder = append(s.spawnOrder, program.Name)
	}
	s.children[program.Name] = child
	s.mutex.Unlock()

	go s.reap(child)

	if err := s.awaitServices(ctx, program, child); err != nil {
		child.Kill()
		<-child.Done()
		return err
	}

	s.journalEvent(journal.KindRunning, program.Name, child.PID(),
		strings.Join(program.Services, " "))
	s.logger.Info("program running", "program", program.Name, "pid", child.PID())
	s.emit(Event{Type: EventStarted, Program: program.Name, PID: child.PID()})
	return nil
}

// awaitServices waits for the program's declared services to check
// in, bounded by the program's start timeout. The child dying during
// the wait fails the start immediately.
func (s *Supervisor) awaitServices(ctx context.Context, program config.Program, child *Child) error {
	if len(program.Services) == 0 {
		return nil
	}

	// The namespace wait runs under a context cancelled by either the
	// injected clock's timer or the child's death, whichever is
	// first. context.WithTimeout would tie the deadline to the wall
	// clock and out of the tests' reach.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := s.clk.NewTimer(program.StartTimeout.Std())
	defer timer.Stop()
	timedOut := make(chan struct{})
	go func() {
		select {
		case <-timer.C:
			close(timedOut)
			cancel()
		case <-child.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for _, name := range program.Services {
		if err := s.table.AwaitCheckIn(waitCtx, name); err != nil {
			select {
			case <-child.Done():
				return &SpawnFailure{Program: program.Name, Phase: PhaseCheckIn,
					Err: fmt.Errorf("child exited before %q checked in: %w", name, child.ExitError())}
			default:
			}
			select {
			case <-timedOut:
				return &SpawnFailure{Program: program.Name, Phase: PhaseCheckIn,
					Err: fmt.Errorf("service %q not checked in within %v", name, program.StartTimeout.Std())}
			default:
			}
			return &SpawnFailure{Program: program.Name, Phase: PhaseCheckIn, Err: err}
		}
		s.journalEvent(journal.KindCheckIn, program.Name, child.PID(), name)
	}
	return nil
}

// reap waits for one child's exit and cleans up after it: namespace
// revert, journal, event, critical-death signal.
func (s *Supervisor) reap(child *Child) {
	err := child.wait()

	detail := "exit status 0"
	if err != nil {
		detail = err.Error()
	}
	s.journalEvent(journal.KindExit, child.program.Name, child.PID(), detail)

	reverted := s.table.ReleaseOwner(int32(child.PID()))
	if len(reverted) > 0 {
		s.journalEvent(journal.KindRelease, child.program.Name, child.PID(),
			strings.Join(reverted, " "))
	}

	s.logger.Info("child exited",
		"program", child.program.Name,
		"pid", child.PID(),
		"detail", detail,
		"reverted", reverted)
	s.emit(Event{Type: EventExited, Program: child.program.Name, PID: child.PID(), Err: err})

	if child.program.Critical && !child.killedByShutdown() {
		s.criticalDeathOnce.Do(func() { close(s.criticalDeath) })
	}
}

// shutdown terminates the surviving children in reverse spawn order
// and waits for each: SIGTERM, a grace period, then SIGKILL.
func (s *Supervisor) shutdown() {
	s.mutex.Lock()
	order := make([]string, len(s.spawnOrder))
	copy(order, s.spawnOrder)
	s.mutex.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		child := s.Child(order[i])
		if child == nil || child.State() == StateTerminated {
			continue
		}
		child.markShutdown()
		s.logger.Info("terminating child", "program", child.program.Name, "pid", child.PID())
		child.Terminate()
		select {
		case <-child.Done():
		case <-s.clk.After(shutdownGrace):
			s.logger.Warn("child ignored SIGTERM, killing",
				"program", child.program.Name, "pid", child.PID())
			child.Kill()
			<-child.Done()
		}
	}
	s.journalEvent(journal.KindShutdown, "", 0, "children terminated")
}

// findProgram looks up a configured program by name.
func (s *Supervisor) findProgram(name string) (config.Program, bool) {
	for _, program := range s.programs {
		if program.Name == name {
			return program, true
		}
	}
	return config.Program{}, false
}

// Child returns the current child record for a program, or nil.
func (s *Supervisor) Child(name string) *Child {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.children[name]
}

// ChildInfo describes one supervised child for the control plane.
type ChildInfo struct {
	Program  string `cbor:"program"`
	PID      int    `cbor:"pid"`
	State    string `cbor:"state"`
	Critical bool   `cbor:"critical"`
}

// Children returns a snapshot of the supervised children in spawn
// order.
func (s *Supervisor) Children() []ChildInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	infos := make([]ChildInfo, 0, len(s.spawnOrder))
	for _, name := range s.spawnOrder {
		child := s.children[name]
		if child == nil {
			continue
		}
		infos = append(infos, ChildInfo{
			Program:  name,
			PID:      child.PID(),
			State:    child.State().String(),
			Critical: child.program.Critical,
		})
	}
	return infos
}

// Terminate sends SIGTERM to the named program's child. The control
// plane's terminate action.
func (s *Supervisor) Terminate(name string) error {
	child := s.Child(name)
	if child == nil {
		return fmt.Errorf("unknown or never-started program %q", name)
	}
	if child.State() == StateTerminated {
		return fmt.Errorf("program %q is not running", name)
	}
	return child.Terminate()
}

func (s *Supervisor) emit(event Event) {
	s.events <- event
}

func (s *Supervisor) journalEvent(kind journal.Kind, program string, pid int, detail string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(context.Background(), kind, program, pid, detail)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
