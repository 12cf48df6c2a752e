// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/switchyard-systems/switchyard/lib/clock"
)

// Kind classifies a lifecycle event. The values are stored in the
// journal database; treat them as format constants.
type Kind string

const (
	// KindSpawn: the supervisor started a child process.
	KindSpawn Kind = "spawn"

	// KindPatch: a patch manifest was applied to a stopped child.
	KindPatch Kind = "patch"

	// KindCheckIn: a supervised program's declared service checked in.
	KindCheckIn Kind = "check-in"

	// KindRunning: the program finished its startup sequence.
	KindRunning Kind = "running"

	// KindExit: a child exited, normally or by signal.
	KindExit Kind = "exit"

	// KindRelease: the program's namespace entries reverted.
	KindRelease Kind = "release"

	// KindRetry: a failed start is being retried after backoff.
	KindRetry Kind = "retry"

	// KindFailure: a start failed terminally (no attempts left).
	KindFailure Kind = "failure"

	// KindShutdown: the broker began or finished shutting down.
	KindShutdown Kind = "shutdown"
)

// Event is one journal row. Detail is free-form context: the exit
// status, the failed phase, the patched symbols.
type Event struct {
	ID      int64     `cbor:"id"`
	Time    time.Time `cbor:"time"`
	Kind    Kind      `cbor:"kind"`
	Program string    `cbor:"program"`
	PID     int64     `cbor:"pid,omitempty"`
	Detail  string    `cbor:"detail,omitempty"`
}

// Journal is an append-only SQLite log of supervised-process
// lifecycle events. It answers the operator question "what happened
// to this service" after the fact, which the in-memory namespace
// table cannot: the table only holds present state.
//
// Safe for concurrent use; writes serialize inside SQLite.
type Journal struct {
	pool   *sqlitex.Pool
	clk    clock.Clock
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	time    TEXT NOT NULL,
	kind    TEXT NOT NULL,
	program TEXT NOT NULL,
	pid     INTEGER NOT NULL DEFAULT 0,
	detail  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_program ON events (program, id);
`

// Open creates or opens the journal database at path. The parent
// directory must exist. A nil clk means the real clock.
func Open(path string, clk clock.Clock, logger *slog.Logger) (*Journal, error) {
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	journal := &Journal{pool: pool, clk: clk, logger: logger, path: path}

	// Touch one connection now so a broken path fails at startup, not
	// on the first event.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: initializing %s: %w", path, err)
	}
	pool.Put(conn)

	logger.Info("journal opened", "path", path)
	return journal, nil
}

// prepareConnection applies the standard pragmas and the schema. Runs
// once per pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("journal: applying schema: %w", err)
	}
	return nil
}

// Record appends one event, stamping the current time. Journal
// failures are logged but not propagated: losing a history row must
// never take down the supervision it records.
func (j *Journal) Record(ctx context.Context, kind Kind, program string, pid int, detail string) {
	if err := j.append(ctx, kind, program, pid, detail); err != nil {
		j.logger.Error("journal write failed",
			"kind", string(kind), "program", program, "error", err)
	}
}

func (j *Journal) append(ctx context.Context, kind Kind, program string, pid int, detail string) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	return sqlitex.Execute(conn,
		`INSERT INTO events (time, kind, program, pid, detail) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				j.clk.Now().UTC().Format(time.RFC3339Nano),
				string(kind),
				program,
				pid,
				detail,
			},
		})
}

// Recent returns up to limit events, newest first. A non-empty
// program restricts the result to that program's rows.
func (j *Journal) Recent(ctx context.Context, program string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer j.pool.Put(conn)

	query := `SELECT id, time, kind, program, pid, detail FROM events ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if program != "" {
		query = `SELECT id, time, kind, program, pid, detail FROM events WHERE program = ? ORDER BY id DESC LIMIT ?`
		args = []any{program, limit}
	}

	var events []Event
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			when, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(1))
			if err != nil {
				return fmt.Errorf("row %d: bad timestamp: %w", stmt.ColumnInt64(0), err)
			}
			events = append(events, Event{
				ID:      stmt.ColumnInt64(0),
				Time:    when,
				Kind:    Kind(stmt.ColumnText(2)),
				Program: stmt.ColumnText(3),
				PID:     stmt.ColumnInt64(4),
				Detail:  stmt.ColumnText(5),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: querying events: %w", err)
	}
	return events, nil
}

// Close closes the underlying pool. Blocks until borrowed
// connections are returned.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("journal: closing %s: %w", j.path, err)
	}
	j.logger.Info("journal closed", "path", j.path)
	return nil
}
