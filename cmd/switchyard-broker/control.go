// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/switchyard-systems/switchyard/broker"
	"github.com/switchyard-systems/switchyard/lib/capture"
	"github.com/switchyard-systems/switchyard/lib/codec"
	"github.com/switchyard-systems/switchyard/lib/control"
	"github.com/switchyard-systems/switchyard/lib/journal"
	"github.com/switchyard-systems/switchyard/lib/namespace"
	"github.com/switchyard-systems/switchyard/lib/version"
	"github.com/switchyard-systems/switchyard/supervisor"
)

// statusResponse is the "status" action payload.
type statusResponse struct {
	Version  string                 `cbor:"version"`
	PID      int                    `cbor:"pid"`
	Broker   broker.Stats           `cbor:"broker"`
	Children []supervisor.ChildInfo `cbor:"children"`
}

// serviceEntry is one row of the "services" action payload.
type serviceEntry struct {
	Name   string `cbor:"name"`
	Status string `cbor:"status"`
	Owner  int32  `cbor:"owner,omitempty"`
}

// registerActions wires the control surface. Every action the
// switchyard CLI exposes resolves to one handler here.
func registerActions(
	server *control.Server,
	brk *broker.Server,
	sup *supervisor.Supervisor,
	table *namespace.Table,
	ring *capture.Ring,
	log *journal.Journal,
	shutdown func(),
) {
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return statusResponse{
			Version:  version.Short(),
			PID:      os.Getpid(),
			Broker:   brk.Stats(),
			Children: sup.Children(),
		}, nil
	})

	server.Handle("services", func(ctx context.Context, raw []byte) (any, error) {
		infos := table.List()
		entries := make([]serviceEntry, len(infos))
		for i, info := range infos {
			entries[i] = serviceEntry{
				Name:   info.Name,
				Status: info.Status.String(),
				Owner:  info.Owner,
			}
		}
		return entries, nil
	})

	server.Handle("clients", func(ctx context.Context, raw []byte) (any, error) {
		return brk.Clients(), nil
	})

	server.Handle("events", func(ctx context.Context, raw []byte) (any, error) {
		if log == nil {
			return nil, fmt.Errorf("journaling is disabled in the broker configuration")
		}
		var request struct {
			Program string `cbor:"program"`
			Limit   int    `cbor:"limit"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		return log.Recent(ctx, request.Program, request.Limit)
	})

	server.Handle("spawn", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Program string `cbor:"program"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if request.Program == "" {
			return nil, fmt.Errorf("missing required field: program")
		}
		// Spawning blocks on service check-ins; bound it so a stuck
		// program cannot pin a control handler forever.
		spawnCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := sup.StartProgram(spawnCtx, request.Program); err != nil {
			return nil, err
		}
		child := sup.Child(request.Program)
		if child == nil {
			// Started and already exited; the reaper won the race.
			return supervisor.ChildInfo{Program: request.Program, State: supervisor.StateTerminated.String()}, nil
		}
		return supervisor.ChildInfo{
			Program: request.Program,
			PID:     child.PID(),
			State:   child.State().String(),
		}, nil
	})

	server.Handle("terminate", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Program string `cbor:"program"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if request.Program == "" {
			return nil, fmt.Errorf("missing required field: program")
		}
		return nil, sup.Terminate(request.Program)
	})

	server.Handle("capture-dump", func(ctx context.Context, raw []byte) (any, error) {
		if ring == nil {
			return nil, fmt.Errorf("capture is disabled in the broker configuration")
		}
		var request struct {
			Path        string `cbor:"path"`
			Since       uint64 `cbor:"since"`
			Compression string `cbor:"compression"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if request.Path == "" {
			return nil, fmt.Errorf("missing required field: path")
		}
		compression := capture.CompressionZstd
		if request.Compression != "" {
			var err error
			compression, err = capture.ParseCompression(request.Compression)
			if err != nil {
				return nil, err
			}
		}

		frames := ring.Snapshot(request.Since)
		file, err := os.OpenFile(request.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("creating dump file: %w", err)
		}
		if err := capture.WriteDump(file, frames, compression); err != nil {
			file.Close()
			os.Remove(request.Path)
			return nil, err
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("closing dump file: %w", err)
		}
		return struct {
			Frames int    `cbor:"frames"`
			Path   string `cbor:"path"`
		}{Frames: len(frames), Path: request.Path}, nil
	})

	server.Handle("shutdown", func(ctx context.Context, raw []byte) (any, error) {
		// The response must reach the client before the listener dies.
		time.AfterFunc(100*time.Millisecond, shutdown)
		return nil, nil
	})
}
