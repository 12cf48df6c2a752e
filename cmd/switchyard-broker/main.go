// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// The switchyard-broker daemon hosts the bootstrap namespace, serves
// the bootstrap protocol, and supervises the configured client
// programs. The operator talks to it over its control socket with the
// switchyard CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/switchyard-systems/switchyard/broker"
	"github.com/switchyard-systems/switchyard/lib/capture"
	"github.com/switchyard-systems/switchyard/lib/clock"
	"github.com/switchyard-systems/switchyard/lib/config"
	"github.com/switchyard-systems/switchyard/lib/control"
	"github.com/switchyard-systems/switchyard/lib/journal"
	"github.com/switchyard-systems/switchyard/lib/namespace"
	"github.com/switchyard-systems/switchyard/lib/process"
	"github.com/switchyard-systems/switchyard/lib/version"
	"github.com/switchyard-systems/switchyard/supervisor"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to the broker YAML configuration (required)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("switchyard-broker %s\n", version.Info())
		return nil
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := process.EnsureRunDir(cfg.RunDir); err != nil {
		return err
	}
	if err := process.WritePIDFile(cfg.PIDFile); err != nil {
		return err
	}
	defer process.RemovePIDFile(cfg.PIDFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	table := namespace.New(logger)
	defer table.Close()

	var ring *capture.Ring
	if cfg.CaptureFrames >= 0 {
		ring = capture.NewRing(cfg.CaptureFrames, clk)
	}

	var log *journal.Journal
	if cfg.Journal != "" {
		log, err = journal.Open(cfg.Journal, clk, logger)
		if err != nil {
			return err
		}
		defer log.Close()
	}

	server := broker.New(broker.Config{
		SocketPath: cfg.Socket,
		Namespace:  table,
		Capture:    ring,
		Clock:      clk,
		Logger:     logger,
	})
	sup := supervisor.New(supervisor.Config{
		SocketPath: cfg.Socket,
		Programs:   cfg.Programs,
		Namespace:  table,
		Journal:    log,
		Clock:      clk,
		Logger:     logger,
	})

	controlServer := control.NewServer(cfg.ControlSocket, logger)
	registerActions(controlServer, server, sup, table, ring, log, stop)

	// The broker and control sockets serve until ctx is cancelled; the
	// supervisor runs in the foreground and decides when that happens.
	serveErr := make(chan error, 2)
	go func() { serveErr <- server.Serve(ctx) }()
	go func() { serveErr <- controlServer.Serve(ctx) }()

	// Lifecycle events are logged here; the journal already persists
	// them inside the supervisor.
	go func() {
		for event := range sup.Events() {
			logger.Info("lifecycle event",
				"type", event.Type.String(),
				"program", event.Program,
				"pid", event.PID,
				"error", event.Err)
		}
	}()

	logger.Info("switchyard-broker starting",
		"version", version.Short(),
		"socket", cfg.Socket,
		"control", cfg.ControlSocket,
		"programs", len(cfg.Programs))

	runErr := sup.Run(ctx)

	// Stop the listeners and wait for both Serve loops to drain.
	stop()
	for i := 0; i < 2; i++ {
		if err := <-serveErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	if errors.Is(runErr, supervisor.ErrCriticalExit) {
		logger.Error("shutting down after critical program exit")
		return runErr
	}
	logger.Info("switchyard-broker stopped")
	return runErr
}
