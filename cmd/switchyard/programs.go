// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
)

func spawnCommand() *cli.Command {
	var socketPath string

	return &cli.Command{
		Name:    "spawn",
		Summary: "Start a configured program",
		Usage:   "switchyard spawn <program> [flags]",
		Description: "Start a configured program that is not currently running.\n" +
			"The broker spawns it with its configured patch manifest and\n" +
			"waits for its declared services to check in.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("spawn", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: switchyard spawn <program>")
			}
			var child childInfo
			if err := call(socketPath, "spawn", map[string]any{"program": args[0]}, &child); err != nil {
				return err
			}
			fmt.Printf("%s running (pid %d)\n", child.Program, child.PID)
			return nil
		},
	}
}

func terminateCommand() *cli.Command {
	var socketPath string

	return &cli.Command{
		Name:    "terminate",
		Summary: "Send SIGTERM to a supervised program",
		Usage:   "switchyard terminate <program> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("terminate", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: switchyard terminate <program>")
			}
			if err := call(socketPath, "terminate", map[string]any{"program": args[0]}, nil); err != nil {
				return err
			}
			fmt.Printf("terminating %s\n", args[0])
			return nil
		},
	}
}

func shutdownCommand() *cli.Command {
	var socketPath string

	return &cli.Command{
		Name:    "shutdown",
		Summary: "Shut the broker down",
		Usage:   "switchyard shutdown [flags]",
		Description: "Ask the broker to shut down. It terminates its supervised\n" +
			"programs in reverse spawn order, then exits.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("shutdown", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: switchyard shutdown")
			}
			if err := call(socketPath, "shutdown", nil, nil); err != nil {
				return err
			}
			fmt.Println("broker shutting down")
			return nil
		},
	}
}
