// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// switchyard is the operator CLI for the switchyard-broker daemon. It
// talks to the broker over its control socket: namespace inspection,
// program lifecycle, lifecycle history, and wire-capture dumps.
package main

import (
	"fmt"
	"os"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
	"github.com/switchyard-systems/switchyard/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "switchyard",
		Description: "Control CLI for the Switchyard bootstrap broker.",
		Examples: []cli.Example{
			{
				Description: "Show broker status",
				Command:     "switchyard status",
			},
			{
				Description: "Watch the service table live",
				Command:     "switchyard services --watch",
			},
			{
				Description: "Dump captured wire traffic and decode it",
				Command:     "switchyard capture dump /tmp/traffic.swcap && switchyard capture decode /tmp/traffic.swcap",
			},
		},
		Subcommands: []*cli.Command{
			statusCommand(),
			servicesCommand(),
			clientsCommand(),
			eventsCommand(),
			spawnCommand(),
			terminateCommand(),
			captureCommand(),
			shutdownCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Printf("switchyard %s\n", version.Full())
			return nil
		},
	}
}
