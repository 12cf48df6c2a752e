// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
)

// brokerStatus mirrors the broker's "status" action payload.
type brokerStatus struct {
	Version string `cbor:"version" json:"version"`
	PID     int    `cbor:"pid" json:"pid"`
	Broker  struct {
		ActiveClients   int    `cbor:"active_clients" json:"active_clients"`
		TotalClients    uint64 `cbor:"total_clients" json:"total_clients"`
		Messages        uint64 `cbor:"messages" json:"messages"`
		MalformedFrames uint64 `cbor:"malformed_frames" json:"malformed_frames"`
	} `cbor:"broker" json:"broker"`
	Children []childInfo `cbor:"children" json:"children"`
}

// childInfo mirrors the supervisor's child snapshot rows.
type childInfo struct {
	Program  string `cbor:"program" json:"program"`
	PID      int    `cbor:"pid" json:"pid"`
	State    string `cbor:"state" json:"state"`
	Critical bool   `cbor:"critical" json:"critical"`
}

func statusCommand() *cli.Command {
	var socketPath string
	var outputJSON bool

	return &cli.Command{
		Name:    "status",
		Summary: "Show broker status",
		Usage:   "switchyard status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			var status brokerStatus
			if err := call(socketPath, "status", nil, &status); err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(status)
			}

			fmt.Printf("switchyard-broker %s (pid %d)\n", status.Version, status.PID)
			fmt.Printf("  clients:   %d active, %d total\n",
				status.Broker.ActiveClients, status.Broker.TotalClients)
			fmt.Printf("  messages:  %d (%d malformed frames)\n",
				status.Broker.Messages, status.Broker.MalformedFrames)

			if len(status.Children) == 0 {
				fmt.Println("  programs:  none")
				return nil
			}
			fmt.Println("  programs:")
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, child := range status.Children {
				marker := ""
				if child.Critical {
					marker = "critical"
				}
				fmt.Fprintf(tw, "    %s\t%d\t%s\t%s\n", child.Program, child.PID, child.State, marker)
			}
			return tw.Flush()
		},
	}
}
