// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
)

// clientRow mirrors one row of the broker's "clients" action payload.
type clientRow struct {
	PID      int32     `cbor:"pid" json:"pid"`
	Since    time.Time `cbor:"since" json:"since"`
	Requests uint64    `cbor:"requests" json:"requests"`
}

func clientsCommand() *cli.Command {
	var socketPath string
	var outputJSON bool

	return &cli.Command{
		Name:    "clients",
		Summary: "List live bootstrap connections",
		Usage:   "switchyard clients [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clients", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			var rows []clientRow
			if err := call(socketPath, "clients", nil, &rows); err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no connected clients")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PID\tCONNECTED\tREQUESTS")
			for _, row := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%d\n",
					row.PID, row.Since.Local().Format(time.RFC3339), row.Requests)
			}
			return tw.Flush()
		},
	}
}
