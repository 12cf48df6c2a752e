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

// eventRow mirrors one journal event from the broker's "events"
// action payload.
type eventRow struct {
	ID      int64     `cbor:"id" json:"id"`
	Time    time.Time `cbor:"time" json:"time"`
	Kind    string    `cbor:"kind" json:"kind"`
	Program string    `cbor:"program" json:"program"`
	PID     int64     `cbor:"pid,omitempty" json:"pid,omitempty"`
	Detail  string    `cbor:"detail,omitempty" json:"detail,omitempty"`
}

func eventsCommand() *cli.Command {
	var socketPath string
	var outputJSON bool
	var program string
	var limit int

	return &cli.Command{
		Name:    "events",
		Summary: "Show the lifecycle journal",
		Usage:   "switchyard events [flags]",
		Examples: []cli.Example{
			{
				Description: "Last 20 events for one program",
				Command:     "switchyard events --program simulator --limit 20",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("events", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			flagSet.StringVar(&program, "program", "", "restrict to one program")
			flagSet.IntVar(&limit, "limit", 50, "maximum events to show")
			return flagSet
		},
		Run: func(args []string) error {
			var rows []eventRow
			fields := map[string]any{"limit": limit}
			if program != "" {
				fields["program"] = program
			}
			if err := call(socketPath, "events", fields, &rows); err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no events")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tPROGRAM\tPID\tDETAIL")
			for _, row := range rows {
				pid := "-"
				if row.PID != 0 {
					pid = fmt.Sprintf("%d", row.PID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					row.Time.Local().Format("2006-01-02 15:04:05"),
					row.Kind, row.Program, pid, row.Detail)
			}
			return tw.Flush()
		},
	}
}
