// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
)

// serviceRow mirrors one row of the broker's "services" action
// payload.
type serviceRow struct {
	Name   string `cbor:"name" json:"name"`
	Status string `cbor:"status" json:"status"`
	Owner  int32  `cbor:"owner,omitempty" json:"owner,omitempty"`
}

func servicesCommand() *cli.Command {
	var socketPath string
	var outputJSON bool
	var watch bool
	var filter string
	var interval time.Duration

	return &cli.Command{
		Name:    "services",
		Summary: "List the broker's service namespace",
		Usage:   "switchyard services [flags]",
		Examples: []cli.Example{
			{
				Description: "Fuzzy-filter for simulator services",
				Command:     "switchyard services --filter sim",
			},
			{
				Description: "Live view, refreshed every second",
				Command:     "switchyard services --watch",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("services", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			flagSet.BoolVar(&watch, "watch", false, "live full-screen view")
			flagSet.StringVar(&filter, "filter", "", "fuzzy-match filter on service names")
			flagSet.DurationVar(&interval, "interval", time.Second, "refresh interval for --watch")
			return flagSet
		},
		Run: func(args []string) error {
			if watch {
				if !term.IsTerminal(int(os.Stdout.Fd())) {
					return fmt.Errorf("--watch needs a terminal (stdout is not a TTY)")
				}
				return watchServices(socketPath, filter, interval)
			}

			rows, err := fetchServices(socketPath)
			if err != nil {
				return err
			}
			rows = fuzzyFilterServices(rows, filter)

			if outputJSON {
				return cli.WriteJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no services")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tOWNER")
			for _, row := range rows {
				owner := "-"
				if row.Owner != 0 {
					owner = fmt.Sprintf("%d", row.Owner)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Name, row.Status, owner)
			}
			return tw.Flush()
		},
	}
}

func fetchServices(socketPath string) ([]serviceRow, error) {
	var rows []serviceRow
	if err := call(socketPath, "services", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// fuzzyFilterServices keeps the rows whose names fuzzy-match pattern,
// in table order. An empty pattern keeps everything.
func fuzzyFilterServices(rows []serviceRow, pattern string) []serviceRow {
	if pattern == "" {
		return rows
	}

	patternRunes := []rune(pattern)
	slab := util.MakeSlab(100*1024, 2048)

	matched := rows[:0:0]
	for _, row := range rows {
		chars := util.ToChars([]byte(row.Name))
		result, _ := algo.FuzzyMatchV2(false, true, true, &chars, patternRunes, false, slab)
		if result.Score > 0 {
			matched = append(matched, row)
		}
	}
	return matched
}
