// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "switchyard",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "services",
				Run: func(args []string) error {
					called = "services"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"services"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "services" {
		t.Errorf("dispatched to %q, want %q", called, "services")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "switchyard",
		Subcommands: []*Command{
			{
				Name: "capture",
				Subcommands: []*Command{
					{
						Name: "dump",
						Run: func(args []string) error {
							called = "capture dump"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"capture", "dump", "out.swcap"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "capture dump" {
		t.Errorf("dispatched to %q, want %q", called, "capture dump")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "out.swcap" {
		t.Errorf("args = %v, want [out.swcap]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var target string

	command := &Command{
		Name: "events",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("events", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "control", "/default.sock", "control socket path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--control", "/custom.sock", "simulator"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "simulator" {
		t.Errorf("target = %q, want %q", target, "simulator")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "services",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("services", pflag.ContinueOnError)
			flagSet.Bool("watch", false, "live view")
			flagSet.String("control", "/default.sock", "control socket path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--wacth"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --watch") {
		t.Errorf("error = %q, want suggestion for '--watch'", errStr)
	}
	if !strings.Contains(errStr, "wacth") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "services",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("services", pflag.ContinueOnError)
			flagSet.Bool("watch", false, "live view")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "switchyard",
		Subcommands: []*Command{
			{Name: "services"},
			{Name: "status"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"statsu"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"status\"") {
		t.Errorf("error = %q, want suggestion for 'status'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "switchyard",
		Subcommands: []*Command{
			{Name: "services"},
			{Name: "status"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "switchyard",
				Summary: "Bootstrap broker control",
				Subcommands: []*Command{
					{Name: "services", Summary: "List registered services"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "switchyard",
		Subcommands: []*Command{
			{Name: "services", Summary: "List registered services"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "switchyard",
		Description: "Control CLI for the Switchyard bootstrap broker.",
		Subcommands: []*Command{
			{Name: "services", Summary: "List registered services"},
			{Name: "status", Summary: "Show broker status"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Show the live service table",
				Command:     "switchyard services --watch",
			},
			{
				Description: "Dump captured wire traffic",
				Command:     "switchyard capture dump traffic.swcap",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Control CLI for the Switchyard bootstrap broker.",
		"Usage:",
		"switchyard <command> [flags]",
		"Commands:",
		"services",
		"List registered services",
		"status",
		"Show broker status",
		"Examples:",
		"switchyard services --watch",
		"switchyard capture dump traffic.swcap",
		"Run 'switchyard <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "services",
		Summary: "List registered services",
		Usage:   "switchyard services [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("services", pflag.ContinueOnError)
			flagSet.String("control", "/run/switchyard/control.sock", "broker control socket")
			flagSet.Bool("watch", false, "live view")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"switchyard services [flags]",
		"Flags:",
		"control",
		"watch",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "switchyard"}
	capture := &Command{Name: "capture", parent: root}
	dump := &Command{Name: "dump", parent: capture}

	if got := root.fullName(); got != "switchyard" {
		t.Errorf("root.fullName() = %q, want %q", got, "switchyard")
	}
	if got := capture.fullName(); got != "switchyard capture" {
		t.Errorf("capture.fullName() = %q, want %q", got, "switchyard capture")
	}
	if got := dump.fullName(); got != "switchyard capture dump" {
		t.Errorf("dump.fullName() = %q, want %q", got, "switchyard capture dump")
	}
}
