// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/switchyard-systems/switchyard/cmd/switchyard/cli"
	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/capture"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:    "capture",
		Summary: "Wire-capture dumps",
		Subcommands: []*cli.Command{
			captureDumpCommand(),
			captureDecodeCommand(),
		},
	}
}

func captureDumpCommand() *cli.Command {
	var socketPath string
	var since uint64
	var compression string

	return &cli.Command{
		Name:    "dump",
		Summary: "Write the broker's capture ring to a file",
		Usage:   "switchyard capture dump <path> [flags]",
		Description: "Ask the broker to snapshot its wire-capture ring and write\n" +
			"it to a dump file on the broker's host. Decode it with\n" +
			"'switchyard capture decode'.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			addControlFlag(flagSet, &socketPath)
			flagSet.Uint64Var(&since, "since", 0, "only frames with sequence number >= this")
			flagSet.StringVar(&compression, "compression", "zstd", "dump compression: none, lz4, zstd")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: switchyard capture dump <path>")
			}
			// Validate locally for a fast error; the broker validates
			// again.
			if _, err := capture.ParseCompression(compression); err != nil {
				return err
			}
			var result struct {
				Frames int    `cbor:"frames"`
				Path   string `cbor:"path"`
			}
			fields := map[string]any{
				"path":        args[0],
				"since":       since,
				"compression": compression,
			}
			if err := call(socketPath, "capture-dump", fields, &result); err != nil {
				return err
			}
			fmt.Printf("wrote %d frames to %s\n", result.Frames, result.Path)
			return nil
		},
	}
}

func captureDecodeCommand() *cli.Command {
	var raw bool

	return &cli.Command{
		Name:    "decode",
		Summary: "Decode a capture dump file",
		Usage:   "switchyard capture decode <path> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("decode", pflag.ContinueOnError)
			flagSet.BoolVar(&raw, "raw", false, "hex-dump frame bytes instead of decoding them")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: switchyard capture decode <path>")
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			frames, err := capture.ReadDump(file)
			if err != nil {
				return err
			}
			for _, frame := range frames {
				printFrame(frame, raw)
			}
			fmt.Printf("%d frames\n", len(frames))
			return nil
		},
	}
}

func printFrame(frame capture.Frame, raw bool) {
	fmt.Printf("#%d  %s  %s  pid=%d  %s  %d bytes\n",
		frame.Seq,
		frame.Time.Local().Format("15:04:05.000"),
		frame.Direction,
		frame.PID,
		wire.RoutineName(frame.Routine),
		len(frame.Data))

	if raw {
		fmt.Print(hexDump(frame.Data, "    "))
		return
	}

	message, slots, err := wire.Decode(frame.Data)
	if err != nil {
		fmt.Printf("    (undecodable: %v)\n", err)
		fmt.Print(hexDump(frame.Data, "    "))
		return
	}
	// Decoded capabilities are placeholders: the descriptors traveled
	// out of band and are not in the dump.
	_ = slots
	printDictionary(message.Payload, "    ")
}

func printDictionary(d wire.Dictionary, indent string) {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := d[key]
		switch value.Kind() {
		case wire.KindString:
			s, _ := value.Str()
			fmt.Printf("%s%s: %q\n", indent, key, s)
		case wire.KindInt64:
			n, _ := value.Int()
			if key == wire.KeyStatus {
				fmt.Printf("%s%s: %d (%s)\n", indent, key, n, wire.Status(n))
			} else {
				fmt.Printf("%s%s: %d\n", indent, key, n)
			}
		case wire.KindBool:
			b, _ := value.Bool()
			fmt.Printf("%s%s: %t\n", indent, key, b)
		case wire.KindCapability:
			c, _ := value.Capability()
			kind := capability.Send
			if c != nil {
				kind = c.Kind()
			}
			fmt.Printf("%s%s: <%s capability>\n", indent, key, kind)
		case wire.KindDictionary:
			sub, _ := value.Dict()
			fmt.Printf("%s%s:\n", indent, key)
			printDictionary(sub, indent+"  ")
		}
	}
}

// hexDump renders data in 16-byte rows with an ASCII gutter.
func hexDump(data []byte, indent string) string {
	var out strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[offset:end]

		fmt.Fprintf(&out, "%s%08x  ", indent, offset)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&out, "%02x ", row[i])
			} else {
				out.WriteString("   ")
			}
			if i == 7 {
				out.WriteByte(' ')
			}
		}
		out.WriteString(" |")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				out.WriteByte(b)
			} else {
				out.WriteByte('.')
			}
		}
		out.WriteString("|\n")
	}
	return out.String()
}
