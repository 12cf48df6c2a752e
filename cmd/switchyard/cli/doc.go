// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree for the switchyard CLI:
// declarative Command structs with pflag flag sets, nested
// subcommands, structured help output, and typo suggestions for
// unknown commands and flags.
package cli
