// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/switchyard-systems/switchyard/lib/config"
	"github.com/switchyard-systems/switchyard/lib/control"
)

// controlSocketEnv overrides the default control socket path, the
// same way the config file's control_socket setting does on the
// broker side.
const controlSocketEnv = "SWITCHYARD_CONTROL_SOCKET"

func defaultControlSocket() string {
	if path := os.Getenv(controlSocketEnv); path != "" {
		return path
	}
	return filepath.Join(config.DefaultRunDir, "control.sock")
}

// addControlFlag registers the shared --control flag on a command's
// flag set.
func addControlFlag(flagSet *pflag.FlagSet, socketPath *string) {
	flagSet.StringVar(socketPath, "control", defaultControlSocket(),
		"broker control socket path (or set "+controlSocketEnv+")")
}

// call performs one control action with a bounded context.
func call(socketPath, action string, fields map[string]any, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return control.NewClient(socketPath).Call(ctx, action, fields, result)
}
