// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Switchyard
// binaries. It centralizes the one legitimate raw-stderr pattern that
// exists before the structured logger is constructed: fatal error
// reporting from main(). Everything after logger construction goes
// through slog.
package process
