// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the broker's YAML configuration.
//
// Configuration comes from a single file given explicitly (the
// broker's --config flag). There are no fallbacks, no ~/.config
// discovery, and no automatic file search: deterministic, auditable
// configuration with no hidden overrides. Unknown fields fail the
// load, so a typo cannot silently configure nothing.
//
// Key exports:
//
//   - [Config] -- broker paths, capture sizing, and the program list
//   - [Program] -- one supervised process: executable, patch
//     manifest, service gates, restart policy
//   - [Load] -- read, default, and validate a config file
//
// This package depends only on lib/namespace (service name
// validation).
package config
