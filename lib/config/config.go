// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/switchyard-systems/switchyard/lib/namespace"
)

// DefaultRunDir is where the broker keeps its sockets and pid file
// unless the config says otherwise.
const DefaultRunDir = "/run/switchyard"

// Config is the broker configuration, loaded from a single YAML file.
// There is no discovery and no merging of multiple files: one path,
// given explicitly, is the whole configuration.
type Config struct {
	// RunDir holds the sockets and the pid file. Socket and PIDFile
	// default to paths inside it.
	RunDir string `yaml:"run_dir"`

	// Socket is the bootstrap socket path supervised clients connect
	// to. Default: <run_dir>/bootstrap.sock.
	Socket string `yaml:"socket"`

	// ControlSocket is the operator control socket served to the CLI.
	// Default: <run_dir>/control.sock.
	ControlSocket string `yaml:"control_socket"`

	// PIDFile is where the broker records its pid. Default:
	// <run_dir>/broker.pid.
	PIDFile string `yaml:"pid_file"`

	// Journal is the SQLite lifecycle journal path. Empty disables
	// journaling.
	Journal string `yaml:"journal"`

	// CaptureFrames is the wire-capture ring capacity in frames. Zero
	// means the package default; negative disables capture.
	CaptureFrames int `yaml:"capture_frames"`

	// Programs are the supervised processes, spawned in order.
	Programs []Program `yaml:"programs"`
}

// Program describes one supervised process.
type Program struct {
	// Name identifies the program in logs, journal entries, and
	// control actions. Required, unique.
	Name string `yaml:"name"`

	// Path is the executable. Required.
	Path string `yaml:"path"`

	// Args are the arguments after the program name.
	Args []string `yaml:"args"`

	// Env are extra KEY=VALUE pairs appended to the child
	// environment. The bootstrap socket variable is always set.
	Env []string `yaml:"env"`

	// Manifest is a patch manifest to apply between the child's exec
	// trap and its release. Empty spawns the program unpatched.
	Manifest string `yaml:"manifest"`

	// WaitFor are service names that must be checked in before this
	// program spawns. Spawn order plus these gates reproduce a
	// dependency-ordered bringup.
	WaitFor []string `yaml:"wait_for"`

	// Services are the names this program is expected to check in.
	// The spawn is not considered successful until all of them are
	// live; a program with no declared services is running as soon as
	// it survives the release.
	Services []string `yaml:"services"`

	// Critical marks a program whose death shuts the broker down.
	Critical bool `yaml:"critical"`

	// StartTimeout bounds the wait for the program's declared
	// services. Zero means DefaultStartTimeout.
	StartTimeout Duration `yaml:"start_timeout"`

	// RestartAttempts is how many times a failed start is retried
	// before giving up. Zero means no retries.
	RestartAttempts int `yaml:"restart_attempts"`

	// RestartBackoff is the delay before each retry. Zero means
	// DefaultRestartBackoff.
	RestartBackoff Duration `yaml:"restart_backoff"`
}

// Defaults for the per-program timing knobs.
const (
	DefaultStartTimeout   = 30 * time.Second
	DefaultRestartBackoff = 2 * time.Second
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m". Plain integers are rejected: a bare number in a
// config file reads as nothing in particular.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads, parses, and validates the config file at path, with
// defaults applied. Unknown fields are errors: a typo in a config
// file must fail loudly, not silently configure nothing.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var config Config
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &config, nil
}

// ApplyDefaults fills unset fields with their defaults. Load calls
// this; programmatic configs (tests, the daemon's flag-only mode)
// call it directly.
func (c *Config) ApplyDefaults() {
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.Socket == "" {
		c.Socket = filepath.Join(c.RunDir, "bootstrap.sock")
	}
	if c.ControlSocket == "" {
		c.ControlSocket = filepath.Join(c.RunDir, "control.sock")
	}
	if c.PIDFile == "" {
		c.PIDFile = filepath.Join(c.RunDir, "broker.pid")
	}
	for i := range c.Programs {
		program := &c.Programs[i]
		if program.StartTimeout == 0 {
			program.StartTimeout = Duration(DefaultStartTimeout)
		}
		if program.RestartBackoff == 0 {
			program.RestartBackoff = Duration(DefaultRestartBackoff)
		}
	}
}

// Validate checks the config for structural problems, naming the
// offending field in every error.
func (c *Config) Validate() error {
	if c.Socket == c.ControlSocket {
		return fmt.Errorf("socket and control_socket are the same path %s", c.Socket)
	}
	seen := make(map[string]int, len(c.Programs))
	for i, program := range c.Programs {
		if program.Name == "" {
			return fmt.Errorf("programs[%d]: name is required", i)
		}
		if previous, ok := seen[program.Name]; ok {
			return fmt.Errorf("programs[%d]: name %q duplicates programs[%d]", i, program.Name, previous)
		}
		seen[program.Name] = i
		if program.Path == "" {
			return fmt.Errorf("program %s: path is required", program.Name)
		}
		if program.RestartAttempts < 0 {
			return fmt.Errorf("program %s: restart_attempts must not be negative", program.Name)
		}
		for _, name := range program.WaitFor {
			if err := namespace.ValidateName(name); err != nil {
				return fmt.Errorf("program %s: wait_for: %w", program.Name, err)
			}
		}
		for _, name := range program.Services {
			if err := namespace.ValidateName(name); err != nil {
				return fmt.Errorf("program %s: services: %w", program.Name, err)
			}
		}
	}
	return nil
}
