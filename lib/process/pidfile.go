// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning reports that a pid file names a live process.
var ErrAlreadyRunning = errors.New("daemon already running")

// WritePIDFile records the calling process's pid at path. A pid file
// naming a live process fails with an error wrapping ErrAlreadyRunning;
// a stale file from a dead process is replaced.
//
// The file is written to a temporary path in the same directory,
// synced, and renamed into place, so a reader never sees a partial
// pid.
func WritePIDFile(path string) error {
	if pid, err := ReadPIDFile(path); err == nil {
		if alive(pid) {
			return fmt.Errorf("%w: pid %d (per %s)", ErrAlreadyRunning, pid, path)
		}
		// Stale file from a dead process: fall through and replace it.
	}

	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary pid file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary pid file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary pid file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary pid file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming pid file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// ReadPIDFile reads and parses the pid file at path. A missing file's
// error wraps os.ErrNotExist.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: malformed content %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePIDFile deletes path if it records the calling process's own
// pid. A file recording someone else's pid is left alone: a newer
// daemon instance may have already claimed it.
func RemovePIDFile(path string) {
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		return
	}
	os.Remove(path)
}

// alive reports whether a process with the given pid exists. Signal 0
// probes existence without delivering anything; EPERM still means the
// process exists.
func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// EnsureRunDir creates the daemon's runtime directory.
func EnsureRunDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating run directory %s: %w", filepath.Clean(path), err)
	}
	return nil
}
