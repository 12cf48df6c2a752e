// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/switchyard-systems/switchyard/lib/capability"
)

// Status is a service name's lifecycle state.
type Status int

const (
	// StatusUnregistered: the name has been seen (or reverted after
	// its owner died) but no endpoint is live for it.
	StatusUnregistered Status = iota

	// StatusPending: someone has expressed interest in the name. If an
	// endpoint was pre-created for it (endpoint look-up), deliveries
	// buffer until the owner checks in.
	StatusPending

	// StatusCheckedIn: the name has a live endpoint and look-ups get
	// usable send capabilities.
	StatusCheckedIn
)

func (s Status) String() string {
	switch s {
	case StatusUnregistered:
		return "unregistered"
	case StatusPending:
		return "pending"
	case StatusCheckedIn:
		return "checked-in"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MaxNameLength bounds service names, measured in bytes.
const MaxNameLength = 128

var (
	// ErrNotFound: the name has never been seen (non-creating reads).
	ErrNotFound = errors.New("namespace: service not found")

	// ErrPending: the name exists but has no live endpoint yet. The
	// look-up that got this has registered interest; it is not
	// an error a client retries immediately.
	ErrPending = errors.New("namespace: service pending")

	// ErrAlreadyRegistered: the name has an active endpoint held by
	// someone else.
	ErrAlreadyRegistered = errors.New("namespace: name already registered")

	// ErrInvalidName: empty, too long, not UTF-8, or contains a NUL
	// byte.
	ErrInvalidName = errors.New("namespace: invalid service name")
)

// ValidateName checks a service name against the protocol limits.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidName, len(name), MaxNameLength)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	// Names travel as wire dictionary keys, which must be UTF-8.
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	return nil
}

// entry is one name's state. The retained send side is how look-ups
// are satisfied; the escrowed receive side exists only between an
// endpoint-creating look-up and the owning check-in.
type entry struct {
	status Status
	send   *capability.Capability
	escrow *capability.Capability
	owner  int32
}

// Table is the bootstrap namespace: every name's status, retained
// capability, and owner, guarded by a single mutex. All transitions
// are atomic under it; the races the protocol cares about (two
// check-ins for one name, look-up during revert) resolve to a single
// winner by lock order.
type Table struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	changed chan struct{}
}

// New returns an empty namespace table.
func New(logger *slog.Logger) *Table {
	return &Table{
		logger:  logger,
		entries: make(map[string]*entry),
		changed: make(chan struct{}),
	}
}

// Register publishes a caller-minted send capability under name. The
// table takes ownership of the capability. Registered entries record
// no owning process: the capability was minted elsewhere and simply
// published, so it survives the registrar's death.
func (t *Table) Register(name string, send *capability.Capability) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if send == nil || send.Kind() != capability.Send {
		return fmt.Errorf("namespace: registering %q: need a send capability", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	switch {
	case e == nil || e.status == StatusUnregistered:
		// Fresh or reverted name.
	case e.status == StatusPending && e.send == nil:
		// Interest registered, no endpoint yet.
	default:
		// Checked in, or an endpoint was already minted for the name
		// (outstanding send duplicates point at it; adopting a
		// different endpoint would strand them).
		return fmt.Errorf("registering %q: %w", name, ErrAlreadyRegistered)
	}

	t.entries[name] = &entry{status: StatusCheckedIn, send: send}
	t.logger.Debug("service registered", "service", name)
	t.broadcastLocked()
	return nil
}

// CheckIn claims name for owner and returns the receive capability for
// its endpoint. If an endpoint was pre-created by an endpoint look-up,
// the escrowed receive side is handed over; otherwise a fresh endpoint
// is minted and its send side retained for future look-ups.
//
// A re-check-in by the same owner returns a fresh endpoint (the old
// retained send side is closed). A check-in for a name someone else
// holds fails with ErrAlreadyRegistered; with two concurrent first
// check-ins, exactly one wins.
func (t *Table) CheckIn(name string, owner int32) (*capability.Capability, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if owner == 0 {
		return nil, fmt.Errorf("namespace: checking in %q: owner pid required", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e != nil && e.status == StatusCheckedIn {
		if e.owner != owner {
			return nil, fmt.Errorf("checking in %q (held by pid %d): %w", name, e.owner, ErrAlreadyRegistered)
		}
		// Same owner again: a restarting service re-claiming its name
		// within one process lifetime. Mint a fresh endpoint; the old
		// one dies when the owner drops its old receive side.
		e.send.Close()
		e.send = nil
		e.escrow = nil
	}

	if e != nil && e.escrow != nil {
		// Endpoint pre-created by an endpoint look-up: hand the
		// receive side to its owner. Deliveries made in the meantime
		// are queued in it.
		receive := e.escrow
		e.escrow = nil
		e.status = StatusCheckedIn
		e.owner = owner
		t.logger.Debug("service checked in", "service", name, "owner", owner, "escrowed", true)
		t.broadcastLocked()
		return receive, nil
	}

	receive, send, err := capability.NewEndpoint()
	if err != nil {
		return nil, fmt.Errorf("checking in %q: %w", name, err)
	}
	t.entries[name] = &entry{status: StatusCheckedIn, send: send, owner: owner}
	t.logger.Debug("service checked in", "service", name, "owner", owner)
	t.broadcastLocked()
	return receive, nil
}

// LookUp resolves name to a fresh send capability. A name with no live
// endpoint gets ErrPending, and the look-up itself registers interest:
// the entry is created (or kept) in the pending state.
func (t *Table) LookUp(name string) (*capability.Capability, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil {
		t.entries[name] = &entry{status: StatusPending}
		t.logger.Debug("look-up pending", "service", name)
		return nil, fmt.Errorf("looking up %q: %w", name, ErrPending)
	}
	if e.send != nil {
		return t.duplicateLocked(name, e)
	}
	e.status = StatusPending
	return nil, fmt.Errorf("looking up %q: %w", name, ErrPending)
}

// EndpointLookUp resolves name to a send capability, minting the
// endpoint if none exists yet. The receive side of a minted endpoint
// is escrowed for whichever process later checks the name in;
// deliveries made before then buffer in the kernel.
func (t *Table) EndpointLookUp(name string) (*capability.Capability, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil || e.send == nil {
		receive, send, err := capability.NewEndpoint()
		if err != nil {
			return nil, fmt.Errorf("minting endpoint for %q: %w", name, err)
		}
		e = &entry{status: StatusPending, send: send, escrow: receive}
		t.entries[name] = e
		t.logger.Debug("endpoint minted ahead of owner", "service", name)
	}
	return t.duplicateLocked(name, e)
}

// Resolve is the non-creating read: a fresh send capability if the
// name has a live endpoint, ErrNotFound otherwise. The legacy shim
// protocol uses this; unlike LookUp it records no interest.
func (t *Table) Resolve(name string) (*capability.Capability, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil || e.send == nil {
		return nil, fmt.Errorf("resolving %q: %w", name, ErrNotFound)
	}
	return t.duplicateLocked(name, e)
}

// ReleaseOwner reverts every entry owned by pid to the unregistered
// state, closing the retained send sides. It returns the reverted
// names. Later look-ups get ErrPending, never a stale capability.
// Entries published via Register (no owner) are untouched.
func (t *Table) ReleaseOwner(owner int32) []string {
	if owner == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var reverted []string
	for name, e := range t.entries {
		if e.owner != owner || e.status != StatusCheckedIn {
			continue
		}
		e.send.Close()
		e.send = nil
		e.owner = 0
		e.status = StatusUnregistered
		reverted = append(reverted, name)
	}
	if len(reverted) > 0 {
		sort.Strings(reverted)
		t.logger.Info("owner released, services reverted", "owner", owner, "services", reverted)
		t.broadcastLocked()
	}
	return reverted
}

// ReleaseName reverts one name to the unregistered state if owner
// still holds its check-in, closing the retained send side. It
// reports whether anything was reverted. The dispatcher calls this
// when a client connection drops, for each name checked in over that
// connection; a name the owner has since lost or never held is left
// alone.
func (t *Table) ReleaseName(name string, owner int32) bool {
	if owner == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil || e.status != StatusCheckedIn || e.owner != owner {
		return false
	}
	e.send.Close()
	e.send = nil
	e.owner = 0
	e.status = StatusUnregistered
	t.logger.Info("service released", "service", name, "owner", owner)
	t.broadcastLocked()
	return true
}

// ServiceInfo is one row of a namespace snapshot.
type ServiceInfo struct {
	Name   string
	Status Status
	Owner  int32
}

// List returns a snapshot of the table, sorted by name.
func (t *Table) List() []ServiceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	services := make([]ServiceInfo, 0, len(t.entries))
	for name, e := range t.entries {
		services = append(services, ServiceInfo{Name: name, Status: e.status, Owner: e.owner})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services
}

// AwaitCheckIn blocks until name is checked in or ctx is done. The
// supervisor's phase gating runs on this; it costs nothing while
// nothing changes.
func (t *Table) AwaitCheckIn(ctx context.Context, name string) error {
	for {
		t.mu.Lock()
		e := t.entries[name]
		if e != nil && e.status == StatusCheckedIn {
			t.mu.Unlock()
			return nil
		}
		changed := t.changed
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w", name, ctx.Err())
		case <-changed:
		}
	}
}

// Close destroys every capability the table holds. The table is
// unusable afterward; this is broker shutdown.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.send != nil {
			e.send.Close()
		}
		if e.escrow != nil {
			e.escrow.Close()
		}
	}
	t.entries = make(map[string]*entry)
	t.broadcastLocked()
}

// duplicateLocked hands out a fresh duplicate of an entry's retained
// send side. If duplication fails the descriptor limit is exhausted;
// surface it rather than inventing a state.
func (t *Table) duplicateLocked(name string, e *entry) (*capability.Capability, error) {
	duplicate, err := e.send.DuplicateSend()
	if err != nil {
		return nil, fmt.Errorf("duplicating endpoint for %q: %w", name, err)
	}
	return duplicate, nil
}

// broadcastLocked wakes every AwaitCheckIn waiter to re-check.
func (t *Table) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
