// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Kind classifies what a capability lets its holder do with the
// underlying endpoint.
type Kind int

const (
	// Receive is the unique consuming side of an endpoint. Exactly one
	// receive capability exists per endpoint; closing it is what makes
	// the endpoint dead.
	Receive Kind = iota + 1

	// Send delivers messages to the endpoint and may be duplicated.
	Send

	// SendOnce delivers exactly one message and then invalidates
	// itself. Reply endpoints use this.
	SendOnce
)

func (k Kind) String() string {
	switch k {
	case Receive:
		return "receive"
	case Send:
		return "send"
	case SendOnce:
		return "send-once"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	// ErrDeadEndpoint reports that the endpoint's receive side no
	// longer exists. It surfaces on delivery, never eagerly: a send
	// capability whose peer died looks healthy until the next Deliver.
	ErrDeadEndpoint = errors.New("capability: dead endpoint")

	// ErrInvalid reports an operation on a closed or consumed
	// capability.
	ErrInvalid = errors.New("capability: invalidated")

	// ErrUnbound reports an operation that needs a live descriptor on
	// a capability that was decoded from the wire but never bound.
	ErrUnbound = errors.New("capability: unbound descriptor")

	// ErrWrongKind reports an operation the capability's kind does not
	// permit, like receiving on a send capability.
	ErrWrongKind = errors.New("capability: wrong kind")
)

// handleCounter mints process-local capability handles. Handles are
// diagnostic identities: they name a capability in logs and wire
// descriptors but confer no authority.
var handleCounter atomic.Uint64

// Capability is one side of a kernel-buffered endpoint. The endpoint
// itself is an AF_UNIX SOCK_SEQPACKET socket pair; a capability wraps
// one descriptor of it together with its kind.
//
// A capability decoded from a wire message starts unbound (no
// descriptor) and becomes usable once the transport envelope binds the
// descriptor that traveled alongside the payload.
type Capability struct {
	kind   Kind
	handle uint64

	mu    sync.Mutex
	fd    int
	valid bool
}

// NewEndpoint mints a fresh endpoint and returns its two sides: the
// unique receive capability and a send capability. Both descriptors
// are close-on-exec; deliveries made before the receive side is read
// queue in the kernel.
func NewEndpoint() (receive, send *Capability, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("minting endpoint: %w", err)
	}
	receive = &Capability{kind: Receive, handle: handleCounter.Add(1), fd: fds[0], valid: true}
	send = &Capability{kind: Send, handle: handleCounter.Add(1), fd: fds[1], valid: true}
	return receive, send, nil
}

// NewDescriptor returns an unbound capability of the given kind and
// handle, as decoded from a wire message. Bind attaches the descriptor
// delivered in the same envelope.
func NewDescriptor(kind Kind, handle uint64) *Capability {
	return &Capability{kind: kind, handle: handle, fd: -1}
}

// Kind returns the capability's kind.
func (c *Capability) Kind() Kind { return c.kind }

// Handle returns the capability's diagnostic identity.
func (c *Capability) Handle() uint64 { return c.handle }

// Valid reports whether the capability is still usable. A false
// result is definitive; a true result can be stale the moment it is
// returned (liveness of the far side is only ever learned from
// Deliver).
func (c *Capability) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// Bound reports whether the capability has a live descriptor.
func (c *Capability) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd >= 0
}

// Bind attaches the descriptor that traveled with this capability's
// wire message. Binding an already-bound or closed capability is an
// error; the caller keeps ownership of fd in that case.
func (c *Capability) Bind(fd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd >= 0 {
		return fmt.Errorf("binding capability %d: already bound", c.handle)
	}
	c.fd = fd
	c.valid = true
	return nil
}

// DuplicateSend returns a new independent send capability for the same
// endpoint. Only plain send capabilities can be duplicated: the
// receive side is unique by construction and a send-once would lose
// its single-use guarantee.
func (c *Capability) DuplicateSend() (*Capability, error) {
	if c.kind != Send {
		return nil, fmt.Errorf("duplicating %s capability %d: %w", c.kind, c.handle, ErrWrongKind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, fmt.Errorf("duplicating capability %d: %w", c.handle, ErrInvalid)
	}
	if c.fd < 0 {
		return nil, fmt.Errorf("duplicating capability %d: %w", c.handle, ErrUnbound)
	}
	duplicate, err := unix.FcntlInt(uintptr(c.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicating capability %d: %w", c.handle, err)
	}
	return &Capability{kind: Send, handle: handleCounter.Add(1), fd: duplicate, valid: true}, nil
}

// IntoSendOnce converts a send capability into a send-once capability
// for the same endpoint, consuming the original. Reply flows use this:
// the requester mints an endpoint, keeps the receive side, and attaches
// the send side as a send-once so the server can answer exactly once.
func (c *Capability) IntoSendOnce() (*Capability, error) {
	if c.kind != Send {
		return nil, fmt.Errorf("converting %s capability %d to send-once: %w", c.kind, c.handle, ErrWrongKind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, fmt.Errorf("converting capability %d: %w", c.handle, ErrInvalid)
	}
	if c.fd < 0 {
		return nil, fmt.Errorf("converting capability %d: %w", c.handle, ErrUnbound)
	}
	once := &Capability{kind: SendOnce, handle: handleCounter.Add(1), fd: c.fd, valid: true}
	c.fd = -1
	c.valid = false
	return once, nil
}

// Deliver sends one datagram to the endpoint, transferring any
// attached capabilities with it. Attachments are moved: on success
// their local descriptors are closed and the capabilities invalidate
// (duplicate first to keep using one). A send-once capability also
// invalidates itself after a successful delivery.
//
// A dead endpoint (receive side closed, or owner exited) surfaces as
// ErrDeadEndpoint. The payload must be non-empty: a zero-length
// seqpacket datagram is indistinguishable from end-of-stream on the
// receiving side.
func (c *Capability) Deliver(payload []byte, attachments ...*Capability) error {
	if c.kind != Send && c.kind != SendOnce {
		return fmt.Errorf("delivering via %s capability %d: %w", c.kind, c.handle, ErrWrongKind)
	}
	if len(payload) == 0 {
		return fmt.Errorf("delivering via capability %d: empty payload", c.handle)
	}

	rights := make([]int, 0, len(attachments))
	for _, attachment := range attachments {
		fd, err := attachment.transferFD()
		if err != nil {
			return fmt.Errorf("attachment %d: %w", attachment.handle, err)
		}
		rights = append(rights, fd)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return fmt.Errorf("delivering via capability %d: %w", c.handle, ErrInvalid)
	}
	if c.fd < 0 {
		return fmt.Errorf("delivering via capability %d: %w", c.handle, ErrUnbound)
	}

	if err := sendEnvelope(c.fd, payload, rights); err != nil {
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			c.invalidateLocked()
			return fmt.Errorf("capability %d: %w", c.handle, ErrDeadEndpoint)
		}
		return fmt.Errorf("delivering via capability %d: %w", c.handle, err)
	}

	// The kernel holds its own references to transferred descriptors
	// inside the queued message; the local copies are done.
	for _, attachment := range attachments {
		attachment.consume()
	}
	if c.kind == SendOnce {
		c.invalidateLocked()
	}
	return nil
}

// Receive reads one datagram from the endpoint into buf, returning the
// payload length and any descriptors attached by the sender. The
// descriptors arrive close-on-exec and raw: the wire layer decides
// their kinds from the payload and binds them. Receive blocks until a
// datagram arrives; io.EOF means every send capability for this
// endpoint is gone.
func (c *Capability) Receive(buf []byte) (int, []int, error) {
	if c.kind != Receive {
		return 0, nil, fmt.Errorf("receiving on %s capability %d: %w", c.kind, c.handle, ErrWrongKind)
	}
	c.mu.Lock()
	if !c.valid {
		c.mu.Unlock()
		return 0, nil, fmt.Errorf("receiving on capability %d: %w", c.handle, ErrInvalid)
	}
	if c.fd < 0 {
		c.mu.Unlock()
		return 0, nil, fmt.Errorf("receiving on capability %d: %w", c.handle, ErrUnbound)
	}
	fd := c.fd
	c.mu.Unlock()

	// Blocking read outside the lock: Close from another goroutine
	// must not have to wait for a datagram.
	n, fds, err := recvEnvelope(fd, buf)
	if err != nil {
		return 0, nil, fmt.Errorf("receiving on capability %d: %w", c.handle, err)
	}
	return n, fds, nil
}

// Close destroys the capability. Closing the receive side kills the
// endpoint: every outstanding send capability will get ErrDeadEndpoint
// on its next Deliver. Close is idempotent.
func (c *Capability) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid && c.fd < 0 {
		return nil
	}
	c.invalidateLocked()
	return nil
}

// transferFD hands the capability's descriptor to an envelope write.
// The descriptor stays open until consume (the sendmsg needs it live).
func (c *Capability) transferFD() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return -1, ErrInvalid
	}
	if c.fd < 0 {
		return -1, ErrUnbound
	}
	return c.fd, nil
}

// consume finishes a transfer: the kernel owns a reference now, so
// only the local descriptor goes away. No shutdown here: the socket
// object is shared with the in-flight copy, and shutting it down
// would deliver the recipient a dead capability.
func (c *Capability) consume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	c.valid = false
}

func (c *Capability) invalidateLocked() {
	if c.fd >= 0 {
		if c.kind == Receive {
			// Wake a Receive blocked on this descriptor; closing alone
			// does not interrupt a blocked recvmsg. Only the receive
			// side may do this: shutdown acts on the socket object, and
			// a send side shares its socket with every duplicate.
			_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
		}
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	c.valid = false
}
