// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// MaxAttachments bounds the descriptors one envelope may carry. The
// protocol needs at most one per message today (a transferred endpoint
// side, or a reply capability); eight leaves headroom without letting
// a peer stuff the control buffer.
const MaxAttachments = 8

// ErrTruncated reports a datagram that did not fit the receive buffer
// or whose control data was cut off. The message is unusable: part of
// it is gone from the socket forever.
var ErrTruncated = errors.New("capability: truncated envelope")

// oobSpace is the control buffer size for the maximum rights payload.
var oobSpace = unix.CmsgSpace(MaxAttachments * 4)

// sendEnvelope writes one datagram carrying payload and descriptor
// rights on a raw seqpacket descriptor. MSG_NOSIGNAL keeps a dead peer
// from raising SIGPIPE; the caller sees EPIPE instead.
func sendEnvelope(fd int, payload []byte, rights []int) error {
	if len(rights) > MaxAttachments {
		return fmt.Errorf("%d attachments exceeds limit of %d", len(rights), MaxAttachments)
	}
	var oob []byte
	if len(rights) > 0 {
		oob = unix.UnixRights(rights...)
	}
	n, err := unix.SendmsgN(fd, payload, oob, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short envelope write: %d of %d bytes", n, len(payload))
	}
	return nil
}

// recvEnvelope reads one datagram from a raw seqpacket descriptor.
// Received descriptors are close-on-exec. Returns io.EOF once the far
// side is fully closed.
func recvEnvelope(fd int, buf []byte) (int, []int, error) {
	oob := make([]byte, oobSpace)
	n, oobn, flags, _, err := unix.Recvmsg(fd, buf, oob, unix.MSG_CMSG_CLOEXEC)
	if err != nil {
		return 0, nil, err
	}
	if n == 0 && oobn == 0 {
		return 0, nil, io.EOF
	}
	fds, err := parseRights(oob[:oobn], flags)
	if err != nil {
		return 0, nil, err
	}
	return n, fds, nil
}

// WriteEnvelope sends one datagram carrying data and descriptor rights
// on a connected seqpacket socket. Broker connections use this; raw
// capability descriptors go through Deliver.
func WriteEnvelope(conn *net.UnixConn, data []byte, rights []int) error {
	if len(rights) > MaxAttachments {
		return fmt.Errorf("%d attachments exceeds limit of %d", len(rights), MaxAttachments)
	}
	var oob []byte
	if len(rights) > 0 {
		oob = unix.UnixRights(rights...)
	}
	n, _, err := conn.WriteMsgUnix(data, oob, nil)
	if err != nil {
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			return fmt.Errorf("%w: %v", ErrDeadEndpoint, err)
		}
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short envelope write: %d of %d bytes", n, len(data))
	}
	return nil
}

// SendMessage writes one encoded message over conn, transferring the
// message's capability slots as descriptor rights. Slots are moved
// exactly as Deliver moves attachments: consumed on success, left
// owned by the caller on failure. Slot order is preserved, which is
// what lets the receiving decoder pair descriptors back with their
// payload fields.
func SendMessage(conn *net.UnixConn, data []byte, slots []*Capability) error {
	rights := make([]int, 0, len(slots))
	for _, slot := range slots {
		fd, err := slot.transferFD()
		if err != nil {
			return fmt.Errorf("slot %d: %w", slot.handle, err)
		}
		rights = append(rights, fd)
	}
	if err := WriteEnvelope(conn, data, rights); err != nil {
		return err
	}
	for _, slot := range slots {
		slot.consume()
	}
	return nil
}

// ReadEnvelope reads one datagram from a connected seqpacket socket
// into buf, returning the payload length and any descriptors attached
// by the peer. Returns io.EOF on a cleanly closed connection.
func ReadEnvelope(conn *net.UnixConn, buf []byte) (int, []int, error) {
	oob := make([]byte, oobSpace)
	n, oobn, flags, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, err
	}
	if n == 0 && oobn == 0 {
		return 0, nil, io.EOF
	}
	fds, err := parseRights(oob[:oobn], flags)
	if err != nil {
		return 0, nil, err
	}
	// ReadMsgUnix sets MSG_CMSG_CLOEXEC on Linux, but be explicit: a
	// leaked descriptor inherited across exec is a capability leak.
	for _, fd := range fds {
		unix.CloseOnExec(fd)
	}
	return n, fds, nil
}

// CloseDescriptors closes raw descriptors received from an envelope.
// Decoders that fail partway through a message call this so the
// transferred rights cannot leak into the process descriptor table.
func CloseDescriptors(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// parseRights extracts SCM_RIGHTS descriptors from control data,
// checking the truncation flags first. On error, any descriptors the
// kernel already installed are closed so they cannot leak.
func parseRights(oob []byte, flags int) ([]int, error) {
	if flags&unix.MSG_TRUNC != 0 || flags&unix.MSG_CTRUNC != 0 {
		closeRights(oob)
		return nil, ErrTruncated
	}
	if len(oob) == 0 {
		return nil, nil
	}
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	var fds []int
	for i := range messages {
		parsed, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			// Not a rights message; nothing of ours to clean up.
			continue
		}
		fds = append(fds, parsed...)
	}
	if len(fds) > MaxAttachments {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return nil, fmt.Errorf("peer attached %d descriptors, limit %d", len(fds), MaxAttachments)
	}
	return fds, nil
}

// closeRights closes whatever descriptors can still be salvaged from
// possibly-truncated control data.
func closeRights(oob []byte) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for i := range messages {
		if fds, err := unix.ParseUnixRights(&messages[i]); err == nil {
			for _, fd := range fds {
				_ = unix.Close(fd)
			}
		}
	}
}
