// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"net"

	"github.com/switchyard-systems/switchyard/lib/capability"
)

// PeekRoutine extracts the routine field from a raw frame without
// validating anything else, so capture can label frames that fail to
// decode. Frames shorter than a header report routine 0.
func PeekRoutine(raw []byte) uint32 {
	if len(raw) < headerSize {
		return 0
	}
	return binary.LittleEndian.Uint32(raw[9:13])
}

// WriteMessage encodes m and sends it over conn as one datagram,
// transferring the payload's capabilities as descriptor rights. The
// capabilities are moved: consumed on success, left with the caller on
// failure, exactly as Deliver treats attachments.
func WriteMessage(conn *net.UnixConn, m Message) error {
	data, slots, err := Encode(m)
	if err != nil {
		return err
	}
	return capability.SendMessage(conn, data, slots)
}

// ReadMessage reads one datagram from conn into buf and decodes it,
// binding transferred descriptors to the payload's capability slots.
// On any failure after the read, the transferred descriptors are
// closed before the error returns; a partially bound message never
// escapes. Returns io.EOF once the peer has closed cleanly.
func ReadMessage(conn *net.UnixConn, buf []byte) (Message, error) {
	n, fds, err := capability.ReadEnvelope(conn, buf)
	if err != nil {
		return Message{}, err
	}
	m, slots, err := Decode(buf[:n])
	if err != nil {
		capability.CloseDescriptors(fds)
		return Message{}, err
	}
	if err := Bind(slots, fds); err != nil {
		capability.CloseDescriptors(fds)
		return Message{}, err
	}
	return m, nil
}
