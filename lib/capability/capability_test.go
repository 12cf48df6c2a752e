// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/switchyard-systems/switchyard/lib/testutil"
)

func TestDeliverReceive(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()
	defer send.Close()

	payload := []byte("four")
	if err := send.Deliver(payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	buf := make([]byte, 64)
	n, fds, err := receive.Receive(buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("received %q, want %q", buf[:n], payload)
	}
	if len(fds) != 0 {
		t.Errorf("received %d descriptors, want 0", len(fds))
	}
}

func TestDeliveryBuffersUntilRead(t *testing.T) {
	// A service can be messaged before its owner ever reads: datagrams
	// queue in the kernel.
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()
	defer send.Close()

	for i := 0; i < 3; i++ {
		if err := send.Deliver([]byte{byte('a' + i)}); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}

	buf := make([]byte, 16)
	for i := 0; i < 3; i++ {
		n, _, err := receive.Receive(buf)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if n != 1 || buf[0] != byte('a'+i) {
			t.Errorf("datagram %d = %q, want %q", i, buf[:n], string(rune('a'+i)))
		}
	}
}

func TestDeadEndpointIsLazy(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer send.Close()

	// Killing the endpoint does not touch the send side.
	if err := receive.Close(); err != nil {
		t.Fatalf("Close(receive): %v", err)
	}
	if !send.Valid() {
		t.Fatal("send capability invalidated eagerly; death must only surface on delivery")
	}

	err = send.Deliver([]byte("x"))
	if !errors.Is(err, ErrDeadEndpoint) {
		t.Fatalf("Deliver to dead endpoint = %v, want ErrDeadEndpoint", err)
	}
	if send.Valid() {
		t.Error("send capability still valid after observing endpoint death")
	}
}

func TestDuplicateSend(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()

	duplicate, err := send.DuplicateSend()
	if err != nil {
		t.Fatalf("DuplicateSend: %v", err)
	}
	if duplicate.Handle() == send.Handle() {
		t.Error("duplicate shares the original's handle")
	}

	// The duplicate outlives the original.
	if err := send.Close(); err != nil {
		t.Fatalf("Close(send): %v", err)
	}
	if err := duplicate.Deliver([]byte("ok")); err != nil {
		t.Fatalf("Deliver via duplicate after original closed: %v", err)
	}

	buf := make([]byte, 16)
	if n, _, err := receive.Receive(buf); err != nil || string(buf[:n]) != "ok" {
		t.Fatalf("Receive = %q, %v; want %q", buf[:n], err, "ok")
	}
	duplicate.Close()
}

func TestDuplicateWrongKind(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()
	defer send.Close()

	if _, err := receive.DuplicateSend(); !errors.Is(err, ErrWrongKind) {
		t.Errorf("DuplicateSend on receive capability = %v, want ErrWrongKind", err)
	}
}

func TestSendOnceConsumedByDelivery(t *testing.T) {
	replyReceive, replySend, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer replyReceive.Close()

	once, err := replySend.IntoSendOnce()
	if err != nil {
		t.Fatalf("IntoSendOnce: %v", err)
	}
	if replySend.Valid() {
		t.Error("original send capability valid after conversion")
	}

	if err := once.Deliver([]byte("reply")); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	if once.Valid() {
		t.Error("send-once capability valid after delivery")
	}
	if err := once.Deliver([]byte("again")); !errors.Is(err, ErrInvalid) {
		t.Errorf("second Deliver = %v, want ErrInvalid", err)
	}
}

func TestAttachmentsMoveThroughDelivery(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()
	defer send.Close()

	innerReceive, innerSend, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint(inner): %v", err)
	}
	defer innerReceive.Close()

	if err := send.Deliver([]byte("carrying"), innerSend); err != nil {
		t.Fatalf("Deliver with attachment: %v", err)
	}
	if innerSend.Valid() {
		t.Error("attachment still valid after transfer; attachments are moves")
	}

	buf := make([]byte, 64)
	n, fds, err := receive.Receive(buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(buf[:n]) != "carrying" {
		t.Errorf("payload = %q, want %q", buf[:n], "carrying")
	}
	if len(fds) != 1 {
		t.Fatalf("received %d descriptors, want 1", len(fds))
	}

	// Rebind the transferred descriptor and prove it still reaches the
	// inner endpoint.
	rebound := NewDescriptor(Send, 0)
	if err := rebound.Bind(fds[0]); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := rebound.Deliver([]byte("via moved cap")); err != nil {
		t.Fatalf("Deliver via rebound capability: %v", err)
	}
	if n, _, err := innerReceive.Receive(buf); err != nil || string(buf[:n]) != "via moved cap" {
		t.Fatalf("inner Receive = %q, %v", buf[:n], err)
	}
	rebound.Close()
}

func TestReceiveEOFWhenSendersGone(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()

	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, _, err := receive.Receive(buf)
		errs <- err
	}()

	send.Close()
	got := testutil.RequireReceive(t, errs, 5*time.Second, "receive returning after last sender closed")
	if !errors.Is(got, io.EOF) {
		t.Errorf("Receive after last sender closed = %v, want io.EOF", got)
	}
}

func TestEmptyPayloadRejected(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()
	defer send.Close()

	if err := send.Deliver(nil); err == nil {
		t.Fatal("Deliver(nil) should fail; empty datagrams alias EOF")
	}
}

func TestUnboundDescriptorUnusable(t *testing.T) {
	descriptor := NewDescriptor(Send, 99)
	if descriptor.Bound() {
		t.Fatal("fresh descriptor reports bound")
	}
	if err := descriptor.Deliver([]byte("x")); !errors.Is(err, ErrUnbound) {
		t.Errorf("Deliver on unbound descriptor = %v, want ErrUnbound", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	send.Close()
	for i := 0; i < 2; i++ {
		if err := receive.Close(); err != nil {
			t.Fatalf("Close %d: %v", i+1, err)
		}
	}
}
