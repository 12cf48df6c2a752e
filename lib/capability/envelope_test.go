// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/switchyard-systems/switchyard/lib/testutil"
)

// connPair returns both ends of an accepted unixpacket connection.
func connPair(t *testing.T) (client, server *net.UnixConn) {
	t.Helper()
	path := testutil.SocketPath(t, "envelope")

	listener, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan *net.UnixConn, 1)
	go func() {
		conn, err := listener.AcceptUnix()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err = net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		t.Fatalf("DialUnix: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server = testutil.RequireReceive(t, accepted, 5*time.Second, "accepting connection")
	t.Cleanup(func() { server.Close() })
	return client, server
}

func TestEnvelopeRoundTrip(t *testing.T) {
	client, server := connPair(t)

	if err := WriteEnvelope(client, []byte("hello broker"), nil); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	buf := make([]byte, 64)
	n, fds, err := ReadEnvelope(server, buf)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if string(buf[:n]) != "hello broker" {
		t.Errorf("payload = %q, want %q", buf[:n], "hello broker")
	}
	if len(fds) != 0 {
		t.Errorf("got %d descriptors, want 0", len(fds))
	}
}

func TestEnvelopeCarriesRights(t *testing.T) {
	client, server := connPair(t)

	receive, send, err := NewEndpoint()
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer receive.Close()

	sendFD, err := send.transferFD()
	if err != nil {
		t.Fatalf("transferFD: %v", err)
	}
	if err := WriteEnvelope(client, []byte("cap attached"), []int{sendFD}); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	send.consume()

	buf := make([]byte, 64)
	n, fds, err := ReadEnvelope(server, buf)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if string(buf[:n]) != "cap attached" {
		t.Errorf("payload = %q, want %q", buf[:n], "cap attached")
	}
	if len(fds) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(fds))
	}

	// The descriptor that arrived is a live send side for the original
	// endpoint.
	rebound := NewDescriptor(Send, 0)
	if err := rebound.Bind(fds[0]); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer rebound.Close()
	if err := rebound.Deliver([]byte("proof")); err != nil {
		t.Fatalf("Deliver via transferred descriptor: %v", err)
	}
	if n, _, err := receive.Receive(buf); err != nil || string(buf[:n]) != "proof" {
		t.Fatalf("Receive = %q, %v", buf[:n], err)
	}
}

func TestEnvelopeEOF(t *testing.T) {
	client, server := connPair(t)
	client.Close()

	buf := make([]byte, 16)
	_, _, err := ReadEnvelope(server, buf)
	if !errors.Is(err, io.EOF) {
		t.Errorf("ReadEnvelope on closed peer = %v, want io.EOF", err)
	}
}

func TestEnvelopeTooManyAttachments(t *testing.T) {
	client, _ := connPair(t)

	rights := make([]int, MaxAttachments+1)
	if err := WriteEnvelope(client, []byte("x"), rights); err == nil {
		t.Fatal("WriteEnvelope should reject more than MaxAttachments descriptors")
	}
}

func TestPeerPID(t *testing.T) {
	client, server := connPair(t)
	_ = client

	pid, err := PeerPID(server)
	if err != nil {
		t.Fatalf("PeerPID: %v", err)
	}
	// Both ends are this test process.
	if int(pid) <= 0 {
		t.Errorf("PeerPID = %d, want a positive pid", pid)
	}
}
