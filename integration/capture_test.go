// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"bytes"
	"testing"

	"github.com/switchyard-systems/switchyard/lib/capture"
	"github.com/switchyard-systems/switchyard/lib/client"
	"github.com/switchyard-systems/switchyard/lib/testutil"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

// TestCaptureRecordsBootstrapTraffic: real client traffic lands in
// the broker's ring with both directions, correct routine numbers,
// and frame bytes that still decode as wire messages.
func TestCaptureRecordsBootstrapTraffic(t *testing.T) {
	stack := startStack(t)
	name := testutil.UniqueID("svc/observed")

	provider := stack.dialClient(t)
	receive, err := provider.CheckIn(name)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	defer receive.Close()

	consumer := stack.dialClient(t)
	send, err := consumer.LookUp(name)
	if err != nil {
		t.Fatalf("LookUp: %v", err)
	}
	send.Close()
	if _, err := consumer.ListServices(); err != nil {
		t.Fatalf("ListServices: %v", err)
	}

	frames := stack.ring.Snapshot(0)
	if len(frames) < 6 {
		t.Fatalf("ring holds %d frames, want at least 6 (three request-reply pairs)", len(frames))
	}

	directions := make(map[capture.Direction]int)
	routines := make(map[uint32]int)
	for _, frame := range frames {
		directions[frame.Direction]++
		routines[frame.Routine]++
		message, _, err := wire.Decode(frame.Data)
		if err != nil {
			t.Fatalf("frame %d does not decode: %v", frame.Seq, err)
		}
		if frame.Direction == capture.Inbound && message.IsReply() {
			t.Errorf("inbound frame %d carries the reply tag", frame.Seq)
		}
	}
	if directions[capture.Inbound] == 0 || directions[capture.Outbound] == 0 {
		t.Fatalf("directions %v, want both inbound and outbound", directions)
	}
	for _, routine := range []uint32{wire.RoutineCheckIn, wire.RoutineLookUp, wire.RoutineListServices} {
		if routines[routine] == 0 {
			t.Errorf("no frame for %s", wire.RoutineName(routine))
		}
	}
}

// TestCaptureDumpRoundTrip writes the live ring to a compressed dump
// and reads it back intact, the workflow behind the capture CLI.
func TestCaptureDumpRoundTrip(t *testing.T) {
	stack := startStack(t)
	name := testutil.UniqueID("svc/dumped")

	provider := stack.dialClient(t)
	receive, err := provider.CheckIn(name)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	defer receive.Close()
	if _, err := provider.LookUp(name); err != nil {
		t.Fatalf("LookUp: %v", err)
	}

	frames := stack.ring.Snapshot(0)
	if len(frames) == 0 {
		t.Fatal("nothing captured")
	}

	for _, compression := range []capture.Compression{capture.CompressionNone, capture.CompressionLZ4, capture.CompressionZstd} {
		var buffer bytes.Buffer
		if err := capture.WriteDump(&buffer, frames, compression); err != nil {
			t.Fatalf("WriteDump(%s): %v", compression, err)
		}
		restored, err := capture.ReadDump(&buffer)
		if err != nil {
			t.Fatalf("ReadDump(%s): %v", compression, err)
		}
		if len(restored) != len(frames) {
			t.Fatalf("%s round trip: %d frames, want %d", compression, len(restored), len(frames))
		}
		for i := range frames {
			if restored[i].Seq != frames[i].Seq || !bytes.Equal(restored[i].Data, frames[i].Data) {
				t.Fatalf("%s round trip: frame %d differs", compression, i)
			}
		}
	}
}

// TestCaptureExcludesServiceTraffic: exchange payloads flow directly
// between processes, so the ring must never see the exchange routine.
func TestCaptureExcludesServiceTraffic(t *testing.T) {
	stack := startStack(t)
	name := testutil.UniqueID("svc/private")

	provider := stack.dialClient(t)
	receive, err := provider.CheckIn(name)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	defer receive.Close()
	go client.Serve(receive, func(payload []byte) ([]byte, error) {
		return payload, nil
	})

	consumer := stack.dialClient(t)
	send, err := consumer.LookUp(name)
	if err != nil {
		t.Fatalf("LookUp: %v", err)
	}
	defer send.Close()
	if _, err := client.Exchange(send, []byte("secret")); err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	for _, frame := range stack.ring.Snapshot(0) {
		if frame.Routine == client.ExchangeRoutine {
			t.Fatalf("frame %d captured service traffic", frame.Seq)
		}
		if bytes.Contains(frame.Data, []byte("secret")) {
			t.Fatalf("frame %d leaked an exchange payload", frame.Seq)
		}
	}
}
