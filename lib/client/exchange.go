// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

// ExchangeRoutine is the routine number of service-level exchange
// requests. Service traffic lives outside the broker's bootstrap
// routine space; one number is enough because the payload dictionary
// carries the request itself.
const ExchangeRoutine uint32 = 200

// Exchange delivers payload to a service endpoint and waits for the
// reply. It mints a reply endpoint, attaches its send side as a
// send-once capability under the reply key, and blocks on the receive
// side until the service answers.
//
// The reply must carry the reply direction tag; anything else is a
// protocol violation by the service, reported as an error without
// touching the reply's content. A service that died before answering
// surfaces as ErrDeadEndpoint (delivery failed) or io.EOF (delivery
// queued, owner exited before answering).
func Exchange(send *capability.Capability, payload []byte) ([]byte, error) {
	replyReceive, replySend, err := capability.NewEndpoint()
	if err != nil {
		return nil, fmt.Errorf("minting reply endpoint: %w", err)
	}
	defer replyReceive.Close()

	replyOnce, err := replySend.IntoSendOnce()
	if err != nil {
		replySend.Close()
		return nil, fmt.Errorf("preparing reply capability: %w", err)
	}

	request := wire.Message{
		Direction: wire.TagRequest,
		Routine:   ExchangeRoutine,
		Payload: wire.Dictionary{
			wire.KeyPayload: wire.String(string(payload)),
			wire.KeyReply:   wire.Cap(replyOnce),
		},
	}
	data, slots, err := wire.Encode(request)
	if err != nil {
		replyOnce.Close()
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}
	if err := send.Deliver(data, slots...); err != nil {
		replyOnce.Close()
		return nil, err
	}

	reply, err := receiveMessage(replyReceive)
	if err != nil {
		return nil, fmt.Errorf("awaiting exchange reply: %w", err)
	}
	defer reply.CloseCapabilities()

	if !reply.IsReply() {
		return nil, errors.New("exchange reply carries the request direction tag")
	}
	body, ok := reply.Payload.Str(wire.KeyPayload)
	if !ok {
		return nil, errors.New("exchange reply carries no payload")
	}
	return []byte(body), nil
}

// Handler answers one exchange request. The returned payload is sent
// back verbatim; a nil error with a nil payload answers with an empty
// reply dictionary entry.
type Handler func(payload []byte) ([]byte, error)

// Serve answers exchange requests on a checked-in receive capability
// until the capability is closed or every sender is gone. Replies are
// stamped with the reply direction tag and the offset routine here,
// on every path including handler errors, so a service cannot answer
// with a request-tagged message through this loop.
//
// Serve returns nil on a clean end of traffic (capability closed or
// all senders gone).
func Serve(receive *capability.Capability, handler Handler) error {
	for {
		request, err := receiveMessage(receive)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, capability.ErrInvalid) {
				return nil
			}
			return err
		}
		serveOne(request, handler)
	}
}

// serveOne answers a single request, consuming its reply capability.
// Requests without a usable reply capability are dropped: there is
// nobody to tell.
func serveOne(request wire.Message, handler Handler) {
	defer request.CloseCapabilities()

	replyTo, ok := request.Payload.Capability(wire.KeyReply)
	if !ok || replyTo.Kind() == capability.Receive {
		return
	}
	delete(request.Payload, wire.KeyReply)

	payload, _ := request.Payload.Str(wire.KeyPayload)
	body, err := handler([]byte(payload))

	reply := wire.Message{
		Direction: wire.TagReply,
		Routine:   request.Routine + wire.ReplyOffset,
		Payload:   wire.Dictionary{},
	}
	if err != nil {
		reply.Payload[wire.KeyStatus] = wire.Int64(int64(wire.StatusNoMemory))
		reply.Payload[wire.KeyPayload] = wire.String(err.Error())
	} else {
		reply.Payload[wire.KeyStatus] = wire.Int64(int64(wire.StatusSuccess))
		reply.Payload[wire.KeyPayload] = wire.String(string(body))
	}

	data, slots, err := wire.Encode(reply)
	if err != nil {
		replyTo.Close()
		return
	}
	// Best effort: the requester may have given up and closed its
	// receive side, which is its prerogative.
	if err := replyTo.Deliver(data, slots...); err != nil {
		replyTo.Close()
	}
}

// receiveMessage reads and decodes one delivered wire message from a
// receive capability, binding any transferred descriptors.
func receiveMessage(receive *capability.Capability) (wire.Message, error) {
	buf := make([]byte, wire.MaxMessageSize)
	n, fds, err := receive.Receive(buf)
	if err != nil {
		return wire.Message{}, err
	}
	message, slots, err := wire.Decode(buf[:n])
	if err != nil {
		capability.CloseDescriptors(fds)
		return wire.Message{}, err
	}
	if err := wire.Bind(slots, fds); err != nil {
		capability.CloseDescriptors(fds)
		return wire.Message{}, err
	}
	return message, nil
}
