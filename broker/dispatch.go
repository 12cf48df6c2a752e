// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"log/slog"

	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/namespace"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

// dispatch routes one request to its handler and returns the reply.
// Every path, including unknown routines, comes back through reply:
// there is no way to answer a request without the reply tag.
func (s *Server) dispatch(c *client, logger *slog.Logger, request wire.Message) wire.Message {
	logger.Debug("request", "routine", wire.RoutineName(request.Routine))

	switch request.Routine {
	case wire.RoutineCheckIn:
		return s.checkIn(c, request)
	case wire.RoutineRegister, wire.RoutineLegacyRegister:
		return s.registerService(request)
	case wire.RoutineLookUp:
		return s.lookUp(request)
	case wire.RoutineEndpointLookUp:
		return s.endpointLookUp(request)
	case wire.RoutineListServices:
		return s.listServices(request)
	case wire.RoutineLegacyLookUp:
		return s.legacyLookUp(request)
	case wire.RoutineParent, wire.RoutineSubset, wire.RoutineSpawnApp:
		// Namespace hierarchies and broker-side process launch are
		// answered, not implemented: callers get a clean status
		// instead of a hang.
		return reply(request, statusPayload(wire.StatusNotSupported))
	}
	return reply(request, statusPayload(wire.StatusBadRoutine))
}

// reply builds the response to request. This is the single place a
// reply is constructed: the direction tag and the routine offset are
// stamped here, and a payload without an explicit status gets
// success.
func reply(request wire.Message, payload wire.Dictionary) wire.Message {
	if _, ok := payload[wire.KeyStatus]; !ok {
		payload[wire.KeyStatus] = wire.Int64(int64(wire.StatusSuccess))
	}
	return wire.Message{
		Direction: wire.TagReply,
		Routine:   request.Routine + wire.ReplyOffset,
		Payload:   payload,
	}
}

func statusPayload(status wire.Status) wire.Dictionary {
	return wire.Dictionary{wire.KeyStatus: wire.Int64(int64(status))}
}

// checkIn claims a name for the calling process and hands back the
// receive side of its endpoint.
func (s *Server) checkIn(c *client, request wire.Message) wire.Message {
	name, ok := request.Payload.Str(wire.KeyName)
	if !ok {
		return reply(request, statusPayload(wire.StatusBadCount))
	}

	receive, err := s.table.CheckIn(name, c.pid)
	if err != nil {
		return reply(request, statusPayload(checkInStatus(err)))
	}
	c.owned[name] = struct{}{}
	return reply(request, wire.Dictionary{wire.KeyEndpoint: wire.Cap(receive)})
}

func checkInStatus(err error) wire.Status {
	switch {
	case errors.Is(err, namespace.ErrAlreadyRegistered):
		return wire.StatusServiceActive
	case errors.Is(err, namespace.ErrInvalidName):
		return wire.StatusBadCount
	}
	return wire.StatusNoMemory
}

// registerService publishes a caller-minted send capability under a
// name. Serves both the current and the legacy register routine; they
// differ only in number.
func (s *Server) registerService(request wire.Message) wire.Message {
	name, ok := request.Payload.Str(wire.KeyName)
	if !ok {
		return reply(request, statusPayload(wire.StatusBadCount))
	}
	endpoint, ok := request.Payload.Capability(wire.KeyEndpoint)
	if !ok || endpoint.Kind() != capability.Send {
		return reply(request, statusPayload(wire.StatusBadCount))
	}

	if err := s.table.Register(name, endpoint); err != nil {
		return reply(request, statusPayload(registerStatus(err)))
	}
	// The table owns the capability now; keep the post-dispatch
	// cleanup off it.
	delete(request.Payload, wire.KeyEndpoint)
	return reply(request, statusPayload(wire.StatusSuccess))
}

func registerStatus(err error) wire.Status {
	switch {
	case errors.Is(err, namespace.ErrAlreadyRegistered):
		return wire.StatusNameInUse
	case errors.Is(err, namespace.ErrInvalidName):
		return wire.StatusBadCount
	}
	return wire.StatusNoMemory
}

// lookUp resolves a name to a send capability, or pending if no
// endpoint is live. The look-up registers interest either way.
func (s *Server) lookUp(request wire.Message) wire.Message {
	name, ok := request.Payload.Str(wire.KeyName)
	if !ok {
		return reply(request, statusPayload(wire.StatusBadCount))
	}

	send, err := s.table.LookUp(name)
	if err != nil {
		return reply(request, statusPayload(lookUpStatus(err)))
	}
	return reply(request, wire.Dictionary{wire.KeyEndpoint: wire.Cap(send)})
}

func lookUpStatus(err error) wire.Status {
	switch {
	case errors.Is(err, namespace.ErrPending):
		return wire.StatusPending
	case errors.Is(err, namespace.ErrNotFound):
		return wire.StatusUnknownService
	case errors.Is(err, namespace.ErrInvalidName):
		return wire.StatusBadCount
	}
	return wire.StatusNoMemory
}

// endpointLookUp resolves a name, minting its endpoint if no one has
// checked it in yet. Deliveries into the returned capability buffer
// until the owner collects the receive side.
func (s *Server) endpointLookUp(request wire.Message) wire.Message {
	name, ok := request.Payload.Str(wire.KeyName)
	if !ok {
		return reply(request, statusPayload(wire.StatusBadCount))
	}

	send, err := s.table.EndpointLookUp(name)
	if err != nil {
		return reply(request, statusPayload(lookUpStatus(err)))
	}
	return reply(request, wire.Dictionary{wire.KeyEndpoint: wire.Cap(send)})
}

// legacyLookUp serves the old shim protocol: resolve without
// registering interest, and report a plain miss for names with no
// live endpoint. Old clients poll; they never learn the pending
// status.
func (s *Server) legacyLookUp(request wire.Message) wire.Message {
	name, ok := request.Payload.Str(wire.KeyName)
	if !ok {
		return reply(request, statusPayload(wire.StatusBadCount))
	}

	send, err := s.table.Resolve(name)
	if err != nil {
		return reply(request, statusPayload(lookUpStatus(err)))
	}
	return reply(request, wire.Dictionary{wire.KeyEndpoint: wire.Cap(send)})
}

// listServices snapshots the namespace into a nested dictionary, one
// entry per name with its state and owner.
func (s *Server) listServices(request wire.Message) wire.Message {
	services := wire.Dictionary{}
	for _, info := range s.table.List() {
		entry := wire.Dictionary{
			wire.KeyState: wire.Int64(int64(info.Status)),
		}
		if info.Owner != 0 {
			entry[wire.KeyOwner] = wire.Int64(int64(info.Owner))
		}
		services[info.Name] = wire.Dict(entry)
	}
	return reply(request, wire.Dictionary{wire.KeyServices: wire.Dict(services)})
}
