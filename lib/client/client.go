// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

// SocketEnv is the environment variable the supervisor sets in every
// child: the path of the broker's bootstrap socket.
const SocketEnv = "SWITCHYARD_BOOTSTRAP_SOCKET"

// Namespace-level outcomes, mapped from reply status codes. These are
// normal results of the protocol, not failures: a pending look-up is
// the steady state of a service that has not started yet.
var (
	// ErrPending: the name is known but no endpoint is live. Retry
	// policy belongs to the caller.
	ErrPending = errors.New("client: service pending")

	// ErrUnknownService: the name has never been seen (legacy
	// look-up only; the current look-up registers interest instead).
	ErrUnknownService = errors.New("client: unknown service")

	// ErrAlreadyRegistered: the name is actively held by another
	// process.
	ErrAlreadyRegistered = errors.New("client: name already registered")
)

// StatusError is a reply whose status was not success. It wraps the
// namespace-level sentinel matching its status, so callers can use
// errors.Is against ErrPending and friends while still seeing the
// exact code and routine.
type StatusError struct {
	Routine uint32
	Status  wire.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", wire.RoutineName(e.Routine), e.Status)
}

// Unwrap maps the status onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case wire.StatusPending:
		return ErrPending
	case wire.StatusUnknownService:
		return ErrUnknownService
	case wire.StatusNameInUse, wire.StatusServiceActive:
		return ErrAlreadyRegistered
	}
	return nil
}

// Client is one process's connection to the broker. All bootstrap
// requests of a process flow through a single connection, serialized:
// the protocol is strict request-reply, so a second in-flight request
// would interleave replies.
type Client struct {
	mutex sync.Mutex
	conn  *net.UnixConn
	buf   []byte
	cache *cache
}

// Dial connects to the broker's bootstrap socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: socketPath, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("connecting to broker at %s: %w", socketPath, err)
	}
	return &Client{
		conn:  conn,
		buf:   make([]byte, wire.MaxMessageSize),
		cache: newCache(cacheCapacity),
	}, nil
}

// FromEnvironment connects to the broker named by SocketEnv, the way
// a supervised child finds its broker.
func FromEnvironment() (*Client, error) {
	socketPath := os.Getenv(SocketEnv)
	if socketPath == "" {
		return nil, fmt.Errorf("%s is not set (not running under a switchyard supervisor?)", SocketEnv)
	}
	return Dial(socketPath)
}

// Close drops the connection and every cached capability. Names this
// process checked in revert to pending on the broker side.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache.drop()
	return c.conn.Close()
}

// CheckIn claims name for this process and returns the receive side
// of its endpoint. A repeated check-in by the same process returns a
// fresh endpoint; the old receive side keeps working until closed but
// no longer backs the name.
func (c *Client) CheckIn(name string) (*capability.Capability, error) {
	reply, err := c.roundTrip(wire.Message{
		Direction: wire.TagRequest,
		Routine:   wire.RoutineCheckIn,
		Payload:   wire.Dictionary{wire.KeyName: wire.String(name)},
	})
	if err != nil {
		return nil, err
	}
	return takeEndpoint(reply, capability.Receive)
}

// LookUp resolves name to a send capability. Results are cached: a
// later LookUp for the same name duplicates the cached capability
// without a broker round trip, until Invalidate or a dead cache
// entry forces a refresh.
func (c *Client) LookUp(name string) (*capability.Capability, error) {
	if cached, ok := c.cached(name); ok {
		return cached, nil
	}
	return c.lookUpRoutine(name, wire.RoutineLookUp)
}

// EndpointLookUp resolves name, having the broker mint the endpoint
// if its owner has not checked in yet. Deliveries buffer in the
// kernel until the owner collects the receive side.
func (c *Client) EndpointLookUp(name string) (*capability.Capability, error) {
	if cached, ok := c.cached(name); ok {
		return cached, nil
	}
	return c.lookUpRoutine(name, wire.RoutineEndpointLookUp)
}

func (c *Client) lookUpRoutine(name string, routine uint32) (*capability.Capability, error) {
	reply, err := c.roundTrip(wire.Message{
		Direction: wire.TagRequest,
		Routine:   routine,
		Payload:   wire.Dictionary{wire.KeyName: wire.String(name)},
	})
	if err != nil {
		return nil, err
	}
	send, err := takeEndpoint(reply, capability.Send)
	if err != nil {
		return nil, err
	}
	return c.adopt(name, send)
}

// Register publishes a send capability under name. The capability is
// moved: only a failure before the request is sent (encode or
// delivery) leaves it with the caller. A broker rejection such as
// name-in-use arrives after the descriptor has transferred, so on a
// status error the capability is gone too and a retry needs a fresh
// duplicate.
func (c *Client) Register(name string, send *capability.Capability) error {
	_, err := c.roundTrip(wire.Message{
		Direction: wire.TagRequest,
		Routine:   wire.RoutineRegister,
		Payload: wire.Dictionary{
			wire.KeyName:     wire.String(name),
			wire.KeyEndpoint: wire.Cap(send),
		},
	})
	return err
}

// ServiceInfo is one row of a namespace listing.
type ServiceInfo struct {
	Name  string
	State int64
	Owner int64
}

// ListServices returns the broker's namespace snapshot, in the
// order the broker listed it.
func (c *Client) ListServices() ([]ServiceInfo, error) {
	reply, err := c.roundTrip(wire.Message{
		Direction: wire.TagRequest,
		Routine:   wire.RoutineListServices,
		Payload:   wire.Dictionary{},
	})
	if err != nil {
		return nil, err
	}
	services, ok := reply.Payload.SubDict(wire.KeyServices)
	if !ok {
		return nil, fmt.Errorf("list-services reply carries no service dictionary")
	}
	infos := make([]ServiceInfo, 0, len(services))
	for name, value := range services {
		entry, ok := value.Dict()
		if !ok {
			return nil, fmt.Errorf("service %q: entry is not a dictionary", name)
		}
		info := ServiceInfo{Name: name}
		info.State, _ = entry.Int(wire.KeyState)
		info.Owner, _ = entry.Int(wire.KeyOwner)
		infos = append(infos, info)
	}
	return infos, nil
}

// roundTrip sends one request and reads its reply, holding the
// request lock for the full cycle. Replies are validated before any
// capability in them is touched: the direction tag must be the reply
// tag and the routine must answer the request. A reply failing either
// check has its capabilities closed and poisons nothing else.
func (c *Client) roundTrip(request wire.Message) (wire.Message, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := wire.WriteMessage(c.conn, request); err != nil {
		return wire.Message{}, fmt.Errorf("sending %s: %w", wire.RoutineName(request.Routine), err)
	}
	reply, err := wire.ReadMessage(c.conn, c.buf)
	if err != nil {
		return wire.Message{}, fmt.Errorf("awaiting %s reply: %w", wire.RoutineName(request.Routine), err)
	}

	if !reply.IsReply() {
		reply.CloseCapabilities()
		return wire.Message{}, fmt.Errorf("%s: reply carries the request direction tag", wire.RoutineName(request.Routine))
	}
	if reply.Routine != request.Routine+wire.ReplyOffset {
		reply.CloseCapabilities()
		return wire.Message{}, fmt.Errorf("%s: reply answers %s", wire.RoutineName(request.Routine), wire.RoutineName(reply.Routine))
	}

	status, ok := reply.Payload.Status()
	if !ok {
		reply.CloseCapabilities()
		return wire.Message{}, fmt.Errorf("%s: reply carries no status", wire.RoutineName(request.Routine))
	}
	if status != wire.StatusSuccess {
		reply.CloseCapabilities()
		return wire.Message{}, &StatusError{Routine: request.Routine, Status: status}
	}
	return reply, nil
}

// takeEndpoint extracts and claims the endpoint capability from a
// successful reply, checking its kind. Whatever else the reply holds
// is closed.
func takeEndpoint(reply wire.Message, kind capability.Kind) (*capability.Capability, error) {
	endpoint, ok := reply.Payload.Capability(wire.KeyEndpoint)
	if !ok {
		reply.CloseCapabilities()
		return nil, fmt.Errorf("%s: success reply carries no endpoint", wire.RoutineName(reply.Routine))
	}
	if endpoint.Kind() != kind {
		reply.CloseCapabilities()
		return nil, fmt.Errorf("%s: endpoint is %s, want %s", wire.RoutineName(reply.Routine), endpoint.Kind(), kind)
	}
	delete(reply.Payload, wire.KeyEndpoint)
	reply.CloseCapabilities()
	return endpoint, nil
}
