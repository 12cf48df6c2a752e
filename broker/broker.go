// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/capture"
	"github.com/switchyard-systems/switchyard/lib/clock"
	"github.com/switchyard-systems/switchyard/lib/namespace"
	"github.com/switchyard-systems/switchyard/lib/wire"
)

// Config wires a broker server together. SocketPath and Namespace are
// required; Capture is optional (nil disables traffic capture), and a
// nil Clock means the real one.
type Config struct {
	SocketPath string
	Namespace  *namespace.Table
	Capture    *capture.Ring
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Server accepts bootstrap connections on a seqpacket socket and
// serves the protocol over them.
type Server struct {
	socketPath string
	table      *namespace.Table
	ring       *capture.Ring
	clk        clock.Clock
	logger     *slog.Logger

	mutex   sync.Mutex
	clients map[*client]struct{}
	closing bool

	activeConnections sync.WaitGroup

	totalClients    atomic.Uint64
	messages        atomic.Uint64
	malformedFrames atomic.Uint64
}

// client is one live connection. Only its own serve goroutine touches
// owned; the requests counter is read by snapshots.
type client struct {
	conn     *net.UnixConn
	pid      int32
	since    time.Time
	requests atomic.Uint64
	owned    map[string]struct{}
}

// New creates a broker server from config.
func New(config Config) *Server {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Server{
		socketPath: config.SocketPath,
		table:      config.Namespace,
		ring:       config.Capture,
		clk:        clk,
		logger:     config.Logger,
		clients:    make(map[*client]struct{}),
	}
}

// Serve listens on the bootstrap socket and serves connections until
// ctx is cancelled. It removes a stale socket file first, and removes
// its own on the way out. Returns once every connection has drained.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: s.socketPath, Net: "unixpacket"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	s.logger.Info("broker listening", "socket", s.socketPath)

	// Close the listener when the context is cancelled, then the live
	// connections: their read loops unblock and drain.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeClients()
	}()

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.serveConnection(conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("broker stopped", "socket", s.socketPath)
	return nil
}

// serveConnection runs one connection's read loop: read a frame,
// dispatch it, write the reply. It returns when the peer disconnects,
// sends a malformed frame, or the server shuts down. On the way out,
// every name the connection checked in reverts to pending.
func (s *Server) serveConnection(conn *net.UnixConn) {
	defer conn.Close()

	pid, err := capability.PeerPID(conn)
	if err != nil {
		s.logger.Error("rejecting connection without peer credentials", "error", err)
		return
	}

	c := &client{
		conn:  conn,
		pid:   pid,
		since: s.clk.Now(),
		owned: make(map[string]struct{}),
	}
	if !s.register(c) {
		return
	}
	defer s.unregister(c)

	logger := s.logger.With("pid", pid)
	logger.Debug("client connected")
	defer logger.Debug("client disconnected")

	// Connection death is service death: the names checked in over
	// this connection lose their endpoints.
	defer func() {
		for name := range c.owned {
			s.table.ReleaseName(name, c.pid)
		}
	}()

	buffer := make([]byte, wire.MaxMessageSize)
	for {
		n, fds, err := capability.ReadEnvelope(conn, buffer)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("connection read failed", "error", err)
			}
			return
		}
		raw := buffer[:n]
		s.tap(capture.Inbound, pid, wire.PeekRoutine(raw), raw)

		request, slots, err := wire.Decode(raw)
		if err != nil {
			capability.CloseDescriptors(fds)
			s.malformedFrames.Add(1)
			logger.Warn("terminating connection on malformed frame", "error", err)
			return
		}
		if err := wire.Bind(slots, fds); err != nil {
			capability.CloseDescriptors(fds)
			s.malformedFrames.Add(1)
			logger.Warn("terminating connection on capability mismatch", "error", err)
			return
		}
		s.messages.Add(1)
		c.requests.Add(1)

		if request.Direction != wire.TagRequest {
			request.CloseCapabilities()
			s.malformedFrames.Add(1)
			logger.Warn("terminating connection on reply-tagged frame",
				"routine", wire.RoutineName(request.Routine))
			return
		}

		response := s.dispatch(c, logger, request)
		// Handlers delete the capabilities they take ownership of;
		// whatever the request still holds is discarded here.
		request.CloseCapabilities()

		if !s.sendReply(c, logger, response) {
			return
		}
	}
}

// sendReply encodes and writes one reply. A failure terminates the
// connection; the reply's capabilities are closed so a reverted
// check-in endpoint cannot leak.
func (s *Server) sendReply(c *client, logger *slog.Logger, response wire.Message) bool {
	data, slots, err := wire.Encode(response)
	if err != nil {
		// Encoding our own reply fails only on a broker bug.
		response.CloseCapabilities()
		logger.Error("reply encoding failed",
			"routine", wire.RoutineName(response.Routine), "error", err)
		return false
	}
	s.tap(capture.Outbound, c.pid, response.Routine, data)
	if err := capability.SendMessage(c.conn, data, slots); err != nil {
		response.CloseCapabilities()
		logger.Warn("reply write failed",
			"routine", wire.RoutineName(response.Routine), "error", err)
		return false
	}
	return true
}

func (s *Server) register(c *client) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	s.totalClients.Add(1)
	return true
}

func (s *Server) unregister(c *client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.clients, c)
}

// closeClients closes every live connection and refuses new ones.
// Accepts racing the shutdown see the closing flag in register and
// are closed before their read loop starts.
func (s *Server) closeClients() {
	s.mutex.Lock()
	s.closing = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mutex.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (s *Server) tap(direction capture.Direction, pid int32, routine uint32, data []byte) {
	if s.ring != nil {
		s.ring.Record(direction, pid, routine, data)
	}
}

// ClientInfo describes one live connection for the control plane.
type ClientInfo struct {
	PID      int32     `cbor:"pid"`
	Since    time.Time `cbor:"since"`
	Requests uint64    `cbor:"requests"`
}

// Clients returns a snapshot of the live connections, ordered by
// connect time.
func (s *Server) Clients() []ClientInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, ClientInfo{
			PID:      c.pid,
			Since:    c.since,
			Requests: c.requests.Load(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Since.Equal(infos[j].Since) {
			return infos[i].Since.Before(infos[j].Since)
		}
		return infos[i].PID < infos[j].PID
	})
	return infos
}

// Stats is a counter snapshot for the control plane.
type Stats struct {
	ActiveClients   int    `cbor:"active_clients"`
	TotalClients    uint64 `cbor:"total_clients"`
	Messages        uint64 `cbor:"messages"`
	MalformedFrames uint64 `cbor:"malformed_frames"`
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	s.mutex.Lock()
	active := len(s.clients)
	s.mutex.Unlock()

	return Stats{
		ActiveClients:   active,
		TotalClients:    s.totalClients.Load(),
		Messages:        s.messages.Load(),
		MalformedFrames: s.malformedFrames.Load(),
	}
}
