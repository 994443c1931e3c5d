// SPDX-License-Identifier: AGPL-3.0-or-later
// FreeDATA-experiments - HF ARQ modem and TNC in a single binary
// Copyright (C) 2024-2026 FreeDATA-experiments contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/kronenpj/FreeDATA-experiments>

// Package control is the TCP command surface: one JSON object per
// newline-terminated line in, command responses, events and periodic
// modem_state snapshots out.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/arq"
	"github.com/kronenpj/FreeDATA-experiments/internal/beacon"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/mesh"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/mitchellh/hashstructure/v2"
)

// ErrBind indicates the control socket could not be opened.
var ErrBind = errors.New("could not bind control socket")

// stateInterval is the modem_state broadcast cadence; unchanged snapshots
// are suppressed.
const stateInterval = 500 * time.Millisecond

const clientQueueSize = 128

// maxLineLen bounds one inbound command line.
const maxLineLen = 1 << 20

// Server is the control channel.
type Server struct {
	cfg    *config.Config
	deps   Deps
	events *event.Manager

	listener net.Listener
	handlers map[commandKey]commandHandler

	mu      sync.Mutex
	clients map[net.Conn]chan []byte

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Deps gathers everything commands operate on.
type Deps struct {
	State  *modem.State
	Sched  *modem.Scheduler
	Busy   *modem.ChannelBusy
	Engine *arq.Engine
	Store  *messages.Store
	RXBuf  *modem.RXBuffer
	Heard  *heard.List
	Beacon *beacon.Beacon
	Mesh   *mesh.Mesh
	Radio  modem.Radio
}

// NewServer creates the control server.
func NewServer(cfg *config.Config, deps Deps, events *event.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		events:  events,
		clients: make(map[net.Conn]chan []byte),
		stop:    make(chan struct{}),
	}
	s.handlers = s.buildHandlers()
	return s
}

// Start binds the socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Network.Bind, s.cfg.Network.SocketPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	s.listener = listener
	slog.Info("Control channel listening", "addr", addr)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Addr returns the bound listener address, usable once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the socket and disconnects every client.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			slog.Debug("Control listener close", "error", err)
		}
	}
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Control accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(ctx, conn)
		}()
	}
}

func (s *Server) handleClient(ctx context.Context, conn net.Conn) {
	slog.Debug("Control client connected", "remote", conn.RemoteAddr())
	out := make(chan []byte, clientQueueSize)
	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	defer func() {
		conn.Close()
		slog.Debug("Control client disconnected", "remote", conn.RemoteAddr())
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for line := range out {
			if _, err := conn.Write(append(line, '\n')); err != nil {
				return
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(line)
	}

	// Unregister before closing the channel so the broadcaster never writes
	// into a closed queue.
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	close(out)
	<-writerDone
}

// handleLine decodes one command line and dispatches it. Responses are
// broadcast to every client, matching the original surface's behavior.
func (s *Server) handleLine(line []byte) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		slog.Warn("Undecodable control command", "error", err)
		return
	}
	slog.Debug("Control command", "type", cmd.Type, "command", cmd.Command)

	handler, ok := s.lookupHandler(cmd)
	if !ok {
		slog.Warn("Unknown control command", "type", cmd.Type, "command", cmd.Command)
		s.commandResponse(cmd.Command, false)
		return
	}
	s.commandResponse(cmd.Command, handler(&cmd))
}

func (s *Server) lookupHandler(cmd Command) (commandHandler, bool) {
	if handler, ok := s.handlers[commandKey{cmd.Type, cmd.Command}]; ok {
		return handler, true
	}
	// A few commands are dispatched on the command name alone.
	handler, ok := s.handlers[commandKey{"", cmd.Command}]
	return handler, ok
}

// commandResponse reports a command outcome to all clients.
func (s *Server) commandResponse(command string, ok bool) {
	status := "OK"
	if !ok {
		status = "Failed"
	}
	s.broadcastJSON(map[string]any{
		"command_response": command,
		"status":           status,
	})
}

func (s *Server) broadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Could not encode control message", "error", err)
		return
	}
	s.broadcast(data)
}

func (s *Server) broadcast(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, out := range s.clients {
		select {
		case out <- line:
		default:
			slog.Warn("Dropping control output for slow client", "remote", conn.RemoteAddr())
		}
	}
}

// broadcastLoop forwards events and emits delta-suppressed modem_state
// snapshots every half second.
func (s *Server) broadcastLoop(ctx context.Context) {
	sub := s.events.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()

	var lastHash uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case ev, ok := <-sub.Channel():
			if !ok {
				return
			}
			data, err := ev.Encode()
			if err != nil {
				slog.Error("Could not encode event", "type", ev.Type, "error", err)
				continue
			}
			s.broadcast(data)
		case <-ticker.C:
			snapshot := s.buildModemState()
			hash, err := hashstructure.Hash(snapshot, hashstructure.FormatV2, nil)
			if err == nil && hash == lastHash {
				continue
			}
			lastHash = hash
			s.broadcastJSON(snapshot)
		}
	}
}
