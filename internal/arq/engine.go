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

// Package arq is the session engine: handshake, burst transfer with
// ACK/NACK retransmission, adaptive speed, keep-alive and teardown.
package arq

import (
	"context"
	"errors"
	"hash/crc32"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/metrics"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/xid"
)

var (
	// ErrSessionExists indicates an active session already occupies the
	// remote callsign.
	ErrSessionExists = errors.New("active session exists for remote station")
	// ErrNoActiveSession indicates there is nothing to disconnect.
	ErrNoActiveSession = errors.New("no active session")
	// ErrPeerRefused indicates the handshake exhausted its retries without
	// an answer.
	ErrPeerRefused = errors.New("peer refused or unreachable")
)

type sessionCommand int

const (
	cmdDisconnect sessionCommand = iota
	cmdAbort
)

// wideTuningSpan is the minimum tuning range needed for the wide mode
// family.
const wideTuningSpan = 100

const dcOpenMaxRetries = 3

// Engine drives every ARQ session. Frames reach it through HandleFrame (the
// dispatcher's session sink); each session runs its own goroutine and owns
// its protocol flow.
type Engine struct {
	timing   Timing
	maxSpeed int
	wide     bool
	sigMode  codec.Mode

	sched   *modem.Scheduler
	state   *modem.State
	store   *messages.Store
	rxbuf   *modem.RXBuffer
	names   *frame.Names
	events  *event.Manager
	metrics *metrics.Metrics
	salts   *Salts

	sessions *xsync.Map[uint32, *Session]
	byRemote *xsync.Map[uint32, *Session]

	ctx context.Context
	wg  sync.WaitGroup
}

// NewEngine wires the session engine. store and rxbuf may be nil in tests
// exercising the protocol alone.
func NewEngine(cfg *config.Config, timing Timing, sched *modem.Scheduler, state *modem.State, store *messages.Store, rxbuf *modem.RXBuffer, names *frame.Names, events *event.Manager, m *metrics.Metrics) (*Engine, error) {
	salts, err := ParseSalts(cfg.Modem.HMACSalts)
	if err != nil {
		return nil, err
	}

	wide := cfg.Modem.TuningRangeFMax-cfg.Modem.TuningRangeFMin >= wideTuningSpan
	maxSpeed := clampSpeed(cfg.Modem.MaxSpeedLevel)
	if !wide && maxSpeed > narrowSpeedCeiling {
		maxSpeed = narrowSpeedCeiling
	}
	sigMode := codec.ModeSig0
	if cfg.Modem.EnableFSK {
		sigMode = codec.ModeFSKLDPC0
	}

	return &Engine{
		timing:   timing,
		maxSpeed: maxSpeed,
		wide:     wide,
		sigMode:  sigMode,
		sched:    sched,
		state:    state,
		store:    store,
		rxbuf:    rxbuf,
		names:    names,
		events:   events,
		metrics:  m,
		salts:    salts,
		sessions: xsync.NewMap[uint32, *Session](),
		byRemote: xsync.NewMap[uint32, *Session](),
	}, nil
}

// Start binds the engine lifetime to ctx. Sessions created afterwards stop
// when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
}

// Wait blocks until every session goroutine has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// newSessionID derives a 24-bit session identifier from the call pair and a
// nonce.
func newSessionID(local, remote frame.Callsign) uint32 {
	l := local.Canonical()
	r := remote.Canonical()
	seed := append(append(l[:], r[:]...), xid.New().Bytes()...)
	return frame.CRC24(seed)
}

// Connect opens an ARQ session to remote without a payload. attempts
// overrides the configured open retry count when positive.
func (e *Engine) Connect(remote frame.Callsign, attempts int) (*Session, error) {
	return e.startISS(remote, nil, attempts, "", false)
}

// SendRaw opens (or reuses) a session to remote and transfers data.
// messageID optionally ties the transfer to a message-store row.
func (e *Engine) SendRaw(remote frame.Callsign, data []byte, attempts int, messageID string) (*Session, error) {
	return e.startISS(remote, wrapPayload(data), attempts, messageID, true)
}

func (e *Engine) startISS(remote frame.Callsign, payload []byte, attempts int, messageID string, autoClose bool) (*Session, error) {
	if existing, ok := e.byRemote.Load(remote.Checksum()); ok && existing.Active() {
		return nil, ErrSessionExists
	}

	local := e.state.MyCall()
	s := &Session{
		ID:         newSessionID(local, remote),
		LocalCall:  local,
		RemoteCRC:  remote.Checksum(),
		Direction:  DirectionISS,
		engine:     e,
		frames:     make(chan inboundFrame, sessionQueueSize),
		txDone:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopNotify: make(chan struct{}, 1),
	}
	s.remoteCall = remote
	s.remoteKnown = true
	s.state = StateDisconnected
	s.speedLevel = e.maxSpeed
	s.payload = payload
	s.attempts = attempts
	s.autoClose = autoClose
	s.messageID = messageID

	e.register(s)
	e.state.SetDXCall(remote.String())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.runISS(e.sessionContext())
	}()
	return s, nil
}

func (e *Engine) sessionContext() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

func (e *Engine) register(s *Session) {
	e.sessions.Store(s.ID, s)
	e.byRemote.Store(s.RemoteCRC, s)
}

// Disconnect gracefully tears down the active session, if any.
func (e *Engine) Disconnect() error {
	s := e.anyActiveSession()
	if s == nil {
		return ErrNoActiveSession
	}
	s.command(cmdDisconnect)
	return nil
}

// StopAll aborts every session immediately and drains the TX queue. This is
// the stop_transmission path.
func (e *Engine) StopAll() {
	e.sched.Drain()
	e.sessions.Range(func(_ uint32, s *Session) bool {
		if s.Active() {
			s.command(cmdAbort)
		}
		return true
	})
	e.sched.SetHoldoff(false)
}

// DisconnectAll gracefully tears down every active session (listen=false
// path).
func (e *Engine) DisconnectAll() {
	e.sessions.Range(func(_ uint32, s *Session) bool {
		if s.Active() {
			s.command(cmdDisconnect)
		}
		return true
	})
}

func (e *Engine) anyActiveSession() *Session {
	var found *Session
	e.sessions.Range(func(_ uint32, s *Session) bool {
		if s.Active() {
			found = s
			return false
		}
		return true
	})
	return found
}

// ActiveSnapshot returns the active session's view for the state broadcast.
func (e *Engine) ActiveSnapshot() (Snapshot, bool) {
	s := e.anyActiveSession()
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Transferring reports whether any session is mid-handshake or mid-transfer;
// the beacon pauses while this holds.
func (e *Engine) Transferring() bool {
	transferring := false
	e.sessions.Range(func(_ uint32, s *Session) bool {
		switch s.State() {
		case StateConnecting, StateTransferring:
			transferring = true
			return false
		}
		return true
	})
	return transferring
}

// HandleFrame routes one decoded session or burst frame. It implements the
// dispatcher's session sink and never blocks on a session.
func (e *Engine) HandleFrame(f frame.Frame, meta codec.Decoded) {
	switch fr := f.(type) {
	case *frame.SessionOpen:
		e.handleOpen(fr, meta)
	case *frame.SessionHeartbeat:
		e.routeBySession(fr.SessionID, f, meta)
	case *frame.SessionClose:
		e.routeBySession(fr.SessionID, f, meta)
	case *frame.SessionStop:
		e.routeBySession(fr.SessionID, f, meta)
	case *frame.FrACK:
		e.routeBySession(fr.SessionID, f, meta)
	case *frame.DCOpen:
		e.routeBySession(fr.SessionID, f, meta)
	case *frame.BurstFrame:
		e.routeByRemote(fr.OriginCRC, fr.DestinationCRC, f, meta)
	case *frame.BurstACK:
		e.routeByRemote(fr.OriginCRC, fr.DestinationCRC, f, meta)
	case *frame.BurstNACK:
		e.routeByRemote(fr.OriginCRC, fr.DestinationCRC, f, meta)
	case *frame.FrNACK:
		e.routeByRemote(fr.OriginCRC, fr.DestinationCRC, f, meta)
	case *frame.FrRepeat:
		e.routeByRemote(fr.OriginCRC, fr.DestinationCRC, f, meta)
	default:
		e.metrics.RecordFrameRejected("unexpected_type")
	}
}

func (e *Engine) routeBySession(sessionID uint32, f frame.Frame, meta codec.Decoded) {
	s, ok := e.sessions.Load(sessionID)
	if !ok {
		e.metrics.RecordFrameRejected("unknown_session")
		return
	}
	s.touch()
	s.deliver(f, meta)
}

func (e *Engine) routeByRemote(originCRC, destCRC uint32, f frame.Frame, meta codec.Decoded) {
	if !e.state.AddressedToMe(destCRC) {
		e.metrics.RecordFrameRejected("misaddressed")
		return
	}
	s, ok := e.byRemote.Load(originCRC)
	if !ok || !s.Active() {
		e.metrics.RecordFrameRejected("unknown_session")
		return
	}
	s.touch()
	s.deliver(f, meta)
}

// handleOpen creates the IRS session on a first open, or routes duplicate
// opens and open-ACKs to the owning session.
func (e *Engine) handleOpen(fr *frame.SessionOpen, meta codec.Decoded) {
	if s, ok := e.sessions.Load(fr.SessionID); ok {
		s.touch()
		s.deliver(fr, meta)
		return
	}
	if fr.Flags&frame.FlagSessionACK != 0 {
		e.metrics.RecordFrameRejected("unknown_session")
		return
	}
	if !e.state.AddressedToMe(fr.DestinationCRC) {
		e.metrics.RecordFrameRejected("misaddressed")
		return
	}
	if !e.state.Listen() {
		e.metrics.RecordFrameRejected("listen_disabled")
		return
	}
	if existing, ok := e.byRemote.Load(fr.OriginCRC); ok && existing.Active() {
		e.metrics.RecordFrameRejected("session_busy")
		return
	}

	local := e.state.MyCall()
	hmacUsed := false
	if salt, ok := e.salts.Lookup(local, fr.OriginCall); ok {
		if fr.Flags&frame.FlagHMAC == 0 ||
			!verifyAuthenticator(salt, fr.SessionID, fr.OriginCRC, fr.DestinationCRC, fr.HMAC) {
			slog.Warn("Rejecting session open with bad authenticator", "dxcall", fr.OriginCall.String())
			e.metrics.RecordFrameRejected("hmac")
			return
		}
		hmacUsed = true
	}

	s := &Session{
		ID:         fr.SessionID,
		LocalCall:  local,
		RemoteCRC:  fr.OriginCRC,
		Direction:  DirectionIRS,
		engine:     e,
		frames:     make(chan inboundFrame, sessionQueueSize),
		txDone:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopNotify: make(chan struct{}, 1),
	}
	s.remoteCall = fr.OriginCall
	s.remoteKnown = true
	s.state = StateDisconnected
	s.speedLevel = minInt(int(fr.Speed), e.maxSpeed)
	s.hmacOK = hmacUsed
	s.lastHeard = time.Now()

	e.register(s)
	e.state.SetDXCall(fr.OriginCall.String())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.runIRS(e.sessionContext())
	}()
}

// setState applies a session state transition and announces it.
func (e *Engine) setState(s *Session, state SessionState, reason string) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	remote := s.remoteString()
	s.mu.Unlock()

	slog.Info("Session state change", "session", s.ID, "dxcall", remote, "state", state, "reason", reason)
	e.metrics.RecordSessionState(string(state))
	data := map[string]any{
		"session_id": s.ID,
		"dxcallsign": remote,
		"state":      string(state),
	}
	if reason != "" {
		data["reason"] = reason
	}
	e.events.PublishType(event.TopicSessionStateChange, data)

	switch state {
	case StateTransferring, StateConnecting:
		e.state.SetRunState(modem.RunStateBusy)
	case StateDisconnected, StateFailed, StateIdle:
		if !e.Transferring() {
			e.state.SetRunState(modem.RunStateIdle)
		}
	}
}

func (s *Session) command(cmd sessionCommand) {
	switch cmd {
	case cmdAbort:
		select {
		case s.stopNotify <- struct{}{}:
		default:
		}
	case cmdDisconnect:
		s.closeOnce.Do(func() { close(s.done) })
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func popcount64(v uint64) int {
	return bits.OnesCount64(v)
}

// burstCRC is the transfer checksum over a whole padded burst payload.
func burstCRC(padded []byte) uint32 {
	return crc32.ChecksumIEEE(padded)
}

// speedHintForSNR maps the received SNR to the ceiling the IRS advertises in
// its burst ACKs.
func speedHintForSNR(snr int) uint8 {
	switch {
	case snr < 0:
		return 1
	case snr < 5:
		return 2
	case snr < 10:
		return 3
	default:
		return MaxSpeedLevel
	}
}

// finalizeInbound persists a completed inbound transfer and exposes it on
// the RX buffer.
func (e *Engine) finalizeInbound(s *Session, raw []byte, snr int) {
	if e.rxbuf != nil {
		e.rxbuf.Push(modem.RXEntry{
			DXCall:    s.RemoteString(),
			Payload:   raw,
			Timestamp: time.Now(),
			SNR:       snr,
		})
	}
	if e.store == nil {
		return
	}
	_, err := e.store.Add(messages.NewMessage{
		Origin:      s.RemoteString(),
		Destination: s.LocalCall.String(),
		Body:        string(raw),
	}, models.DirectionReceive, models.StatusReceived)
	if err != nil {
		slog.Error("Could not store received message", "error", err)
	}
}

// markOutbound moves the transfer's message row to a terminal status.
func (e *Engine) markOutbound(s *Session, status string) {
	s.mu.Lock()
	id := s.messageID
	s.mu.Unlock()
	if e.store == nil || id == "" {
		return
	}
	if err := e.store.SetStatus(id, status); err != nil {
		slog.Error("Could not update message status", "id", id, "status", status, "error", err)
	}
}
