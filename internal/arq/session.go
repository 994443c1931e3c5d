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

package arq

import (
	"sync"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

// SessionState is the ARQ session lifecycle state.
type SessionState string

const (
	StateDisconnected  SessionState = "disconnected"
	StateConnecting    SessionState = "connecting"
	StateConnected     SessionState = "connected"
	StateTransferring  SessionState = "transferring"
	StateIdle          SessionState = "idle"
	StateDisconnecting SessionState = "disconnecting"
	StateFailed        SessionState = "failed"
)

// Direction tells which end of the transfer this station is.
type Direction string

const (
	// DirectionISS is the information-sending station.
	DirectionISS Direction = "ISS"
	// DirectionIRS is the information-receiving station.
	DirectionIRS Direction = "IRS"
)

// inboundFrame is one routed frame with its reception details.
type inboundFrame struct {
	f    frame.Frame
	meta codec.Decoded
}

const sessionQueueSize = 64

// Session is one logical ARQ conversation. All mutable fields are guarded by
// mu; the run loop owns the protocol flow.
type Session struct {
	ID         uint32
	LocalCall  frame.Callsign
	RemoteCRC  uint32
	Direction  Direction
	engine     *Engine
	frames     chan inboundFrame
	txDone     chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	stopNotify chan struct{}

	mu            sync.Mutex
	remoteCall    frame.Callsign
	remoteKnown   bool
	state         SessionState
	speedLevel    int
	bytesSent     int
	bytesReceived int
	burstNumber   int
	expectedBurst int
	retryCounter  int
	lastHeard     time.Time
	hmacOK        bool
	messageID     string

	// ISS-side transfer inputs.
	payload   []byte
	attempts  int
	autoClose bool
}

// Snapshot is the session view used by the control surface.
type Snapshot struct {
	SessionID     uint32       `json:"session_id"`
	Remote        string       `json:"dxcallsign"`
	State         SessionState `json:"state"`
	Direction     Direction    `json:"direction"`
	SpeedLevel    int          `json:"speed_level"`
	BytesSent     int          `json:"bytes_sent"`
	BytesReceived int          `json:"bytes_received"`
	BurstNumber   int          `json:"burst_number"`
	Attempts      int          `json:"attempts"`
	HMAC          bool         `json:"hmac"`
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SpeedLevel returns the current adaptive speed level.
func (s *Session) SpeedLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speedLevel
}

// RemoteString renders the remote station, preferring the full callsign.
func (s *Session) RemoteString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteString()
}

func (s *Session) remoteString() string {
	if s.remoteKnown {
		return s.remoteCall.String()
	}
	if call, ok := s.engine.names.Lookup(s.RemoteCRC); ok {
		return call.String()
	}
	return ""
}

// Snapshot captures the session for display.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:     s.ID,
		Remote:        s.remoteString(),
		State:         s.state,
		Direction:     s.Direction,
		SpeedLevel:    s.speedLevel,
		BytesSent:     s.bytesSent,
		BytesReceived: s.bytesReceived,
		BurstNumber:   s.burstNumber,
		Attempts:      s.attempts,
		HMAC:          s.hmacOK,
	}
}

// Active reports whether the session still occupies its remote-pair slot.
func (s *Session) Active() bool {
	switch s.State() {
	case StateDisconnected, StateFailed:
		return false
	default:
		return true
	}
}

// deliver queues an inbound frame for the run loop; a stalled session sheds
// rather than blocking the dispatcher.
func (s *Session) deliver(f frame.Frame, meta codec.Decoded) {
	select {
	case s.frames <- inboundFrame{f: f, meta: meta}:
	default:
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeard = time.Now()
}

func (s *Session) sinceHeard() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHeard.IsZero() {
		return 0
	}
	return time.Since(s.lastHeard)
}
