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
	"context"
	"log/slog"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
)

// runIRS is the information-receiving station's flow: confirm the open, then
// accumulate bursts, acknowledging or requesting retransmits until the final
// burst lands.
func (s *Session) runIRS(ctx context.Context) {
	e := s.engine

	s.sendOpenACK()
	e.setState(s, StateConnected, "")

	hbTicker := time.NewTicker(e.timing.HeartbeatInterval)
	defer hbTicker.Stop()

	grace := time.NewTimer(time.Hour)
	grace.Stop()
	defer grace.Stop()

	var buffer *BurstBuffer
	var rxAccum []byte
	lastSNR := 0

	for {
		select {
		case <-ctx.Done():
			e.setState(s, StateDisconnected, "shutdown")
			return
		case <-s.done:
			s.closeSession(ctx)
			return
		case <-s.stopNotify:
			s.abort()
			return
		case <-hbTicker.C:
			if s.sinceHeard() > e.timing.HeartbeatTimeout {
				e.setState(s, StateFailed, "heartbeat timeout")
				return
			}
			switch s.State() {
			case StateConnected, StateIdle:
				s.sendHeartbeat()
			}
		case <-grace.C:
			// The burst transmission window lapsed with frames missing.
			if buffer != nil && !buffer.Complete() {
				s.sendBurstNACK(buffer.BurstID, buffer.MissingMask())
			}
		case in := <-s.frames:
			switch fr := in.f.(type) {
			case *frame.SessionOpen:
				if fr.Flags&frame.FlagSessionACK == 0 {
					// The opener missed our confirmation; repeat it.
					s.sendOpenACK()
				}
			case *frame.SessionHeartbeat:
				// Liveness only.
			case *frame.SessionClose:
				e.setState(s, StateDisconnected, "closed by remote")
				return
			case *frame.SessionStop:
				e.setState(s, StateDisconnected, "aborted by remote")
				return
			case *frame.DCOpen:
				if fr.ACK {
					continue
				}
				ceiling := minInt(int(fr.SpeedCeiling), e.maxSpeed)
				wide := fr.Wide && e.wide
				if !wide && ceiling > narrowSpeedCeiling {
					ceiling = narrowSpeedCeiling
				}
				s.mu.Lock()
				s.speedLevel = ceiling
				s.mu.Unlock()
				e.metrics.RecordSpeedLevel(ceiling)
				s.sendDCOpenACK(wide, uint8(ceiling))
				e.setState(s, StateTransferring, "")
			case *frame.FrRepeat:
				// The sender lost our last response; repeat the verdict for
				// the burst in progress or the last completed one.
				if buffer != nil && !buffer.Complete() {
					s.sendBurstNACK(buffer.BurstID, buffer.MissingMask())
					continue
				}
				s.mu.Lock()
				expected := s.expectedBurst
				s.mu.Unlock()
				if expected > 0 {
					s.sendBurstACK(uint16(expected-1), speedHintForSNR(lastSNR))
				}
			case *frame.BurstFrame:
				lastSNR = in.meta.SNR
				buffer, rxAccum = s.handleBurstFrame(fr, in.meta.SNR, buffer, rxAccum, grace)
			}
		}
	}
}

// handleBurstFrame folds one data frame into the burst buffer and emits the
// resulting ACK/NACK/FR_NACK when the burst resolves.
func (s *Session) handleBurstFrame(bf *frame.BurstFrame, snr int, buffer *BurstBuffer, rxAccum []byte, grace *time.Timer) (*BurstBuffer, []byte) {
	e := s.engine

	s.mu.Lock()
	expected := s.expectedBurst
	s.mu.Unlock()

	switch {
	case int(bf.BurstID) < expected:
		// The sender missed our ACK and repeated a finished burst.
		s.sendBurstACK(bf.BurstID, speedHintForSNR(snr))
		return buffer, rxAccum
	case int(bf.BurstID) > expected:
		// A future burst means the sender advanced without our ACK; the
		// current burst can no longer complete, so drop it and wait for the
		// sender's timeout path.
		slog.Warn("Burst from the future", "got", bf.BurstID, "expected", expected)
		return buffer, rxAccum
	}

	if s.State() != StateTransferring {
		e.setState(s, StateTransferring, "")
	}

	if buffer == nil || buffer.BurstID != bf.BurstID {
		buffer = NewBurstBuffer(bf)
	} else {
		buffer.Insert(bf)
	}

	if !buffer.Complete() {
		resetTimer(grace, e.timing.BurstGrace)
		return buffer, rxAccum
	}
	stopTimer(grace)

	if !buffer.CRCOK() {
		// Every frame arrived but the burst checksum disagrees: request the
		// whole burst again.
		s.sendFrNACK(buffer.BurstID)
		e.metrics.RecordBurstNACK()
		return nil, rxAccum
	}

	payload := buffer.Assemble()
	rxAccum = append(rxAccum, payload...)
	s.mu.Lock()
	s.bytesReceived += len(payload)
	s.expectedBurst++
	s.burstNumber = int(buffer.BurstID) + 1
	s.mu.Unlock()

	e.metrics.RecordBurstACK()
	s.sendBurstACK(buffer.BurstID, speedHintForSNR(snr))

	if buffer.EndOfMessage {
		s.finalizeTransfer(rxAccum, snr)
		rxAccum = nil
		s.mu.Lock()
		s.expectedBurst = 0
		s.mu.Unlock()
	}
	return nil, rxAccum
}

// finalizeTransfer unwraps the reassembled payload, persists the message and
// confirms the whole transfer.
func (s *Session) finalizeTransfer(rxAccum []byte, snr int) {
	e := s.engine

	raw, err := unwrapPayload(rxAccum)
	if err != nil {
		slog.Error("Reassembled transfer is malformed", "error", err)
		if e.store != nil {
			_, addErr := e.store.Add(messages.NewMessage{
				Origin:      s.RemoteString(),
				Destination: s.LocalCall.String(),
			}, models.DirectionReceive, models.StatusFailedChecksum)
			if addErr != nil {
				slog.Error("Could not store failed transfer", "error", addErr)
			}
		}
	} else {
		e.finalizeInbound(s, raw, snr)
	}

	s.sendFrACK()
	e.setState(s, StateIdle, "")
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
