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
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// runISS is the information-sending station's session flow: handshake, data
// channel negotiation, burst transfer, then teardown or idle keep-alive.
func (s *Session) runISS(ctx context.Context) {
	e := s.engine
	defer e.sched.SetHoldoff(false)

	if !s.handshake(ctx) {
		return
	}
	if len(s.payload) > 0 {
		if !s.negotiateDataChannel(ctx) {
			return
		}
		if !s.transfer(ctx) {
			return
		}
		if s.autoClose {
			s.closeSession(ctx)
			return
		}
	}
	s.idleLoop(ctx)
}

// handshake sends ARQ_SESSION_OPEN until the peer echoes it with the ACK
// flag, or retries run out.
func (s *Session) handshake(ctx context.Context) bool {
	e := s.engine
	e.setState(s, StateConnecting, "")

	open := &frame.SessionOpen{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
		Speed:          uint8(e.maxSpeed),
		OriginCall:     s.LocalCall,
	}
	if salt, ok := e.salts.Lookup(s.LocalCall, s.remoteCall); ok {
		open.Flags |= frame.FlagHMAC
		open.HMAC = sessionAuthenticator(salt, s.ID, open.OriginCRC, open.DestinationCRC)
		s.mu.Lock()
		s.hmacOK = true
		s.mu.Unlock()
	}

	maxRetries := e.timing.OpenMaxRetries
	if s.attempts > 0 {
		maxRetries = s.attempts
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		e.sendSignalling(open, false)
		deadline := time.NewTimer(e.timing.OpenRetryInterval)
		waiting := true
		for waiting {
			select {
			case <-ctx.Done():
				deadline.Stop()
				e.setState(s, StateDisconnected, "shutdown")
				return false
			case <-s.stopNotify:
				deadline.Stop()
				s.abort()
				return false
			case <-s.done:
				deadline.Stop()
				e.setState(s, StateDisconnected, "disconnected locally")
				return false
			case in := <-s.frames:
				switch fr := in.f.(type) {
				case *frame.SessionOpen:
					if fr.Flags&frame.FlagSessionACK != 0 && fr.SessionID == s.ID {
						deadline.Stop()
						s.mu.Lock()
						s.speedLevel = minInt(int(fr.Speed), e.maxSpeed)
						s.mu.Unlock()
						e.metrics.RecordSpeedLevel(s.SpeedLevel())
						e.setState(s, StateConnected, "")
						return true
					}
				case *frame.SessionStop:
					deadline.Stop()
					e.markOutbound(s, models.StatusAborted)
					e.setState(s, StateDisconnected, "aborted by remote")
					return false
				}
			case <-deadline.C:
				waiting = false
			}
		}
	}

	s.failTransfer(ErrPeerRefused.Error())
	return false
}

// negotiateDataChannel runs the DC open exchange selecting the wide or
// narrow mode family before the first burst.
func (s *Session) negotiateDataChannel(ctx context.Context) bool {
	e := s.engine
	dc := &frame.DCOpen{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
		SpeedCeiling:   uint8(s.SpeedLevel()),
		Wide:           e.wide,
	}

	for attempt := 0; attempt < dcOpenMaxRetries; attempt++ {
		e.sendSignalling(dc, false)
		deadline := time.NewTimer(e.timing.OpenRetryInterval)
		waiting := true
		for waiting {
			select {
			case <-ctx.Done():
				deadline.Stop()
				e.setState(s, StateDisconnected, "shutdown")
				return false
			case <-s.stopNotify:
				deadline.Stop()
				s.abort()
				return false
			case <-s.done:
				deadline.Stop()
				s.closeSession(ctx)
				return false
			case in := <-s.frames:
				switch fr := in.f.(type) {
				case *frame.DCOpen:
					if fr.ACK {
						deadline.Stop()
						s.mu.Lock()
						s.speedLevel = minInt(s.speedLevel, int(fr.SpeedCeiling))
						s.mu.Unlock()
						e.metrics.RecordSpeedLevel(s.SpeedLevel())
						return true
					}
				case *frame.SessionStop:
					deadline.Stop()
					e.markOutbound(s, models.StatusAborted)
					e.setState(s, StateDisconnected, "aborted by remote")
					return false
				}
			case <-deadline.C:
				waiting = false
			}
		}
	}

	s.failTransfer("data channel negotiation failed")
	return false
}

// transfer splits the payload into bursts sized by the current speed level
// and pushes each one through the ACK/NACK cycle.
func (s *Session) transfer(ctx context.Context) bool {
	e := s.engine
	e.setState(s, StateTransferring, "")

	cursor := 0
	burstID := 0
	goodStreak := 0
	for cursor < len(s.payload) {
		speed := s.SpeedLevel()
		sm := SpeedModeFor(speed)
		burstBytes := sm.PayloadBytes * sm.FramesPerBurst

		chunkEnd := minInt(cursor+burstBytes, len(s.payload))
		padded := make([]byte, burstBytes)
		copy(padded, s.payload[cursor:chunkEnd])
		eom := chunkEnd >= len(s.payload)

		remaining := len(s.payload) - cursor
		totalBursts := uint16(burstID + (remaining+burstBytes-1)/burstBytes)
		burstFrames := s.buildBurstFrames(sm, padded, uint16(burstID), totalBursts, eom)

		if !s.sendBurstAndAwait(ctx, sm, speed, burstFrames, burstID, eom, &goodStreak) {
			return false
		}

		s.mu.Lock()
		s.bytesSent += chunkEnd - cursor
		s.burstNumber = burstID + 1
		s.retryCounter = 0
		s.mu.Unlock()
		cursor = chunkEnd
		burstID++
	}

	e.markOutbound(s, models.StatusTransmitted)
	e.setState(s, StateIdle, "")
	return true
}

// buildBurstFrames renders the padded burst payload into its wire frames.
func (s *Session) buildBurstFrames(sm SpeedMode, padded []byte, burstID, totalBursts uint16, eom bool) [][]byte {
	crc := burstCRC(padded)
	var flags uint8
	if eom {
		flags |= frame.FlagEndOfMessage
	}

	frames := make([][]byte, sm.FramesPerBurst)
	for i := 0; i < sm.FramesPerBurst; i++ {
		bf := &frame.BurstFrame{
			FrameIndex:     uint8(i),
			DestinationCRC: s.RemoteCRC,
			OriginCRC:      s.LocalCall.Checksum(),
			BurstID:        burstID,
			FrameCount:     uint8(sm.FramesPerBurst),
			TotalBursts:    totalBursts,
			Flags:          flags,
			BurstCRC:       crc,
			Payload:        padded[i*sm.PayloadBytes : (i+1)*sm.PayloadBytes],
		}
		frames[i] = bf.Encode()
	}
	return frames
}

// sendBurstAndAwait transmits one burst and drives its response cycle:
// selective retransmits on NACK, full retransmits on FR_NACK and timeouts,
// an FR_REPEAT probe when retries run out, then failure.
func (s *Session) sendBurstAndAwait(ctx context.Context, sm SpeedMode, speed int, burstFrames [][]byte, burstID int, eom bool, goodStreak *int) bool {
	e := s.engine
	retries := 0
	consecutiveNACKs := 0
	retransmitted := 0
	steppedDown := false
	probeSent := false

	send := func(frames [][]byte) {
		e.sched.Enqueue(modem.TxItem{
			Mode:   sm.Mode,
			Frames: frames,
			OnDone: func() {
				// The response window opens only once the burst is actually
				// on the air; until it closes, the TX worker must not key
				// over the expected reply.
				e.sched.SetHoldoff(true)
				select {
				case s.txDone <- struct{}{}:
				default:
				}
			},
		})
	}

	send(burstFrames)
	if !s.awaitTxDone(ctx) {
		return false
	}

	timer := time.NewTimer(e.timing.BurstTimeout(speed))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.sched.SetHoldoff(false)
			e.setState(s, StateDisconnected, "shutdown")
			return false
		case <-s.stopNotify:
			e.sched.SetHoldoff(false)
			s.abort()
			return false
		case <-s.done:
			e.sched.SetHoldoff(false)
			e.markOutbound(s, models.StatusAborted)
			s.closeSession(ctx)
			return false
		case in := <-s.frames:
			switch fr := in.f.(type) {
			case *frame.BurstACK:
				if int(fr.BurstID) != burstID {
					continue
				}
				e.sched.SetHoldoff(false)
				e.metrics.RecordBurstACK()
				s.adaptAfterACK(sm, retransmitted, steppedDown, goodStreak, fr.SpeedHint)
				return true
			case *frame.FrACK:
				if eom {
					e.sched.SetHoldoff(false)
					return true
				}
			case *frame.BurstNACK:
				if int(fr.BurstID) != burstID {
					continue
				}
				e.sched.SetHoldoff(false)
				e.metrics.RecordBurstNACK()
				consecutiveNACKs++
				if consecutiveNACKs > e.timing.BurstMaxRetries {
					s.failTransfer("too many NACKs")
					return false
				}
				missingCount := popcount64(fr.MissingMask)
				if !steppedDown && (missingCount*4 > sm.FramesPerBurst*3 || consecutiveNACKs >= 3) {
					s.stepDown()
					steppedDown = true
				}
				var resend [][]byte
				for i := 0; i < sm.FramesPerBurst; i++ {
					if fr.MissingMask&(1<<i) != 0 {
						resend = append(resend, burstFrames[i])
					}
				}
				if len(resend) == 0 {
					continue
				}
				retransmitted += len(resend)
				e.metrics.RecordBurstRetransmit(len(resend))
				send(resend)
				if !s.awaitTxDone(ctx) {
					return false
				}
				resetTimer(timer, e.timing.BurstTimeout(speed))
			case *frame.FrNACK:
				if int(fr.BurstID) != burstID {
					continue
				}
				e.sched.SetHoldoff(false)
				e.metrics.RecordBurstNACK()
				retransmitted += sm.FramesPerBurst
				e.metrics.RecordBurstRetransmit(sm.FramesPerBurst)
				send(burstFrames)
				if !s.awaitTxDone(ctx) {
					return false
				}
				resetTimer(timer, e.timing.BurstTimeout(speed))
			case *frame.SessionStop:
				e.sched.SetHoldoff(false)
				e.markOutbound(s, models.StatusAborted)
				e.setState(s, StateDisconnected, "aborted by remote")
				return false
			case *frame.SessionClose:
				e.sched.SetHoldoff(false)
				e.markOutbound(s, models.StatusAborted)
				e.setState(s, StateDisconnected, "closed by remote")
				return false
			}
		case <-timer.C:
			e.sched.SetHoldoff(false)
			retries++
			s.mu.Lock()
			s.retryCounter = retries
			s.mu.Unlock()
			switch {
			case retries <= e.timing.BurstMaxRetries:
				retransmitted += sm.FramesPerBurst
				e.metrics.RecordBurstRetransmit(sm.FramesPerBurst)
				send(burstFrames)
				if !s.awaitTxDone(ctx) {
					return false
				}
				resetTimer(timer, e.timing.BurstTimeout(speed))
			case !probeSent:
				probeSent = true
				e.sendSignalling(&frame.FrRepeat{
					DestinationCRC: s.RemoteCRC,
					OriginCRC:      s.LocalCall.Checksum(),
					BurstID:        uint16(burstID),
				}, true)
				resetTimer(timer, e.timing.BurstTimeout(speed))
			default:
				s.failTransfer("burst timeout")
				return false
			}
		}
	}
}

// adaptAfterACK applies the speed rules once a burst has been accepted.
func (s *Session) adaptAfterACK(sm SpeedMode, retransmitted int, steppedDown bool, goodStreak *int, hint uint8) {
	e := s.engine
	switch {
	case retransmitted*2 > sm.FramesPerBurst:
		if !steppedDown {
			s.stepDown()
		}
		*goodStreak = 0
	case retransmitted > 0:
		*goodStreak = 0
	default:
		*goodStreak++
		if *goodStreak >= consecutiveGood {
			s.stepUp()
			*goodStreak = 0
		}
	}

	// The receiving station may request a ceiling on poor SNR.
	ceiling := int(hint)
	s.mu.Lock()
	if ceiling > 0 && s.speedLevel > ceiling {
		s.speedLevel = ceiling
	}
	s.mu.Unlock()
	e.metrics.RecordSpeedLevel(s.SpeedLevel())
}

// consecutiveGood is how many clean bursts trigger a speed step up.
const consecutiveGood = 3

func (s *Session) stepUp() {
	s.mu.Lock()
	if s.speedLevel < s.engine.maxSpeed {
		s.speedLevel++
	}
	s.mu.Unlock()
	s.engine.metrics.RecordSpeedLevel(s.SpeedLevel())
}

func (s *Session) stepDown() {
	s.mu.Lock()
	if s.speedLevel > 0 {
		s.speedLevel--
	}
	s.mu.Unlock()
	s.engine.metrics.RecordSpeedLevel(s.SpeedLevel())
}

// awaitTxDone blocks until the scheduler reports the burst on the air.
func (s *Session) awaitTxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		s.engine.sched.SetHoldoff(false)
		s.engine.setState(s, StateDisconnected, "shutdown")
		return false
	case <-s.stopNotify:
		s.engine.sched.SetHoldoff(false)
		s.abort()
		return false
	case <-s.txDone:
		return true
	}
}

// failTransfer marks the session and its message as failed.
func (s *Session) failTransfer(reason string) {
	e := s.engine
	e.sched.SetHoldoff(false)
	e.markOutbound(s, models.StatusFailed)
	e.setState(s, StateFailed, reason)
}

// abort is the immediate teardown: one ARQ_STOP, no retries.
func (s *Session) abort() {
	e := s.engine
	e.sendSignalling(&frame.SessionStop{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
	}, true)
	e.markOutbound(s, models.StatusAborted)
	e.setState(s, StateDisconnected, "aborted")
}

// closeSession is the graceful teardown: repeated unacknowledged CLOSE
// frames, then disconnected.
func (s *Session) closeSession(ctx context.Context) {
	e := s.engine
	e.setState(s, StateDisconnecting, "")
	cl := &frame.SessionClose{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
	}
	for i := 0; i < e.timing.CloseRepeats; i++ {
		e.sendSignalling(cl, true)
		if i < e.timing.CloseRepeats-1 {
			select {
			case <-ctx.Done():
				e.setState(s, StateDisconnected, "shutdown")
				return
			case <-time.After(e.timing.CloseSpacing):
			}
		}
	}
	e.setState(s, StateDisconnected, "")
}

// idleLoop keeps a connected session alive with heartbeats until either side
// tears it down.
func (s *Session) idleLoop(ctx context.Context) {
	e := s.engine
	ticker := time.NewTicker(e.timing.HeartbeatInterval)
	defer ticker.Stop()

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
		case <-ticker.C:
			if s.sinceHeard() > e.timing.HeartbeatTimeout {
				e.setState(s, StateFailed, "heartbeat timeout")
				return
			}
			s.sendHeartbeat()
		case in := <-s.frames:
			switch in.f.(type) {
			case *frame.SessionHeartbeat:
				// Liveness only; lastHeard was updated on routing.
			case *frame.SessionClose:
				e.setState(s, StateDisconnected, "closed by remote")
				return
			case *frame.SessionStop:
				e.setState(s, StateDisconnected, "aborted by remote")
				return
			}
		}
	}
}
