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
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

// sendSignalling enqueues a signalling frame in the signalling mode.
// Immediate frames (ACK-class) skip the collision-avoidance jitter.
func (e *Engine) sendSignalling(f frame.Frame, immediate bool) {
	e.sched.EnqueueFrame(e.sigMode, f, immediate)
}

func (s *Session) sendOpenACK() {
	s.engine.sendSignalling(&frame.SessionOpen{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
		Speed:          uint8(s.SpeedLevel()),
		Flags:          frame.FlagSessionACK,
		OriginCall:     s.LocalCall,
	}, true)
}

func (s *Session) sendHeartbeat() {
	s.engine.sendSignalling(&frame.SessionHeartbeat{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
	}, false)
}

func (s *Session) sendDCOpenACK(wide bool, ceiling uint8) {
	s.engine.sendSignalling(&frame.DCOpen{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
		SpeedCeiling:   ceiling,
		Wide:           wide,
		ACK:            true,
	}, true)
}

func (s *Session) sendBurstACK(burstID uint16, hint uint8) {
	s.engine.sendSignalling(&frame.BurstACK{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		BurstID:        burstID,
		SpeedHint:      hint,
	}, true)
}

func (s *Session) sendBurstNACK(burstID uint16, missing uint64) {
	s.engine.metrics.RecordBurstNACK()
	s.engine.sendSignalling(&frame.BurstNACK{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		BurstID:        burstID,
		MissingMask:    missing,
	}, true)
}

func (s *Session) sendFrNACK(burstID uint16) {
	s.engine.sendSignalling(&frame.FrNACK{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		BurstID:        burstID,
	}, true)
}

func (s *Session) sendFrACK() {
	s.engine.sendSignalling(&frame.FrACK{
		DestinationCRC: s.RemoteCRC,
		OriginCRC:      s.LocalCall.Checksum(),
		SessionID:      s.ID,
	}, true)
}
