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
	"hash/crc32"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

// BurstBuffer accumulates the frames of a single burst at the receiving
// station, indexed by frame_index.
type BurstBuffer struct {
	BurstID       uint16
	FrameCount    int
	ReceivedMask  uint64
	PayloadSlots  [][]byte
	ExpectedCRC   uint32
	EndOfMessage  bool
	TotalBursts   uint16
	StartedAt     time.Time
	payloadLength int
}

// NewBurstBuffer starts accumulation from the first frame seen of a burst.
func NewBurstBuffer(bf *frame.BurstFrame) *BurstBuffer {
	b := &BurstBuffer{
		BurstID:      bf.BurstID,
		FrameCount:   int(bf.FrameCount),
		PayloadSlots: make([][]byte, bf.FrameCount),
		ExpectedCRC:  bf.BurstCRC,
		EndOfMessage: bf.EndOfMessage(),
		TotalBursts:  bf.TotalBursts,
		StartedAt:    time.Now(),
	}
	b.Insert(bf)
	return b
}

// Insert stores one frame. Duplicates and out-of-range indexes are ignored.
func (b *BurstBuffer) Insert(bf *frame.BurstFrame) {
	idx := int(bf.FrameIndex)
	if idx >= b.FrameCount {
		return
	}
	if b.ReceivedMask&(1<<idx) != 0 {
		return
	}
	b.ReceivedMask |= 1 << idx
	b.PayloadSlots[idx] = bf.Payload
	b.payloadLength += len(bf.Payload)
	// Every frame of the burst repeats the end-of-message flag.
	b.EndOfMessage = b.EndOfMessage || bf.EndOfMessage()
}

// Complete reports whether every frame of the burst has arrived.
func (b *BurstBuffer) Complete() bool {
	if b.FrameCount == 0 {
		return false
	}
	return b.ReceivedMask == (uint64(1)<<b.FrameCount)-1
}

// MissingMask returns the bitmask of frames not yet received.
func (b *BurstBuffer) MissingMask() uint64 {
	full := (uint64(1) << b.FrameCount) - 1
	return full &^ b.ReceivedMask
}

// Assemble concatenates the payload slots in index order. Valid only once
// Complete.
func (b *BurstBuffer) Assemble() []byte {
	out := make([]byte, 0, b.payloadLength)
	for _, slot := range b.PayloadSlots {
		out = append(out, slot...)
	}
	return out
}

// CRCOK verifies the burst checksum over the assembled payload.
func (b *BurstBuffer) CRCOK() bool {
	return crc32.ChecksumIEEE(b.Assemble()) == b.ExpectedCRC
}
