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

// Package codec defines the DSP codec capability. The waveform itself
// (FreeDV-family modulation) is an external collaborator; this package holds
// the interface the protocol layer drives plus a loopback implementation used
// throughout the tests.
package codec

import "fmt"

// Mode selects the waveform a frame is sent with.
type Mode uint8

// Waveform modes, signalling first, then the data mode family ordered by
// robustness (most robust first).
const (
	ModeSig0 Mode = iota
	ModeFSKLDPC0
	ModeDatac13
	ModeDatac4
	ModeDatac3
	ModeDatac1
)

func (m Mode) String() string {
	switch m {
	case ModeSig0:
		return "sig0"
	case ModeFSKLDPC0:
		return "fsk_ldpc_0"
	case ModeDatac13:
		return "datac13"
	case ModeDatac4:
		return "datac4"
	case ModeDatac3:
		return "datac3"
	case ModeDatac1:
		return "datac1"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// SyncState is the per-frame verdict reported by the demodulator.
type SyncState string

const (
	// SyncOK marks a cleanly decoded frame.
	SyncOK SyncState = "ok"
	// SyncPartial marks carrier sync without a decodable frame.
	SyncPartial SyncState = "sync"
	// SyncFail marks a frame the decoder gave up on.
	SyncFail SyncState = "fail"
)

// Decoded is one frame delivered by the demodulator with its reception
// details.
type Decoded struct {
	Data   []byte
	Mode   Mode
	SNR    int
	Offset int
	Sync   SyncState
}

// Codec modulates protocol frames into audio samples and demodulates
// received audio back into frames.
type Codec interface {
	// Modulate renders one frame into a sample buffer for the given mode.
	Modulate(mode Mode, frame []byte) ([]float32, error)
	// Demodulate consumes a sample buffer and returns any completed frames
	// plus whether carrier sync is currently present (used for the
	// channel-busy flag).
	Demodulate(samples []float32) ([]Decoded, bool, error)
}
