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

package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// Passthrough is a byte-transparent stand-in for the FreeDV waveform
// library: frames travel as length-prefixed, checksummed sample blocks. It
// lets two daemons interoperate over a clean audio link (or a virtual audio
// cable) until a real DSP binding is attached.
type Passthrough struct {
	partial []float32
}

// NewPassthrough creates the transparent codec.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

const passthroughHeader = 9 // magic(1) + length(4) + crc32(4)

const passthroughMagic = 0x5A

// maxPassthroughFrame bounds a claimed frame length so a false sync cannot
// stall reassembly.
const maxPassthroughFrame = 1 << 14

// Modulate packs mode, length, checksum and frame bytes one byte per
// sample.
func (p *Passthrough) Modulate(mode Mode, frame []byte) ([]float32, error) {
	header := make([]byte, passthroughHeader)
	header[0] = passthroughMagic
	binary.BigEndian.PutUint32(header[1:], uint32(len(frame)))
	binary.BigEndian.PutUint32(header[5:], crc32.ChecksumIEEE(frame))

	samples := make([]float32, 0, 1+passthroughHeader+len(frame))
	samples = append(samples, float32(mode))
	for _, b := range header {
		samples = append(samples, float32(b))
	}
	for _, b := range frame {
		samples = append(samples, float32(b))
	}
	return samples, nil
}

// Demodulate reassembles sample blocks into frames, reporting sync while a
// partial frame is pending.
func (p *Passthrough) Demodulate(samples []float32) ([]Decoded, bool, error) {
	p.partial = append(p.partial, samples...)

	var decoded []Decoded
	for {
		frame, mode, ok := p.extract()
		if !ok {
			break
		}
		decoded = append(decoded, Decoded{
			Data: frame,
			Mode: mode,
			SNR:  10,
			Sync: SyncOK,
		})
	}
	// extract always keeps one trailing sample; only a pending magic marker
	// means a frame has started.
	pending := len(p.partial) > 1 && byte(p.partial[1]) == passthroughMagic
	return decoded, pending || len(decoded) > 0, nil
}

func (p *Passthrough) extract() ([]byte, Mode, bool) {
	// Skip silence and padding up to the next magic marker, keeping the
	// final sample since the marker of a split frame may still be in
	// flight.
	start := 0
	for start+1 < len(p.partial) && byte(p.partial[start+1]) != passthroughMagic {
		start++
	}
	p.partial = p.partial[start:]

	if len(p.partial) < 1+passthroughHeader {
		return nil, 0, false
	}
	mode := Mode(p.partial[0])
	header := make([]byte, passthroughHeader)
	for i := range header {
		header[i] = byte(p.partial[1+i])
	}
	length := int(binary.BigEndian.Uint32(header[1:]))
	wantCRC := binary.BigEndian.Uint32(header[5:])
	if length > maxPassthroughFrame {
		// A false magic marker; resync one sample further along.
		p.partial = p.partial[1:]
		return nil, 0, false
	}

	total := 1 + passthroughHeader + length
	if len(p.partial) < total {
		return nil, 0, false
	}
	frame := make([]byte, length)
	for i := range frame {
		frame[i] = byte(p.partial[1+passthroughHeader+i])
	}
	if crc32.ChecksumIEEE(frame) != wantCRC {
		// A false magic marker; resync one sample further along.
		p.partial = p.partial[1:]
		return nil, 0, false
	}
	p.partial = p.partial[total:]
	return frame, mode, true
}
