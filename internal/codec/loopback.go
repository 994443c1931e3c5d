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
	"errors"
	"sync"
)

// ErrChannelClosed indicates a read from a torn-down loopback channel.
var ErrChannelClosed = errors.New("loopback channel closed")

// DropFunc decides whether a frame is lost on the loopback channel. It runs
// on the transmit path with the raw frame bytes about to cross the ether.
type DropFunc func(frame []byte) bool

const loopbackQueue = 256

// Loopback wires two stations together through a lossless (or deliberately
// lossy) audio channel. Each endpoint implements both Codec and the audio
// Play/Read pair, so the full TX-scheduler-to-dispatcher path is exercised
// without sound hardware.
type Loopback struct {
	A *LoopbackEndpoint
	B *LoopbackEndpoint
}

// NewLoopback creates a connected pair of endpoints.
func NewLoopback() *Loopback {
	a := newLoopbackEndpoint()
	b := newLoopbackEndpoint()
	a.peer = b
	b.peer = a
	return &Loopback{A: a, B: b}
}

// Close tears down both directions.
func (l *Loopback) Close() {
	l.A.Close()
	l.B.Close()
}

// LoopbackEndpoint is one side of a loopback channel.
type LoopbackEndpoint struct {
	peer *LoopbackEndpoint

	mu     sync.Mutex
	drop   DropFunc
	snr    int
	closed bool

	rx chan []float32
}

func newLoopbackEndpoint() *LoopbackEndpoint {
	return &LoopbackEndpoint{
		rx:  make(chan []float32, loopbackQueue),
		snr: 10,
	}
}

// SetDrop installs a loss hook for frames transmitted BY this endpoint.
func (e *LoopbackEndpoint) SetDrop(fn DropFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drop = fn
}

// SetSNR sets the SNR this endpoint reports for frames it demodulates.
func (e *LoopbackEndpoint) SetSNR(snr int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snr = snr
}

// Modulate packs the frame bytes into a sample buffer, one sample per byte
// with the mode in the first slot.
func (e *LoopbackEndpoint) Modulate(mode Mode, frame []byte) ([]float32, error) {
	samples := make([]float32, 1+len(frame))
	samples[0] = float32(mode)
	for i, b := range frame {
		samples[i+1] = float32(b)
	}
	return samples, nil
}

// Demodulate unpacks a sample buffer produced by Modulate.
func (e *LoopbackEndpoint) Demodulate(samples []float32) ([]Decoded, bool, error) {
	if len(samples) < 1 {
		return nil, false, nil
	}
	e.mu.Lock()
	snr := e.snr
	e.mu.Unlock()

	data := make([]byte, len(samples)-1)
	for i := range data {
		data[i] = byte(samples[i+1])
	}
	decoded := Decoded{
		Data: data,
		Mode: Mode(samples[0]),
		SNR:  snr,
		Sync: SyncOK,
	}
	return []Decoded{decoded}, true, nil
}

// Play transmits a modulated buffer across the ether to the peer, subject to
// the drop hook.
func (e *LoopbackEndpoint) Play(samples []float32) error {
	e.mu.Lock()
	drop := e.drop
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	if drop != nil && len(samples) >= 1 {
		frame := make([]byte, len(samples)-1)
		for i := range frame {
			frame[i] = byte(samples[i+1])
		}
		if drop(frame) {
			return nil
		}
	}

	e.peer.mu.Lock()
	defer e.peer.mu.Unlock()
	if e.peer.closed {
		return nil
	}
	select {
	case e.peer.rx <- samples:
	default:
		// A full queue models a hopelessly congested channel; the frame is
		// simply lost on the air.
	}
	return nil
}

// Read blocks until a sample buffer arrives from the peer.
func (e *LoopbackEndpoint) Read() ([]float32, error) {
	samples, ok := <-e.rx
	if !ok {
		return nil, ErrChannelClosed
	}
	return samples, nil
}

// Close tears down the receive side.
func (e *LoopbackEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.rx)
	}
	return nil
}
