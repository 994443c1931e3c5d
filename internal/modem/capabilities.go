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

// Package modem coordinates the half-duplex radio channel: the transmit
// scheduler, the receive dispatcher, the channel-busy debouncer and the
// shared modem state. The DSP codec, audio devices and rig control are
// external capabilities injected through the interfaces below.
package modem

// AudioIO moves samples between the codec and the sound device.
type AudioIO interface {
	// Play writes one modulated buffer to the transmit device, blocking
	// until it has been handed to the hardware.
	Play(samples []float32) error
	// Read blocks until a buffer of received samples is available.
	Read() ([]float32, error)
	Close() error
}

// Radio keys and tunes the transceiver.
type Radio interface {
	PTTOn() error
	PTTOff() error
	SetFrequency(hz int) error
	Frequency() (int, error)
	SetMode(mode string) error
	Mode() (string, error)
	Close() error
}
