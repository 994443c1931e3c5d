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

package modem

import (
	"sync"
	"time"
)

// rxBufferCapacity bounds the in-memory buffer of completed inbound
// payloads; the oldest entry is evicted first.
const rxBufferCapacity = 16

// RXEntry is one completed inbound raw payload.
type RXEntry struct {
	DXCall    string    `json:"dxcallsign"`
	Payload   []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	SNR       int       `json:"snr"`
}

// RXBuffer retains the most recent inbound payloads until a client fetches
// or clears them.
type RXBuffer struct {
	mu      sync.Mutex
	entries []RXEntry
}

// NewRXBuffer creates an empty buffer.
func NewRXBuffer() *RXBuffer {
	return &RXBuffer{}
}

// Push appends a payload, evicting the oldest beyond capacity.
func (b *RXBuffer) Push(entry RXEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > rxBufferCapacity {
		b.entries = b.entries[len(b.entries)-rxBufferCapacity:]
	}
}

// Snapshot returns the buffered payloads, oldest first.
func (b *RXBuffer) Snapshot() []RXEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RXEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear discards all buffered payloads.
func (b *RXBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Len returns the number of buffered payloads.
func (b *RXBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
