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

package frame

import "sync"

// Names maps CRC-24 addresses to the last-seen full callsign, populated from
// any frame bearing the full form so that address-only frames can be shown
// with a station name when one is known.
type Names struct {
	mu    sync.RWMutex
	byCRC map[uint32]Callsign
}

// NewNames creates an empty name table.
func NewNames() *Names {
	return &Names{byCRC: make(map[uint32]Callsign)}
}

// Observe records the full callsign for later lookups by address.
func (n *Names) Observe(call Callsign) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byCRC[call.Checksum()] = call
}

// Lookup returns the callsign last seen for the given address, if any.
func (n *Names) Lookup(crc uint32) (Callsign, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	call, ok := n.byCRC[crc]
	return call, ok
}

// ObserveFrame records identity from any frame type that advertises one.
func (n *Names) ObserveFrame(f Frame) {
	switch fr := f.(type) {
	case *SessionOpen:
		n.Observe(fr.OriginCall)
	case *CQ:
		n.Observe(fr.OriginCall)
	case *QRV:
		n.Observe(fr.OriginCall)
	case *Ping:
		n.Observe(fr.OriginCall)
	case *Beacon:
		n.Observe(fr.OriginCall)
	case *Ident:
		n.Observe(fr.OriginCall)
	case *FECWakeup:
		n.Observe(fr.OriginCall)
	}
}
