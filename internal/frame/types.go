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

import "fmt"

// Type is the 1-byte tag at the start of every frame.
type Type uint8

// Frame type tags. BURST tags 10..50 carry the frame index within the burst
// directly in the tag, so a burst of N frames uses tags TypeBurstBase..+N-1.
const (
	TypeBurstBase Type = 10
	TypeBurstMax  Type = 50

	TypeBurstACK  Type = 60
	TypeFrACK     Type = 61
	TypeFrRepeat  Type = 62
	TypeFrNACK    Type = 63
	TypeBurstNACK Type = 64

	TypeMeshBroadcast Type = 100
	TypeMeshPing      Type = 101
	TypeMeshPingACK   Type = 102

	TypeCQ        Type = 200
	TypeQRV       Type = 201
	TypePing      Type = 210
	TypePingACK   Type = 211
	TypeIsWriting Type = 215

	TypeARQSessionOpen  Type = 221
	TypeARQSessionHB    Type = 222
	TypeARQSessionClose Type = 223

	TypeARQDCOpenW    Type = 225
	TypeARQDCOpenACKW Type = 226
	TypeARQDCOpenN    Type = 227
	TypeARQDCOpenACKN Type = 228

	TypeARQStop Type = 249

	TypeBeacon    Type = 250
	TypeFEC       Type = 251
	TypeFECWakeup Type = 252
	TypeIdent     Type = 254
	TypeTest      Type = 255
)

// IsBurst reports whether the tag is a burst data frame.
func (t Type) IsBurst() bool {
	return t >= TypeBurstBase && t <= TypeBurstMax
}

func (t Type) String() string {
	if t.IsBurst() {
		return fmt.Sprintf("BURST_%02d", t-TypeBurstBase+1)
	}
	switch t {
	case TypeBurstACK:
		return "BURST_ACK"
	case TypeFrACK:
		return "FR_ACK"
	case TypeFrRepeat:
		return "FR_REPEAT"
	case TypeFrNACK:
		return "FR_NACK"
	case TypeBurstNACK:
		return "BURST_NACK"
	case TypeMeshBroadcast:
		return "MESH_BROADCAST"
	case TypeMeshPing:
		return "MESH_SIGNALLING_PING"
	case TypeMeshPingACK:
		return "MESH_SIGNALLING_PING_ACK"
	case TypeCQ:
		return "CQ"
	case TypeQRV:
		return "QRV"
	case TypePing:
		return "PING"
	case TypePingACK:
		return "PING_ACK"
	case TypeIsWriting:
		return "IS_WRITING"
	case TypeARQSessionOpen:
		return "ARQ_SESSION_OPEN"
	case TypeARQSessionHB:
		return "ARQ_SESSION_HB"
	case TypeARQSessionClose:
		return "ARQ_SESSION_CLOSE"
	case TypeARQDCOpenW:
		return "ARQ_DC_OPEN_W"
	case TypeARQDCOpenACKW:
		return "ARQ_DC_OPEN_ACK_W"
	case TypeARQDCOpenN:
		return "ARQ_DC_OPEN_N"
	case TypeARQDCOpenACKN:
		return "ARQ_DC_OPEN_ACK_N"
	case TypeARQStop:
		return "ARQ_STOP"
	case TypeBeacon:
		return "BEACON"
	case TypeFEC:
		return "FEC"
	case TypeFECWakeup:
		return "FEC_WAKEUP"
	case TypeIdent:
		return "IDENT"
	case TypeTest:
		return "TEST_FRAME"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}
