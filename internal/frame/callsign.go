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

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidCallsign indicates that a callsign does not match BASE[-SSID]
	// with a 3-6 character alphanumeric base.
	ErrInvalidCallsign = errors.New("invalid callsign")
	// ErrInvalidSSID indicates an SSID outside 0-15.
	ErrInvalidSSID = errors.New("invalid SSID")
)

const (
	callsignBaseMin = 3
	callsignBaseMax = 6
	ssidMax         = 15

	// CallsignWireLen is the canonical binary form: the base padded to six
	// bytes with spaces, followed by one SSID byte.
	CallsignWireLen = 7
)

// Callsign is a parsed amateur-radio callsign with station SSID.
type Callsign struct {
	Base string
	SSID uint8
}

// ParseCallsign parses "BASE" or "BASE-SSID" text into a Callsign.
// The base is upper-cased; a missing SSID defaults to 0.
func ParseCallsign(s string) (Callsign, error) {
	base, ssidStr, hasSSID := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), "-")
	if len(base) < callsignBaseMin || len(base) > callsignBaseMax {
		return Callsign{}, fmt.Errorf("%w: %q", ErrInvalidCallsign, s)
	}
	for _, r := range base {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return Callsign{}, fmt.Errorf("%w: %q", ErrInvalidCallsign, s)
		}
	}
	var ssid uint64
	if hasSSID {
		var err error
		ssid, err = strconv.ParseUint(ssidStr, 10, 8)
		if err != nil || ssid > ssidMax {
			return Callsign{}, fmt.Errorf("%w: %q", ErrInvalidSSID, s)
		}
	}
	return Callsign{Base: base, SSID: uint8(ssid)}, nil
}

// String renders the callsign in its canonical BASE-SSID text form.
func (c Callsign) String() string {
	return fmt.Sprintf("%s-%d", c.Base, c.SSID)
}

// Canonical returns the 7-byte padded wire encoding of the callsign.
func (c Callsign) Canonical() [CallsignWireLen]byte {
	var out [CallsignWireLen]byte
	copy(out[:], "      ")
	copy(out[:callsignBaseMax], c.Base)
	out[callsignBaseMax] = c.SSID
	return out
}

// Checksum returns the CRC-24 of the canonical form, the on-wire address of
// this callsign.
func (c Callsign) Checksum() uint32 {
	canonical := c.Canonical()
	return CRC24(canonical[:])
}

// ChecksumHex returns the checksum as a 6-character lower-case hex string,
// the form stored in the stations table.
func (c Callsign) ChecksumHex() string {
	return fmt.Sprintf("%06x", c.Checksum())
}

func callsignFromWire(b []byte) (Callsign, error) {
	if len(b) < CallsignWireLen {
		return Callsign{}, ErrShortBuffer
	}
	base := strings.TrimRight(string(b[:callsignBaseMax]), " ")
	ssid := b[callsignBaseMax]
	if ssid > ssidMax {
		return Callsign{}, fmt.Errorf("%w: %d", ErrInvalidSSID, ssid)
	}
	return Callsign{Base: base, SSID: ssid}, nil
}
