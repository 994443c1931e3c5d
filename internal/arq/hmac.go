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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

// Salts holds the shared HMAC salts per call pair, parsed from the
// LOCAL:REMOTE:salt config entries. A missing salt means the pair runs
// unauthenticated.
type Salts struct {
	byPair map[string]string
}

// ParseSalts builds the salt table from config entries.
func ParseSalts(entries []string) (*Salts, error) {
	s := &Salts{byPair: make(map[string]string)}
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed HMAC salt entry %q", entry)
		}
		local, err := frame.ParseCallsign(parts[0])
		if err != nil {
			return nil, err
		}
		remote, err := frame.ParseCallsign(parts[1])
		if err != nil {
			return nil, err
		}
		s.byPair[pairKey(local, remote)] = parts[2]
	}
	return s, nil
}

// Lookup returns the salt for a call pair, if configured.
func (s *Salts) Lookup(local, remote frame.Callsign) (string, bool) {
	if s == nil {
		return "", false
	}
	salt, ok := s.byPair[pairKey(local, remote)]
	return salt, ok
}

func pairKey(local, remote frame.Callsign) string {
	return local.String() + "|" + remote.String()
}

// sessionAuthenticator computes the truncated HMAC-SHA256 binding a session
// open to its (session_id, origin, destination) tuple.
func sessionAuthenticator(salt string, sessionID, originCRC, destCRC uint32) [frame.HMACLen]byte {
	mac := hmac.New(sha256.New, []byte(salt))
	var buf [9]byte
	buf[0] = byte(sessionID >> 16)
	buf[1] = byte(sessionID >> 8)
	buf[2] = byte(sessionID)
	buf[3] = byte(originCRC >> 16)
	buf[4] = byte(originCRC >> 8)
	buf[5] = byte(originCRC)
	buf[6] = byte(destCRC >> 16)
	buf[7] = byte(destCRC >> 8)
	buf[8] = byte(destCRC)
	mac.Write(buf[:])

	var out [frame.HMACLen]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// verifyAuthenticator checks a received authenticator in constant time.
func verifyAuthenticator(salt string, sessionID, originCRC, destCRC uint32, got [frame.HMACLen]byte) bool {
	want := sessionAuthenticator(salt, sessionID, originCRC, destCRC)
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}
