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
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadPayload indicates a reassembled transfer whose length framing does
// not fit the received bytes.
var ErrBadPayload = errors.New("malformed transfer payload")

// payloadHeaderLen prefixes every transfer with the payload length so the
// receiving station can strip the zero padding of the final burst frame.
const payloadHeaderLen = 4

// wrapPayload prepends the length header to the raw message bytes.
func wrapPayload(data []byte) []byte {
	out := make([]byte, payloadHeaderLen+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[payloadHeaderLen:], data)
	return out
}

// unwrapPayload recovers the raw message bytes from a reassembled, padded
// transfer.
func unwrapPayload(padded []byte) ([]byte, error) {
	if len(padded) < payloadHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPayload, len(padded))
	}
	length := binary.BigEndian.Uint32(padded)
	if int(length) > len(padded)-payloadHeaderLen {
		return nil, fmt.Errorf("%w: header claims %d of %d bytes", ErrBadPayload, length, len(padded)-payloadHeaderLen)
	}
	return padded[payloadHeaderLen : payloadHeaderLen+int(length)], nil
}
