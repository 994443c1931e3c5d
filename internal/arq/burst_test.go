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
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

func makeBurstFrames(t *testing.T, burstID uint16, frameCount, payloadBytes int) ([]*frame.BurstFrame, []byte) {
	t.Helper()
	payload := make([]byte, frameCount*payloadBytes)
	for i := range payload {
		payload[i] = byte(i)
	}
	crc := crc32.ChecksumIEEE(payload)

	frames := make([]*frame.BurstFrame, frameCount)
	for i := 0; i < frameCount; i++ {
		frames[i] = &frame.BurstFrame{
			FrameIndex: uint8(i),
			BurstID:    burstID,
			FrameCount: uint8(frameCount),
			BurstCRC:   crc,
			Payload:    payload[i*payloadBytes : (i+1)*payloadBytes],
		}
	}
	return frames, payload
}

func TestBurstBufferAssembly(t *testing.T) {
	t.Parallel()
	frames, payload := makeBurstFrames(t, 3, 4, 16)

	// Deliver out of order.
	buffer := NewBurstBuffer(frames[2])
	buffer.Insert(frames[0])
	buffer.Insert(frames[3])
	if buffer.Complete() {
		t.Fatal("buffer complete with a frame missing")
	}
	if buffer.MissingMask() != 0b0010 {
		t.Fatalf("MissingMask = %b, want 0010", buffer.MissingMask())
	}

	buffer.Insert(frames[1])
	if !buffer.Complete() {
		t.Fatal("buffer incomplete after all frames")
	}
	if !buffer.CRCOK() {
		t.Fatal("CRC mismatch on clean burst")
	}
	if !bytes.Equal(buffer.Assemble(), payload) {
		t.Error("assembled payload differs")
	}
}

func TestBurstBufferDuplicatesIgnored(t *testing.T) {
	t.Parallel()
	frames, _ := makeBurstFrames(t, 0, 2, 8)
	buffer := NewBurstBuffer(frames[0])
	buffer.Insert(frames[0])
	if buffer.Complete() {
		t.Fatal("duplicate insert completed the buffer")
	}
	if got := buffer.MissingMask(); got != 0b10 {
		t.Fatalf("MissingMask = %b, want 10", got)
	}
}

func TestBurstBufferCRCFailure(t *testing.T) {
	t.Parallel()
	frames, _ := makeBurstFrames(t, 0, 2, 8)
	frames[1].Payload = bytes.Repeat([]byte{0xFF}, 8)
	buffer := NewBurstBuffer(frames[0])
	buffer.Insert(frames[1])
	if !buffer.Complete() {
		t.Fatal("buffer incomplete")
	}
	if buffer.CRCOK() {
		t.Fatal("CRC passed on corrupted burst")
	}
}

func TestPayloadWrapUnwrap(t *testing.T) {
	t.Parallel()
	data := []byte("eight kib of high frequency bits")
	padded := append(wrapPayload(data), make([]byte, 32)...)

	got, err := unwrapPayload(padded)
	if err != nil {
		t.Fatalf("unwrapPayload: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("unwrapped %q, want %q", got, data)
	}
}

func TestPayloadUnwrapRejectsShortBuffer(t *testing.T) {
	t.Parallel()
	if _, err := unwrapPayload([]byte{0, 0}); err == nil {
		t.Fatal("expected error for short buffer")
	}
	// Length claiming more than available.
	bad := wrapPayload([]byte("abc"))[:5]
	if _, err := unwrapPayload(bad); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestSpeedTableClamps(t *testing.T) {
	t.Parallel()
	if got := SpeedModeFor(-1); got != speedTable[0] {
		t.Errorf("SpeedModeFor(-1) = %+v", got)
	}
	if got := SpeedModeFor(99); got != speedTable[MaxSpeedLevel] {
		t.Errorf("SpeedModeFor(99) = %+v", got)
	}
	for level, sm := range speedTable {
		if sm.PayloadBytes <= 0 || sm.FramesPerBurst <= 0 || sm.BurstTimeout <= 0 {
			t.Errorf("level %d has invalid row %+v", level, sm)
		}
	}
}

func TestSessionAuthenticator(t *testing.T) {
	t.Parallel()
	a := sessionAuthenticator("secret", 0xABCDEF, 1, 2)
	b := sessionAuthenticator("secret", 0xABCDEF, 1, 2)
	if a != b {
		t.Fatal("authenticator is not deterministic")
	}
	if !verifyAuthenticator("secret", 0xABCDEF, 1, 2, a) {
		t.Fatal("verification failed for matching salt")
	}
	if verifyAuthenticator("wrong", 0xABCDEF, 1, 2, a) {
		t.Fatal("verification passed for wrong salt")
	}
	if c := sessionAuthenticator("secret", 0xABCDEE, 1, 2); c == a {
		t.Fatal("authenticator ignores session id")
	}
}

func TestParseSalts(t *testing.T) {
	t.Parallel()
	salts, err := ParseSalts([]string{"AA0AA-0:DJ2LS-0:topsecret"})
	if err != nil {
		t.Fatalf("ParseSalts: %v", err)
	}
	local, _ := frame.ParseCallsign("AA0AA-0")
	remote, _ := frame.ParseCallsign("DJ2LS-0")
	salt, ok := salts.Lookup(local, remote)
	if !ok || salt != "topsecret" {
		t.Errorf("Lookup = %q %v", salt, ok)
	}
	if _, ok := salts.Lookup(remote, local); ok {
		t.Error("Lookup succeeded for reversed pair")
	}

	if _, err := ParseSalts([]string{"garbage"}); err == nil {
		t.Error("expected error for malformed entry")
	}
}
