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

package frame_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"pgregory.net/rapid"
)

func mustCall(t *testing.T, s string) frame.Callsign {
	t.Helper()
	call, err := frame.ParseCallsign(s)
	if err != nil {
		t.Fatalf("ParseCallsign(%q): %v", s, err)
	}
	return call
}

func TestCallsignParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		base    string
		ssid    uint8
		wantErr bool
	}{
		{in: "AA0AA", base: "AA0AA", ssid: 0},
		{in: "AA0AA-0", base: "AA0AA", ssid: 0},
		{in: "aa0aa-7", base: "AA0AA", ssid: 7},
		{in: "DJ2LS-15", base: "DJ2LS", ssid: 15},
		{in: "W1A", base: "W1A", ssid: 0},
		{in: "AB", wantErr: true},
		{in: "TOOLONG1", wantErr: true},
		{in: "AA0AA-16", wantErr: true},
		{in: "AA0AA--1", wantErr: true},
		{in: "AA 0AA", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			call, err := frame.ParseCallsign(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.in, call)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if call.Base != tt.base || call.SSID != tt.ssid {
				t.Errorf("got %s-%d, want %s-%d", call.Base, call.SSID, tt.base, tt.ssid)
			}
		})
	}
}

func TestCallsignChecksumDeterministic(t *testing.T) {
	t.Parallel()
	a := mustCall(t, "AA0AA-0")
	b := mustCall(t, "aa0aa")
	if a.Checksum() != b.Checksum() {
		t.Errorf("equal callsigns produced different checksums: %06x vs %06x", a.Checksum(), b.Checksum())
	}
	c := mustCall(t, "AA0AA-1")
	if a.Checksum() == c.Checksum() {
		t.Errorf("different SSIDs produced equal checksums: %06x", a.Checksum())
	}
	if a.Checksum() > 0xFFFFFF {
		t.Errorf("checksum exceeds 24 bits: %x", a.Checksum())
	}
}

func TestCRC24KnownVector(t *testing.T) {
	t.Parallel()
	// OpenPGP test vector: CRC24 of "123456789" is 0x21CF02.
	if got := frame.CRC24([]byte("123456789")); got != 0x21CF02 {
		t.Errorf("CRC24(123456789) = %06x, want 21cf02", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	local := mustCall(t, "AA0AA-0")
	remote := mustCall(t, "DJ2LS-3")

	frames := []frame.Frame{
		&frame.SessionOpen{
			DestinationCRC: remote.Checksum(),
			OriginCRC:      local.Checksum(),
			SessionID:      0x0ABCDE,
			Speed:          3,
			Flags:          frame.FlagHMAC,
			OriginCall:     local,
			HMAC:           [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		},
		&frame.SessionOpen{
			DestinationCRC: local.Checksum(),
			OriginCRC:      remote.Checksum(),
			SessionID:      0x0ABCDE,
			Speed:          2,
			Flags:          frame.FlagSessionACK,
			OriginCall:     remote,
		},
		&frame.SessionHeartbeat{DestinationCRC: 1, OriginCRC: 2, SessionID: 3},
		&frame.SessionClose{DestinationCRC: 1, OriginCRC: 2, SessionID: 3},
		&frame.SessionStop{DestinationCRC: 1, OriginCRC: 2, SessionID: 3},
		&frame.FrACK{DestinationCRC: 1, OriginCRC: 2, SessionID: 3},
		&frame.DCOpen{DestinationCRC: 1, OriginCRC: 2, SessionID: 3, SpeedCeiling: 4, Wide: true},
		&frame.DCOpen{DestinationCRC: 1, OriginCRC: 2, SessionID: 3, SpeedCeiling: 4, ACK: true},
		&frame.BurstFrame{
			FrameIndex:     2,
			DestinationCRC: remote.Checksum(),
			OriginCRC:      local.Checksum(),
			BurstID:        7,
			FrameCount:     5,
			TotalBursts:    9,
			Flags:          frame.FlagEndOfMessage,
			BurstCRC:       0xDEADBEEF,
			Payload:        []byte{0x00, 0x01, 0x02, 0xFF},
		},
		&frame.BurstACK{DestinationCRC: 1, OriginCRC: 2, BurstID: 7, SpeedHint: 4},
		&frame.BurstNACK{DestinationCRC: 1, OriginCRC: 2, BurstID: 7, MissingMask: 0b100},
		&frame.FrNACK{DestinationCRC: 1, OriginCRC: 2, BurstID: 7},
		&frame.FrRepeat{DestinationCRC: 1, OriginCRC: 2, BurstID: 7},
		&frame.CQ{OriginCRC: local.Checksum(), OriginCall: local, Grid: "JN12AA"},
		&frame.QRV{OriginCRC: local.Checksum(), OriginCall: local, Grid: "JN12AA", SNR: -12},
		&frame.Ping{DestinationCRC: remote.Checksum(), OriginCRC: local.Checksum(), OriginCall: local},
		&frame.PingACK{DestinationCRC: 1, OriginCRC: 2, SNR: 5},
		&frame.IsWriting{DestinationCRC: 1, OriginCRC: 2},
		&frame.Beacon{OriginCRC: local.Checksum(), OriginCall: local, Grid: "JN12AA"},
		&frame.Ident{OriginCRC: local.Checksum(), OriginCall: local},
		&frame.FECWakeup{OriginCRC: local.Checksum(), OriginCall: local, Mode: 1},
		&frame.FEC{Payload: []byte("broadcast")},
		&frame.TestFrame{Payload: []byte{0xAA, 0x55}},
		&frame.MeshBroadcast{DestinationCRC: 1, OriginCRC: 2, RouterCRC: 3, Hops: 2, SNR: -3},
		&frame.MeshPing{DestinationCRC: 1, OriginCRC: 2, Hops: 1, SNR: 4},
		&frame.MeshPing{DestinationCRC: 1, OriginCRC: 2, Hops: 1, SNR: 4, ACK: true},
	}

	for _, f := range frames {
		t.Run(f.FrameType().String(), func(t *testing.T) {
			encoded := f.Encode()
			decoded, err := frame.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(f, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{name: "empty", in: nil, want: frame.ErrShortBuffer},
		{name: "unknown tag", in: []byte{99}, want: frame.ErrUnknownType},
		{name: "truncated open", in: []byte{221, 1, 2}, want: frame.ErrLengthMismatch},
		{name: "oversized ack", in: append([]byte{60}, make([]byte, 32)...), want: frame.ErrLengthMismatch},
		{name: "burst without payload", in: append([]byte{10}, make([]byte, 16)...), want: frame.ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := frame.Decode(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBurstFrameTagCarriesIndex(t *testing.T) {
	t.Parallel()
	f := &frame.BurstFrame{FrameIndex: 4, FrameCount: 5, Payload: []byte{1}}
	encoded := f.Encode()
	if encoded[0] != byte(frame.TypeBurstBase)+4 {
		t.Fatalf("tag = %d, want %d", encoded[0], byte(frame.TypeBurstBase)+4)
	}
	decoded, err := frame.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bf, ok := decoded.(*frame.BurstFrame)
	if !ok {
		t.Fatalf("decoded %T, want *frame.BurstFrame", decoded)
	}
	if bf.FrameIndex != 4 {
		t.Errorf("FrameIndex = %d, want 4", bf.FrameIndex)
	}
}

func TestNamesObserveFrame(t *testing.T) {
	t.Parallel()
	names := frame.NewNames()
	call := mustCall(t, "DJ2LS-3")
	names.ObserveFrame(&frame.Beacon{OriginCRC: call.Checksum(), OriginCall: call, Grid: "JN48CS"})
	got, ok := names.Lookup(call.Checksum())
	if !ok || got != call {
		t.Errorf("Lookup = %v %v, want %v true", got, ok, call)
	}
	if _, ok := names.Lookup(0x123456); ok {
		t.Error("Lookup of unseen address succeeded")
	}
}

// TestSessionOpenRoundTripRapid drives the identity property over the full
// payload envelope of the session open frame.
func TestSessionOpenRoundTripRapid(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		baseLen := rapid.IntRange(3, 6).Draw(t, "baseLen")
		base := ""
		for i := 0; i < baseLen; i++ {
			base += string(rune(rapid.SampledFrom([]rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")).Draw(t, "char")))
		}
		call := frame.Callsign{Base: base, SSID: uint8(rapid.IntRange(0, 15).Draw(t, "ssid"))}

		f := &frame.SessionOpen{
			DestinationCRC: uint32(rapid.IntRange(0, 0xFFFFFF).Draw(t, "dest")),
			OriginCRC:      call.Checksum(),
			SessionID:      uint32(rapid.IntRange(0, 0xFFFFFF).Draw(t, "session")),
			Speed:          uint8(rapid.IntRange(0, 255).Draw(t, "speed")),
			Flags:          uint8(rapid.IntRange(0, 3).Draw(t, "flags")),
			OriginCall:     call,
		}
		for i := range f.HMAC {
			f.HMAC[i] = byte(rapid.IntRange(0, 255).Draw(t, "hmac"))
		}

		decoded, err := frame.Decode(f.Encode())
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, ok := decoded.(*frame.SessionOpen)
		if !ok {
			t.Fatalf("decoded %T", decoded)
		}
		if *got != *f {
			t.Fatalf("round trip mismatch: %+v != %+v", got, f)
		}
	})
}
