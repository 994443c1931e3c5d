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

// Package frame implements the typed binary frame codec. Every frame starts
// with a 1-byte type tag; callsigns travel as 24-bit CRC addresses, with the
// full callsign included only in frames that advertise identity. All
// multi-byte fields are big-endian.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShortBuffer indicates there were not enough bytes for the frame type.
	ErrShortBuffer = errors.New("short buffer")
	// ErrUnknownType indicates an unrecognized type tag.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrLengthMismatch indicates the buffer length does not match the fixed
	// wire length of the tagged type.
	ErrLengthMismatch = errors.New("frame length mismatch")
)

// SessionOpen frame flags.
const (
	// FlagSessionACK marks the responder's echo of a session open. The type
	// table reserves no separate ACK tag, so the open frame carries the
	// direction in its flags and the negotiated speed in the speed field.
	FlagSessionACK uint8 = 1 << 0
	// FlagHMAC marks that the HMAC field carries a real authenticator.
	FlagHMAC uint8 = 1 << 1
)

// BurstFrame flags.
const (
	// FlagEndOfMessage marks the final burst of a transfer.
	FlagEndOfMessage uint8 = 1 << 0
)

// HMACLen is the truncated HMAC-SHA256 authenticator length.
const HMACLen = 8

// GridLen is the wire length of a Maidenhead grid locator field.
const GridLen = 6

// burstHeaderLen is the fixed header preceding a burst frame's payload.
const burstHeaderLen = 17

// Frame is one decoded protocol frame.
type Frame interface {
	FrameType() Type
	Encode() []byte
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putGrid(b []byte, grid string) {
	copy(b, "      ")
	copy(b, strings.ToUpper(grid))
}

func getGrid(b []byte) string {
	return strings.TrimRight(string(b[:GridLen]), " ")
}

// SessionOpen initiates (or, with FlagSessionACK, confirms) an ARQ session.
// It advertises the full origin callsign so the peer can display a name.
type SessionOpen struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
	Speed          uint8
	Flags          uint8
	OriginCall     Callsign
	HMAC           [HMACLen]byte
}

const sessionOpenLen = 1 + 3 + 3 + 3 + 1 + 1 + CallsignWireLen + HMACLen

func (f *SessionOpen) FrameType() Type { return TypeARQSessionOpen }

func (f *SessionOpen) Encode() []byte {
	b := make([]byte, sessionOpenLen)
	b[0] = byte(TypeARQSessionOpen)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	put24(b[7:], f.SessionID)
	b[10] = f.Speed
	b[11] = f.Flags
	call := f.OriginCall.Canonical()
	copy(b[12:], call[:])
	copy(b[19:], f.HMAC[:])
	return b
}

func decodeSessionOpen(b []byte) (*SessionOpen, error) {
	if len(b) != sessionOpenLen {
		return nil, fmt.Errorf("%w: ARQ_SESSION_OPEN expects %d bytes, got %d", ErrLengthMismatch, sessionOpenLen, len(b))
	}
	call, err := callsignFromWire(b[12:19])
	if err != nil {
		return nil, err
	}
	f := &SessionOpen{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		SessionID:      get24(b[7:]),
		Speed:          b[10],
		Flags:          b[11],
		OriginCall:     call,
	}
	copy(f.HMAC[:], b[19:])
	return f, nil
}

// SessionHeartbeat keeps an idle session alive. Heartbeats are pure liveness
// and never mutate transfer counters.
type SessionHeartbeat struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
	Flags          uint8
}

const sessionHeartbeatLen = 1 + 3 + 3 + 3 + 1

func (f *SessionHeartbeat) FrameType() Type { return TypeARQSessionHB }

func (f *SessionHeartbeat) Encode() []byte {
	b := make([]byte, sessionHeartbeatLen)
	b[0] = byte(TypeARQSessionHB)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	put24(b[7:], f.SessionID)
	b[10] = f.Flags
	return b
}

func decodeSessionHeartbeat(b []byte) (*SessionHeartbeat, error) {
	if len(b) != sessionHeartbeatLen {
		return nil, fmt.Errorf("%w: ARQ_SESSION_HB expects %d bytes, got %d", ErrLengthMismatch, sessionHeartbeatLen, len(b))
	}
	return &SessionHeartbeat{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		SessionID:      get24(b[7:]),
		Flags:          b[10],
	}, nil
}

// SessionClose requests a graceful session teardown. No ACK is required; the
// sender repeats it a fixed number of times.
type SessionClose struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
}

const sessionAddrLen = 1 + 3 + 3 + 3

func (f *SessionClose) FrameType() Type { return TypeARQSessionClose }

func (f *SessionClose) Encode() []byte {
	return encodeSessionAddr(TypeARQSessionClose, f.DestinationCRC, f.OriginCRC, f.SessionID)
}

// SessionStop aborts a session immediately, without retries.
type SessionStop struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
}

func (f *SessionStop) FrameType() Type { return TypeARQStop }

func (f *SessionStop) Encode() []byte {
	return encodeSessionAddr(TypeARQStop, f.DestinationCRC, f.OriginCRC, f.SessionID)
}

// FrACK acknowledges the completed transfer as a whole.
type FrACK struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
}

func (f *FrACK) FrameType() Type { return TypeFrACK }

func (f *FrACK) Encode() []byte {
	return encodeSessionAddr(TypeFrACK, f.DestinationCRC, f.OriginCRC, f.SessionID)
}

func encodeSessionAddr(t Type, dest, origin, session uint32) []byte {
	b := make([]byte, sessionAddrLen)
	b[0] = byte(t)
	put24(b[1:], dest)
	put24(b[4:], origin)
	put24(b[7:], session)
	return b
}

func decodeSessionAddr(b []byte, t Type) (dest, origin, session uint32, err error) {
	if len(b) != sessionAddrLen {
		return 0, 0, 0, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, t, sessionAddrLen, len(b))
	}
	return get24(b[1:]), get24(b[4:]), get24(b[7:]), nil
}

// DCOpen negotiates the data channel before the first burst. Wide selects the
// full-bandwidth mode family, otherwise the narrow family is used.
type DCOpen struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SessionID      uint32
	SpeedCeiling   uint8
	Wide           bool
	ACK            bool
}

const dcOpenLen = 1 + 3 + 3 + 3 + 1

func (f *DCOpen) FrameType() Type {
	switch {
	case f.Wide && f.ACK:
		return TypeARQDCOpenACKW
	case f.Wide:
		return TypeARQDCOpenW
	case f.ACK:
		return TypeARQDCOpenACKN
	default:
		return TypeARQDCOpenN
	}
}

func (f *DCOpen) Encode() []byte {
	b := make([]byte, dcOpenLen)
	b[0] = byte(f.FrameType())
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	put24(b[7:], f.SessionID)
	b[10] = f.SpeedCeiling
	return b
}

func decodeDCOpen(b []byte, t Type) (*DCOpen, error) {
	if len(b) != dcOpenLen {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, t, dcOpenLen, len(b))
	}
	return &DCOpen{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		SessionID:      get24(b[7:]),
		SpeedCeiling:   b[10],
		Wide:           t == TypeARQDCOpenW || t == TypeARQDCOpenACKW,
		ACK:            t == TypeARQDCOpenACKW || t == TypeARQDCOpenACKN,
	}, nil
}

// BurstFrame is one data frame of a burst. The frame index within the burst
// is carried in the type tag itself. BurstCRC is a CRC-32 over the complete
// burst payload, not over this frame alone.
type BurstFrame struct {
	FrameIndex     uint8
	DestinationCRC uint32
	OriginCRC      uint32
	BurstID        uint16
	FrameCount     uint8
	TotalBursts    uint16
	Flags          uint8
	BurstCRC       uint32
	Payload        []byte
}

func (f *BurstFrame) FrameType() Type { return TypeBurstBase + Type(f.FrameIndex) }

// EndOfMessage reports whether this burst is the final one of the transfer.
func (f *BurstFrame) EndOfMessage() bool { return f.Flags&FlagEndOfMessage != 0 }

func (f *BurstFrame) Encode() []byte {
	b := make([]byte, burstHeaderLen+len(f.Payload))
	b[0] = byte(f.FrameType())
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	binary.BigEndian.PutUint16(b[7:], f.BurstID)
	b[9] = f.FrameCount
	binary.BigEndian.PutUint16(b[10:], f.TotalBursts)
	b[12] = f.Flags
	binary.BigEndian.PutUint32(b[13:], f.BurstCRC)
	copy(b[burstHeaderLen:], f.Payload)
	return b
}

func decodeBurstFrame(b []byte, t Type) (*BurstFrame, error) {
	if len(b) <= burstHeaderLen {
		return nil, fmt.Errorf("%w: %s expects more than %d bytes, got %d", ErrLengthMismatch, t, burstHeaderLen, len(b))
	}
	f := &BurstFrame{
		FrameIndex:     uint8(t - TypeBurstBase),
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		BurstID:        binary.BigEndian.Uint16(b[7:]),
		FrameCount:     b[9],
		TotalBursts:    binary.BigEndian.Uint16(b[10:]),
		Flags:          b[12],
		BurstCRC:       binary.BigEndian.Uint32(b[13:]),
		Payload:        append([]byte(nil), b[burstHeaderLen:]...),
	}
	return f, nil
}

// BurstACK confirms a complete, checksum-clean burst. SpeedHint lets the
// receiving station request a speed ceiling for the next burst.
type BurstACK struct {
	DestinationCRC uint32
	OriginCRC      uint32
	BurstID        uint16
	SpeedHint      uint8
}

const burstACKLen = 1 + 3 + 3 + 2 + 1

func (f *BurstACK) FrameType() Type { return TypeBurstACK }

func (f *BurstACK) Encode() []byte {
	b := make([]byte, burstACKLen)
	b[0] = byte(TypeBurstACK)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	binary.BigEndian.PutUint16(b[7:], f.BurstID)
	b[9] = f.SpeedHint
	return b
}

func decodeBurstACK(b []byte) (*BurstACK, error) {
	if len(b) != burstACKLen {
		return nil, fmt.Errorf("%w: BURST_ACK expects %d bytes, got %d", ErrLengthMismatch, burstACKLen, len(b))
	}
	return &BurstACK{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		BurstID:        binary.BigEndian.Uint16(b[7:]),
		SpeedHint:      b[9],
	}, nil
}

// BurstNACK requests retransmission of the burst frames whose bit is set in
// MissingMask (bit i = frame_index i).
type BurstNACK struct {
	DestinationCRC uint32
	OriginCRC      uint32
	BurstID        uint16
	MissingMask    uint64
}

const burstNACKLen = 1 + 3 + 3 + 2 + 8

func (f *BurstNACK) FrameType() Type { return TypeBurstNACK }

func (f *BurstNACK) Encode() []byte {
	b := make([]byte, burstNACKLen)
	b[0] = byte(TypeBurstNACK)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	binary.BigEndian.PutUint16(b[7:], f.BurstID)
	binary.BigEndian.PutUint64(b[9:], f.MissingMask)
	return b
}

func decodeBurstNACK(b []byte) (*BurstNACK, error) {
	if len(b) != burstNACKLen {
		return nil, fmt.Errorf("%w: BURST_NACK expects %d bytes, got %d", ErrLengthMismatch, burstNACKLen, len(b))
	}
	return &BurstNACK{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		BurstID:        binary.BigEndian.Uint16(b[7:]),
		MissingMask:    binary.BigEndian.Uint64(b[9:]),
	}, nil
}

// FrNACK requests a full-burst retransmit after a checksum failure with a
// complete frame mask.
type FrNACK struct {
	DestinationCRC uint32
	OriginCRC      uint32
	BurstID        uint16
}

const burstRefLen = 1 + 3 + 3 + 2

func (f *FrNACK) FrameType() Type { return TypeFrNACK }

func (f *FrNACK) Encode() []byte {
	return encodeBurstRef(TypeFrNACK, f.DestinationCRC, f.OriginCRC, f.BurstID)
}

// FrRepeat probes the peer after repeated burst timeouts.
type FrRepeat struct {
	DestinationCRC uint32
	OriginCRC      uint32
	BurstID        uint16
}

func (f *FrRepeat) FrameType() Type { return TypeFrRepeat }

func (f *FrRepeat) Encode() []byte {
	return encodeBurstRef(TypeFrRepeat, f.DestinationCRC, f.OriginCRC, f.BurstID)
}

func encodeBurstRef(t Type, dest, origin uint32, burstID uint16) []byte {
	b := make([]byte, burstRefLen)
	b[0] = byte(t)
	put24(b[1:], dest)
	put24(b[4:], origin)
	binary.BigEndian.PutUint16(b[7:], burstID)
	return b
}

func decodeBurstRef(b []byte, t Type) (dest, origin uint32, burstID uint16, err error) {
	if len(b) != burstRefLen {
		return 0, 0, 0, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, t, burstRefLen, len(b))
	}
	return get24(b[1:]), get24(b[4:]), binary.BigEndian.Uint16(b[7:]), nil
}

// CQ is a general call advertising the full origin callsign and grid.
type CQ struct {
	OriginCRC  uint32
	OriginCall Callsign
	Grid       string
}

const cqLen = 1 + 3 + CallsignWireLen + GridLen

func (f *CQ) FrameType() Type { return TypeCQ }

func (f *CQ) Encode() []byte {
	b := make([]byte, cqLen)
	b[0] = byte(TypeCQ)
	put24(b[1:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[4:], call[:])
	putGrid(b[11:], f.Grid)
	return b
}

func decodeCQ(b []byte) (*CQ, error) {
	if len(b) != cqLen {
		return nil, fmt.Errorf("%w: CQ expects %d bytes, got %d", ErrLengthMismatch, cqLen, len(b))
	}
	call, err := callsignFromWire(b[4:11])
	if err != nil {
		return nil, err
	}
	return &CQ{OriginCRC: get24(b[1:]), OriginCall: call, Grid: getGrid(b[11:])}, nil
}

// QRV answers a CQ, reporting readiness and the received SNR.
type QRV struct {
	OriginCRC  uint32
	OriginCall Callsign
	Grid       string
	SNR        int8
}

const qrvLen = cqLen + 1

func (f *QRV) FrameType() Type { return TypeQRV }

func (f *QRV) Encode() []byte {
	b := make([]byte, qrvLen)
	b[0] = byte(TypeQRV)
	put24(b[1:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[4:], call[:])
	putGrid(b[11:], f.Grid)
	b[17] = byte(f.SNR)
	return b
}

func decodeQRV(b []byte) (*QRV, error) {
	if len(b) != qrvLen {
		return nil, fmt.Errorf("%w: QRV expects %d bytes, got %d", ErrLengthMismatch, qrvLen, len(b))
	}
	call, err := callsignFromWire(b[4:11])
	if err != nil {
		return nil, err
	}
	return &QRV{OriginCRC: get24(b[1:]), OriginCall: call, Grid: getGrid(b[11:]), SNR: int8(b[17])}, nil
}

// Ping is a directed liveness probe carrying the full origin callsign.
type Ping struct {
	DestinationCRC uint32
	OriginCRC      uint32
	OriginCall     Callsign
}

const pingLen = 1 + 3 + 3 + CallsignWireLen

func (f *Ping) FrameType() Type { return TypePing }

func (f *Ping) Encode() []byte {
	b := make([]byte, pingLen)
	b[0] = byte(TypePing)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[7:], call[:])
	return b
}

func decodePing(b []byte) (*Ping, error) {
	if len(b) != pingLen {
		return nil, fmt.Errorf("%w: PING expects %d bytes, got %d", ErrLengthMismatch, pingLen, len(b))
	}
	call, err := callsignFromWire(b[7:])
	if err != nil {
		return nil, err
	}
	return &Ping{DestinationCRC: get24(b[1:]), OriginCRC: get24(b[4:]), OriginCall: call}, nil
}

// PingACK answers a Ping and reports the SNR at which it was received.
type PingACK struct {
	DestinationCRC uint32
	OriginCRC      uint32
	SNR            int8
}

const pingACKLen = 1 + 3 + 3 + 1

func (f *PingACK) FrameType() Type { return TypePingACK }

func (f *PingACK) Encode() []byte {
	b := make([]byte, pingACKLen)
	b[0] = byte(TypePingACK)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	b[7] = byte(f.SNR)
	return b
}

func decodePingACK(b []byte) (*PingACK, error) {
	if len(b) != pingACKLen {
		return nil, fmt.Errorf("%w: PING_ACK expects %d bytes, got %d", ErrLengthMismatch, pingACKLen, len(b))
	}
	return &PingACK{DestinationCRC: get24(b[1:]), OriginCRC: get24(b[4:]), SNR: int8(b[7])}, nil
}

// IsWriting signals that the remote operator is composing a message.
type IsWriting struct {
	DestinationCRC uint32
	OriginCRC      uint32
}

const isWritingLen = 1 + 3 + 3

func (f *IsWriting) FrameType() Type { return TypeIsWriting }

func (f *IsWriting) Encode() []byte {
	b := make([]byte, isWritingLen)
	b[0] = byte(TypeIsWriting)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	return b
}

func decodeIsWriting(b []byte) (*IsWriting, error) {
	if len(b) != isWritingLen {
		return nil, fmt.Errorf("%w: IS_WRITING expects %d bytes, got %d", ErrLengthMismatch, isWritingLen, len(b))
	}
	return &IsWriting{DestinationCRC: get24(b[1:]), OriginCRC: get24(b[4:])}, nil
}

// Beacon is the periodic identification frame.
type Beacon struct {
	OriginCRC  uint32
	OriginCall Callsign
	Grid       string
}

const beaconLen = 1 + 3 + CallsignWireLen + GridLen

func (f *Beacon) FrameType() Type { return TypeBeacon }

func (f *Beacon) Encode() []byte {
	b := make([]byte, beaconLen)
	b[0] = byte(TypeBeacon)
	put24(b[1:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[4:], call[:])
	putGrid(b[11:], f.Grid)
	return b
}

func decodeBeacon(b []byte) (*Beacon, error) {
	if len(b) != beaconLen {
		return nil, fmt.Errorf("%w: BEACON expects %d bytes, got %d", ErrLengthMismatch, beaconLen, len(b))
	}
	call, err := callsignFromWire(b[4:11])
	if err != nil {
		return nil, err
	}
	return &Beacon{OriginCRC: get24(b[1:]), OriginCall: call, Grid: getGrid(b[11:])}, nil
}

// Ident is a bare station identification frame.
type Ident struct {
	OriginCRC  uint32
	OriginCall Callsign
}

const identLen = 1 + 3 + CallsignWireLen

func (f *Ident) FrameType() Type { return TypeIdent }

func (f *Ident) Encode() []byte {
	b := make([]byte, identLen)
	b[0] = byte(TypeIdent)
	put24(b[1:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[4:], call[:])
	return b
}

func decodeIdent(b []byte) (*Ident, error) {
	if len(b) != identLen {
		return nil, fmt.Errorf("%w: IDENT expects %d bytes, got %d", ErrLengthMismatch, identLen, len(b))
	}
	call, err := callsignFromWire(b[4:])
	if err != nil {
		return nil, err
	}
	return &Ident{OriginCRC: get24(b[1:]), OriginCall: call}, nil
}

// FECWakeup announces an upcoming FEC broadcast in the given mode.
type FECWakeup struct {
	OriginCRC  uint32
	OriginCall Callsign
	Mode       uint8
}

const fecWakeupLen = identLen + 1

func (f *FECWakeup) FrameType() Type { return TypeFECWakeup }

func (f *FECWakeup) Encode() []byte {
	b := make([]byte, fecWakeupLen)
	b[0] = byte(TypeFECWakeup)
	put24(b[1:], f.OriginCRC)
	call := f.OriginCall.Canonical()
	copy(b[4:], call[:])
	b[11] = f.Mode
	return b
}

func decodeFECWakeup(b []byte) (*FECWakeup, error) {
	if len(b) != fecWakeupLen {
		return nil, fmt.Errorf("%w: FEC_WAKEUP expects %d bytes, got %d", ErrLengthMismatch, fecWakeupLen, len(b))
	}
	call, err := callsignFromWire(b[4:11])
	if err != nil {
		return nil, err
	}
	return &FECWakeup{OriginCRC: get24(b[1:]), OriginCall: call, Mode: b[11]}, nil
}

// FEC is an unaddressed broadcast payload. The payload is opaque to the
// framing layer; integrity is the DSP codec's responsibility.
type FEC struct {
	Payload []byte
}

func (f *FEC) FrameType() Type { return TypeFEC }

func (f *FEC) Encode() []byte {
	b := make([]byte, 1+len(f.Payload))
	b[0] = byte(TypeFEC)
	copy(b[1:], f.Payload)
	return b
}

// TestFrame carries an arbitrary pattern for audio-level tuning.
type TestFrame struct {
	Payload []byte
}

func (f *TestFrame) FrameType() Type { return TypeTest }

func (f *TestFrame) Encode() []byte {
	b := make([]byte, 1+len(f.Payload))
	b[0] = byte(TypeTest)
	copy(b[1:], f.Payload)
	return b
}

// MeshBroadcast floods route information. Router is the CRC of the next hop
// the sender used to reach the destination, or the sender itself for a
// directly heard route.
type MeshBroadcast struct {
	DestinationCRC uint32
	OriginCRC      uint32
	RouterCRC      uint32
	Hops           uint8
	SNR            int8
}

const meshBroadcastLen = 1 + 3 + 3 + 3 + 1 + 1

func (f *MeshBroadcast) FrameType() Type { return TypeMeshBroadcast }

func (f *MeshBroadcast) Encode() []byte {
	b := make([]byte, meshBroadcastLen)
	b[0] = byte(TypeMeshBroadcast)
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	put24(b[7:], f.RouterCRC)
	b[10] = f.Hops
	b[11] = byte(f.SNR)
	return b
}

func decodeMeshBroadcast(b []byte) (*MeshBroadcast, error) {
	if len(b) != meshBroadcastLen {
		return nil, fmt.Errorf("%w: MESH_BROADCAST expects %d bytes, got %d", ErrLengthMismatch, meshBroadcastLen, len(b))
	}
	return &MeshBroadcast{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		RouterCRC:      get24(b[7:]),
		Hops:           b[10],
		SNR:            int8(b[11]),
	}, nil
}

// MeshPing probes a mesh destination, accumulating hop count on the way.
type MeshPing struct {
	DestinationCRC uint32
	OriginCRC      uint32
	Hops           uint8
	SNR            int8
	ACK            bool
}

const meshPingLen = 1 + 3 + 3 + 1 + 1

func (f *MeshPing) FrameType() Type {
	if f.ACK {
		return TypeMeshPingACK
	}
	return TypeMeshPing
}

func (f *MeshPing) Encode() []byte {
	b := make([]byte, meshPingLen)
	b[0] = byte(f.FrameType())
	put24(b[1:], f.DestinationCRC)
	put24(b[4:], f.OriginCRC)
	b[7] = f.Hops
	b[8] = byte(f.SNR)
	return b
}

func decodeMeshPing(b []byte, t Type) (*MeshPing, error) {
	if len(b) != meshPingLen {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, t, meshPingLen, len(b))
	}
	return &MeshPing{
		DestinationCRC: get24(b[1:]),
		OriginCRC:      get24(b[4:]),
		Hops:           b[7],
		SNR:            int8(b[8]),
		ACK:            t == TypeMeshPingACK,
	}, nil
}

// Decode parses one wire frame. The returned error is ErrShortBuffer,
// ErrUnknownType or ErrLengthMismatch (possibly wrapped with detail).
func Decode(b []byte) (Frame, error) {
	if len(b) < 1 {
		return nil, ErrShortBuffer
	}
	t := Type(b[0])
	if t.IsBurst() {
		return decodeBurstFrame(b, t)
	}
	switch t {
	case TypeARQSessionOpen:
		return decodeSessionOpen(b)
	case TypeARQSessionHB:
		return decodeSessionHeartbeat(b)
	case TypeARQSessionClose:
		dest, origin, session, err := decodeSessionAddr(b, t)
		if err != nil {
			return nil, err
		}
		return &SessionClose{DestinationCRC: dest, OriginCRC: origin, SessionID: session}, nil
	case TypeARQStop:
		dest, origin, session, err := decodeSessionAddr(b, t)
		if err != nil {
			return nil, err
		}
		return &SessionStop{DestinationCRC: dest, OriginCRC: origin, SessionID: session}, nil
	case TypeFrACK:
		dest, origin, session, err := decodeSessionAddr(b, t)
		if err != nil {
			return nil, err
		}
		return &FrACK{DestinationCRC: dest, OriginCRC: origin, SessionID: session}, nil
	case TypeARQDCOpenW, TypeARQDCOpenACKW, TypeARQDCOpenN, TypeARQDCOpenACKN:
		return decodeDCOpen(b, t)
	case TypeBurstACK:
		return decodeBurstACK(b)
	case TypeBurstNACK:
		return decodeBurstNACK(b)
	case TypeFrNACK:
		dest, origin, burstID, err := decodeBurstRef(b, t)
		if err != nil {
			return nil, err
		}
		return &FrNACK{DestinationCRC: dest, OriginCRC: origin, BurstID: burstID}, nil
	case TypeFrRepeat:
		dest, origin, burstID, err := decodeBurstRef(b, t)
		if err != nil {
			return nil, err
		}
		return &FrRepeat{DestinationCRC: dest, OriginCRC: origin, BurstID: burstID}, nil
	case TypeCQ:
		return decodeCQ(b)
	case TypeQRV:
		return decodeQRV(b)
	case TypePing:
		return decodePing(b)
	case TypePingACK:
		return decodePingACK(b)
	case TypeIsWriting:
		return decodeIsWriting(b)
	case TypeBeacon:
		return decodeBeacon(b)
	case TypeIdent:
		return decodeIdent(b)
	case TypeFECWakeup:
		return decodeFECWakeup(b)
	case TypeFEC:
		return &FEC{Payload: append([]byte(nil), b[1:]...)}, nil
	case TypeTest:
		return &TestFrame{Payload: append([]byte(nil), b[1:]...)}, nil
	case TypeMeshBroadcast:
		return decodeMeshBroadcast(b)
	case TypeMeshPing, TypeMeshPingACK:
		return decodeMeshPing(b, t)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownType, uint8(t))
	}
}
