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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/metrics"
)

// FrameSink consumes classified frames together with their reception
// details.
type FrameSink interface {
	HandleFrame(f frame.Frame, meta codec.Decoded)
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(f frame.Frame, meta codec.Decoded)

// HandleFrame calls the function.
func (fn FrameSinkFunc) HandleFrame(f frame.Frame, meta codec.Decoded) { fn(f, meta) }

// Dispatcher reads decoded frames from the codec and routes them to the
// session engine, the stateless handlers or the mesh component. Frames of a
// single session are delivered in wire-arrival order.
type Dispatcher struct {
	codec   codec.Codec
	audio   AudioIO
	state   *State
	busy    *ChannelBusy
	names   *frame.Names
	heard   *heard.List
	metrics *metrics.Metrics

	session   FrameSink
	stateless FrameSink
	mesh      FrameSink
}

// NewDispatcher creates a receive dispatcher. Sinks may be nil, in which
// case the matching traffic is dropped.
func NewDispatcher(c codec.Codec, audio AudioIO, state *State, busy *ChannelBusy, names *frame.Names, heardList *heard.List, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		codec:   c,
		audio:   audio,
		state:   state,
		busy:    busy,
		names:   names,
		heard:   heardList,
		metrics: m,
	}
}

// SetSessionSink routes ARQ session and burst frames.
func (d *Dispatcher) SetSessionSink(sink FrameSink) { d.session = sink }

// SetStatelessSink routes CQ/QRV/PING/BEACON/FEC/IDENT traffic.
func (d *Dispatcher) SetStatelessSink(sink FrameSink) { d.stateless = sink }

// SetMeshSink routes MESH_* traffic.
func (d *Dispatcher) SetMeshSink(sink FrameSink) { d.mesh = sink }

// Run is the RX demodulation loop. It returns when ctx is cancelled or the
// audio source closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		samples, err := d.audio.Read()
		if err != nil {
			if !errors.Is(err, codec.ErrChannelClosed) {
				slog.Error("Audio read failed", "error", err)
			}
			return
		}
		decoded, syncPresent, err := d.codec.Demodulate(samples)
		if err != nil {
			slog.Error("Demodulation failed", "error", err)
			continue
		}
		if syncPresent {
			d.busy.OnSync()
		}
		for _, dec := range decoded {
			d.Dispatch(dec)
		}
	}
}

// Dispatch classifies and routes one decoded frame.
func (d *Dispatcher) Dispatch(dec codec.Decoded) {
	if dec.Sync != codec.SyncOK {
		d.metrics.RecordFrameRejected(string(dec.Sync))
		return
	}

	f, err := frame.Decode(dec.Data)
	if err != nil {
		slog.Debug("Undecodable frame", "error", err, "len", len(dec.Data))
		d.metrics.RecordFrameRejected("decode")
		return
	}

	d.metrics.RecordFrameDecoded(f.FrameType().String())
	d.state.SetSNR(dec.SNR)
	d.names.ObserveFrame(f)
	d.recordHeard(f, dec)

	switch f.FrameType() {
	case frame.TypeARQSessionOpen, frame.TypeARQSessionHB, frame.TypeARQSessionClose,
		frame.TypeARQStop, frame.TypeARQDCOpenW, frame.TypeARQDCOpenACKW,
		frame.TypeARQDCOpenN, frame.TypeARQDCOpenACKN,
		frame.TypeBurstACK, frame.TypeBurstNACK, frame.TypeFrACK,
		frame.TypeFrNACK, frame.TypeFrRepeat:
		d.deliver(d.session, f, dec)
	case frame.TypeMeshBroadcast, frame.TypeMeshPing, frame.TypeMeshPingACK:
		d.deliver(d.mesh, f, dec)
	default:
		if f.FrameType().IsBurst() {
			d.deliver(d.session, f, dec)
			return
		}
		d.deliver(d.stateless, f, dec)
	}
}

func (d *Dispatcher) deliver(sink FrameSink, f frame.Frame, dec codec.Decoded) {
	if sink == nil {
		d.metrics.RecordFrameRejected("unrouted")
		return
	}
	sink.HandleFrame(f, dec)
}

// recordHeard updates the heard-stations table for any frame whose origin is
// identifiable.
func (d *Dispatcher) recordHeard(f frame.Frame, dec codec.Decoded) {
	var originCRC uint32
	var grid string

	switch fr := f.(type) {
	case *frame.SessionOpen:
		originCRC = fr.OriginCRC
	case *frame.SessionHeartbeat:
		originCRC = fr.OriginCRC
	case *frame.CQ:
		originCRC = fr.OriginCRC
		grid = fr.Grid
	case *frame.QRV:
		originCRC = fr.OriginCRC
		grid = fr.Grid
	case *frame.Ping:
		originCRC = fr.OriginCRC
	case *frame.PingACK:
		originCRC = fr.OriginCRC
	case *frame.Beacon:
		originCRC = fr.OriginCRC
		grid = fr.Grid
	case *frame.Ident:
		originCRC = fr.OriginCRC
	case *frame.FECWakeup:
		originCRC = fr.OriginCRC
	case *frame.BurstFrame:
		originCRC = fr.OriginCRC
	default:
		return
	}

	call, ok := d.names.Lookup(originCRC)
	callsign := fmt.Sprintf("<%06x>", originCRC)
	if ok {
		callsign = call.String()
	}
	d.heard.Add(heard.Entry{
		Callsign:  callsign,
		Grid:      grid,
		Timestamp: time.Now(),
		FrameType: f.FrameType().String(),
		SNR:       dec.SNR,
		Offset:    dec.Offset,
		Frequency: d.state.Frequency(),
	})
}
