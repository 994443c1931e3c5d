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

// Package beacon handles the periodic identification beacon and the
// stateless exchanges: CQ/QRV, PING/PING_ACK, FEC broadcasts and IDENT.
package beacon

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// ErrBeaconNotRunning indicates a stop with no beacon scheduled.
var ErrBeaconNotRunning = errors.New("beacon not running")

// Transferring lets the beacon observe session activity without importing
// the session engine.
type Transferring interface {
	Transferring() bool
}

// Beacon transmits periodic identification and answers stateless calls.
type Beacon struct {
	state    *modem.State
	sched    *modem.Scheduler
	events   *event.Manager
	sessions Transferring
	sigMode  codec.Mode

	scheduler gocron.Scheduler

	mu     sync.Mutex
	job    gocron.Job
	paused bool
}

// New creates the beacon component on a shared gocron scheduler.
func New(state *modem.State, sched *modem.Scheduler, events *event.Manager, sessions Transferring, sigMode codec.Mode, scheduler gocron.Scheduler) *Beacon {
	return &Beacon{
		state:     state,
		sched:     sched,
		events:    events,
		sessions:  sessions,
		sigMode:   sigMode,
		scheduler: scheduler,
	}
}

// Start schedules the beacon at the given interval, replacing any running
// schedule.
func (b *Beacon) Start(interval time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.job != nil {
		if err := b.scheduler.RemoveJob(b.job.ID()); err != nil {
			slog.Error("Could not remove beacon job", "error", err)
		}
		b.job = nil
	}

	job, err := b.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(b.tick),
	)
	if err != nil {
		return err
	}
	b.job = job
	b.state.SetBeaconActive(true)
	slog.Info("Beacon started", "interval", interval)
	return nil
}

// Stop removes the beacon schedule.
func (b *Beacon) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.job == nil {
		return ErrBeaconNotRunning
	}
	err := b.scheduler.RemoveJob(b.job.ID())
	b.job = nil
	b.state.SetBeaconActive(false)
	slog.Info("Beacon stopped")
	return err
}

// Pause suspends beacon transmissions without touching the schedule.
func (b *Beacon) Pause(paused bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = paused
}

func (b *Beacon) tick() {
	b.mu.Lock()
	paused := b.paused
	b.mu.Unlock()
	// The beacon stays quiet while a session handshake or transfer is on
	// the air.
	if paused || (b.sessions != nil && b.sessions.Transferring()) {
		return
	}
	b.transmitBeacon()
}

func (b *Beacon) transmitBeacon() {
	call := b.state.MyCall()
	b.sched.EnqueueFrame(b.sigMode, &frame.Beacon{
		OriginCRC:  call.Checksum(),
		OriginCall: call,
		Grid:       b.state.MyGrid(),
	}, false)
}

// SendCQ transmits one general call.
func (b *Beacon) SendCQ() {
	call := b.state.MyCall()
	b.sched.EnqueueFrame(b.sigMode, &frame.CQ{
		OriginCRC:  call.Checksum(),
		OriginCall: call,
		Grid:       b.state.MyGrid(),
	}, false)
}

// SendPing transmits a directed ping.
func (b *Beacon) SendPing(remote frame.Callsign, local frame.Callsign) {
	b.sched.EnqueueFrame(b.sigMode, &frame.Ping{
		DestinationCRC: remote.Checksum(),
		OriginCRC:      local.Checksum(),
		OriginCall:     local,
	}, false)
}

// SendIsWriting signals composing activity to the remote operator.
func (b *Beacon) SendIsWriting(remote frame.Callsign) {
	call := b.state.MyCall()
	b.sched.EnqueueFrame(b.sigMode, &frame.IsWriting{
		DestinationCRC: remote.Checksum(),
		OriginCRC:      call.Checksum(),
	}, false)
}

// SendFEC transmits an unaddressed broadcast payload, optionally preceded by
// a wakeup frame.
func (b *Beacon) SendFEC(payload []byte, mode codec.Mode, wakeup bool) {
	call := b.state.MyCall()
	if wakeup {
		b.sched.EnqueueFrame(b.sigMode, &frame.FECWakeup{
			OriginCRC:  call.Checksum(),
			OriginCall: call,
			Mode:       uint8(mode),
		}, false)
	}
	b.sched.EnqueueFrame(mode, &frame.FEC{Payload: payload}, false)
}

// SendTestFrame transmits the audio-tuning test pattern.
func (b *Beacon) SendTestFrame() {
	pattern := make([]byte, 64)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	b.sched.EnqueueFrame(b.sigMode, &frame.TestFrame{Payload: pattern}, false)
}

// HandleFrame is the dispatcher's stateless sink.
func (b *Beacon) HandleFrame(f frame.Frame, meta codec.Decoded) {
	switch fr := f.(type) {
	case *frame.CQ:
		b.events.PublishType("cq_received", map[string]any{
			"dxcallsign": fr.OriginCall.String(),
			"dxgrid":     fr.Grid,
			"snr":        meta.SNR,
		})
		if b.state.RespondToCQ() {
			call := b.state.MyCall()
			b.sched.EnqueueFrame(b.sigMode, &frame.QRV{
				OriginCRC:  call.Checksum(),
				OriginCall: call,
				Grid:       b.state.MyGrid(),
				SNR:        int8(clampSNR(meta.SNR)),
			}, false)
		}
	case *frame.QRV:
		b.state.SetDXGrid(fr.Grid)
		b.events.PublishType("qrv_received", map[string]any{
			"dxcallsign": fr.OriginCall.String(),
			"dxgrid":     fr.Grid,
			"snr":        meta.SNR,
		})
	case *frame.Ping:
		if !b.state.AddressedToMe(fr.DestinationCRC) {
			return
		}
		b.events.PublishType("ping_received", map[string]any{
			"dxcallsign": fr.OriginCall.String(),
			"snr":        meta.SNR,
		})
		if b.state.RespondToCall() {
			call := b.state.MyCall()
			b.sched.EnqueueFrame(b.sigMode, &frame.PingACK{
				DestinationCRC: fr.OriginCRC,
				OriginCRC:      call.Checksum(),
				SNR:            int8(clampSNR(meta.SNR)),
			}, true)
		}
	case *frame.PingACK:
		if !b.state.AddressedToMe(fr.DestinationCRC) {
			return
		}
		b.events.PublishType("ping_ack_received", map[string]any{
			"snr":       int(fr.SNR),
			"local_snr": meta.SNR,
		})
	case *frame.Beacon:
		b.state.SetDXGrid(fr.Grid)
	case *frame.IsWriting:
		if b.state.AddressedToMe(fr.DestinationCRC) {
			b.events.PublishType("is_writing_received", nil)
		}
	case *frame.FECWakeup:
		b.events.PublishType("fec_wakeup_received", map[string]any{
			"dxcallsign": fr.OriginCall.String(),
			"mode":       codec.Mode(fr.Mode).String(),
		})
	case *frame.FEC:
		b.events.PublishType("fec_received", map[string]any{
			"data": fr.Payload,
		})
	case *frame.Ident, *frame.TestFrame:
		// Displayed through the heard list; nothing to answer.
	}
}

func clampSNR(snr int) int {
	if snr > 127 {
		return 127
	}
	if snr < -128 {
		return -128
	}
	return snr
}
