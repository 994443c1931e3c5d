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

// Package mesh maintains the hop-scored routing table and drives the
// signalling ping exchange with retry backoff.
package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// Route scoring weights. Freshness decays linearly over routeMaxAge.
const (
	weightSNR       = 0.4
	weightHops      = 0.4
	weightFreshness = 0.2
	routeMaxAge     = 10 * time.Minute
)

// maxHops bounds re-flooded broadcasts.
const maxHops = 5

// pingRetrySchedule is the exponential backoff between signalling ping
// attempts.
var pingRetrySchedule = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// RouteEntry is one scored route.
type RouteEntry struct {
	Destination string    `json:"dxcall"`
	NextHop     string    `json:"router"`
	Hops        int       `json:"hops"`
	SNR         int       `json:"snr"`
	Score       float64   `json:"score"`
	UpdatedAt   time.Time `json:"timestamp"`
}

// Mesh is the optional multi-hop signalling component.
type Mesh struct {
	state   *modem.State
	sched   *modem.Scheduler
	events  *event.Manager
	sigMode codec.Mode
	retries []time.Duration

	mu     sync.RWMutex
	routes map[uint32]RouteEntry

	ackMu      sync.Mutex
	ackWaiters map[uint32]chan struct{}
}

// New creates the mesh component.
func New(state *modem.State, sched *modem.Scheduler, events *event.Manager, sigMode codec.Mode) *Mesh {
	return &Mesh{
		state:      state,
		sched:      sched,
		events:     events,
		sigMode:    sigMode,
		retries:    pingRetrySchedule,
		routes:     make(map[uint32]RouteEntry),
		ackWaiters: make(map[uint32]chan struct{}),
	}
}

// SetRetrySchedule overrides the backoff, used by tests.
func (m *Mesh) SetRetrySchedule(schedule []time.Duration) {
	m.retries = schedule
}

// score rates a route; higher is better.
func score(snr, hops int, age time.Duration) float64 {
	freshness := 1 - float64(age)/float64(routeMaxAge)
	if freshness < 0 {
		freshness = 0
	}
	if hops < 1 {
		hops = 1
	}
	return weightSNR*float64(snr) + weightHops*(1/float64(hops)) + weightFreshness*freshness
}

// update records a route observation, keeping the better-scored entry.
func (m *Mesh) update(destCRC, routerCRC uint32, hops, snr int) {
	dest := fmt.Sprintf("%06x", destCRC)
	next := fmt.Sprintf("%06x", routerCRC)
	if destCRC == routerCRC {
		next = "direct"
	}
	entry := RouteEntry{
		Destination: dest,
		NextHop:     next,
		Hops:        hops,
		SNR:         snr,
		Score:       score(snr, hops, 0),
		UpdatedAt:   time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A fresh observation replaces the stored route unless the stored one
	// still scores higher after age decay.
	if existing, ok := m.routes[destCRC]; ok {
		if score(existing.SNR, existing.Hops, time.Since(existing.UpdatedAt)) > entry.Score {
			return
		}
	}
	m.routes[destCRC] = entry
}

// Routes returns the table sorted by descending score.
func (m *Mesh) Routes() []RouteEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RouteEntry, 0, len(m.routes))
	for _, entry := range m.routes {
		entry.Score = score(entry.SNR, entry.Hops, time.Since(entry.UpdatedAt))
		out = append(out, entry)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// HandleFrame is the dispatcher's mesh sink.
func (m *Mesh) HandleFrame(f frame.Frame, meta codec.Decoded) {
	switch fr := f.(type) {
	case *frame.MeshBroadcast:
		m.handleBroadcast(fr, meta)
	case *frame.MeshPing:
		if fr.ACK {
			m.handlePingACK(fr, meta)
		} else {
			m.handlePing(fr, meta)
		}
	}
}

func (m *Mesh) handleBroadcast(fr *frame.MeshBroadcast, meta codec.Decoded) {
	// The origin is reachable through whoever relayed this broadcast.
	m.update(fr.OriginCRC, fr.RouterCRC, int(fr.Hops)+1, meta.SNR)

	if int(fr.Hops)+1 >= maxHops {
		return
	}
	// Re-flood with this station as the router.
	myCRC := m.state.MyCall().Checksum()
	if fr.OriginCRC == myCRC {
		return
	}
	m.sched.EnqueueFrame(m.sigMode, &frame.MeshBroadcast{
		DestinationCRC: fr.DestinationCRC,
		OriginCRC:      fr.OriginCRC,
		RouterCRC:      myCRC,
		Hops:           fr.Hops + 1,
		SNR:            int8(clamp8(meta.SNR)),
	}, false)
}

func (m *Mesh) handlePing(fr *frame.MeshPing, meta codec.Decoded) {
	m.update(fr.OriginCRC, fr.OriginCRC, int(fr.Hops)+1, meta.SNR)
	if !m.state.AddressedToMe(fr.DestinationCRC) {
		// Relay pings for stations we have a route to, up to the hop cap.
		if int(fr.Hops)+1 >= maxHops {
			return
		}
		m.mu.RLock()
		_, known := m.routes[fr.DestinationCRC]
		m.mu.RUnlock()
		if !known {
			return
		}
		m.sched.EnqueueFrame(m.sigMode, &frame.MeshPing{
			DestinationCRC: fr.DestinationCRC,
			OriginCRC:      fr.OriginCRC,
			Hops:           fr.Hops + 1,
			SNR:            int8(clamp8(meta.SNR)),
		}, false)
		return
	}
	m.sched.EnqueueFrame(m.sigMode, &frame.MeshPing{
		DestinationCRC: fr.OriginCRC,
		OriginCRC:      m.state.MyCall().Checksum(),
		Hops:           0,
		SNR:            int8(clamp8(meta.SNR)),
		ACK:            true,
	}, true)
}

func (m *Mesh) handlePingACK(fr *frame.MeshPing, meta codec.Decoded) {
	m.update(fr.OriginCRC, fr.OriginCRC, int(fr.Hops)+1, meta.SNR)
	if !m.state.AddressedToMe(fr.DestinationCRC) {
		return
	}
	m.events.PublishType("mesh_ping_ack_received", map[string]any{
		"origin": fmt.Sprintf("%06x", fr.OriginCRC),
		"snr":    meta.SNR,
	})

	m.ackMu.Lock()
	waiter, ok := m.ackWaiters[fr.OriginCRC]
	m.ackMu.Unlock()
	if ok {
		select {
		case waiter <- struct{}{}:
		default:
		}
	}
}

// Ping probes a destination with the retry backoff, returning true when an
// ACK arrives.
func (m *Mesh) Ping(ctx context.Context, destCRC uint32) bool {
	waiter := make(chan struct{}, 1)
	m.ackMu.Lock()
	m.ackWaiters[destCRC] = waiter
	m.ackMu.Unlock()
	defer func() {
		m.ackMu.Lock()
		delete(m.ackWaiters, destCRC)
		m.ackMu.Unlock()
	}()

	for attempt, wait := range m.retries {
		m.sched.EnqueueFrame(m.sigMode, &frame.MeshPing{
			DestinationCRC: destCRC,
			OriginCRC:      m.state.MyCall().Checksum(),
			Hops:           0,
			SNR:            0,
		}, false)

		select {
		case <-ctx.Done():
			return false
		case <-waiter:
			return true
		case <-time.After(wait):
			slog.Debug("Mesh ping attempt timed out", "attempt", attempt+1, "dest", fmt.Sprintf("%06x", destCRC))
		}
	}
	return false
}

// Broadcast floods this station's own presence.
func (m *Mesh) Broadcast() {
	myCRC := m.state.MyCall().Checksum()
	m.sched.EnqueueFrame(m.sigMode, &frame.MeshBroadcast{
		DestinationCRC: myCRC,
		OriginCRC:      myCRC,
		RouterCRC:      myCRC,
		Hops:           0,
		SNR:            0,
	}, false)
}

func clamp8(v int) int {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return v
}
