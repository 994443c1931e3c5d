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

package mesh_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/mesh"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/kronenpj/FreeDATA-experiments/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meshHarness runs one mesh component over a loopback whose far end is
// scripted by the test.
type meshHarness struct {
	mesh *mesh.Mesh
	link *codec.Loopback
}

func newMeshHarness(t *testing.T) *meshHarness {
	t.Helper()
	cfg := &config.Config{
		Station: config.Station{MyCall: "AA0AA", MyGrid: "JN12AA"},
		Audio:   config.Audio{TxLevel: 100},
	}
	events := event.NewManager()
	state, err := modem.NewState(cfg, events)
	require.NoError(t, err)
	busy := modem.NewChannelBusyWithDelay(events, 10*time.Millisecond)

	link := codec.NewLoopback()
	t.Cleanup(link.Close)

	sched := modem.NewScheduler(link.A, link.A, &radio.Null{}, state, busy, nil)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	m := mesh.New(state, sched, events, codec.ModeSig0)
	m.SetRetrySchedule([]time.Duration{200 * time.Millisecond, 300 * time.Millisecond})

	dispatcher := modem.NewDispatcher(link.A, link.A, state, busy, frame.NewNames(), heard.NewList(), nil)
	dispatcher.SetMeshSink(m)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx)
	go dispatcher.Run(ctx)

	return &meshHarness{mesh: m, link: link}
}

// inject delivers a frame to the station as if heard off the air.
func (h *meshHarness) inject(t *testing.T, f frame.Frame) {
	t.Helper()
	samples, err := h.link.B.Modulate(codec.ModeSig0, f.Encode())
	require.NoError(t, err)
	require.NoError(t, h.link.B.Play(samples))
}

func crcOf(t *testing.T, callsign string) uint32 {
	t.Helper()
	call, err := frame.ParseCallsign(callsign)
	require.NoError(t, err)
	return call.Checksum()
}

func TestBroadcastBuildsRoutingTable(t *testing.T) {
	t.Parallel()
	h := newMeshHarness(t)

	origin := crcOf(t, "DL1ABC-0")
	router := crcOf(t, "DL2DEF-0")
	h.inject(t, &frame.MeshBroadcast{
		DestinationCRC: origin,
		OriginCRC:      origin,
		RouterCRC:      router,
		Hops:           1,
		SNR:            5,
	})

	require.Eventually(t, func() bool {
		return len(h.mesh.Routes()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	routes := h.mesh.Routes()
	assert.Equal(t, fmt.Sprintf("%06x", origin), routes[0].Destination)
	assert.Equal(t, fmt.Sprintf("%06x", router), routes[0].NextHop)
	assert.Equal(t, 2, routes[0].Hops)
}

func TestDirectRouteMarked(t *testing.T) {
	t.Parallel()
	h := newMeshHarness(t)

	origin := crcOf(t, "DL1ABC-0")
	h.inject(t, &frame.MeshPing{
		DestinationCRC: crcOf(t, "AA0AA-0"),
		OriginCRC:      origin,
		Hops:           0,
		SNR:            9,
	})

	require.Eventually(t, func() bool {
		routes := h.mesh.Routes()
		return len(routes) == 1 && routes[0].NextHop == "direct"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPingAnsweredWhenAddressed(t *testing.T) {
	t.Parallel()
	h := newMeshHarness(t)

	// Capture what the station transmits.
	got := make(chan frame.Frame, 8)
	go func() {
		for {
			samples, err := h.link.B.Read()
			if err != nil {
				return
			}
			decoded, _, err := h.link.B.Demodulate(samples)
			if err != nil {
				continue
			}
			for _, dec := range decoded {
				if f, err := frame.Decode(dec.Data); err == nil {
					got <- f
				}
			}
		}
	}()

	origin := crcOf(t, "DL1ABC-0")
	h.inject(t, &frame.MeshPing{
		DestinationCRC: crcOf(t, "AA0AA-0"),
		OriginCRC:      origin,
	})

	select {
	case f := <-got:
		ack, ok := f.(*frame.MeshPing)
		require.True(t, ok, "expected MESH ping ack, got %s", f.FrameType())
		assert.True(t, ack.ACK)
		assert.Equal(t, origin, ack.DestinationCRC)
	case <-time.After(5 * time.Second):
		t.Fatal("no ping ack transmitted")
	}
}

func TestPingRetriesAndFails(t *testing.T) {
	t.Parallel()
	h := newMeshHarness(t)

	start := time.Now()
	ok := h.mesh.Ping(context.Background(), crcOf(t, "NO0NE-0"))
	assert.False(t, ok)
	// Both backoff steps must have elapsed.
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}
