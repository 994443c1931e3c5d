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

package control_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kronenpj/FreeDATA-experiments/internal/arq"
	"github.com/kronenpj/FreeDATA-experiments/internal/beacon"
	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/control"
	"github.com/kronenpj/FreeDATA-experiments/internal/db"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/kronenpj/FreeDATA-experiments/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlHarness struct {
	server *control.Server
	state  *modem.State
	store  *messages.Store
	rxbuf  *modem.RXBuffer
	conn   net.Conn
	lines  *bufio.Scanner
}

func newControlHarness(t *testing.T) *controlHarness {
	t.Helper()
	cfg := &config.Config{
		LogLevel: config.LogLevelInfo,
		Station:  config.Station{MyCall: "AA0AA", MyGrid: "JN12AA", SSIDList: []int{0}},
		Audio:    config.Audio{TxLevel: 100},
		Network:  config.Network{Bind: "127.0.0.1", SocketPort: 0},
		Modem: config.Modem{
			Listen:          true,
			RespondToCall:   true,
			RespondToCQ:     true,
			TuningRangeFMin: -50,
			TuningRangeFMax: 50,
			BeaconInterval:  300,
			MaxSpeedLevel:   4,
		},
		Database: config.Database{File: ":memory:"},
	}

	events := event.NewManager()
	state, err := modem.NewState(cfg, events)
	require.NoError(t, err)
	busy := modem.NewChannelBusyWithDelay(events, 20*time.Millisecond)
	names := frame.NewNames()
	rxbuf := modem.NewRXBuffer()
	heardList := heard.NewList()

	database, err := db.MakeDB(nil)
	require.NoError(t, err)
	store := messages.NewStore(database, events)

	link := codec.NewLoopback()
	t.Cleanup(link.Close)

	sched := modem.NewScheduler(link.A, link.A, &radio.Null{}, state, busy, nil)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	engine, err := arq.NewEngine(cfg, arq.DefaultTiming(), sched, state, store, rxbuf, names, events, nil)
	require.NoError(t, err)

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	scheduler.Start()
	t.Cleanup(func() { _ = scheduler.Shutdown() })
	b := beacon.New(state, sched, events, engine, codec.ModeSig0, scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	engine.Start(ctx)
	go sched.Run(ctx)

	server := control.NewServer(cfg, control.Deps{
		State:  state,
		Sched:  sched,
		Busy:   busy,
		Engine: engine,
		Store:  store,
		RXBuf:  rxbuf,
		Heard:  heardList,
		Beacon: b,
		Radio:  &radio.Null{},
	}, events)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(server.Stop)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &controlHarness{
		server: server,
		state:  state,
		store:  store,
		rxbuf:  rxbuf,
		conn:   conn,
		lines:  scanner,
	}
}

func (h *controlHarness) send(t *testing.T, command string) {
	t.Helper()
	_, err := h.conn.Write(append([]byte(command), '\n'))
	require.NoError(t, err)
}

// await reads broadcast lines until one contains the given key, returning
// the decoded object.
func (h *controlHarness) await(t *testing.T, key string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	require.NoError(t, h.conn.SetReadDeadline(deadline))
	for h.lines.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(h.lines.Bytes(), &obj); err != nil {
			continue
		}
		if _, ok := obj[key]; !ok {
			continue
		}
		if match != nil && !match(obj) {
			continue
		}
		return obj
	}
	t.Fatalf("no %q line received: %v", key, h.lines.Err())
	return nil
}

func (h *controlHarness) awaitResponse(t *testing.T, command string) string {
	t.Helper()
	obj := h.await(t, "command_response", func(m map[string]any) bool {
		return m["command_response"] == command
	})
	status, _ := obj["status"].(string)
	return status
}

func TestModemStateBroadcast(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	obj := h.await(t, "command", func(m map[string]any) bool {
		return m["command"] == "modem_state"
	})
	assert.Equal(t, "AA0AA-0", obj["mycallsign"])
	assert.Equal(t, "JN12AA", obj["mygrid"])
	assert.Equal(t, "IDLE", obj["modem_state"])
	assert.Equal(t, true, obj["listen"])
}

func TestSetListenCommand(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"set","command":"listen","parameter":false}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "listen"))
	assert.False(t, h.state.Listen())

	h.send(t, `{"type":"set","command":"listen","parameter":true}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "listen"))
	assert.True(t, h.state.Listen())
}

func TestUnknownCommandRejected(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"set","command":"warp_drive","parameter":9}`)
	assert.Equal(t, "Failed", h.awaitResponse(t, "warp_drive"))
}

func TestUnknownFieldsIgnored(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"set","command":"tx_audio_level","parameter":42,"flux_capacitor":true}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "tx_audio_level"))
	assert.Equal(t, 42, h.state.TxAudioLevel())
}

func TestTxAudioLevelOutOfRange(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"set","command":"tx_audio_level","parameter":250}`)
	assert.Equal(t, "Failed", h.awaitResponse(t, "tx_audio_level"))
}

func TestCQCommand(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"broadcast","command":"cqcqcq"}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "cqcqcq"))
}

func TestRXBufferCommands(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.rxbuf.Push(modem.RXEntry{DXCall: "DJ2LS-0", Payload: []byte("hello"), Timestamp: time.Now()})

	h.send(t, `{"type":"get","command":"rx_buffer"}`)
	obj := h.await(t, "data-array", nil)
	arr, ok := obj["data-array"].([]any)
	require.True(t, ok)
	require.Len(t, arr, 1)
	entry := arr[0].(map[string]any)
	assert.Equal(t, "DJ2LS-0", entry["dxcallsign"])
	assert.Equal(t, "aGVsbG8=", entry["data"])

	h.send(t, `{"type":"set","command":"del_rx_buffer"}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "del_rx_buffer"))
	assert.Equal(t, 0, h.rxbuf.Len())
}

func TestMessageCommands(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"message","command":"send","parameter":{"destination":"DJ2LS-0","body":"hello hf"}}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "send"))

	queued, err := h.store.FirstQueued()
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, "hello hf", queued.Body)
	assert.Equal(t, "DJ2LS-0", queued.DestinationCallsign)

	h.send(t, `{"type":"message","command":"list"}`)
	obj := h.await(t, "total_messages", nil)
	assert.Equal(t, float64(1), obj["total_messages"])
}

func TestARQConnectBadCallsign(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"arq","command":"connect","dxcallsign":"X"}`)
	assert.Equal(t, "Failed", h.awaitResponse(t, "connect"))
}

func TestStopTransmission(t *testing.T) {
	t.Parallel()
	h := newControlHarness(t)

	h.send(t, `{"type":"arq","command":"stop_transmission"}`)
	assert.Equal(t, "OK", h.awaitResponse(t, "stop_transmission"))
	assert.Equal(t, modem.RunStateIdle, h.state.RunState())
}
