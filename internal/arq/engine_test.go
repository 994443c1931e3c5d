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

package arq_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/arq"
	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/db"
	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/kronenpj/FreeDATA-experiments/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 30 * time.Second
const tick = 20 * time.Millisecond

// station wires one complete protocol stack onto a loopback endpoint.
type station struct {
	call   frame.Callsign
	state  *modem.State
	sched  *modem.Scheduler
	engine *arq.Engine
	store  *messages.Store
	rxbuf  *modem.RXBuffer
}

func testTiming() arq.Timing {
	return arq.Timing{
		OpenRetryInterval: 500 * time.Millisecond,
		OpenMaxRetries:    5,
		HeartbeatInterval: 2 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		BurstGrace:        150 * time.Millisecond,
		BurstMaxRetries:   3,
		CloseRepeats:      2,
		CloseSpacing:      100 * time.Millisecond,
		TimeoutScale:      0.2,
	}
}

func testConfig(callsign string) *config.Config {
	return &config.Config{
		LogLevel: config.LogLevelInfo,
		Station: config.Station{
			MyCall:   callsign,
			MyGrid:   "JN12AA",
			SSIDList: []int{0},
		},
		Audio: config.Audio{
			// Full scale so the byte-transparent loopback survives the TX
			// level scaling.
			TxLevel: 100,
		},
		Network: config.Network{Bind: "127.0.0.1", SocketPort: 3000},
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
}

func newStation(t *testing.T, ctx context.Context, callsign string, endpoint *codec.LoopbackEndpoint, mutate func(cfg *config.Config)) *station {
	t.Helper()

	cfg := testConfig(callsign)
	if mutate != nil {
		mutate(cfg)
	}

	events := event.NewManager()
	state, err := modem.NewState(cfg, events)
	require.NoError(t, err)

	database, err := db.MakeDB(nil)
	require.NoError(t, err)
	store := messages.NewStore(database, events)

	busy := modem.NewChannelBusyWithDelay(events, 20*time.Millisecond)
	names := frame.NewNames()
	rxbuf := modem.NewRXBuffer()

	sched := modem.NewScheduler(endpoint, endpoint, &radio.Null{}, state, busy, nil)
	sched.SetJitter(func() time.Duration { return 5 * time.Millisecond })

	dispatcher := modem.NewDispatcher(endpoint, endpoint, state, busy, names, heard.NewList(), nil)

	engine, err := arq.NewEngine(cfg, testTiming(), sched, state, store, rxbuf, names, events, nil)
	require.NoError(t, err)
	dispatcher.SetSessionSink(engine)
	engine.Start(ctx)

	go sched.Run(ctx)
	go dispatcher.Run(ctx)

	call, err := frame.ParseCallsign(callsign)
	require.NoError(t, err)
	return &station{
		call:   call,
		state:  state,
		sched:  sched,
		engine: engine,
		store:  store,
		rxbuf:  rxbuf,
	}
}

func makePair(t *testing.T, mutateA, mutateB func(cfg *config.Config)) (*station, *station, *codec.Loopback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	link := codec.NewLoopback()
	t.Cleanup(link.Close)

	a := newStation(t, ctx, "AA0AA-0", link.A, mutateA)
	b := newStation(t, ctx, "DJ2LS-0", link.B, mutateB)
	return a, b, link
}

func testPayload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

// queueOutbound creates the message-store row the transfer is tied to.
func queueOutbound(t *testing.T, s *station, destination string, payload []byte) string {
	t.Helper()
	id, err := s.store.Add(messages.NewMessage{
		Origin:      s.call.String(),
		Destination: destination,
		Body:        string(payload),
	}, models.DirectionTransmit, models.StatusQueued)
	require.NoError(t, err)
	require.NoError(t, s.store.IncrementAttempts(id))
	require.NoError(t, s.store.SetStatus(id, models.StatusTransmitting))
	return id
}

func TestCleanTransfer(t *testing.T) {
	t.Parallel()
	a, b, _ := makePair(t, nil, nil)

	payload := testPayload(8192)
	id := queueOutbound(t, a, b.call.String(), payload)

	sess, err := a.engine.SendRaw(b.call, payload, 0, id)
	require.NoError(t, err)

	// The transfer ends with the sender torn down and the receiver holding
	// the byte-identical payload.
	require.Eventually(t, func() bool {
		return sess.State() == arq.StateDisconnected
	}, eventually, tick, "sender never finished, state %s", sess.State())

	require.Eventually(t, func() bool {
		return b.rxbuf.Len() == 1
	}, eventually, tick)
	entries := b.rxbuf.Snapshot()
	require.Len(t, entries, 1)
	assert.True(t, bytes.Equal(entries[0].Payload, payload), "payload differs")
	assert.Equal(t, a.call.String(), entries[0].DXCall)

	// Sender's message row reached transmitted.
	msg, err := a.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTransmitted, msg.StatusName())
	assert.Equal(t, uint(1), msg.Attempts)

	// Receiver persisted a received-message row.
	require.Eventually(t, func() bool {
		list, err := b.store.List()
		return err == nil && len(list) == 1 && list[0].StatusName() == models.StatusReceived
	}, eventually, tick)
}

func TestSingleFrameLossRetransmitsOnlyThatFrame(t *testing.T) {
	t.Parallel()
	a, b, link := makePair(t, nil, nil)

	// Drop the first transmission of frame_index 2 of burst 1.
	var dropMu sync.Mutex
	dropped := false
	link.A.SetDrop(func(raw []byte) bool {
		f, err := frame.Decode(raw)
		if err != nil {
			return false
		}
		bf, ok := f.(*frame.BurstFrame)
		if !ok || bf.BurstID != 1 || bf.FrameIndex != 2 {
			return false
		}
		dropMu.Lock()
		defer dropMu.Unlock()
		if dropped {
			return false
		}
		dropped = true
		return true
	})

	// Record the NACKs the receiver emits.
	var nackMu sync.Mutex
	var nackMasks []uint64
	link.B.SetDrop(func(raw []byte) bool {
		if f, err := frame.Decode(raw); err == nil {
			if nack, ok := f.(*frame.BurstNACK); ok {
				nackMu.Lock()
				nackMasks = append(nackMasks, nack.MissingMask)
				nackMu.Unlock()
			}
		}
		return false
	})

	// Three bursts at the top speed level (5 frames of 512 bytes each).
	payload := testPayload(6 * 1024)
	sess, err := a.engine.SendRaw(b.call, payload, 0, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateDisconnected
	}, eventually, tick)

	require.Eventually(t, func() bool {
		return b.rxbuf.Len() == 1
	}, eventually, tick)
	assert.True(t, bytes.Equal(b.rxbuf.Snapshot()[0].Payload, payload))

	nackMu.Lock()
	defer nackMu.Unlock()
	require.NotEmpty(t, nackMasks, "receiver never NACKed the missing frame")
	assert.Equal(t, uint64(1<<2), nackMasks[0], "NACK mask should name frame_index 2 only")

	// A single lost frame out of five is no reason to slow down.
	assert.Equal(t, 4, sess.SpeedLevel())
}

func TestHeavyLossStepsSpeedDown(t *testing.T) {
	t.Parallel()
	a, b, link := makePair(t, nil, nil)

	// Drop 60% of burst 0 (frames 1, 2 and 3 of five) on first transmission.
	var dropMu sync.Mutex
	droppedIdx := map[uint8]bool{}
	link.A.SetDrop(func(raw []byte) bool {
		f, err := frame.Decode(raw)
		if err != nil {
			return false
		}
		bf, ok := f.(*frame.BurstFrame)
		if !ok || bf.BurstID != 0 {
			return false
		}
		if bf.FrameIndex < 1 || bf.FrameIndex > 3 {
			return false
		}
		dropMu.Lock()
		defer dropMu.Unlock()
		if droppedIdx[bf.FrameIndex] {
			return false
		}
		droppedIdx[bf.FrameIndex] = true
		return true
	})

	// Two bursts at the top level; the retransmission of more than half of
	// burst 0 must step the speed down before burst 1 starts.
	payload := testPayload(3 * 1024)
	sess, err := a.engine.SendRaw(b.call, payload, 0, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateDisconnected
	}, eventually, tick)

	require.Eventually(t, func() bool {
		return b.rxbuf.Len() == 1
	}, eventually, tick)
	assert.True(t, bytes.Equal(b.rxbuf.Snapshot()[0].Payload, payload))
	assert.Equal(t, 3, sess.SpeedLevel(), "speed should have stepped down once")
}

func TestBlackholedReceiverFailsAfterRetries(t *testing.T) {
	t.Parallel()
	a, b, link := makePair(t, func(cfg *config.Config) {
		// A modest speed level keeps the scaled burst timeouts short.
		cfg.Modem.MaxSpeedLevel = 1
	}, nil)

	// The receiver answers the handshake but every burst verdict vanishes.
	link.B.SetDrop(func(raw []byte) bool {
		f, err := frame.Decode(raw)
		if err != nil {
			return false
		}
		switch f.(type) {
		case *frame.BurstACK, *frame.BurstNACK, *frame.FrACK, *frame.FrNACK:
			return true
		}
		return false
	})

	payload := testPayload(100)
	id := queueOutbound(t, a, b.call.String(), payload)
	sess, err := a.engine.SendRaw(b.call, payload, 0, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateFailed
	}, eventually, tick, "session should fail after burst retries, state %s", sess.State())

	msg, err := a.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, msg.StatusName())
	assert.Equal(t, uint(1), msg.Attempts)
}

func TestHMACMismatchRefusesSession(t *testing.T) {
	t.Parallel()
	a, b, _ := makePair(t, func(cfg *config.Config) {
		cfg.Modem.HMACSalts = []string{"AA0AA-0:DJ2LS-0:rightsalt"}
	}, func(cfg *config.Config) {
		cfg.Modem.HMACSalts = []string{"DJ2LS-0:AA0AA-0:wrongsalt"}
	})

	sess, err := a.engine.SendRaw(b.call, testPayload(64), 2, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateFailed
	}, eventually, tick, "session must fail against a wrong-salt receiver")

	// The receiver never admitted a session.
	_, active := b.engine.ActiveSnapshot()
	assert.False(t, active)
}

func TestConnectAndDisconnect(t *testing.T) {
	t.Parallel()
	a, b, _ := makePair(t, nil, nil)

	sess, err := a.engine.Connect(b.call, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateConnected || sess.State() == arq.StateIdle
	}, eventually, tick)

	// The responder's side is up too.
	require.Eventually(t, func() bool {
		snapshot, ok := b.engine.ActiveSnapshot()
		return ok && (snapshot.State == arq.StateConnected || snapshot.State == arq.StateIdle)
	}, eventually, tick)

	// A second session to the same station is refused while one is active.
	_, err = a.engine.Connect(b.call, 0)
	assert.ErrorIs(t, err, arq.ErrSessionExists)

	require.NoError(t, a.engine.Disconnect())
	require.Eventually(t, func() bool {
		return sess.State() == arq.StateDisconnected
	}, eventually, tick)
	require.Eventually(t, func() bool {
		_, active := b.engine.ActiveSnapshot()
		return !active
	}, eventually, tick)
}

func TestStopAllAborts(t *testing.T) {
	t.Parallel()
	a, b, link := makePair(t, nil, nil)

	// Black-hole burst verdicts so the transfer hangs in its first burst.
	link.B.SetDrop(func(raw []byte) bool {
		f, err := frame.Decode(raw)
		if err != nil {
			return false
		}
		switch f.(type) {
		case *frame.BurstACK, *frame.BurstNACK, *frame.FrACK, *frame.FrNACK:
			return true
		}
		return false
	})

	id := queueOutbound(t, a, b.call.String(), testPayload(64))
	sess, err := a.engine.SendRaw(b.call, testPayload(64), 0, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.State() == arq.StateTransferring
	}, eventually, tick)

	a.engine.StopAll()
	require.Eventually(t, func() bool {
		return sess.State() == arq.StateDisconnected
	}, eventually, tick)

	msg, err := a.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAborted, msg.StatusName())
}
