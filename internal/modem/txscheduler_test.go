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

package modem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodec turns frames into byte-mapped samples without any DSP.
type fakeCodec struct{}

func (fakeCodec) Modulate(_ codec.Mode, f []byte) ([]float32, error) {
	out := make([]float32, len(f))
	for i, b := range f {
		out[i] = float32(b)
	}
	return out, nil
}

func (fakeCodec) Demodulate([]float32) ([]codec.Decoded, bool, error) {
	return nil, false, nil
}

// fakeAudio records every played buffer with its timestamp.
type fakeAudio struct {
	mu    sync.Mutex
	plays []time.Time
}

func (a *fakeAudio) Play([]float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plays = append(a.plays, time.Now())
	return nil
}

func (a *fakeAudio) Read() ([]float32, error) {
	select {}
}

func (a *fakeAudio) Close() error { return nil }

func (a *fakeAudio) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.plays)
}

// fakeRadio records PTT edges and asserts keying never happens while the
// busy flag is set.
type fakeRadio struct {
	t    *testing.T
	busy *modem.ChannelBusy

	mu   sync.Mutex
	keys int
	ptt  bool
}

func (r *fakeRadio) PTTOn() error {
	if r.busy != nil && r.busy.Busy() {
		r.t.Error("PTT keyed while channel busy")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys++
	r.ptt = true
	return nil
}

func (r *fakeRadio) PTTOff() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ptt = false
	return nil
}

func (r *fakeRadio) SetFrequency(int) error   { return nil }
func (r *fakeRadio) Frequency() (int, error)  { return 0, nil }
func (r *fakeRadio) SetMode(string) error     { return nil }
func (r *fakeRadio) Mode() (string, error)    { return "", nil }
func (r *fakeRadio) Close() error             { return nil }

func (r *fakeRadio) keyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys
}

func newTestState(t *testing.T) *modem.State {
	t.Helper()
	cfg := &config.Config{
		Station: config.Station{MyCall: "AA0AA", MyGrid: "JN12AA"},
		Audio:   config.Audio{TxLevel: 100},
	}
	state, err := modem.NewState(cfg, event.NewManager())
	require.NoError(t, err)
	return state
}

func startScheduler(t *testing.T, busy *modem.ChannelBusy) (*modem.Scheduler, *fakeAudio, *fakeRadio) {
	t.Helper()
	audio := &fakeAudio{}
	rig := &fakeRadio{t: t, busy: busy}
	sched := modem.NewScheduler(fakeCodec{}, audio, rig, newTestState(t), busy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx)
	return sched, audio, rig
}

func TestSchedulerTransmitsFIFO(t *testing.T) {
	t.Parallel()
	busy := modem.NewChannelBusyWithDelay(event.NewManager(), 20*time.Millisecond)
	sched, audio, rig := startScheduler(t, busy)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	done := make(chan int, 2)
	for i := 0; i < 2; i++ {
		i := i
		sched.Enqueue(modem.TxItem{
			Mode:   codec.ModeSig0,
			Frames: [][]byte{{byte(i)}},
			OnDone: func() { done <- i },
		})
	}

	first := <-done
	second := <-done
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, audio.count())
	assert.Equal(t, 2, rig.keyCount())
}

func TestSchedulerDefersWhileChannelBusy(t *testing.T) {
	t.Parallel()
	events := event.NewManager()
	busy := modem.NewChannelBusyWithDelay(events, 300*time.Millisecond)
	sched, audio, _ := startScheduler(t, busy)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	busy.OnSync()
	start := time.Now()

	sent := make(chan struct{})
	sched.Enqueue(modem.TxItem{
		Mode:   codec.ModeSig0,
		Frames: [][]byte{{0xAA}},
		OnDone: func() { close(sent) },
	})

	select {
	case <-sent:
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "transmitted while channel busy")
	case <-time.After(5 * time.Second):
		t.Fatal("item never transmitted")
	}
	assert.Equal(t, 1, audio.count())
}

func TestSchedulerSlotJitterBeforeKeying(t *testing.T) {
	t.Parallel()
	busy := modem.NewChannelBusyWithDelay(event.NewManager(), 20*time.Millisecond)
	sched, _, _ := startScheduler(t, busy)
	sched.SetJitter(func() time.Duration { return 200 * time.Millisecond })

	start := time.Now()
	sent := make(chan struct{})
	sched.Enqueue(modem.TxItem{
		Mode:   codec.ModeSig0,
		Frames: [][]byte{{0x01}},
		OnDone: func() { close(sent) },
	})
	<-sent
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// Immediate (ACK-class) traffic skips the jitter.
	start = time.Now()
	sentACK := make(chan struct{})
	sched.Enqueue(modem.TxItem{
		Mode:      codec.ModeSig0,
		Frames:    [][]byte{{0x02}},
		Immediate: true,
		OnDone:    func() { close(sentACK) },
	})
	<-sentACK
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestSchedulerDrainDiscardsQueue(t *testing.T) {
	t.Parallel()
	events := event.NewManager()
	busy := modem.NewChannelBusyWithDelay(events, 50*time.Millisecond)
	sched, audio, _ := startScheduler(t, busy)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	// Hold the worker off, enqueue, then drain before it can key.
	busy.OnSync()
	for i := 0; i < 5; i++ {
		sched.Enqueue(modem.TxItem{Mode: codec.ModeSig0, Frames: [][]byte{{byte(i)}}})
	}
	sched.Drain()

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, audio.count(), "drained items must not key")
}

func TestSchedulerHoldoffDefersTraffic(t *testing.T) {
	t.Parallel()
	busy := modem.NewChannelBusyWithDelay(event.NewManager(), 20*time.Millisecond)
	sched, audio, _ := startScheduler(t, busy)
	sched.SetJitter(func() time.Duration { return time.Millisecond })

	sched.SetHoldoff(true)
	sent := make(chan struct{})
	sched.Enqueue(modem.TxItem{Mode: codec.ModeSig0, Frames: [][]byte{{0x7F}}, OnDone: func() { close(sent) }})

	select {
	case <-sent:
		t.Fatal("transmitted during holdoff")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 0, audio.count())

	sched.SetHoldoff(false)
	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("item never transmitted after holdoff cleared")
	}
}

func TestChannelBusyDebounce(t *testing.T) {
	t.Parallel()
	events := event.NewManager()
	sub := events.Subscribe()
	defer sub.Close()

	busy := modem.NewChannelBusyWithDelay(events, 100*time.Millisecond)
	busy.OnSync()
	assert.True(t, busy.Busy())

	// Continuous sync keeps the flag set past one debounce window.
	time.Sleep(60 * time.Millisecond)
	busy.OnSync()
	time.Sleep(60 * time.Millisecond)
	assert.True(t, busy.Busy())

	require.Eventually(t, func() bool { return !busy.Busy() }, time.Second, 10*time.Millisecond)

	// Edge events: busy true, then busy false.
	var got []bool
	for len(got) < 2 {
		select {
		case ev := <-sub.Channel():
			if ev.Type == event.TopicChannelBusyChange {
				b, _ := ev.Data["busy"].(bool)
				got = append(got, b)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing channel_busy_change events, got %v", got)
		}
	}
	assert.Equal(t, []bool{true, false}, got)
}

func TestRXBufferBounded(t *testing.T) {
	t.Parallel()
	buf := modem.NewRXBuffer()
	for i := 0; i < 20; i++ {
		buf.Push(modem.RXEntry{Payload: []byte{byte(i)}})
	}
	assert.Equal(t, 16, buf.Len())
	entries := buf.Snapshot()
	assert.Equal(t, byte(4), entries[0].Payload[0], "oldest entries evicted first")

	buf.Clear()
	assert.Equal(t, 0, buf.Len())
}
