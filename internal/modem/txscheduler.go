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
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/metrics"
)

// pollInterval is the granularity at which every wait in the TX worker
// observes cancellation and queue drains.
const pollInterval = 100 * time.Millisecond

// Slot jitter bounds for collision avoidance before keying non-ACK traffic.
const (
	slotJitterMin = 500 * time.Millisecond
	slotJitterMax = 2500 * time.Millisecond
)

// TxItem is one queued transmission. All frames of the item are sent
// back-to-back under a single PTT assertion.
type TxItem struct {
	Mode    codec.Mode
	Frames  [][]byte
	Repeats int
	Gap     time.Duration
	// Immediate marks ACK-class traffic, which skips the slot jitter so the
	// peer's timeout windows stay tight.
	Immediate bool
	// OnDone, when set, runs once the item has left the transmitter (or was
	// abandoned by a drain or shutdown). Sessions use it to start their
	// response timers only after the burst is actually on the air.
	OnDone func()
}

// Scheduler is the half-duplex PTT-gated outbound queue. The queue is
// strictly FIFO; Enqueue never blocks.
type Scheduler struct {
	codec   codec.Codec
	audio   AudioIO
	radio   Radio
	state   *State
	busy    *ChannelBusy
	metrics *metrics.Metrics

	mu      sync.Mutex
	queue   []TxItem
	drains  uint64
	notify  chan struct{}
	holdoff atomic.Bool
	idle    atomic.Bool

	jitter func() time.Duration
}

// NewScheduler creates a transmit scheduler. The worker is started with Run.
func NewScheduler(c codec.Codec, audio AudioIO, radio Radio, state *State, busy *ChannelBusy, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		codec:   c,
		audio:   audio,
		radio:   radio,
		state:   state,
		busy:    busy,
		metrics: m,
		notify:  make(chan struct{}, 1),
	}
	s.idle.Store(true)
	s.jitter = func() time.Duration {
		return slotJitterMin + rand.N(slotJitterMax-slotJitterMin)
	}
	return s
}

// SetJitter replaces the slot-jitter source. Tests shrink it to keep the
// loopback scenarios fast.
func (s *Scheduler) SetJitter(fn func() time.Duration) {
	s.jitter = fn
}

// Enqueue appends an item to the queue. It never blocks.
func (s *Scheduler) Enqueue(item TxItem) {
	if item.Repeats < 1 {
		item.Repeats = 1
	}
	s.mu.Lock()
	s.queue = append(s.queue, item)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// EnqueueFrame is the common single-frame case.
func (s *Scheduler) EnqueueFrame(mode codec.Mode, f frame.Frame, immediate bool) {
	s.metrics.RecordFrameSent(f.FrameType().String())
	s.Enqueue(TxItem{Mode: mode, Frames: [][]byte{f.Encode()}, Immediate: immediate})
}

// Drain discards every queued item without keying. In-flight waits observe
// the drain within the poll interval.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.drains++
	slog.Info("TX queue drained")
}

// SetHoldoff defers dequeueing while an ARQ session expects an inbound
// frame.
func (s *Scheduler) SetHoldoff(hold bool) {
	s.holdoff.Store(hold)
}

// Idle reports whether the worker is between transmissions with an empty
// queue.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	empty := len(s.queue) == 0
	s.mu.Unlock()
	return empty && s.idle.Load()
}

func (s *Scheduler) dequeue() (TxItem, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return TxItem{}, s.drains, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, s.drains, true
}

func (s *Scheduler) drainedSince(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drains != gen
}

// Run is the TX worker loop. It returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		item, gen, ok := s.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}

		s.transmitWhenClear(ctx, item, gen)
		if item.OnDone != nil {
			item.OnDone()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// transmitWhenClear waits for a clear channel, applies the slot jitter and
// transmits. It reports false when the item was abandoned.
func (s *Scheduler) transmitWhenClear(ctx context.Context, item TxItem, gen uint64) bool {
	for {
		// Defer while the channel is busy or a session expects inbound
		// traffic.
		for s.busy.Busy() || s.holdoff.Load() {
			if !s.sleep(ctx, pollInterval) || s.drainedSince(gen) {
				return false
			}
		}

		if !item.Immediate {
			if !s.sleep(ctx, s.jitter()) || s.drainedSince(gen) {
				return false
			}
			// The channel may have gone busy during the jitter window; never
			// key on top of another station.
			if s.busy.Busy() || s.holdoff.Load() {
				continue
			}
		}

		s.transmit(ctx, item)
		return true
	}
}

func (s *Scheduler) transmit(ctx context.Context, item TxItem) {
	s.idle.Store(false)
	defer s.idle.Store(true)

	if err := s.radio.PTTOn(); err != nil {
		slog.Error("Could not key PTT", "error", err)
		return
	}
	s.metrics.RecordPTTKey()
	s.state.SetPTT(true)
	defer func() {
		if err := s.radio.PTTOff(); err != nil {
			slog.Error("Could not unkey PTT", "error", err)
		}
		s.state.SetPTT(false)
	}()

	level := float32(s.state.TxAudioLevel()) / 100
	for repeat := 0; repeat < item.Repeats; repeat++ {
		for _, frameBytes := range item.Frames {
			samples, err := s.codec.Modulate(item.Mode, frameBytes)
			if err != nil {
				slog.Error("Could not modulate frame", "mode", item.Mode, "error", err)
				return
			}
			scaled := make([]float32, len(samples))
			for i, sample := range samples {
				scaled[i] = sample * level
			}
			if err := s.audio.Play(scaled); err != nil {
				slog.Error("Could not play samples", "error", err)
				return
			}
		}
		if repeat < item.Repeats-1 && item.Gap > 0 {
			if !s.sleep(ctx, item.Gap) {
				return
			}
		}
	}
}

// sleep waits for d in poll-interval slices, returning false on
// cancellation.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}
