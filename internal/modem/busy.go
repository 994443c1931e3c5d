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
	"sync"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/event"
)

// busyClearDelay is how long the channel must stay silent before the busy
// flag clears.
const busyClearDelay = 500 * time.Millisecond

// ChannelBusy is the debounced carrier-sense flag. Any codec sync marks the
// channel busy; the flag clears only after a quiet period.
type ChannelBusy struct {
	events *event.Manager

	mu    sync.Mutex
	busy  bool
	timer *time.Timer
	delay time.Duration
}

// NewChannelBusy creates the flag with the standard clear delay.
func NewChannelBusy(events *event.Manager) *ChannelBusy {
	return &ChannelBusy{events: events, delay: busyClearDelay}
}

// NewChannelBusyWithDelay is used by tests to shrink the debounce window.
func NewChannelBusyWithDelay(events *event.Manager, delay time.Duration) *ChannelBusy {
	return &ChannelBusy{events: events, delay: delay}
}

// OnSync notes that codec sync is present right now, (re)arming the clear
// timer.
func (c *ChannelBusy) OnSync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.busy {
		c.busy = true
		c.events.PublishType(event.TopicChannelBusyChange, map[string]any{"busy": true})
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.clear)
}

func (c *ChannelBusy) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		c.busy = false
		c.events.PublishType(event.TopicChannelBusyChange, map[string]any{"busy": false})
	}
}

// Busy reports the debounced flag.
func (c *ChannelBusy) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}
