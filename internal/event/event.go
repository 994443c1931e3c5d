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

// Package event fans protocol and database events out to subscribers.
package event

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Topic names carried in the Type field of every published event.
const (
	TopicMessageDBChange    = "message_db_change"
	TopicSessionStateChange = "session_state_change"
	TopicModemStateChange   = "modem_state_change"
	TopicChannelBusyChange  = "channel_busy_change"
)

// Event is one broadcast item. Data holds topic-specific fields.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Subscription receives every event published after it was created.
type Subscription struct {
	mgr *Manager
	ch  chan Event
}

// Channel returns the receive side of the subscription.
func (s *Subscription) Channel() <-chan Event { return s.ch }

// Close removes the subscription. The channel is closed.
func (s *Subscription) Close() {
	s.mgr.unsubscribe(s)
}

const subscriberBuffer = 64

// Manager is the in-process event broadcaster. A nil *Manager is valid and
// drops all events, which keeps leaf packages testable in isolation.
type Manager struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewManager creates an event manager with no subscribers.
func NewManager() *Manager {
	return &Manager{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber.
func (m *Manager) Subscribe() *Subscription {
	sub := &Subscription{mgr: m, ch: make(chan Event, subscriberBuffer)}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub] = struct{}{}
	return sub
}

func (m *Manager) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber. A subscriber that has
// fallen behind by more than its buffer loses the event rather than blocking
// the publisher.
func (m *Manager) Publish(ev Event) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping event for slow subscriber", "type", ev.Type)
		}
	}
}

// PublishType publishes an event with topic-specific data fields.
func (m *Manager) PublishType(topic string, data map[string]any) {
	m.Publish(Event{Type: topic, Data: data})
}

// Encode renders the event as a single JSON line for the control channel.
func (ev Event) Encode() ([]byte, error) {
	out := map[string]any{"type": ev.Type}
	for k, v := range ev.Data {
		out[k] = v
	}
	return json.Marshal(out)
}
