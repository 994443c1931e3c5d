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

// Package metrics exposes protocol counters over Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, which keeps the protocol packages free of conditionals.
type Metrics struct {
	FramesDecoded    *prometheus.CounterVec
	FramesRejected   *prometheus.CounterVec
	FramesSent       *prometheus.CounterVec
	PTTKeys          prometheus.Counter
	BurstsACKed      prometheus.Counter
	BurstsNACKed     prometheus.Counter
	BurstRetransmits prometheus.Counter
	SessionStates    *prometheus.CounterVec
	SpeedLevel       prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freedata_frames_decoded_total",
			Help: "The total number of frames decoded, by frame type",
		}, []string{"type"}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freedata_frames_rejected_total",
			Help: "The total number of undecodable or misaddressed frames",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freedata_frames_sent_total",
			Help: "The total number of frames transmitted, by frame type",
		}, []string{"type"}),
		PTTKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freedata_ptt_keys_total",
			Help: "The total number of PTT assertions",
		}),
		BurstsACKed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freedata_bursts_acked_total",
			Help: "The total number of bursts acknowledged",
		}),
		BurstsNACKed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freedata_bursts_nacked_total",
			Help: "The total number of bursts negatively acknowledged",
		}),
		BurstRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freedata_burst_retransmits_total",
			Help: "The total number of burst frame retransmissions",
		}),
		SessionStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freedata_session_state_changes_total",
			Help: "The total number of ARQ session state transitions",
		}, []string{"state"}),
		SpeedLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freedata_speed_level",
			Help: "The current adaptive speed level",
		}),
	}
	reg.MustRegister(
		m.FramesDecoded,
		m.FramesRejected,
		m.FramesSent,
		m.PTTKeys,
		m.BurstsACKed,
		m.BurstsNACKed,
		m.BurstRetransmits,
		m.SessionStates,
		m.SpeedLevel,
	)
	return m
}

// RecordFrameDecoded counts a decoded frame by type name.
func (m *Metrics) RecordFrameDecoded(frameType string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(frameType).Inc()
}

// RecordFrameRejected counts a rejected frame by reason.
func (m *Metrics) RecordFrameRejected(reason string) {
	if m == nil {
		return
	}
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// RecordFrameSent counts a transmitted frame by type name.
func (m *Metrics) RecordFrameSent(frameType string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(frameType).Inc()
}

// RecordPTTKey counts one PTT assertion.
func (m *Metrics) RecordPTTKey() {
	if m == nil {
		return
	}
	m.PTTKeys.Inc()
}

// RecordBurstACK counts one acknowledged burst.
func (m *Metrics) RecordBurstACK() {
	if m == nil {
		return
	}
	m.BurstsACKed.Inc()
}

// RecordBurstNACK counts one negatively acknowledged burst.
func (m *Metrics) RecordBurstNACK() {
	if m == nil {
		return
	}
	m.BurstsNACKed.Inc()
}

// RecordBurstRetransmit counts retransmitted burst frames.
func (m *Metrics) RecordBurstRetransmit(frames int) {
	if m == nil {
		return
	}
	m.BurstRetransmits.Add(float64(frames))
}

// RecordSessionState counts a session state transition.
func (m *Metrics) RecordSessionState(state string) {
	if m == nil {
		return
	}
	m.SessionStates.WithLabelValues(state).Inc()
}

// RecordSpeedLevel tracks the current speed level.
func (m *Metrics) RecordSpeedLevel(level int) {
	if m == nil {
		return
	}
	m.SpeedLevel.Set(float64(level))
}
