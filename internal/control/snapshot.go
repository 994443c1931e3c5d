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

package control

import (
	"github.com/kronenpj/FreeDATA-experiments/internal/arq"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/mesh"
)

// modemState is the periodic state snapshot pushed to clients.
type modemState struct {
	Command        string           `json:"command"`
	PTTState       bool             `json:"ptt_state"`
	ModemState     string           `json:"modem_state"`
	ARQState       bool             `json:"arq_state"`
	ARQSession     bool             `json:"arq_session"`
	ARQSessionState string          `json:"arq_session_state"`
	ARQDirection   string           `json:"arq_direction,omitempty"`
	SpeedLevel     int              `json:"speed_level"`
	BytesSent      int              `json:"arq_bytes_sent"`
	BytesReceived  int              `json:"arq_bytes_received"`
	BurstNumber    int              `json:"arq_burst_number"`
	SNR            int              `json:"snr"`
	Frequency      int              `json:"frequency"`
	Mode           string           `json:"mode"`
	ChannelBusy    bool             `json:"channel_busy"`
	RXBufferLength int              `json:"rx_buffer_length"`
	BeaconState    bool             `json:"beacon_state"`
	Listen         bool             `json:"listen"`
	AudioRecording bool             `json:"audio_recording"`
	TxAudioLevel   int              `json:"audio_level"`
	MyCallsign     string           `json:"mycallsign"`
	MyGrid         string           `json:"mygrid"`
	DXCallsign     string           `json:"dxcallsign"`
	DXGrid         string           `json:"dxgrid"`
	Stations       []heard.Entry    `json:"stations"`
	RoutingTable   []mesh.RouteEntry `json:"routing_table"`
	HMAC           bool             `json:"hmac"`
}

func (s *Server) buildModemState() modemState {
	state := s.deps.State

	out := modemState{
		Command:        "modem_state",
		PTTState:       state.PTT(),
		ModemState:     string(state.RunState()),
		ARQSessionState: string(arq.StateDisconnected),
		SNR:            state.SNR(),
		Frequency:      state.Frequency(),
		Mode:           state.RadioMode(),
		BeaconState:    state.BeaconActive(),
		Listen:         state.Listen(),
		AudioRecording: state.RecordAudio(),
		TxAudioLevel:   state.TxAudioLevel(),
		MyCallsign:     state.MyCall().String(),
		MyGrid:         state.MyGrid(),
		DXCallsign:     state.DXCall(),
		DXGrid:         state.DXGrid(),
		Stations:       s.deps.Heard.Snapshot(),
	}
	if s.deps.RXBuf != nil {
		out.RXBufferLength = s.deps.RXBuf.Len()
	}
	if s.deps.Busy != nil {
		out.ChannelBusy = s.deps.Busy.Busy()
	}
	if s.deps.Mesh != nil {
		out.RoutingTable = s.deps.Mesh.Routes()
	}
	if snapshot, ok := s.deps.Engine.ActiveSnapshot(); ok {
		out.ARQSession = true
		out.ARQState = snapshot.State == arq.StateTransferring
		out.ARQSessionState = string(snapshot.State)
		out.ARQDirection = string(snapshot.Direction)
		out.SpeedLevel = snapshot.SpeedLevel
		out.BytesSent = snapshot.BytesSent
		out.BytesReceived = snapshot.BytesReceived
		out.BurstNumber = snapshot.BurstNumber
		out.HMAC = snapshot.HMAC
	}
	return out
}
