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
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// Command is one decoded control-channel request. Unknown fields are
// ignored; unknown commands are rejected with a Failed response.
type Command struct {
	Type       string          `json:"type"`
	Command    string          `json:"command"`
	DXCallsign string          `json:"dxcallsign"`
	MyCallsign string          `json:"mycallsign"`
	Attempts   int             `json:"attempts"`
	UUID       string          `json:"uuid"`
	Parameter  json.RawMessage `json:"parameter"`
}

type commandKey struct {
	Type    string
	Command string
}

// commandHandler runs one command and reports success.
type commandHandler func(cmd *Command) bool

// sendRawParam is one entry of the arq send_raw parameter list.
type sendRawParam struct {
	DXCallsign string `json:"dxcallsign"`
	Data       string `json:"data"`
	MyCallsign string `json:"mycallsign"`
	Attempts   int    `json:"attempts"`
}

// fecParam is the fec transmit parameter.
type fecParam struct {
	Mode    string `json:"mode"`
	Wakeup  bool   `json:"wakeup"`
	Payload string `json:"payload"`
}

// messageParam is the message submit parameter.
type messageParam struct {
	Destination string                   `json:"destination"`
	Body        string                   `json:"body"`
	Attachments []messages.NewAttachment `json:"attachments"`
	ID          string                   `json:"id"`
}

func (s *Server) buildHandlers() map[commandKey]commandHandler {
	return map[commandKey]commandHandler{
		{"set", "listen"}:           s.cmdSetListen,
		{"set", "record_audio"}:     s.cmdSetRecordAudio,
		{"set", "respond_to_call"}:  s.cmdSetRespondToCall,
		{"set", "respond_to_cq"}:    s.cmdSetRespondToCQ,
		{"set", "tx_audio_level"}:   s.cmdSetTxAudioLevel,
		{"set", "send_test_frame"}:  s.cmdSendTestFrame,
		{"set", "mycallsign"}:       s.cmdSetMyCallsign,
		{"set", "mygrid"}:           s.cmdSetMyGrid,
		{"set", "frequency"}:        s.cmdSetFrequency,
		{"set", "mode"}:             s.cmdSetMode,
		{"set", "del_rx_buffer"}:    s.cmdDelRXBuffer,
		{"get", "rx_buffer"}:        s.cmdGetRXBuffer,
		{"get", "routing_table"}:    s.cmdGetRoutingTable,
		{"fec", "transmit"}:         s.cmdFECTransmit,
		{"fec", "transmit_is_writing"}: s.cmdFECIsWriting,
		{"", "cqcqcq"}:              s.cmdCQ,
		{"", "start_beacon"}:        s.cmdStartBeacon,
		{"", "stop_beacon"}:         s.cmdStopBeacon,
		{"ping", "ping"}:            s.cmdPing,
		{"arq", "connect"}:          s.cmdARQConnect,
		{"arq", "disconnect"}:       s.cmdARQDisconnect,
		{"arq", "send_raw"}:         s.cmdARQSendRaw,
		{"arq", "stop_transmission"}: s.cmdARQStop,
		{"mesh", "ping"}:            s.cmdMeshPing,
		{"message", "send"}:         s.cmdMessageSend,
		{"message", "list"}:         s.cmdMessageList,
		{"message", "delete"}:       s.cmdMessageDelete,
		{"message", "mark_read"}:    s.cmdMessageMarkRead,
	}
}

func paramBool(raw json.RawMessage) (bool, bool) {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return false, false
		}
		return str == "true" || str == "True" || str == "1", true
	}
	return v, true
}

func paramInt(raw json.RawMessage) (int, bool) {
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func paramString(raw json.RawMessage) (string, bool) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func (s *Server) cmdSetListen(cmd *Command) bool {
	v, ok := paramBool(cmd.Parameter)
	if !ok {
		return false
	}
	s.deps.State.SetListen(v)
	if !v {
		// Disarming listen also winds down whatever is active.
		s.deps.Engine.DisconnectAll()
	}
	return true
}

func (s *Server) cmdSetRecordAudio(cmd *Command) bool {
	v, ok := paramBool(cmd.Parameter)
	if !ok {
		return false
	}
	s.deps.State.SetRecordAudio(v)
	return true
}

func (s *Server) cmdSetRespondToCall(cmd *Command) bool {
	v, ok := paramBool(cmd.Parameter)
	if !ok {
		return false
	}
	s.deps.State.SetRespondToCall(v)
	return true
}

func (s *Server) cmdSetRespondToCQ(cmd *Command) bool {
	v, ok := paramBool(cmd.Parameter)
	if !ok {
		return false
	}
	s.deps.State.SetRespondToCQ(v)
	return true
}

func (s *Server) cmdSetTxAudioLevel(cmd *Command) bool {
	v, ok := paramInt(cmd.Parameter)
	if !ok || v < 0 || v > 100 {
		return false
	}
	s.deps.State.SetTxAudioLevel(v)
	return true
}

func (s *Server) cmdSendTestFrame(_ *Command) bool {
	s.deps.Beacon.SendTestFrame()
	return true
}

func (s *Server) cmdSetMyCallsign(cmd *Command) bool {
	str, ok := paramString(cmd.Parameter)
	if !ok {
		return false
	}
	call, err := frame.ParseCallsign(str)
	if err != nil {
		return false
	}
	s.deps.State.SetMyCall(call)
	return true
}

func (s *Server) cmdSetMyGrid(cmd *Command) bool {
	str, ok := paramString(cmd.Parameter)
	if !ok || (len(str) != 4 && len(str) != 6) {
		return false
	}
	s.deps.State.SetMyGrid(str)
	return true
}

func (s *Server) cmdSetFrequency(cmd *Command) bool {
	hz, ok := paramInt(cmd.Parameter)
	if !ok || s.deps.Radio == nil {
		return false
	}
	if err := s.deps.Radio.SetFrequency(hz); err != nil {
		slog.Error("Could not set frequency", "hz", hz, "error", err)
		return false
	}
	s.deps.State.SetFrequency(hz)
	return true
}

func (s *Server) cmdSetMode(cmd *Command) bool {
	mode, ok := paramString(cmd.Parameter)
	if !ok || s.deps.Radio == nil {
		return false
	}
	if err := s.deps.Radio.SetMode(mode); err != nil {
		slog.Error("Could not set mode", "mode", mode, "error", err)
		return false
	}
	s.deps.State.SetRadioMode(mode)
	return true
}

func (s *Server) cmdDelRXBuffer(_ *Command) bool {
	s.deps.RXBuf.Clear()
	return true
}

func (s *Server) cmdGetRXBuffer(_ *Command) bool {
	entries := s.deps.RXBuf.Snapshot()
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{
			"dxcallsign": entry.DXCall,
			"data":       base64.StdEncoding.EncodeToString(entry.Payload),
			"timestamp":  entry.Timestamp.UTC().Format(time.RFC3339),
			"snr":        entry.SNR,
		})
	}
	s.broadcastJSON(map[string]any{
		"command":          "rx_buffer",
		"data-array":       out,
		"rx_buffer_length": len(out),
	})
	return true
}

func (s *Server) cmdGetRoutingTable(_ *Command) bool {
	if s.deps.Mesh == nil {
		return false
	}
	s.broadcastJSON(map[string]any{
		"command":       "routing_table",
		"routing_table": s.deps.Mesh.Routes(),
	})
	return true
}

func (s *Server) cmdFECTransmit(cmd *Command) bool {
	var param fecParam
	if err := json.Unmarshal(cmd.Parameter, &param); err != nil {
		return false
	}
	payload, err := base64.StdEncoding.DecodeString(param.Payload)
	if err != nil {
		return false
	}
	mode := codec.ModeDatac4
	if param.Mode == codec.ModeDatac1.String() {
		mode = codec.ModeDatac1
	}
	s.deps.Beacon.SendFEC(payload, mode, param.Wakeup)
	return true
}

func (s *Server) cmdFECIsWriting(cmd *Command) bool {
	remote, err := frame.ParseCallsign(cmd.DXCallsign)
	if err != nil {
		return false
	}
	s.deps.Beacon.SendIsWriting(remote)
	return true
}

func (s *Server) cmdCQ(_ *Command) bool {
	s.deps.Beacon.SendCQ()
	return true
}

func (s *Server) cmdStartBeacon(cmd *Command) bool {
	seconds, ok := paramInt(cmd.Parameter)
	if !ok || seconds <= 0 {
		seconds = s.cfg.Modem.BeaconInterval
	}
	if err := s.deps.Beacon.Start(time.Duration(seconds) * time.Second); err != nil {
		slog.Error("Could not start beacon", "error", err)
		return false
	}
	return true
}

func (s *Server) cmdStopBeacon(_ *Command) bool {
	return s.deps.Beacon.Stop() == nil
}

func (s *Server) cmdPing(cmd *Command) bool {
	if s.deps.State.RunState() == modem.RunStateBusy {
		slog.Warn("Dropping ping, modem busy")
		return false
	}
	remote, err := frame.ParseCallsign(cmd.DXCallsign)
	if err != nil {
		return false
	}
	local := s.deps.State.MyCall()
	if cmd.MyCallsign != "" {
		if call, err := frame.ParseCallsign(cmd.MyCallsign); err == nil {
			local = call
		}
	}
	s.deps.Beacon.SendPing(remote, local)
	return true
}

func (s *Server) cmdARQConnect(cmd *Command) bool {
	if s.deps.State.RunState() == modem.RunStateBusy {
		slog.Warn("Dropping connect, modem busy")
		return false
	}
	remote, err := frame.ParseCallsign(cmd.DXCallsign)
	if err != nil {
		return false
	}
	s.deps.Beacon.Pause(true)
	defer s.deps.Beacon.Pause(false)
	if _, err := s.deps.Engine.Connect(remote, cmd.Attempts); err != nil {
		slog.Warn("Connect command failed", "dxcall", remote.String(), "error", err)
		return false
	}
	return true
}

func (s *Server) cmdARQDisconnect(_ *Command) bool {
	return s.deps.Engine.Disconnect() == nil
}

func (s *Server) cmdARQSendRaw(cmd *Command) bool {
	var params []sendRawParam
	if err := json.Unmarshal(cmd.Parameter, &params); err != nil || len(params) == 0 {
		return false
	}
	param := params[0]

	remote, err := frame.ParseCallsign(param.DXCallsign)
	if err != nil {
		return false
	}
	data, err := base64.StdEncoding.DecodeString(param.Data)
	if err != nil {
		return false
	}

	s.deps.Beacon.Pause(true)
	defer s.deps.Beacon.Pause(false)
	if _, err := s.deps.Engine.SendRaw(remote, data, param.Attempts, ""); err != nil {
		slog.Warn("Send raw command failed", "dxcall", remote.String(), "error", err)
		return false
	}
	return true
}

func (s *Server) cmdARQStop(_ *Command) bool {
	s.deps.Engine.StopAll()
	s.deps.State.SetRunState(modem.RunStateIdle)
	return true
}

func (s *Server) cmdMeshPing(cmd *Command) bool {
	if s.deps.Mesh == nil {
		return false
	}
	remote, err := frame.ParseCallsign(cmd.DXCallsign)
	if err != nil {
		return false
	}
	// The exchange runs its retry backoff in the background; the outcome is
	// announced as an event.
	go func() {
		ok := s.deps.Mesh.Ping(context.Background(), remote.Checksum())
		s.broadcastJSON(map[string]any{
			"command":    "mesh_ping_result",
			"dxcallsign": remote.String(),
			"reachable":  ok,
		})
	}()
	return true
}

func (s *Server) cmdMessageSend(cmd *Command) bool {
	if s.deps.Store == nil {
		return false
	}
	var param messageParam
	if err := json.Unmarshal(cmd.Parameter, &param); err != nil {
		return false
	}
	if _, err := frame.ParseCallsign(param.Destination); err != nil {
		return false
	}
	_, err := s.deps.Store.Add(messages.NewMessage{
		Origin:      s.deps.State.MyCall().String(),
		Destination: param.Destination,
		Body:        param.Body,
		Attachments: param.Attachments,
	}, models.DirectionTransmit, models.StatusQueued)
	return err == nil
}

func (s *Server) cmdMessageList(_ *Command) bool {
	if s.deps.Store == nil {
		return false
	}
	list, err := s.deps.Store.List()
	if err != nil {
		return false
	}
	s.broadcastJSON(map[string]any{
		"command":        "message_list",
		"total_messages": len(list),
		"messages":       list,
	})
	return true
}

func (s *Server) cmdMessageDelete(cmd *Command) bool {
	if s.deps.Store == nil {
		return false
	}
	id, ok := paramString(cmd.Parameter)
	if !ok {
		return false
	}
	return s.deps.Store.Delete(id).Status == "success"
}

func (s *Server) cmdMessageMarkRead(cmd *Command) bool {
	if s.deps.Store == nil {
		return false
	}
	id, ok := paramString(cmd.Parameter)
	if !ok {
		return false
	}
	return s.deps.Store.MarkRead(id) == nil
}
