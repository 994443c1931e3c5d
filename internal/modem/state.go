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

	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
)

// RunState is the coarse modem activity state shown to clients.
type RunState string

const (
	// RunStateIdle means no transfer is in progress.
	RunStateIdle RunState = "IDLE"
	// RunStateBusy means an ARQ transfer or transmission is in progress.
	RunStateBusy RunState = "BUSY"
)

// State is the mutable station state shared between the protocol components
// and the control surface. There are no package globals; everything hangs off
// one State owned by the daemon.
type State struct {
	events *event.Manager

	mu            sync.RWMutex
	myCall        frame.Callsign
	myGrid        string
	ssidList      []int
	runState      RunState
	listen        bool
	respondToCall bool
	respondToCQ   bool
	txAudioLevel  int
	recordAudio   bool
	ptt           bool
	dxCall        string
	dxGrid        string
	frequency     int
	radioMode     string
	snr           int
	beaconActive  bool
}

// NewState seeds the station state from configuration.
func NewState(cfg *config.Config, events *event.Manager) (*State, error) {
	call, err := frame.ParseCallsign(cfg.Station.MyCall)
	if err != nil {
		return nil, err
	}
	return &State{
		events:        events,
		myCall:        call,
		myGrid:        cfg.Station.MyGrid,
		ssidList:      append([]int(nil), cfg.Station.SSIDList...),
		runState:      RunStateIdle,
		listen:        cfg.Modem.Listen,
		respondToCall: cfg.Modem.RespondToCall,
		respondToCQ:   cfg.Modem.RespondToCQ,
		txAudioLevel:  cfg.Audio.TxLevel,
	}, nil
}

// MyCall returns the station callsign.
func (s *State) MyCall() frame.Callsign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myCall
}

// SetMyCall changes the station callsign at runtime.
func (s *State) SetMyCall(call frame.Callsign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.myCall = call
}

// MyGrid returns the station grid locator.
func (s *State) MyGrid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myGrid
}

// SetMyGrid changes the grid locator at runtime.
func (s *State) SetMyGrid(grid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.myGrid = grid
}

// AddressedToMe reports whether a destination CRC matches the station
// callsign under any of the configured SSIDs.
func (s *State) AddressedToMe(destCRC uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if destCRC == s.myCall.Checksum() {
		return true
	}
	for _, ssid := range s.ssidList {
		alias := frame.Callsign{Base: s.myCall.Base, SSID: uint8(ssid)}
		if destCRC == alias.Checksum() {
			return true
		}
	}
	return false
}

// RunState returns the coarse activity state.
func (s *State) RunState() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState
}

// SetRunState flips IDLE/BUSY and publishes a modem_state_change on edges.
func (s *State) SetRunState(state RunState) {
	s.mu.Lock()
	changed := s.runState != state
	s.runState = state
	s.mu.Unlock()
	if changed {
		s.events.PublishType(event.TopicModemStateChange, map[string]any{"modem_state": string(state)})
	}
}

// Listen reports whether inbound session creation is armed.
func (s *State) Listen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listen
}

// SetListen arms or disarms inbound session creation.
func (s *State) SetListen(listen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listen = listen
}

// RespondToCall reports whether directed PINGs are answered.
func (s *State) RespondToCall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.respondToCall
}

// SetRespondToCall toggles PING answering.
func (s *State) SetRespondToCall(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respondToCall = v
}

// RespondToCQ reports whether CQs are answered with QRV.
func (s *State) RespondToCQ() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.respondToCQ
}

// SetRespondToCQ toggles CQ answering.
func (s *State) SetRespondToCQ(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respondToCQ = v
}

// TxAudioLevel returns the transmit level in percent.
func (s *State) TxAudioLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txAudioLevel
}

// SetTxAudioLevel sets the transmit level in percent.
func (s *State) SetTxAudioLevel(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txAudioLevel = level
}

// RecordAudio reports whether received audio is being recorded.
func (s *State) RecordAudio() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordAudio
}

// SetRecordAudio toggles audio recording.
func (s *State) SetRecordAudio(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAudio = v
}

// PTT reports whether the transmitter is keyed.
func (s *State) PTT() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ptt
}

// SetPTT records the keyed state for the state snapshot.
func (s *State) SetPTT(ptt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptt = ptt
}

// DXCall returns the remote station of the current or last session.
func (s *State) DXCall() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dxCall
}

// SetDXCall records the remote station of the current session.
func (s *State) SetDXCall(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dxCall = call
}

// DXGrid returns the last reported remote grid.
func (s *State) DXGrid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dxGrid
}

// SetDXGrid records the remote grid.
func (s *State) SetDXGrid(grid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dxGrid = grid
}

// Frequency returns the last known dial frequency.
func (s *State) Frequency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frequency
}

// SetFrequency records the dial frequency.
func (s *State) SetFrequency(hz int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = hz
}

// RadioMode returns the last known rig mode.
func (s *State) RadioMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radioMode
}

// SetRadioMode records the rig mode.
func (s *State) SetRadioMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.radioMode = mode
}

// SNR returns the SNR of the last decoded frame.
func (s *State) SNR() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snr
}

// SetSNR records the SNR of a decoded frame.
func (s *State) SetSNR(snr int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snr = snr
}

// BeaconActive reports whether the beacon is running.
func (s *State) BeaconActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.beaconActive
}

// SetBeaconActive records the beacon state.
func (s *State) SetBeaconActive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beaconActive = v
}
