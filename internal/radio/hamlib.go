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

package radio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/xylo04/goHamlib"
)

// Hamlib drives the rig directly through the hamlib C library.
type Hamlib struct {
	mu  sync.Mutex
	rig goHamlib.Rig
}

// OpenHamlib initializes the configured rig model over its serial port.
func OpenHamlib(cfg *config.Config) (*Hamlib, error) {
	h := &Hamlib{}
	if err := h.rig.Init(goHamlib.RigModelID(cfg.Radio.DeviceID)); err != nil {
		return nil, fmt.Errorf("could not init rig model %d: %w", cfg.Radio.DeviceID, err)
	}

	port := goHamlib.Port{
		RigPortType: goHamlib.RigPortSerial,
		Portname:    cfg.Radio.DevicePort,
		Baudrate:    cfg.Radio.SerialSpeed,
		Databits:    cfg.Radio.DataBits,
		Stopbits:    cfg.Radio.StopBits,
		Parity:      goHamlib.ParityNone,
		Handshake:   goHamlib.HandshakeNone,
	}
	h.rig.SetPort(port)

	if err := h.rig.Open(); err != nil {
		h.rig.Cleanup()
		return nil, fmt.Errorf("could not open rig on %s: %w", cfg.Radio.DevicePort, err)
	}
	return h, nil
}

func (h *Hamlib) PTTOn() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rig.SetPtt(goHamlib.VFOCurrent, goHamlib.PttOn)
}

func (h *Hamlib) PTTOff() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rig.SetPtt(goHamlib.VFOCurrent, goHamlib.PttOff)
}

func (h *Hamlib) SetFrequency(hz int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rig.SetFreq(goHamlib.VFOCurrent, float64(hz))
}

func (h *Hamlib) Frequency() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	freq, err := h.rig.GetFreq(goHamlib.VFOCurrent)
	return int(freq), err
}

func (h *Hamlib) SetMode(mode string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var m goHamlib.Mode
	switch strings.ToUpper(mode) {
	case "USB":
		m = goHamlib.ModeUSB
	case "LSB":
		m = goHamlib.ModeLSB
	case "PKTUSB":
		m = goHamlib.ModePKTUSB
	case "PKTLSB":
		m = goHamlib.ModePKTLSB
	default:
		return fmt.Errorf("unsupported mode %q", mode)
	}
	return h.rig.SetMode(goHamlib.VFOCurrent, m, 0)
}

func (h *Hamlib) Mode() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mode, _, err := h.rig.GetMode(goHamlib.VFOCurrent)
	if err != nil {
		return "", err
	}
	return goHamlib.ModeName[mode], nil
}

func (h *Hamlib) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.rig.Close(); err != nil {
		return err
	}
	h.rig.Cleanup()
	return nil
}
