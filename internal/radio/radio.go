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

// Package radio provides the transceiver-control capability: hamlib direct,
// rigctld over TCP, or a no-op backend when rig control is disabled.
package radio

import (
	"fmt"

	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// New selects the rig-control backend from configuration.
func New(cfg *config.Config) (modem.Radio, error) {
	switch cfg.Radio.Control {
	case config.RadioControlDisabled:
		return &Null{}, nil
	case config.RadioControlRigctld:
		return DialRigctld(fmt.Sprintf("%s:%d", cfg.Radio.RigctldIP, cfg.Radio.RigctldPort))
	case config.RadioControlDirect:
		return OpenHamlib(cfg)
	default:
		return nil, fmt.Errorf("unknown radio control backend %q", cfg.Radio.Control)
	}
}

// Null is the no-op backend used when PTT is handled externally (VOX).
type Null struct {
	ptt       bool
	frequency int
	mode      string
}

func (n *Null) PTTOn() error {
	n.ptt = true
	return nil
}

func (n *Null) PTTOff() error {
	n.ptt = false
	return nil
}

func (n *Null) SetFrequency(hz int) error {
	n.frequency = hz
	return nil
}

func (n *Null) Frequency() (int, error) {
	return n.frequency, nil
}

func (n *Null) SetMode(mode string) error {
	n.mode = mode
	return nil
}

func (n *Null) Mode() (string, error) {
	return n.mode, nil
}

func (n *Null) Close() error {
	return nil
}
