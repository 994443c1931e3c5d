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

package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLogLevel indicates that the provided log level is not valid.
	ErrInvalidLogLevel = errors.New("invalid log level provided")
	// ErrInvalidMyCall indicates that the station callsign is not valid.
	ErrInvalidMyCall = errors.New("invalid station callsign provided")
	// ErrInvalidMyGrid indicates that the gridsquare is not a 4- or 6-character locator.
	ErrInvalidMyGrid = errors.New("invalid gridsquare provided")
	// ErrInvalidSSIDList indicates an SSID outside 0-15 in the SSID list.
	ErrInvalidSSIDList = errors.New("invalid SSID list provided")
	// ErrInvalidSocketPort indicates that the control channel port is not valid.
	ErrInvalidSocketPort = errors.New("invalid control channel port provided")
	// ErrInvalidRadioControl indicates an unknown rig control backend.
	ErrInvalidRadioControl = errors.New("invalid radio control backend provided")
	// ErrInvalidTuningRange indicates fmin >= fmax.
	ErrInvalidTuningRange = errors.New("invalid tuning range provided")
	// ErrInvalidBeaconInterval indicates a non-positive beacon interval.
	ErrInvalidBeaconInterval = errors.New("invalid beacon interval provided")
	// ErrInvalidSpeedLevel indicates a max speed level outside the mode table.
	ErrInvalidSpeedLevel = errors.New("invalid max speed level provided")
	// ErrInvalidDatabaseFile indicates an empty database file path.
	ErrInvalidDatabaseFile = errors.New("invalid database file provided")
	// ErrInvalidTxLevel indicates a TX audio level outside 0-100.
	ErrInvalidTxLevel = errors.New("invalid tx audio level provided")
	// ErrInvalidMetricsPort indicates that the metrics port is not valid.
	ErrInvalidMetricsPort = errors.New("invalid metrics port provided")
	// ErrInvalidHMACSalt indicates a malformed LOCAL:REMOTE:salt entry.
	ErrInvalidHMACSalt = errors.New("invalid HMAC salt entry provided")
)

const (
	portMax       = 65535
	ssidListMax   = 15
	speedLevelMax = 4
)

// Validate checks the whole configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if err := c.Station.Validate(); err != nil {
		return err
	}
	if c.Audio.TxLevel < 0 || c.Audio.TxLevel > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidTxLevel, c.Audio.TxLevel)
	}
	switch c.Radio.Control {
	case RadioControlDisabled, RadioControlDirect, RadioControlRigctld:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRadioControl, c.Radio.Control)
	}
	if c.Network.SocketPort <= 0 || c.Network.SocketPort > portMax {
		return fmt.Errorf("%w: %d", ErrInvalidSocketPort, c.Network.SocketPort)
	}
	if err := c.Modem.Validate(); err != nil {
		return err
	}
	if c.Database.File == "" {
		return ErrInvalidDatabaseFile
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > portMax) {
		return fmt.Errorf("%w: %d", ErrInvalidMetricsPort, c.Metrics.Port)
	}
	return nil
}

// Validate checks the station identity section.
func (s *Station) Validate() error {
	if len(s.MyCall) < 3 {
		return fmt.Errorf("%w: %q", ErrInvalidMyCall, s.MyCall)
	}
	if len(s.MyGrid) != 4 && len(s.MyGrid) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidMyGrid, s.MyGrid)
	}
	for _, ssid := range s.SSIDList {
		if ssid < 0 || ssid > ssidListMax {
			return fmt.Errorf("%w: %d", ErrInvalidSSIDList, ssid)
		}
	}
	return nil
}

// Validate checks the modem behavior section.
func (m *Modem) Validate() error {
	if m.TuningRangeFMin >= m.TuningRangeFMax {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidTuningRange, m.TuningRangeFMin, m.TuningRangeFMax)
	}
	if m.BeaconInterval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBeaconInterval, m.BeaconInterval)
	}
	if m.MaxSpeedLevel < 0 || m.MaxSpeedLevel > speedLevelMax {
		return fmt.Errorf("%w: %d", ErrInvalidSpeedLevel, m.MaxSpeedLevel)
	}
	for _, entry := range m.HMACSalts {
		if strings.Count(entry, ":") != 2 {
			return fmt.Errorf("%w: %q", ErrInvalidHMACSalt, entry)
		}
	}
	return nil
}
