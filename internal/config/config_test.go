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

package config_test

import (
	"errors"
	"testing"

	"github.com/kronenpj/FreeDATA-experiments/internal/config"
)

func makeValidConfig() config.Config {
	return config.Config{
		LogLevel: config.LogLevelInfo,
		Station: config.Station{
			MyCall:   "AA0AA",
			MyGrid:   "JN12AA",
			SSIDList: []int{0, 1, 2},
		},
		Audio: config.Audio{
			TxLevel: 50,
		},
		Radio: config.Radio{
			Control: config.RadioControlDisabled,
		},
		Network: config.Network{
			Bind:       "127.0.0.1",
			SocketPort: 3000,
		},
		Modem: config.Modem{
			Listen:          true,
			TuningRangeFMin: -50,
			TuningRangeFMax: 50,
			BeaconInterval:  300,
			MaxSpeedLevel:   4,
		},
		Database: config.Database{
			File: "test.db",
		},
	}
}

func TestValidateValid(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.LogLevel = "verbose"
	if !errors.Is(cfg.Validate(), config.ErrInvalidLogLevel) {
		t.Errorf("Expected ErrInvalidLogLevel, got %v", cfg.Validate())
	}
}

func TestValidateMyCall(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Station.MyCall = "A"
	if !errors.Is(cfg.Validate(), config.ErrInvalidMyCall) {
		t.Errorf("Expected ErrInvalidMyCall, got %v", cfg.Validate())
	}
}

func TestValidateMyGrid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		grid string
		ok   bool
	}{
		{"six chars", "JN12AA", true},
		{"four chars", "JN12", true},
		{"five chars", "JN12A", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := makeValidConfig()
			cfg.Station.MyGrid = tt.grid
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected nil error, got %v", err)
			}
			if !tt.ok && !errors.Is(err, config.ErrInvalidMyGrid) {
				t.Errorf("Expected ErrInvalidMyGrid, got %v", err)
			}
		})
	}
}

func TestValidateSSIDList(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Station.SSIDList = []int{0, 16}
	if !errors.Is(cfg.Validate(), config.ErrInvalidSSIDList) {
		t.Errorf("Expected ErrInvalidSSIDList, got %v", cfg.Validate())
	}
}

func TestValidateSocketPort(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		port int
	}{
		{"zero", 0},
		{"negative", -1},
		{"too high", 70000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := makeValidConfig()
			cfg.Network.SocketPort = tt.port
			if !errors.Is(cfg.Validate(), config.ErrInvalidSocketPort) {
				t.Errorf("Expected ErrInvalidSocketPort for port %d, got %v", tt.port, cfg.Validate())
			}
		})
	}
}

func TestValidateRadioControl(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Radio.Control = "telepathy"
	if !errors.Is(cfg.Validate(), config.ErrInvalidRadioControl) {
		t.Errorf("Expected ErrInvalidRadioControl, got %v", cfg.Validate())
	}
}

func TestValidateTuningRange(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Modem.TuningRangeFMin = 50
	cfg.Modem.TuningRangeFMax = -50
	if !errors.Is(cfg.Validate(), config.ErrInvalidTuningRange) {
		t.Errorf("Expected ErrInvalidTuningRange, got %v", cfg.Validate())
	}
}

func TestValidateHMACSalts(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Modem.HMACSalts = []string{"AA0AA-0:DJ2LS-0:secret"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	cfg.Modem.HMACSalts = []string{"missing-fields"}
	if !errors.Is(cfg.Validate(), config.ErrInvalidHMACSalt) {
		t.Errorf("Expected ErrInvalidHMACSalt, got %v", cfg.Validate())
	}
}

func TestValidateMetrics(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	if !errors.Is(cfg.Validate(), config.ErrInvalidMetricsPort) {
		t.Errorf("Expected ErrInvalidMetricsPort, got %v", cfg.Validate())
	}
}
