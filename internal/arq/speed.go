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

package arq

import (
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
)

// SpeedMode is one row of the static speed table: the waveform, its frame
// payload size, how many frames form a burst, and the response timeout for a
// burst sent at this level.
type SpeedMode struct {
	Mode           codec.Mode
	PayloadBytes   int
	FramesPerBurst int
	BurstTimeout   time.Duration
}

// speedTable is ordered from most robust to fastest. Narrow-bandwidth
// stations cap themselves to the first three levels.
var speedTable = []SpeedMode{
	{Mode: codec.ModeDatac13, PayloadBytes: 32, FramesPerBurst: 1, BurstTimeout: 4 * time.Second},
	{Mode: codec.ModeDatac4, PayloadBytes: 64, FramesPerBurst: 2, BurstTimeout: 6 * time.Second},
	{Mode: codec.ModeDatac3, PayloadBytes: 128, FramesPerBurst: 3, BurstTimeout: 8 * time.Second},
	{Mode: codec.ModeDatac1, PayloadBytes: 256, FramesPerBurst: 4, BurstTimeout: 12 * time.Second},
	{Mode: codec.ModeDatac1, PayloadBytes: 512, FramesPerBurst: 5, BurstTimeout: 20 * time.Second},
}

// MaxSpeedLevel is the highest level in the table.
const MaxSpeedLevel = 4

// narrowSpeedCeiling caps stations whose tuning range cannot carry the wide
// mode family.
const narrowSpeedCeiling = 2

// SpeedModeFor returns the table row for a level, clamping out-of-range
// levels into the table.
func SpeedModeFor(level int) SpeedMode {
	return speedTable[clampSpeed(level)]
}

func clampSpeed(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxSpeedLevel {
		return MaxSpeedLevel
	}
	return level
}
