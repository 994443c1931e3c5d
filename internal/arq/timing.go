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

import "time"

// Timing gathers every protocol interval. Tests shrink these to keep the
// loopback scenarios fast; the zero value is unusable, always start from
// DefaultTiming.
type Timing struct {
	// OpenRetryInterval spaces session open attempts.
	OpenRetryInterval time.Duration
	// OpenMaxRetries bounds session open attempts.
	OpenMaxRetries int
	// HeartbeatInterval spaces keep-alives in connected/idle states.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout fails the session after this long without any inbound
	// session frame (three missed heartbeats).
	HeartbeatTimeout time.Duration
	// BurstGrace is how long the receiving station waits after the last
	// burst frame before NACKing an incomplete burst.
	BurstGrace time.Duration
	// BurstMaxRetries bounds retransmissions of one burst.
	BurstMaxRetries int
	// CloseRepeats is how many ARQ_SESSION_CLOSE frames a teardown sends.
	CloseRepeats int
	// CloseSpacing separates the repeated close frames.
	CloseSpacing time.Duration
	// TimeoutScale multiplies the per-level burst timeouts, letting tests
	// run the table at millisecond scale.
	TimeoutScale float64
}

// DefaultTiming returns the production intervals.
func DefaultTiming() Timing {
	return Timing{
		OpenRetryInterval: 3 * time.Second,
		OpenMaxRetries:    15,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		BurstGrace:        500 * time.Millisecond,
		BurstMaxRetries:   3,
		CloseRepeats:      3,
		CloseSpacing:      2 * time.Second,
		TimeoutScale:      1,
	}
}

// BurstTimeout returns the response timeout for a burst sent at the given
// speed level.
func (t Timing) BurstTimeout(level int) time.Duration {
	timeout := SpeedModeFor(level).BurstTimeout
	if t.TimeoutScale > 0 {
		timeout = time.Duration(float64(timeout) * t.TimeoutScale)
	}
	return timeout
}
