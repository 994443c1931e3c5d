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
	"context"
	"log/slog"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
)

// queuePollInterval is how often the queued-message worker looks for work.
const queuePollInterval = 2 * time.Second

// RunQueueWorker picks up the oldest queued message whenever the modem is
// free and pushes it through an ARQ transfer. It returns when ctx is
// cancelled.
func (e *Engine) RunQueueWorker(ctx context.Context) {
	if e.store == nil {
		return
	}
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pickupQueued()
		}
	}
}

func (e *Engine) pickupQueued() {
	if e.anyActiveSession() != nil || e.state.RunState() != modem.RunStateIdle {
		return
	}

	msg, err := e.store.FirstQueued()
	if err != nil {
		slog.Error("Could not query queued messages", "error", err)
		return
	}
	if msg == nil {
		return
	}

	remote, err := frame.ParseCallsign(msg.DestinationCallsign)
	if err != nil {
		slog.Error("Queued message has invalid destination", "id", msg.ID, "error", err)
		if setErr := e.store.SetStatus(msg.ID, models.StatusAborted); setErr != nil {
			slog.Error("Could not abort malformed message", "id", msg.ID, "error", setErr)
		}
		return
	}

	if err := e.store.IncrementAttempts(msg.ID); err != nil {
		slog.Error("Could not increment attempts", "id", msg.ID, "error", err)
		return
	}
	if err := e.store.SetStatus(msg.ID, models.StatusTransmitting); err != nil {
		slog.Error("Could not mark message transmitting", "id", msg.ID, "error", err)
		return
	}

	slog.Info("Picking up queued message", "id", msg.ID, "dxcall", remote.String())
	if _, err := e.SendRaw(remote, []byte(msg.Body), 0, msg.ID); err != nil {
		slog.Error("Could not start transfer for queued message", "id", msg.ID, "error", err)
		if setErr := e.store.SetStatus(msg.ID, models.StatusFailed); setErr != nil {
			slog.Error("Could not mark message failed", "id", msg.ID, "error", setErr)
		}
	}
}
