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

package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// CreateMetricsServer serves the registry over HTTP until the process exits.
func CreateMetricsServer(cfg *config.Config, reg *prometheus.Registry) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Metrics.Bind, cfg.Metrics.Port),
		ReadHeaderTimeout: readHeaderTimeout,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	slog.Info("Metrics server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
