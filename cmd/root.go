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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/kronenpj/FreeDATA-experiments/internal/arq"
	"github.com/kronenpj/FreeDATA-experiments/internal/audio"
	"github.com/kronenpj/FreeDATA-experiments/internal/beacon"
	"github.com/kronenpj/FreeDATA-experiments/internal/codec"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/control"
	"github.com/kronenpj/FreeDATA-experiments/internal/db"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
	"github.com/kronenpj/FreeDATA-experiments/internal/mesh"
	"github.com/kronenpj/FreeDATA-experiments/internal/messages"
	"github.com/kronenpj/FreeDATA-experiments/internal/metrics"
	"github.com/kronenpj/FreeDATA-experiments/internal/modem"
	"github.com/kronenpj/FreeDATA-experiments/internal/radio"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewCommand builds the root command.
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "freedata-tnc",
		Short:   "HF ARQ modem and TNC",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("FreeDATA-experiments - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	events := event.NewManager()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.CreateMetricsServer(cfg, registry); err != nil {
				slog.Error("Failed to start metrics server", "error", err)
			}
		}()
	}

	database, err := db.MakeDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open message database: %w", err)
	}
	store := messages.NewStore(database, events)

	state, err := modem.NewState(cfg, events)
	if err != nil {
		return fmt.Errorf("invalid station configuration: %w", err)
	}
	busy := modem.NewChannelBusy(events)
	names := frame.NewNames()
	heardList := heard.NewList()
	rxbuf := modem.NewRXBuffer()

	if err := audio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			slog.Error("Failed to terminate audio", "error", err)
		}
	}()
	device, err := audio.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open audio devices: %w", err)
	}
	defer device.Close()

	rig, err := radio.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open rig control: %w", err)
	}
	defer rig.Close()

	sigMode := codec.ModeSig0
	if cfg.Modem.EnableFSK {
		sigMode = codec.ModeFSKLDPC0
	}
	dsp := codec.NewPassthrough()

	sched := modem.NewScheduler(dsp, device, rig, state, busy, m)
	dispatcher := modem.NewDispatcher(dsp, device, state, busy, names, heardList, m)

	engine, err := arq.NewEngine(cfg, arq.DefaultTiming(), sched, state, store, rxbuf, names, events, m)
	if err != nil {
		return fmt.Errorf("failed to create session engine: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	b := beacon.New(state, sched, events, engine, sigMode, scheduler)

	var meshComp *mesh.Mesh
	if cfg.Modem.EnableMesh {
		meshComp = mesh.New(state, sched, events, sigMode)
		dispatcher.SetMeshSink(meshComp)
	}
	dispatcher.SetSessionSink(engine)
	dispatcher.SetStatelessSink(b)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine.Start(runCtx)
	scheduler.Start()

	server := control.NewServer(cfg, control.Deps{
		State:  state,
		Sched:  sched,
		Busy:   busy,
		Engine: engine,
		Store:  store,
		RXBuf:  rxbuf,
		Heard:  heardList,
		Beacon: b,
		Mesh:   meshComp,
		Radio:  rig,
	}, events)
	if err := server.Start(runCtx); err != nil {
		return err
	}

	g, loopCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		sched.Run(loopCtx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(loopCtx)
		return nil
	})
	g.Go(func() error {
		engine.RunQueueWorker(loopCtx)
		return nil
	})

	slog.Info("Modem ready", "mycall", state.MyCall().String(), "grid", state.MyGrid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	sig := <-sigCh
	slog.Error("Shutting down due to signal", "signal", sig)

	cancel()
	server.Stop()
	if err := scheduler.Shutdown(); err != nil {
		slog.Error("Failed to stop scheduler", "error", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Wait()
		engine.Wait()
	}()
	select {
	case <-done:
		slog.Info("Shutdown safely completed")
	case <-time.After(shutdownTimeout):
		slog.Error("Shutdown timed out")
	}
	return nil
}

// loadConfig loads the configuration from context
func loadConfig(ctx context.Context) (*config.Config, error) {
	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config from context: %w", err)
	}

	cfg, err := c.LoadWithoutValidation()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// setupLogger configures the structured logger
func setupLogger(cfg *config.Config) {
	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	default:
		// Fall back to info level for unrecognized log levels to prevent nil logger panic
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)
}
