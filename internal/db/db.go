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

// Package db opens the embedded message database and runs migrations.
package db

import (
	"fmt"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
	"github.com/kronenpj/FreeDATA-experiments/internal/db/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxIdleTime = 10 * time.Minute

// MakeDB opens the SQLite message database and brings the schema up to date.
// An empty file name opens an in-memory database, used by tests.
func MakeDB(cfg *config.Config) (*gorm.DB, error) {
	file := ""
	if cfg != nil {
		file = cfg.Database.File
	}
	if file == ":memory:" {
		file = ""
	}

	database, err := gorm.Open(sqlite.Open(file), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := migration.Migrate(database); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("could not access database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(runtime.GOMAXPROCS(0))
	// SQLite serializes writers; a single open connection avoids lock churn.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	return database, nil
}
