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

// Package migration brings the message database schema up to date with
// numbered gormigrate migrations.
package migration

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"gorm.io/gorm"
)

// Migrate runs all pending migrations. On an empty database the init schema
// creates every table and seeds the status names.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		addAttemptsColumn202403150100(db),
		addIsReadIndex202405200100(db),
	})

	m.InitSchema(func(tx *gorm.DB) error {
		err := tx.AutoMigrate(
			&models.Station{},
			&models.Status{},
			&models.Message{},
			&models.Attachment{},
		)
		if err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
		return seedStatuses(tx)
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("could not migrate: %w", err)
	}

	// Seeding is idempotent; re-running covers databases created before a
	// status name existed.
	return seedStatuses(db)
}

func seedStatuses(db *gorm.DB) error {
	for _, name := range models.AllStatuses() {
		var count int64
		if err := db.Model(&models.Status{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("could not check status %q: %w", name, err)
		}
		if count == 0 {
			if err := db.Create(&models.Status{Name: name}).Error; err != nil {
				return fmt.Errorf("could not seed status %q: %w", name, err)
			}
		}
	}
	return nil
}

// addAttemptsColumn202403150100 backfills the attempts counter on databases
// created before retry tracking existed.
func addAttemptsColumn202403150100(db *gorm.DB) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202403150100",
		Migrate: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&models.Message{}) && !tx.Migrator().HasColumn(&models.Message{}, "attempts") {
				if err := tx.Migrator().AddColumn(&models.Message{}, "attempts"); err != nil {
					return fmt.Errorf("could not add column: %w", err)
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&models.Message{}) && tx.Migrator().HasColumn(&models.Message{}, "attempts") {
				if err := tx.Migrator().DropColumn(&models.Message{}, "attempts"); err != nil {
					return fmt.Errorf("could not drop column: %w", err)
				}
			}
			return nil
		},
	}
}

// addIsReadIndex202405200100 indexes is_read for the unread-count query used
// by clients.
func addIsReadIndex202405200100(db *gorm.DB) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202405200100",
		Migrate: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&models.Message{}) && !tx.Migrator().HasIndex(&models.Message{}, "idx_p2p_messages_is_read") {
				return tx.Exec("CREATE INDEX idx_p2p_messages_is_read ON p2p_messages(is_read)").Error
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Message{}, "idx_p2p_messages_is_read") {
				return tx.Exec("DROP INDEX idx_p2p_messages_is_read").Error
			}
			return nil
		},
	}
}
