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

package models

import "gorm.io/gorm"

// Message status names. The statuses table is prepopulated with these on
// first run.
const (
	StatusQueued         = "queued"
	StatusTransmitting   = "transmitting"
	StatusTransmitted    = "transmitted"
	StatusReceived       = "received"
	StatusFailed         = "failed"
	StatusFailedChecksum = "failed_checksum"
	StatusAborted        = "aborted"
)

// AllStatuses lists every status name in seeding order.
func AllStatuses() []string {
	return []string{
		StatusTransmitting,
		StatusTransmitted,
		StatusReceived,
		StatusFailed,
		StatusFailedChecksum,
		StatusAborted,
		StatusQueued,
	}
}

// Status is one row of the message status lookup table.
type Status struct {
	ID   uint   `json:"id" gorm:"primarykey"`
	Name string `json:"name" gorm:"uniqueIndex"`
}

func (s Status) TableName() string {
	return "statuses"
}

// FindStatusByName returns the status row for a status name.
func FindStatusByName(db *gorm.DB, name string) (Status, error) {
	var status Status
	err := db.Where("name = ?", name).First(&status).Error
	return status, err
}

// ValidStatusTransition reports whether a message status change follows the
// monotone lifecycle: outbound queued -> transmitting -> one of transmitted,
// failed or aborted; inbound messages only ever hold received or
// failed_checksum.
func ValidStatusTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusTransmitting || to == StatusAborted
	case StatusTransmitting:
		return to == StatusTransmitted || to == StatusFailed || to == StatusAborted
	default:
		return false
	}
}
