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

import (
	"gorm.io/gorm"
)

// Station is one callsign ever seen or messaged, keyed by its text form.
// Checksum is the CRC-24 address in lower-case hex, which makes the table the
// persistent crc->callsign mapping for address-only frames.
type Station struct {
	Callsign string `json:"callsign" gorm:"primarykey"`
	Checksum string `json:"checksum"`
}

func (s Station) TableName() string {
	return "stations"
}

// FindStationByChecksum resolves a CRC-24 hex address to a known callsign.
func FindStationByChecksum(db *gorm.DB, checksum string) (Station, error) {
	var station Station
	err := db.Where("checksum = ?", checksum).First(&station).Error
	return station, err
}

func StationExists(db *gorm.DB, callsign string) (bool, error) {
	var count int64
	err := db.Model(&Station{}).Where("callsign = ?", callsign).Limit(1).Count(&count).Error
	return count > 0, err
}

func ListStations(db *gorm.DB) ([]Station, error) {
	var stations []Station
	err := db.Order("callsign asc").Find(&stations).Error
	return stations, err
}
