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

// Attachment is one named binary blob attached to a message. Deleting the
// message cascades to its attachments.
type Attachment struct {
	ID        uint   `json:"-" gorm:"primarykey"`
	MessageID string `json:"-"`
	Name      string `json:"name"`
	DataType  string `json:"type"`
	Data      []byte `json:"data"`
}

func (a Attachment) TableName() string {
	return "attachments"
}

// FindAttachmentsByMessageID returns the attachments of one message.
func FindAttachmentsByMessageID(db *gorm.DB, messageID string) ([]Attachment, error) {
	var attachments []Attachment
	err := db.Where("message_id = ?", messageID).Find(&attachments).Error
	return attachments, err
}
