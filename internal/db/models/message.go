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
	"time"

	"gorm.io/gorm"
)

// MessageDirection marks a message as sent or received by this station.
type MessageDirection string

const (
	DirectionTransmit MessageDirection = "transmit"
	DirectionReceive  MessageDirection = "receive"
)

// Message is one peer-to-peer message row. The ID embeds direction, origin,
// timestamp and a nonce ("tx_AA0AA-0_2024-03-01T12:00:00Z_<nonce>").
type Message struct {
	ID                  string           `json:"id" gorm:"primarykey"`
	Origin              Station          `json:"-" gorm:"foreignKey:OriginCallsign;references:Callsign"`
	OriginCallsign      string           `json:"origin"`
	Destination         Station          `json:"-" gorm:"foreignKey:DestinationCallsign;references:Callsign"`
	DestinationCallsign string           `json:"destination"`
	Body                string           `json:"body"`
	Timestamp           time.Time        `json:"timestamp"`
	Direction           MessageDirection `json:"direction"`
	StatusID            *uint            `json:"-"`
	Status              Status           `json:"status" gorm:"foreignKey:StatusID"`
	IsRead              bool             `json:"is_read"`
	Attempts            uint             `json:"attempts"`
	Attachments         []Attachment     `json:"attachments" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (m Message) TableName() string {
	return "p2p_messages"
}

// StatusName returns the status row name, or the empty string when unset.
func (m Message) StatusName() string {
	return m.Status.Name
}

func preloadMessage(db *gorm.DB) *gorm.DB {
	return db.Preload("Origin").Preload("Destination").Preload("Status").Preload("Attachments")
}

// FindMessageByID loads one message with its stations, status and attachments.
func FindMessageByID(db *gorm.DB, id string) (Message, error) {
	var message Message
	err := preloadMessage(db).Where("id = ?", id).First(&message).Error
	return message, err
}

// ListMessages returns all messages, newest first.
func ListMessages(db *gorm.DB) ([]Message, error) {
	var messages []Message
	err := preloadMessage(db).Order("timestamp desc").Find(&messages).Error
	return messages, err
}

// CountMessages returns the number of stored messages.
func CountMessages(db *gorm.DB) (int, error) {
	var count int64
	err := db.Model(&Message{}).Count(&count).Error
	return int(count), err
}

// FirstQueuedMessage returns the oldest message with status queued, or
// gorm.ErrRecordNotFound. Ties on timestamp are broken by insertion order.
func FirstQueuedMessage(db *gorm.DB) (Message, error) {
	var message Message
	err := preloadMessage(db).
		Joins("JOIN statuses ON statuses.id = p2p_messages.status_id").
		Where("statuses.name = ?", StatusQueued).
		Order("p2p_messages.timestamp asc").
		Order("p2p_messages.rowid asc").
		First(&message).Error
	return message, err
}
