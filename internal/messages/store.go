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

// Package messages is the persisted message log with its queued-retry
// lifecycle. Add, Delete and ApplyUpdate run inside one transaction, and
// every mutation except IncrementAttempts is announced with a
// message_db_change event. Delete and ApplyUpdate report failures as result
// records; Add, SetStatus, IncrementAttempts and MarkRead return errors.
package messages

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kronenpj/FreeDATA-experiments/internal/db/models"
	"github.com/kronenpj/FreeDATA-experiments/internal/event"
	"github.com/kronenpj/FreeDATA-experiments/internal/frame"
	"github.com/rs/xid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the message ID does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrBadTransition indicates a status change violating the monotone
	// lifecycle.
	ErrBadTransition = errors.New("invalid status transition")
)

// Result is the outcome record returned to the control surface.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(format string, args ...any) Result {
	return Result{Status: "success", Message: fmt.Sprintf(format, args...)}
}

func failure(err error) Result {
	return Result{Status: "failure", Message: err.Error()}
}

// NewAttachment is one attachment of a message being submitted.
type NewAttachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// NewMessage is a message being submitted to the store.
type NewMessage struct {
	Origin      string
	Destination string
	Body        string
	Attachments []NewAttachment
	Timestamp   time.Time
}

// Update selects the mutable fields of an update; nil leaves a field alone.
type Update struct {
	Body   *string
	Status *string
}

// Store wraps the message database. All operations are safe for concurrent
// use; SQLite row locking serializes writers underneath gorm.
type Store struct {
	db     *gorm.DB
	events *event.Manager
}

// NewStore creates a message store over an opened database.
func NewStore(db *gorm.DB, events *event.Manager) *Store {
	return &Store{db: db, events: events}
}

// BuildID forms a message ID: tx|rx_<origin>_<RFC3339 timestamp>_<nonce>.
func BuildID(direction models.MessageDirection, origin string, ts time.Time) string {
	prefix := "rx"
	if direction == models.DirectionTransmit {
		prefix = "tx"
	}
	return fmt.Sprintf("%s_%s_%s_%s", prefix, origin, ts.UTC().Format(time.RFC3339), xid.New().String())
}

// TimestampFromID recovers the timestamp embedded in a message ID.
func TimestampFromID(id string) (time.Time, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		return time.Time{}, fmt.Errorf("%w: malformed id %q", ErrNotFound, id)
	}
	ts, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp in id %q: %w", id, err)
	}
	return ts, nil
}

// Add inserts a message with its attachments atomically and returns the new
// ID. Both station rows are created on first contact.
func (s *Store) Add(msg NewMessage, direction models.MessageDirection, status string) (string, error) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	id := BuildID(direction, msg.Origin, ts)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := getOrCreateStation(tx, msg.Origin); err != nil {
			return err
		}
		if err := getOrCreateStation(tx, msg.Destination); err != nil {
			return err
		}
		statusRow, err := models.FindStatusByName(tx, status)
		if err != nil {
			return fmt.Errorf("unknown status %q: %w", status, err)
		}

		row := models.Message{
			ID:                  id,
			OriginCallsign:      msg.Origin,
			DestinationCallsign: msg.Destination,
			Body:                msg.Body,
			Timestamp:           ts.UTC(),
			Direction:           direction,
			StatusID:            &statusRow.ID,
			IsRead:              direction == models.DirectionTransmit,
		}
		for _, att := range msg.Attachments {
			row.Attachments = append(row.Attachments, models.Attachment{
				Name:     att.Name,
				DataType: att.Type,
				Data:     att.Data,
			})
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return "", fmt.Errorf("could not add message: %w", err)
	}

	slog.Debug("Added message to database", "id", id, "direction", direction)
	s.events.PublishType(event.TopicMessageDBChange, map[string]any{"id": id})
	return id, nil
}

// Get loads one message.
func (s *Store) Get(id string) (models.Message, error) {
	msg, err := models.FindMessageByID(s.db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msg, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return msg, err
}

// List returns every stored message, newest first.
func (s *Store) List() ([]models.Message, error) {
	return models.ListMessages(s.db)
}

// Delete removes a message and its attachment rows in one transaction.
// Station rows are kept.
func (s *Store) Delete(id string) Result {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&msg).Error
	})
	if err != nil {
		return failure(err)
	}
	s.events.PublishType(event.TopicMessageDBChange, map[string]any{"id": id})
	return success("Message %s deleted", id)
}

// ApplyUpdate mutates body and/or status of a message. Status changes are
// checked against the monotone lifecycle.
func (s *Store) ApplyUpdate(id string, update Update) Result {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		msg, err := models.FindMessageByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		if update.Body != nil {
			msg.Body = *update.Body
		}
		if update.Status != nil {
			if !models.ValidStatusTransition(msg.StatusName(), *update.Status) {
				return fmt.Errorf("%w: %s -> %s", ErrBadTransition, msg.StatusName(), *update.Status)
			}
			statusRow, err := models.FindStatusByName(tx, *update.Status)
			if err != nil {
				return fmt.Errorf("unknown status %q: %w", *update.Status, err)
			}
			msg.StatusID = &statusRow.ID
			msg.Status = statusRow
		}
		return tx.Save(&msg).Error
	})
	if err != nil {
		return failure(err)
	}
	s.events.PublishType(event.TopicMessageDBChange, map[string]any{"id": id})
	return success("Message %s updated", id)
}

// SetStatus is the lifecycle-checked status transition used by the session
// engine.
func (s *Store) SetStatus(id, status string) error {
	res := s.ApplyUpdate(id, Update{Status: &status})
	if res.Status != "success" {
		return errors.New(res.Message)
	}
	return nil
}

// FirstQueued returns the oldest queued message, or nil when the queue is
// empty.
func (s *Store) FirstQueued() (*models.Message, error) {
	msg, err := models.FirstQueuedMessage(s.db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// IncrementAttempts bumps the retry counter. The counter never decreases.
func (s *Store) IncrementAttempts(id string) error {
	result := s.db.Model(&models.Message{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkRead flags a message as read by the operator.
func (s *Store) MarkRead(id string) error {
	result := s.db.Model(&models.Message{}).Where("id = ?", id).UpdateColumn("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.events.PublishType(event.TopicMessageDBChange, map[string]any{"id": id})
	return nil
}

// CallsignByChecksum resolves a CRC-24 hex address through the stations
// table.
func (s *Store) CallsignByChecksum(checksum string) (string, bool) {
	station, err := models.FindStationByChecksum(s.db, strings.ToLower(checksum))
	if err != nil {
		return "", false
	}
	return station.Callsign, true
}

func getOrCreateStation(tx *gorm.DB, callsign string) error {
	exists, err := models.StationExists(tx, callsign)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	call, err := frame.ParseCallsign(callsign)
	if err != nil {
		return err
	}
	slog.Debug("Updating station list", "callsign", callsign)
	return tx.Create(&models.Station{Callsign: callsign, Checksum: call.ChecksumHex()}).Error
}
