/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchOutcome is the terminal state of a schedule decision.
type DispatchOutcome string

const (
	DispatchAccepted DispatchOutcome = "accepted"
	DispatchOptedOut DispatchOutcome = "opted_out"
)

// CommandDispatch records one schedule decision.
type CommandDispatch struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID      string          `gorm:"type:varchar(128);index:idx_dispatch_device;not null" json:"device_id"`
	Outcome       DispatchOutcome `gorm:"type:varchar(16);index;not null" json:"outcome"`
	StartAtUTC    string          `gorm:"type:varchar(32)" json:"start_at_utc,omitempty"` // empty when opted out
	Intervals     []int64         `gorm:"type:text;serializer:json" json:"interval,omitempty"`
	MaxWh         string          `gorm:"type:varchar(64)" json:"max_wh"`
	JitterSeconds int64           `json:"jitter_seconds"`
	CreatedAt     time.Time       `gorm:"index:idx_dispatch_device" json:"created_at"`
}

// TableName returns the table name for GORM.
func (CommandDispatch) TableName() string {
	return "command_dispatches"
}

// NewCommandDispatch creates a record with a fresh ID.
func NewCommandDispatch(deviceID string, outcome DispatchOutcome) *CommandDispatch {
	return &CommandDispatch{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Outcome:  outcome,
	}
}
