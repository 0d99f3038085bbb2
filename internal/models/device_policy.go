/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// DevicePolicy stores a device's time zone and local quiet window.
type DevicePolicy struct {
	DeviceID    string    `gorm:"type:varchar(128);primaryKey" json:"device_id"`
	Timezone    string    `gorm:"type:varchar(64);not null" json:"timezone"`
	OptOutStart string    `gorm:"type:varchar(5);not null" json:"opt_out_start"` // HH:MM local
	OptOutEnd   string    `gorm:"type:varchar(5);not null" json:"opt_out_end"`   // HH:MM local
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (DevicePolicy) TableName() string {
	return "device_policies"
}
