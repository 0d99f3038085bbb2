/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/limitgate/internal/models"
	"github.com/friendsincode/limitgate/internal/telemetry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps policies in the device_policies table.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates a store over db. Call db.Migrate first.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Lookup implements Lookup.
func (s *SQLStore) Lookup(ctx context.Context, deviceID string) (Record, error) {
	start := time.Now()
	var row models.DevicePolicy
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&row).Error
	telemetry.PolicyLookupDuration.WithLabelValues("sql").Observe(time.Since(start).Seconds())

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrDeviceNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	return Record{Timezone: row.Timezone, OptOutStart: row.OptOutStart, OptOutEnd: row.OptOutEnd}, nil
}

// Put implements Writer as an upsert on device_id.
func (s *SQLStore) Put(ctx context.Context, deviceID string, rec Record) error {
	row := models.DevicePolicy{
		DeviceID:    deviceID,
		Timezone:    rec.Timezone,
		OptOutStart: rec.OptOutStart,
		OptOutEnd:   rec.OptOutEnd,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timezone", "opt_out_start", "opt_out_end", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

// List returns every stored policy keyed by device ID.
func (s *SQLStore) List(ctx context.Context) (map[string]Record, error) {
	var rows []models.DevicePolicy
	if err := s.db.WithContext(ctx).Order("device_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		out[row.DeviceID] = Record{Timezone: row.Timezone, OptOutStart: row.OptOutStart, OptOutEnd: row.OptOutEnd}
	}
	return out, nil
}
