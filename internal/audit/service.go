/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit records schedule decisions published on the event bus.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/models"
	"github.com/friendsincode/limitgate/internal/telemetry"
)

// Service handles audit logging by subscribing to decision events and storing
// one CommandDispatch row per decision.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to decision events and records them until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	accepted := s.bus.Subscribe(events.EventCommandAccepted)
	optedOut := s.bus.Subscribe(events.EventCommandOptedOut)

	defer func() {
		s.bus.Unsubscribe(events.EventCommandAccepted, accepted)
		s.bus.Unsubscribe(events.EventCommandOptedOut, optedOut)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-accepted:
			s.record(ctx, models.DispatchAccepted, payload)

		case payload := <-optedOut:
			s.record(ctx, models.DispatchOptedOut, payload)
		}
	}
}

func (s *Service) record(ctx context.Context, outcome models.DispatchOutcome, payload events.Payload) {
	deviceID, _ := payload["device_id"].(string)
	entry := models.NewCommandDispatch(deviceID, outcome)

	if startAt, ok := payload["start_at_utc"].(string); ok {
		entry.StartAtUTC = startAt
	}
	if intervals, ok := payload["interval"].([]int64); ok {
		entry.Intervals = intervals
	}
	if maxWh, ok := payload["max_wh"].(string); ok {
		entry.MaxWh = maxWh
	}
	if jitter, ok := payload["jitter_seconds"].(int64); ok {
		entry.JitterSeconds = jitter
	}

	if err := s.Log(ctx, entry); err != nil {
		telemetry.SinkFailuresTotal.WithLabelValues("audit").Inc()
		s.logger.Error().Err(err).
			Str("device_id", deviceID).
			Str("outcome", string(outcome)).
			Msg("failed to record dispatch")
	}
}

// Log records a dispatch directly.
func (s *Service) Log(ctx context.Context, entry *models.CommandDispatch) error {
	if entry.DeviceID == "" {
		return fmt.Errorf("dispatch without device id")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("outcome", string(entry.Outcome)).
		Str("id", entry.ID).
		Msg("dispatch recorded")

	return nil
}

// QueryFilters defines filters for querying dispatches.
type QueryFilters struct {
	DeviceID  *string
	Outcome   *models.DispatchOutcome
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves dispatches with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.CommandDispatch, int64, error) {
	var rows []models.CommandDispatch
	var total int64

	query := s.db.WithContext(ctx).Model(&models.CommandDispatch{})

	if filters.DeviceID != nil {
		query = query.Where("device_id = ?", *filters.DeviceID)
	}
	if filters.Outcome != nil {
		query = query.Where("outcome = ?", *filters.Outcome)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}
