/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/limitgate/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.DevicePolicy{},
		&models.CommandDispatch{},
	); err != nil {
		return err
	}

	if err := applyPostgresClockFormatGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresClockFormatGuard rejects opt-out bounds that are not HH:MM at
// the database level. Other dialects rely on policy validation in the API.
func applyPostgresClockFormatGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_constraint WHERE conname = 'chk_device_policies_clock_format'
  ) THEN
    ALTER TABLE device_policies
      ADD CONSTRAINT chk_device_policies_clock_format
      CHECK (opt_out_start ~ '^[0-9]{1,2}:[0-9]{2}$' AND opt_out_end ~ '^[0-9]{1,2}:[0-9]{2}$');
  END IF;
END;
$$;
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres clock format guard: %w", err)
	}
	return nil
}
