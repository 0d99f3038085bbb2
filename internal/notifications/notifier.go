/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications tells operators that a schedule was sent.
package notifications

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotificationFailure wraps every delivery failure.
var ErrNotificationFailure = errors.New("notification failed")

// Notifier announces that a command was dispatched for a device.
type Notifier interface {
	Notify(ctx context.Context, deviceID string) error
}

// Multi notifies every channel and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, deviceID string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, deviceID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if !errors.Is(err, ErrNotificationFailure) {
		err = fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return err
}

// Message is the operator-facing text for a dispatched schedule.
func Message(deviceID string) string {
	return fmt.Sprintf("Schedule for device %s was sent", deviceID)
}
