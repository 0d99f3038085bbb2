/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// EventScheduleSent is the webhook event name for dispatched schedules.
const EventScheduleSent = "schedule.sent"

// Webhook headers.
const (
	HeaderEvent     = "X-Limitgate-Event"
	HeaderTimestamp = "X-Limitgate-Timestamp"
	HeaderSignature = "X-Limitgate-Signature"
)

// WebhookPayload is the body sent to generic webhook endpoints.
type WebhookPayload struct {
	Event     string    `json:"event"`
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Webhook posts signed JSON events to an arbitrary endpoint.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier. An empty secret disables signing.
func NewWebhook(url, secret string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		logger: logger.With().Str("component", "notify_webhook").Logger(),
	}
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, deviceID string) error {
	now := w.now().UTC()
	body, err := json.Marshal(WebhookPayload{
		Event:     EventScheduleSent,
		DeviceID:  deviceID,
		Message:   Message(deviceID),
		Timestamp: now,
	})
	if err != nil {
		return fmt.Errorf("%w: encode webhook payload: %v", ErrNotificationFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build webhook request: %v", ErrNotificationFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Limitgate-Webhook/1.0")
	req.Header.Set(HeaderEvent, EventScheduleSent)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	if w.secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: %v", ErrNotificationFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", ErrNotificationFailure, resp.StatusCode)
	}
	w.logger.Debug().Str("device_id", deviceID).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
