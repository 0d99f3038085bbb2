/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SlackConfig configures the incoming-webhook notifier.
type SlackConfig struct {
	WebhookURL string
	RatePerSec int
	Timeout    time.Duration
}

// Slack posts to a Slack incoming webhook.
type Slack struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type slackMessage struct {
	Text string `json:"text"`
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig, logger zerolog.Logger) *Slack {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Slack{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: cfg.Timeout},
		// Burst equals the per-second rate so short spikes are not delayed.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		logger:  logger.With().Str("component", "notify_slack").Logger(),
	}
}

// Notify implements Notifier. Over the rate limit it fails immediately
// instead of waiting for a token.
func (s *Slack) Notify(ctx context.Context, deviceID string) error {
	if !s.limiter.Allow() {
		return fmt.Errorf("%w: slack rate limit exceeded", ErrNotificationFailure)
	}

	body, err := json.Marshal(slackMessage{Text: Message(deviceID)})
	if err != nil {
		return fmt.Errorf("%w: encode slack message: %v", ErrNotificationFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build slack request: %v", ErrNotificationFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slack: %v", ErrNotificationFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: slack returned %d", ErrNotificationFailure, resp.StatusCode)
	}
	s.logger.Debug().Str("device_id", deviceID).Msg("slack notification sent")
	return nil
}
