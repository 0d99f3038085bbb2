/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus publishes accepted commands to NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/storage"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "limitgate",
		Name:          "limitgate",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes accepted commands on <prefix>.commands.<devId>
// with the downstream token in the Authorization header.
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger zerolog.Logger
}

// Connect dials NATS and returns a publisher.
func Connect(cfg NATSConfig, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")
	return NewNATSPublisher(nc, cfg.SubjectPrefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "limitgate"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject a device's commands are published on.
func (p *NATSPublisher) Subject(deviceID string) string {
	return p.prefix + ".commands." + subjectToken(deviceID)
}

// Store implements storage.CommandSink.
func (p *NATSPublisher) Store(ctx context.Context, cmd command.NormalizedCommand, token string) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encode command: %v", storage.ErrStorageUnavailable, err)
	}

	msg := nats.NewMsg(p.Subject(cmd.DeviceID))
	msg.Data = data
	msg.Header.Set("Authorization", token)
	msg.Header.Set("Content-Type", "application/json")

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: publish: %v", storage.ErrStorageUnavailable, err)
	}
	// Flush so a dead server surfaces as an error for this command.
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %v", storage.ErrStorageUnavailable, err)
	}
	p.logger.Debug().Str("subject", msg.Subject).Msg("command published")
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// subjectToken makes deviceID safe as a single subject token.
func subjectToken(deviceID string) string {
	if deviceID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, deviceID)
}
