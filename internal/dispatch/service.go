/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch runs a schedule request through policy lookup, opt-out
// evaluation, normalization, jitter and the best-effort sinks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/optout"
	"github.com/friendsincode/limitgate/internal/policy"
	"github.com/friendsincode/limitgate/internal/secrets"
	"github.com/friendsincode/limitgate/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// State is a pipeline state. OptedOut and Accepted are terminal.
type State string

const (
	StateEvaluating State = "EVALUATING"
	StateOptedOut   State = "OPTED_OUT"
	StateAccepted   State = "ACCEPTED"
)

// Outcome is the terminal result of Handle. Command is set only when accepted.
type Outcome struct {
	State         State
	Command       *command.NormalizedCommand
	JitterSeconds int64
}

// Store persists an accepted command with the downstream token.
type Store interface {
	Store(ctx context.Context, cmd command.NormalizedCommand, token string) error
}

// Notifier announces a dispatched command.
type Notifier interface {
	Notify(ctx context.Context, deviceID string) error
}

// Publisher receives decision events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service is safe for concurrent use.
type Service struct {
	policies policy.Lookup
	zones    optout.ZoneSource
	tokens   secrets.Provider
	store    Store
	notifier Notifier
	bus      Publisher
	rnd      optout.Rand
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTokens sets the source of the downstream authorization token.
func WithTokens(p secrets.Provider) Option { return func(s *Service) { s.tokens = p } }

// WithStore sets the command sink.
func WithStore(st Store) Option { return func(s *Service) { s.store = st } }

// WithNotifier sets the notification channel.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithPublisher sets where decision events go.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.bus = p } }

// WithRand overrides the jitter source.
func WithRand(r optout.Rand) Option { return func(s *Service) { s.rnd = r } }

// WithZones overrides the time zone source.
func WithZones(z optout.ZoneSource) Option { return func(s *Service) { s.zones = z } }

// New creates a Service. Sinks that are not configured are skipped.
func New(policies policy.Lookup, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		policies: policies,
		zones:    optout.SystemZones(),
		rnd:      optout.DefaultRand(),
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle evaluates req and, unless it falls in the device's quiet window,
// normalizes it, applies jitter and hands it to the sinks. Sink failures are
// logged and never change the outcome. Errors are policy.ErrDeviceNotFound,
// policy.ErrLookupUnavailable or optout.ErrInvalidPolicy.
func (s *Service) Handle(ctx context.Context, req command.ScheduleRequest) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.handle", attribute.String("device.id", req.DeviceID))
	defer span.End()

	pol, err := s.resolve(ctx, req.DeviceID)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.DecisionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Outcome{State: StateEvaluating}, err
	}

	log := s.logger.With().Str("device_id", req.DeviceID).Logger()

	if optout.IsOptOut(req.StartAt, req.Intervals(), pol) {
		telemetry.DecisionsTotal.WithLabelValues("opted_out").Inc()
		span.SetAttributes(attribute.String("dispatch.state", string(StateOptedOut)))
		log.Info().Str("start_at", req.StartAt.String()).Msg("schedule falls in opt-out window")
		s.publish(events.EventCommandOptedOut, events.Payload{
			"device_id": req.DeviceID,
			"interval":  req.Intervals(),
			"max_wh":    req.MaxWh.String(),
		})
		return Outcome{State: StateOptedOut}, nil
	}

	intervals, jitter := optout.ApplyJitter(req.Intervals(), s.rnd)
	cmd := command.NormalizedCommand{
		Type:      command.TypeLimit,
		DeviceID:  req.DeviceID,
		StartAt:   optout.NormalizeUTC(req.StartAt, pol.Location),
		Intervals: intervals,
		MaxWh:     req.MaxWh,
	}
	telemetry.DecisionsTotal.WithLabelValues("accepted").Inc()
	telemetry.JitterSeconds.Observe(float64(jitter))
	span.SetAttributes(
		attribute.String("dispatch.state", string(StateAccepted)),
		attribute.Int64("dispatch.jitter_seconds", jitter),
	)

	s.deliver(ctx, cmd, log)

	log.Info().Str("start_at", cmd.StartAt).Int64("jitter_seconds", jitter).Msg("schedule accepted")
	s.publish(events.EventCommandAccepted, events.Payload{
		"device_id":      cmd.DeviceID,
		"start_at_utc":   cmd.StartAt,
		"interval":       append([]int64(nil), cmd.Intervals...),
		"max_wh":         cmd.MaxWh.String(),
		"jitter_seconds": jitter,
	})
	return Outcome{State: StateAccepted, Command: &cmd, JitterSeconds: jitter}, nil
}

// Evaluation is the result of a dry run.
type Evaluation struct {
	OptOut     bool
	StartAtUTC string
	Decision   optout.Decision
	Policy     optout.Policy
}

// Evaluate runs lookup and opt-out evaluation only. Nothing is jittered,
// stored or announced.
func (s *Service) Evaluate(ctx context.Context, req command.ScheduleRequest) (Evaluation, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.evaluate", attribute.String("device.id", req.DeviceID))
	defer span.End()

	pol, err := s.resolve(ctx, req.DeviceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return Evaluation{}, err
	}
	d := optout.Evaluate(req.StartAt, req.Intervals(), pol)
	return Evaluation{
		OptOut:     d.OptOut,
		StartAtUTC: optout.NormalizeUTC(req.StartAt, pol.Location),
		Decision:   d,
		Policy:     pol,
	}, nil
}

func (s *Service) resolve(ctx context.Context, deviceID string) (optout.Policy, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.lookup")
	defer span.End()

	rec, err := s.policies.Lookup(ctx, deviceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return optout.Policy{}, err
	}
	pol, err := policy.Resolve(rec, s.zones)
	if err != nil {
		telemetry.RecordError(span, err)
		return optout.Policy{}, fmt.Errorf("device %s: %w", deviceID, err)
	}
	return pol, nil
}

// deliver runs the sinks. A missing token skips the store but still notifies.
func (s *Service) deliver(ctx context.Context, cmd command.NormalizedCommand, log zerolog.Logger) {
	if s.store != nil {
		token, err := s.token(ctx)
		if err != nil {
			telemetry.SinkFailuresTotal.WithLabelValues("token").Inc()
			log.Error().Err(err).Msg("authorization token unavailable; command not stored")
		} else {
			s.runSink(ctx, "store", log, func(ctx context.Context) error {
				return s.store.Store(ctx, cmd, token)
			})
		}
	}
	if s.notifier != nil {
		s.runSink(ctx, "notify", log, func(ctx context.Context) error {
			return s.notifier.Notify(ctx, cmd.DeviceID)
		})
	}
}

func (s *Service) token(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	ctx, span := telemetry.StartSpan(ctx, "dispatch.token")
	defer span.End()
	token, err := s.tokens.FetchToken(ctx)
	telemetry.RecordError(span, err)
	return token, err
}

func (s *Service) runSink(ctx context.Context, stage string, log zerolog.Logger, fn func(context.Context) error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch."+stage)
	defer span.End()

	start := time.Now()
	if err := fn(ctx); err != nil {
		telemetry.RecordError(span, err)
		telemetry.SinkFailuresTotal.WithLabelValues(stage).Inc()
		log.Error().Err(err).Str("stage", stage).Dur("elapsed", time.Since(start)).Msg("sink failed")
		return
	}
	log.Debug().Str("stage", stage).Dur("elapsed", time.Since(start)).Msg("sink done")
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, policy.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, optout.ErrInvalidPolicy):
		return "invalid_policy"
	default:
		return "lookup_failed"
	}
}
