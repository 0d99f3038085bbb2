/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/dispatch"
	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/optout"
	"github.com/friendsincode/limitgate/internal/policy"
	"github.com/friendsincode/limitgate/internal/telemetry"
)

// maxBodyBytes caps schedule and policy request bodies.
const maxBodyBytes = 1 << 20

// Dispatcher runs schedule requests. *dispatch.Service satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, req command.ScheduleRequest) (dispatch.Outcome, error)
	Evaluate(ctx context.Context, req command.ScheduleRequest) (dispatch.Evaluation, error)
}

// Publisher receives policy change events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// API exposes HTTP handlers.
type API struct {
	dispatcher Dispatcher
	policies   policy.Lookup
	zones      optout.ZoneSource
	bus        Publisher
	logger     zerolog.Logger
}

// New creates the API router wrapper. bus may be nil.
func New(dispatcher Dispatcher, policies policy.Lookup, bus Publisher, logger zerolog.Logger) *API {
	return &API{
		dispatcher: dispatcher,
		policies:   policies,
		zones:      optout.SystemZones(),
		bus:        bus,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers the schedule and policy endpoints.
func (a *API) Routes(r chi.Router) {
	r.Post("/", a.handleSchedule)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", a.handleSchedule)
			r.Post("/evaluate", a.handleEvaluate)
		})

		r.Route("/devices/{deviceID}/policy", func(r chi.Router) {
			r.Get("/", a.handlePolicyGet)
			r.Put("/", a.handlePolicyPut)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return
	}
	status, resp := a.Schedule(r.Context(), body)
	writeJSON(w, status, resp)
}

// Schedule parses body, runs it through the dispatcher and returns the HTTP
// status and JSON body to send. It is shared by the HTTP and Lambda surfaces.
func (a *API) Schedule(ctx context.Context, body []byte) (int, any) {
	req, err := command.ParseRequest(body)
	if err != nil {
		telemetry.DecisionsTotal.WithLabelValues("malformed").Inc()
		a.logger.Debug().Err(err).Msg("rejected malformed schedule request")
		return ErrorResponse(err)
	}

	out, err := a.dispatcher.Handle(ctx, req)
	if err != nil {
		a.logFailure(err, req.DeviceID)
		return ErrorResponse(err)
	}
	return OutcomeResponse(out)
}

// OutcomeResponse maps a terminal dispatch outcome to a status and body.
func OutcomeResponse(out dispatch.Outcome) (int, any) {
	if out.State == dispatch.StateAccepted && out.Command != nil {
		return http.StatusOK, out.Command
	}
	return http.StatusOK, command.OptOutResponse{Message: command.OptOutMessage}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse maps a pipeline error to a status and body.
func ErrorResponse(err error) (int, any) {
	switch {
	case errors.Is(err, command.ErrMalformedRequest):
		return http.StatusBadRequest, ErrorBody{Error: "malformed_request", Detail: err.Error()}
	case errors.Is(err, policy.ErrDeviceNotFound):
		return http.StatusNotFound, ErrorBody{Error: "device_not_found"}
	case errors.Is(err, optout.ErrInvalidPolicy):
		return http.StatusInternalServerError, ErrorBody{Error: "invalid_policy"}
	case errors.Is(err, policy.ErrLookupUnavailable):
		return http.StatusBadGateway, ErrorBody{Error: "policy_lookup_failed"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "internal_error"}
	}
}

func (a *API) logFailure(err error, deviceID string) {
	ev := a.logger.Warn()
	if !errors.Is(err, policy.ErrDeviceNotFound) {
		ev = a.logger.Error()
	}
	ev.Err(err).Str("device_id", deviceID).Msg("schedule request failed")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, ErrorBody{Error: code})
}
