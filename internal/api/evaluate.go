/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/dispatch"
	"github.com/friendsincode/limitgate/internal/telemetry"
)

// EvaluationResponse describes a dry run.
type EvaluationResponse struct {
	DeviceID    string `json:"devId"`
	OptOut      bool   `json:"optOut"`
	StartAtUTC  string `json:"startAtUtc"`
	Timezone    string `json:"timezone"`
	StartLocal  string `json:"startLocal"`
	EndLocal    string `json:"endLocal"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
}

// NewEvaluationResponse renders ev with local instants in RFC 3339.
func NewEvaluationResponse(deviceID string, ev dispatch.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		DeviceID:    deviceID,
		OptOut:      ev.OptOut,
		StartAtUTC:  ev.StartAtUTC,
		Timezone:    ev.Policy.Timezone,
		StartLocal:  ev.Decision.StartLocal.Format(time.RFC3339),
		EndLocal:    ev.Decision.EndLocal.Format(time.RFC3339),
		WindowStart: ev.Decision.WindowStart.Format(time.RFC3339),
		WindowEnd:   ev.Decision.WindowEnd.Format(time.RFC3339),
	}
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return
	}

	req, err := command.ParseRequest(body)
	if err != nil {
		telemetry.DecisionsTotal.WithLabelValues("malformed").Inc()
		status, resp := ErrorResponse(err)
		writeJSON(w, status, resp)
		return
	}

	ev, err := a.dispatcher.Evaluate(r.Context(), req)
	if err != nil {
		a.logFailure(err, req.DeviceID)
		status, resp := ErrorResponse(err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, NewEvaluationResponse(req.DeviceID, ev))
}
