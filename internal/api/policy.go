/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/policy"
)

func (a *API) handlePolicyGet(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	rec, err := a.policies.Lookup(r.Context(), deviceID)
	if err != nil {
		status, resp := ErrorResponse(err)
		if status >= http.StatusInternalServerError {
			a.logger.Error().Err(err).Str("device_id", deviceID).Msg("policy lookup failed")
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handlePolicyPut(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	writer, ok := a.policies.(policy.Writer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "policy_backend_read_only")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	var rec policy.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if _, err := policy.Resolve(rec, a.zones); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid_policy", Detail: err.Error()})
		return
	}

	if err := writer.Put(r.Context(), deviceID, rec); err != nil {
		if errors.Is(err, policy.ErrReadOnly) {
			writeError(w, http.StatusNotImplemented, "policy_backend_read_only")
			return
		}
		a.logger.Error().Err(err).Str("device_id", deviceID).Msg("store policy failed")
		writeError(w, http.StatusBadGateway, "policy_store_failed")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventPolicyUpdated, events.Payload{"device_id": deviceID})
	}
	a.logger.Info().Str("device_id", deviceID).Str("timezone", rec.Timezone).Msg("device policy updated")
	writeJSON(w, http.StatusOK, rec)
}
