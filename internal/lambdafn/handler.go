/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package lambdafn adapts the schedule endpoint to API Gateway proxy events.
package lambdafn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// Scheduler turns a raw request body into a status and JSON body.
// *api.API satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, body []byte) (int, any)
}

// Handler serves API Gateway proxy requests.
type Handler struct {
	scheduler Scheduler
	logger    zerolog.Logger
}

// New creates a Handler.
func New(scheduler Scheduler, logger zerolog.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "lambda").Logger(),
	}
}

// Handle is passed to lambda.Start.
func (h *Handler) Handle(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return respond(http.StatusBadRequest, map[string]string{"error": "malformed_request"})
		}
		body = decoded
	}

	status, resp := h.scheduler.Schedule(ctx, body)
	h.logger.Debug().
		Str("request_id", req.RequestContext.RequestID).
		Int("status", status).
		Msg("schedule request handled")
	return respond(status, resp)
}

func respond(status int, body any) (lambdaevents.APIGatewayProxyResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return lambdaevents.APIGatewayProxyResponse{}, err
	}
	return lambdaevents.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}, nil
}
