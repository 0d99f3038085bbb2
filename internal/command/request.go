/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package command decodes schedule requests and defines the normalized
// command handed to storage and notification sinks.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/friendsincode/limitgate/internal/optout"
)

// ErrMalformedRequest is returned for bodies with missing or invalid fields.
var ErrMalformedRequest = errors.New("malformed request")

// MaxIntervalSeconds leaves room for jitter on the final interval.
const MaxIntervalSeconds = math.MaxInt64 - optout.MaxJitter

// ScheduleRequest is a decoded schedule request. Values are immutable once
// constructed; Intervals returns a copy.
type ScheduleRequest struct {
	DeviceID  string
	StartAt   optout.LocalTime
	MaxWh     json.Number
	intervals []int64
}

// NewScheduleRequest validates the fields and builds a request.
func NewScheduleRequest(deviceID string, startAt optout.LocalTime, intervals []int64, maxWh json.Number) (ScheduleRequest, error) {
	if strings.TrimSpace(deviceID) == "" {
		return ScheduleRequest{}, malformed("devId is required")
	}
	if len(intervals) == 0 {
		return ScheduleRequest{}, malformed("interval must contain at least one value")
	}
	for i, v := range intervals {
		if v < 0 {
			return ScheduleRequest{}, malformed(fmt.Sprintf("interval[%d] is negative", i))
		}
		if v > MaxIntervalSeconds {
			return ScheduleRequest{}, malformed(fmt.Sprintf("interval[%d] exceeds %d seconds", i, int64(MaxIntervalSeconds)))
		}
	}
	if _, err := maxWh.Float64(); err != nil {
		return ScheduleRequest{}, malformed("maxWh must be a number")
	}
	return ScheduleRequest{
		DeviceID:  deviceID,
		StartAt:   startAt,
		MaxWh:     maxWh,
		intervals: append([]int64(nil), intervals...),
	}, nil
}

// Intervals returns a copy of the interval durations in seconds.
func (r ScheduleRequest) Intervals() []int64 {
	return append([]int64(nil), r.intervals...)
}

type wireRequest struct {
	DevID    *string           `json:"devId"`
	StartAt  *string           `json:"startAt"`
	Interval []json.RawMessage `json:"interval"`
	MaxWh    json.RawMessage   `json:"maxWh"`
}

// ParseRequest decodes a JSON body of the form
//
//	{"devId": "...", "startAt": "YY/MM/DD,HH:MM:SS", "interval": [..], "maxWh": n}
func ParseRequest(body []byte) (ScheduleRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ScheduleRequest{}, malformed("body must be a JSON object")
	}

	var wire wireRequest
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return ScheduleRequest{}, malformed("invalid JSON: " + err.Error())
	}

	if wire.DevID == nil {
		return ScheduleRequest{}, malformed("devId is required")
	}
	if wire.StartAt == nil {
		return ScheduleRequest{}, malformed("startAt is required")
	}
	startAt, err := optout.ParseLocalTime(*wire.StartAt)
	if err != nil {
		return ScheduleRequest{}, malformed("startAt must match YY/MM/DD,HH:MM:SS")
	}

	intervals := make([]int64, 0, len(wire.Interval))
	for i, raw := range wire.Interval {
		v, err := parseSeconds(raw)
		if err != nil {
			return ScheduleRequest{}, malformed(fmt.Sprintf("interval[%d]: %v", i, err))
		}
		intervals = append(intervals, v)
	}

	maxWh, err := parseNumber(wire.MaxWh)
	if err != nil {
		return ScheduleRequest{}, malformed("maxWh: " + err.Error())
	}

	return NewScheduleRequest(*wire.DevID, startAt, intervals, maxWh)
}

func parseSeconds(raw json.RawMessage) (int64, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return 0, errors.New("not a number")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("must be a plain integer literal of seconds (no fraction or exponent)")
	}
	return v, nil
}

func parseNumber(raw json.RawMessage) (json.Number, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return "", errors.New("required")
	}
	if !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return "", errors.New("not a number")
	}
	n := json.Number(s)
	if _, err := n.Float64(); err != nil {
		return "", errors.New("not a number")
	}
	return n, nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, reason)
}
