/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned when a device policy carries an unknown zone
// or a malformed window boundary.
var ErrInvalidPolicy = errors.New("invalid opt-out policy")

// ClockTime is a time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM". Single digit fields are accepted.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: clock %q is not HH:MM", ErrInvalidPolicy, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("%w: hour in %q", ErrInvalidPolicy, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: minute in %q", ErrInvalidPolicy, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Hour < o.Hour || (c.Hour == o.Hour && c.Minute < o.Minute)
}

// Policy is a device's timezone and daily quiet window.
type Policy struct {
	Timezone    string
	Location    *time.Location
	WindowStart ClockTime
	WindowEnd   ClockTime
}

// NewPolicy validates the raw policy fields and resolves the zone.
func NewPolicy(timezone, windowStart, windowEnd string, zones ZoneSource) (Policy, error) {
	if zones == nil {
		zones = SystemZones()
	}
	loc, err := zones.Load(timezone)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	start, err := ParseClock(windowStart)
	if err != nil {
		return Policy{}, err
	}
	end, err := ParseClock(windowEnd)
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		Timezone:    timezone,
		Location:    loc,
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

// CrossesMidnight reports whether the window end is earlier in the day than
// its start. Such windows evaluate as empty; see IsOptOut.
func (p Policy) CrossesMidnight() bool {
	return p.WindowEnd.Before(p.WindowStart)
}
