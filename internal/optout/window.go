/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package optout decides whether a device schedule overlaps its daily quiet
// window and normalizes accepted schedules.
package optout

import (
	"math"
	"time"
)

// Decision carries the instants an opt-out evaluation compared.
type Decision struct {
	OptOut      bool
	StartLocal  time.Time
	EndLocal    time.Time
	WindowStart time.Time
	WindowEnd   time.Time
}

// IsOptOut reports whether a schedule starting at start and running for the
// sum of intervals (seconds) touches the policy window.
func IsOptOut(start LocalTime, intervals []int64, p Policy) bool {
	return Evaluate(start, intervals, p).OptOut
}

// Evaluate compares the schedule against the policy window overlaid on the
// start's calendar date. Window edges take the start's UTC offset and seconds.
// Both bounds are inclusive. A window whose end precedes its start on the
// clock (e.g. 22:00-02:00) is not wrapped to the next day and never matches.
func Evaluate(start LocalTime, intervals []int64, p Policy) Decision {
	instant, off := resolve(start, p.Location)
	fixed := time.FixedZone(off.name, off.seconds)

	// The wall clock is kept as requested even inside a DST gap, so the
	// window edges share the date, seconds and offset the start was read with.
	startLocal := instant.In(fixed)
	endLocal := startLocal.Add(secondsDuration(sumSeconds(intervals)))

	windowStart := time.Date(start.Year, start.Month, start.Day, p.WindowStart.Hour, p.WindowStart.Minute, start.Second, 0, fixed)
	windowEnd := time.Date(start.Year, start.Month, start.Day, p.WindowEnd.Hour, p.WindowEnd.Minute, start.Second, 0, fixed)

	return Decision{
		OptOut:      within(startLocal, windowStart, windowEnd) || within(endLocal, windowStart, windowEnd),
		StartLocal:  startLocal,
		EndLocal:    endLocal,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}

func within(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}

func sumSeconds(intervals []int64) int64 {
	var total int64
	for _, v := range intervals {
		if v > 0 && total > math.MaxInt64-v {
			return math.MaxInt64
		}
		total += v
	}
	return total
}

const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

func secondsDuration(s int64) time.Duration {
	if s > maxDurationSeconds {
		s = maxDurationSeconds
	}
	return time.Duration(s) * time.Second
}
