/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"fmt"
	"time"
)

// LocalLayout is the wire format of schedule start times: YY/MM/DD,HH:MM:SS.
const LocalLayout = "06/01/02,15:04:05"

// LocalTime is a wall-clock timestamp with no zone attached.
type LocalTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// ParseLocalTime parses s using LocalLayout. Two-digit years 69-99 map to
// 19xx and 00-68 to 20xx.
func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.Parse(LocalLayout, s)
	if err != nil {
		return LocalTime{}, fmt.Errorf("parse local time %q: %w", s, err)
	}
	return LocalTimeOf(t), nil
}

// LocalTimeOf returns the wall clock of t in t's own location.
func LocalTimeOf(t time.Time) LocalTime {
	y, m, d := t.Date()
	return LocalTime{
		Year:   y,
		Month:  m,
		Day:    d,
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// String formats the value back into LocalLayout.
func (lt LocalTime) String() string {
	return lt.naive().Format(LocalLayout)
}

// naive places the wall clock on UTC without any offset arithmetic.
func (lt LocalTime) naive() time.Time {
	return time.Date(lt.Year, lt.Month, lt.Day, lt.Hour, lt.Minute, lt.Second, 0, time.UTC)
}

func (lt LocalTime) matches(t time.Time) bool {
	return LocalTimeOf(t) == lt
}
