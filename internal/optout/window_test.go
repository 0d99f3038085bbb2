/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"testing"
)

func mustPolicy(t *testing.T, tz, start, end string) Policy {
	t.Helper()
	p, err := NewPolicy(tz, start, end, SystemZones())
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	return p
}

func mustLocal(t *testing.T, s string) LocalTime {
	t.Helper()
	lt, err := ParseLocalTime(s)
	if err != nil {
		t.Fatalf("parse local time: %v", err)
	}
	return lt
}

func TestIsOptOut(t *testing.T) {
	la := mustPolicy(t, "America/Los_Angeles", "07:00", "09:00")

	tests := []struct {
		name      string
		startAt   string
		intervals []int64
		want      bool
	}{
		{"start inside window", "24/06/01,08:00:00", []int64{100}, true},
		{"start after window", "24/06/01,10:00:00", []int64{100}, false},
		{"start exactly at window start", "24/06/01,07:00:00", []int64{60}, true},
		{"start exactly at window end", "24/06/01,09:00:00", []int64{60}, true},
		{"end exactly at window start", "24/06/01,06:00:00", []int64{3600}, true},
		{"end exactly at window end", "24/06/01,06:00:00", []int64{1800, 9000}, true},
		{"entirely before window", "24/06/01,05:00:00", []int64{3599}, false},
		{"entirely after window", "24/06/01,09:01:00", []int64{600}, false},
		{"schedule spanning the whole window only checks its endpoints", "24/06/01,06:00:00", []int64{14400}, false},
		{"end runs into window", "24/06/01,06:30:00", []int64{600, 1800, 600}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsOptOut(mustLocal(t, tt.startAt), tt.intervals, la)
			if got != tt.want {
				t.Errorf("IsOptOut(%s, %v) = %v, want %v", tt.startAt, tt.intervals, got, tt.want)
			}
		})
	}
}

func TestIsOptOutIsPure(t *testing.T) {
	p := mustPolicy(t, "America/Los_Angeles", "07:00", "09:00")
	start := mustLocal(t, "24/11/03,01:30:00")
	intervals := []int64{1800, 1800}

	first := IsOptOut(start, intervals, p)
	for i := 0; i < 10; i++ {
		if got := IsOptOut(start, intervals, p); got != first {
			t.Fatalf("call %d returned %v, first call returned %v", i, got, first)
		}
	}
	if intervals[0] != 1800 || intervals[1] != 1800 {
		t.Fatalf("intervals were modified: %v", intervals)
	}
}

func TestIsOptOutMidnightCrossingWindowNeverMatches(t *testing.T) {
	p := mustPolicy(t, "America/Los_Angeles", "22:00", "02:00")
	if !p.CrossesMidnight() {
		t.Fatal("expected policy to report a midnight-crossing window")
	}

	for _, start := range []string{
		"24/06/01,00:30:00",
		"24/06/01,01:59:00",
		"24/06/01,12:00:00",
		"24/06/01,22:00:00",
		"24/06/01,23:30:00",
	} {
		if IsOptOut(mustLocal(t, start), []int64{100}, p) {
			t.Errorf("IsOptOut(%s) = true, want false for 22:00-02:00 window", start)
		}
	}
}

func TestEvaluateWindowInheritsStartSecondsAndOffset(t *testing.T) {
	p := mustPolicy(t, "America/Los_Angeles", "07:00", "09:00")
	d := Evaluate(mustLocal(t, "24/06/01,10:00:30"), []int64{100}, p)

	if d.WindowStart.Second() != 30 || d.WindowEnd.Second() != 30 {
		t.Fatalf("window seconds = %d/%d, want 30", d.WindowStart.Second(), d.WindowEnd.Second())
	}
	_, startOff := d.StartLocal.Zone()
	_, winOff := d.WindowStart.Zone()
	if startOff != winOff {
		t.Fatalf("window offset %d differs from start offset %d", winOff, startOff)
	}
	if got := d.EndLocal.Sub(d.StartLocal).Seconds(); got != 100 {
		t.Fatalf("end - start = %vs, want 100s", got)
	}
}

func TestIsOptOutOnDSTTransitionDay(t *testing.T) {
	p := mustPolicy(t, "America/Los_Angeles", "01:00", "03:00")

	// 02:30 does not exist on 2024-03-10. It is read as 02:30 PST (10:30Z)
	// and the window edges use the same -08:00 offset.
	d := Evaluate(mustLocal(t, "24/03/10,02:30:00"), []int64{60}, p)
	if !d.OptOut {
		t.Fatalf("expected opt-out, decision %+v", d)
	}
	if got := d.WindowStart.UTC().Format(UTCLayout); got != "2024-03-10T09:00:00+00:00" {
		t.Fatalf("window start = %s, want 2024-03-10T09:00:00+00:00", got)
	}
	if got := d.StartLocal.UTC().Format(UTCLayout); got != "2024-03-10T10:30:00+00:00" {
		t.Fatalf("start = %s, want 2024-03-10T10:30:00+00:00", got)
	}
}
