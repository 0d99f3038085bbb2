/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func TestNormalizeUTC(t *testing.T) {
	tests := []struct {
		name    string
		zone    string
		startAt string
		want    string
	}{
		{"pacific daylight time", "America/Los_Angeles", "24/06/01,10:00:00", "2024-06-01T17:00:00+00:00"},
		{"pacific standard time", "America/Los_Angeles", "24/01/15,10:00:00", "2024-01-15T18:00:00+00:00"},
		{"spring forward gap reads as standard time", "America/Los_Angeles", "24/03/10,02:30:00", "2024-03-10T10:30:00+00:00"},
		{"fall back overlap picks standard time", "America/New_York", "24/11/03,01:30:00", "2024-11-03T06:30:00+00:00"},
		{"utc passthrough", "UTC", "24/02/29,23:59:59", "2024-02-29T23:59:59+00:00"},
		{"positive offset crosses date", "Asia/Tokyo", "24/06/01,05:00:00", "2024-05-31T20:00:00+00:00"},
		{"half hour zone", "Asia/Kolkata", "24/06/01,12:00:00", "2024-06-01T06:30:00+00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := SystemZones().Load(tt.zone)
			if err != nil {
				t.Fatalf("load zone: %v", err)
			}
			got := NormalizeUTC(mustLocal(t, tt.startAt), loc)
			if got != tt.want {
				t.Errorf("NormalizeUTC(%s, %s) = %s, want %s", tt.startAt, tt.zone, got, tt.want)
			}
			if again := NormalizeUTC(mustLocal(t, tt.startAt), loc); again != got {
				t.Errorf("second call returned %s, first %s", again, got)
			}
		})
	}
}

func TestLocalizeRoundTripAcrossDSTDates(t *testing.T) {
	loc, err := SystemZones().Load("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}

	// Every non-gap minute on both 2024 transition dates plus an ordinary day.
	for _, day := range []LocalTime{
		{Year: 2024, Month: time.March, Day: 10},
		{Year: 2024, Month: time.November, Day: 3},
		{Year: 2024, Month: time.June, Day: 1},
	} {
		for minute := 0; minute < 24*60; minute += 7 {
			lt := day
			lt.Hour = minute / 60
			lt.Minute = minute % 60
			lt.Second = minute % 60

			if day.Month == time.March && lt.Hour == 2 {
				continue
			}

			utc := Localize(lt, loc).UTC()
			back := LocalTimeOf(utc.In(loc))
			if back != lt {
				t.Fatalf("round trip of %s gave %s", lt, back)
			}
		}
	}
}

func TestParseLocalTime(t *testing.T) {
	tests := []struct {
		in      string
		want    LocalTime
		wantErr bool
	}{
		{in: "24/06/01,08:00:00", want: LocalTime{2024, time.June, 1, 8, 0, 0}},
		{in: "69/01/01,00:00:00", want: LocalTime{1969, time.January, 1, 0, 0, 0}},
		{in: "68/12/31,23:59:59", want: LocalTime{2068, time.December, 31, 23, 59, 59}},
		{in: "2024-06-01T08:00:00", wantErr: true},
		{in: "24/13/01,08:00:00", wantErr: true},
		{in: "24/06/01 08:00:00", wantErr: true},
		{in: "24/6/1,8:00:00", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocalTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.in {
				t.Fatalf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

type fakeZones map[string]*time.Location

func (f fakeZones) Load(name string) (*time.Location, error) {
	if loc, ok := f[name]; ok {
		return loc, nil
	}
	return nil, errors.New("unknown zone")
}

func TestNewPolicy(t *testing.T) {
	zones := fakeZones{"Test/Fixed": time.FixedZone("TST", 3*3600)}

	p, err := NewPolicy("Test/Fixed", "7:05", "09:30", zones)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if p.WindowStart != (ClockTime{7, 5}) || p.WindowEnd != (ClockTime{9, 30}) {
		t.Fatalf("unexpected window %s-%s", p.WindowStart, p.WindowEnd)
	}

	got := NormalizeUTC(mustLocal(t, "24/06/01,10:00:00"), p.Location)
	if got != "2024-06-01T07:00:00+00:00" {
		t.Fatalf("normalize with injected zone = %s", got)
	}

	for _, bad := range []struct{ tz, start, end string }{
		{"Nowhere/Zone", "07:00", "09:00"},
		{"Test/Fixed", "24:00", "09:00"},
		{"Test/Fixed", "07:00", "09:60"},
		{"Test/Fixed", "0700", "09:00"},
		{"Test/Fixed", "07:00", "nine"},
	} {
		if _, err := NewPolicy(bad.tz, bad.start, bad.end, zones); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("NewPolicy(%q, %q, %q) error = %v, want ErrInvalidPolicy", bad.tz, bad.start, bad.end, err)
		}
	}
}

func TestSystemZonesRejectsNonIANANames(t *testing.T) {
	for _, name := range []string{"", "Local", "Mars/Olympus_Mons"} {
		if _, err := NewPolicy(name, "07:00", "09:00", nil); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("NewPolicy(%q) error = %v, want ErrInvalidPolicy", name, err)
		}
	}
	if _, err := SystemZones().Load("Europe/Berlin"); err != nil {
		t.Fatalf("load Europe/Berlin: %v", err)
	}
}

type fixedRand int

func (f fixedRand) IntN(int) int { return int(f) }

func TestApplyJitter(t *testing.T) {
	in := []int64{300, 0, 100}

	out, jitter := ApplyJitter(in, fixedRand(0))
	if jitter != 1 || out[2] != 101 {
		t.Fatalf("min draw: jitter=%d out=%v", jitter, out)
	}
	out, jitter = ApplyJitter(in, fixedRand(599))
	if jitter != 600 || out[2] != 700 {
		t.Fatalf("max draw: jitter=%d out=%v", jitter, out)
	}
	if in[2] != 100 {
		t.Fatalf("input modified: %v", in)
	}
	if out[0] != 300 || out[1] != 0 {
		t.Fatalf("non-final elements changed: %v", out)
	}
}

func TestApplyJitterBounds(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	seen := make(map[int64]bool)

	for i := 0; i < 5000; i++ {
		out, jitter := ApplyJitter([]int64{100}, rnd)
		if jitter < MinJitter || jitter > MaxJitter {
			t.Fatalf("jitter %d outside [%d,%d]", jitter, MinJitter, MaxJitter)
		}
		if out[0] != 100+jitter {
			t.Fatalf("out %v does not reflect jitter %d", out, jitter)
		}
		seen[jitter] = true
	}
	if len(seen) < 100 {
		t.Fatalf("only %d distinct jitter values in 5000 draws", len(seen))
	}
}

func TestApplyJitterSaturatesAtInt64Max(t *testing.T) {
	tests := []struct {
		name       string
		last       int64
		draw       fixedRand
		wantOut    int64
		wantJitter int64
	}{
		{"headroom exactly max jitter", math.MaxInt64 - MaxJitter, 599, math.MaxInt64, MaxJitter},
		{"partial headroom", math.MaxInt64 - 10, 599, math.MaxInt64, 10},
		{"already at max", math.MaxInt64, 0, math.MaxInt64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, jitter := ApplyJitter([]int64{7, tt.last}, tt.draw)
			if out[1] < tt.last {
				t.Fatalf("last interval decreased: %d -> %d", tt.last, out[1])
			}
			if out[1] != tt.wantOut || jitter != tt.wantJitter {
				t.Fatalf("out=%d jitter=%d, want out=%d jitter=%d", out[1], jitter, tt.wantOut, tt.wantJitter)
			}
			if out[0] != 7 {
				t.Fatalf("first element changed: %v", out)
			}
		})
	}
}

func TestApplyJitterDefaultRand(t *testing.T) {
	out, jitter := ApplyJitter([]int64{5, 100}, nil)
	if out[0] != 5 {
		t.Fatalf("first element changed: %v", out)
	}
	if out[1] < 101 || out[1] > 700 || out[1]-100 != jitter {
		t.Fatalf("last element %d outside [101,700]", out[1])
	}
}
