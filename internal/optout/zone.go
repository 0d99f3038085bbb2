/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// ZoneSource resolves IANA zone names into locations.
type ZoneSource interface {
	Load(name string) (*time.Location, error)
}

// systemZones memoizes time.LoadLocation. This package embeds time/tzdata,
// so results do not depend on the host zoneinfo files.
type systemZones struct {
	mu   sync.RWMutex
	locs map[string]*time.Location
}

var defaultZones = &systemZones{locs: make(map[string]*time.Location)}

// SystemZones returns the process-wide zone source backed by the Go tz database.
func SystemZones() ZoneSource {
	return defaultZones
}

func (z *systemZones) Load(name string) (*time.Location, error) {
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is an IANA name.
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("unknown zone %q", name)
	}

	z.mu.RLock()
	loc, ok := z.locs[name]
	z.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}

	z.mu.Lock()
	z.locs[name] = loc
	z.mu.Unlock()
	return loc, nil
}

// probes bracket the wall clock so that offsets on both sides of a DST
// transition on the same date are considered.
var probes = []time.Duration{-24 * time.Hour, 0, 24 * time.Hour}

type zoneOffset struct {
	name    string
	seconds int
	dst     bool
}

// Localize attaches loc to a wall-clock value following the zone's rules for
// that date. When the wall clock occurs twice (DST ending) the standard-time
// instant wins. When it does not occur at all (DST starting) it is read with
// the standard-time offset, so 02:30 on a spring-forward day lands on 03:30
// daylight time.
func Localize(lt LocalTime, loc *time.Location) time.Time {
	t, _ := resolve(lt, loc)
	return t
}

// resolve returns the localized instant together with the offset the wall
// clock was read with. Outside a DST gap that is simply t.Zone().
func resolve(lt LocalTime, loc *time.Location) (time.Time, zoneOffset) {
	if loc == nil {
		loc = time.UTC
	}
	naive := lt.naive()

	var (
		offsets    []zoneOffset
		candidates []time.Time
	)
	for _, p := range probes {
		probe := naive.Add(p).In(loc)
		name, sec := probe.Zone()
		if containsOffset(offsets, sec) {
			continue
		}
		offsets = append(offsets, zoneOffset{name: name, seconds: sec, dst: probe.IsDST()})

		t := naive.Add(-time.Duration(sec) * time.Second).In(loc)
		if lt.matches(t) {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		off := standardOffset(offsets)
		return naive.Add(-time.Duration(off.seconds) * time.Second).In(loc), off
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if best.IsDST() && !c.IsDST() {
			best = c
		}
	}
	name, sec := best.Zone()
	return best, zoneOffset{name: name, seconds: sec, dst: best.IsDST()}
}

func containsOffset(offsets []zoneOffset, sec int) bool {
	for _, o := range offsets {
		if o.seconds == sec {
			return true
		}
	}
	return false
}

func standardOffset(offsets []zoneOffset) zoneOffset {
	for _, o := range offsets {
		if !o.dst {
			return o
		}
	}
	return offsets[0]
}
