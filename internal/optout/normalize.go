/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import "time"

// UTCLayout renders instants as offset-aware ISO-8601, e.g. 2024-06-01T17:00:00+00:00.
const UTCLayout = "2006-01-02T15:04:05-07:00"

// NormalizeUTC localizes start in loc and renders it in UTC.
func NormalizeUTC(start LocalTime, loc *time.Location) string {
	return Localize(start, loc).UTC().Format(UTCLayout)
}
