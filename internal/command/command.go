/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import "encoding/json"

// TypeLimit tags every normalized command.
const TypeLimit = "limit"

// OptOutMessage is the response message for schedules inside the quiet window.
const OptOutMessage = "This device is opt out"

// NormalizedCommand is an accepted schedule with its start in UTC and the
// last interval jittered.
type NormalizedCommand struct {
	Type      string      `json:"type"`
	DeviceID  string      `json:"devId"`
	StartAt   string      `json:"startAt"`
	Intervals []int64     `json:"interval"`
	MaxWh     json.Number `json:"maxWh"`
}

// OptOutResponse is returned when a schedule falls in the quiet window.
type OptOutResponse struct {
	Message string `json:"message"`
}
