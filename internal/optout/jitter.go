/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package optout

import (
	"math"
	"math/rand/v2"
)

// Jitter bounds in seconds, both inclusive.
const (
	MinJitter = 1
	MaxJitter = 600
)

// Rand is the random source used for jitter. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand returns a source backed by the math/rand/v2 global generator,
// which is safe for concurrent use.
func DefaultRand() Rand {
	return globalRand{}
}

// ApplyJitter returns a copy of intervals whose last element is increased by
// a uniform value in [MinJitter, MaxJitter], along with the amount actually
// added. The last element saturates at math.MaxInt64 rather than wrapping.
// The input is never modified.
func ApplyJitter(intervals []int64, rnd Rand) ([]int64, int64) {
	out := append([]int64(nil), intervals...)
	if len(out) == 0 {
		return out, 0
	}
	if rnd == nil {
		rnd = DefaultRand()
	}
	jitter := int64(rnd.IntN(MaxJitter-MinJitter+1) + MinJitter)
	last := out[len(out)-1]
	if last > math.MaxInt64-jitter {
		jitter = math.MaxInt64 - last
	}
	out[len(out)-1] = last + jitter
	return out, jitter
}
