// Package battery models persisted charge levels, lump-sum drain after a trip
// and time-based charging.
package battery

import (
	"math"
	"strconv"
	"strings"

	"dronetaxi-sim/internal/geo"
)

const (
	Full     = 100
	Empty    = 0
	MinDrain = 5
	MaxDrain = 20
	// DrainPerKM is the percentage consumed per flat-earth kilometre.
	DrainPerKM = 3
	// LowThreshold marks a drone as low battery regardless of status.
	LowThreshold = 25
	// CriticalThreshold is used by the critical-battery filter.
	CriticalThreshold = 20
)

// Clamp bounds a level to [0,100].
func Clamp(level int) int {
	return max(Empty, min(Full, level))
}

// Drain returns the percentage consumed by a trip between two points.
func Drain(origin, dest geo.Coord) int {
	km := geo.FlatDistanceKM(origin, dest)
	return max(MinDrain, min(MaxDrain, int(math.Round(km*DrainPerKM))))
}

// Apply subtracts drain from level, never going below zero.
func Apply(level, drain int) int {
	return Clamp(level - drain)
}

// ParseLevel decodes a stored level. Missing, unparsable or out-of-range
// values yield Full.
func ParseLevel(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < Empty || v > Full {
		return Full
	}
	return v
}
