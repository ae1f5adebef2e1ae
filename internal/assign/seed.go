package assign

import (
	"math"
	"unicode/utf16"
)

// Seed hashes an id with h = h*31 + c over UTF-16 code units, truncated to a
// signed 32-bit value and made non-negative. Changing this changes which mock
// trip every id receives.
func Seed(id string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(id)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v)
}

// seededRandom is a sine-based pseudo-random value in [0,1).
func seededRandom(seed int) float64 {
	x := math.Sin(float64(seed)) * 10000
	return x - math.Floor(x)
}

// pickPair chooses two distinct indices into a list of n names.
func pickPair(seed, n int) (from, to int) {
	from = (seed * 17) % n
	to = (seed * 31) % n
	if to == from {
		to = (to + 1) % n
	}
	return from, to
}
