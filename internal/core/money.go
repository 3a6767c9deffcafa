package core

import "math"

// Round2 rounds to 2 decimal places, half-up. Stored amounts keep full
// precision; rounding happens only when building responses.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
