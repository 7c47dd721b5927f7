// Package util contains misc internal utilities.
package util

// Clamp restricts a value to the range [low, high]
func Clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
