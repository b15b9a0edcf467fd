package models

import (
	"errors"
	"math"
)

const bytesPerMegabyte = 1048576

// ErrZeroTotal is returned when a capacity report has no total
var ErrZeroTotal = errors.New("total capacity is zero")

// UsedPercent converts a free/total byte pair into percent used.
//   - both sides are converted to megabytes first
//   - the free ratio is rounded to two decimals before scaling,
//     i.e. percent = 100 - round(free/total, 2) * 100
//
// The result is always a whole number.
func UsedPercent(free, total uint64) (float64, error) {
	if total == 0 {
		return 0, ErrZeroTotal
	}
	freeMB := float64(free) / bytesPerMegabyte
	totalMB := float64(total) / bytesPerMegabyte

	// round(r, 2) * 100 == round(r * 100), minus the float noise
	return 100 - math.Round(freeMB/totalMB*100), nil
}

