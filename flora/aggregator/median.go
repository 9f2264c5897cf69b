package aggregator

import (
	"math"
	"sort"
)

// median returns the standard median of the given prices: the middle value
// for an odd count, the mean of the two middle values for an even count.
// The result is rounded to the given number of decimal places.
func median(prices []float64, decimals int) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return roundTo(m, decimals)
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
