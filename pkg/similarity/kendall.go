// Package similarity scores pairs of binary spectra. The combined
// Fisher/intensity test is the primary scorer used for cluster membership
// decisions.
package similarity

import "math"

// IntPair is a pre-paired observation of two integer intensities for the
// same m/z bin.
type IntPair struct {
	X int32
	Y int32
}

// KendallPairs computes Kendall's tau-b rank correlation over pre-paired
// integer intensities. Taking pairs instead of two slices keeps the hot
// scoring path free of allocations. Returns 0 for fewer than two pairs or
// when either side is constant.
func KendallPairs(pairs []IntPair) float64 {
	n := len(pairs)
	if n < 2 {
		return 0
	}

	var concordant, discordant int64
	var tiesX, tiesY int64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := pairs[i].X - pairs[j].X
			dy := pairs[i].Y - pairs[j].Y
			switch {
			case dx == 0 && dy == 0:
				tiesX++
				tiesY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	n0 := int64(n) * int64(n-1) / 2
	denom := math.Sqrt(float64(n0-tiesX)) * math.Sqrt(float64(n0-tiesY))
	if denom == 0 {
		return 0
	}
	return float64(concordant-discordant) / denom
}
