package similarity

import "github.com/ChrisMcGann/speclust/pkg/core"

// Scorer scores the similarity of two binary spectra in [0,1]; higher means
// more similar.
type Scorer interface {
	Score(a, b *core.BinarySpectrum) float64
}

// CombinedFisherIntensityTest combines a Fisher exact test on the number of
// shared peaks with Kendall's tau on the shared-peak intensities. Peaks
// match when their m/z bins are equal within PeakMatchTolerance bins.
type CombinedFisherIntensityTest struct {
	PeakMatchTolerance int32
}

// Score computes the combined similarity of a and b.
func (t CombinedFisherIntensityTest) Score(a, b *core.BinarySpectrum) float64 {
	pairs := t.matchPeaks(a, b)
	if len(a.MZ) == 0 || len(b.MZ) == 0 {
		return 0
	}

	universe := t.binUniverse(a, b)
	p := hypergeomSurvival(len(pairs), len(a.MZ), len(b.MZ), universe)
	fisher := 1 - p

	tau := KendallPairs(pairs)
	if tau < 0 {
		tau = 0
	}

	score := fisher * (1 + tau) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// SharedPeaks returns the number of matching m/z bins between a and b.
func (t CombinedFisherIntensityTest) SharedPeaks(a, b *core.BinarySpectrum) int {
	return len(t.matchPeaks(a, b))
}

// matchPeaks walks the two sorted m/z vectors and pairs the intensities of
// matching bins.
func (t CombinedFisherIntensityTest) matchPeaks(a, b *core.BinarySpectrum) []IntPair {
	var pairs []IntPair
	i, j := 0, 0
	for i < len(a.MZ) && j < len(b.MZ) {
		d := a.MZ[i] - b.MZ[j]
		switch {
		case d < -t.PeakMatchTolerance:
			i++
		case d > t.PeakMatchTolerance:
			j++
		default:
			pairs = append(pairs, IntPair{X: a.Intensity[i], Y: b.Intensity[j]})
			i++
			j++
		}
	}
	return pairs
}

// binUniverse is the span of bins covered by the union of both spectra,
// the population the Fisher test draws from.
func (t CombinedFisherIntensityTest) binUniverse(a, b *core.BinarySpectrum) int {
	lo := a.MZ[0]
	if b.MZ[0] < lo {
		lo = b.MZ[0]
	}
	hi := a.MZ[len(a.MZ)-1]
	if b.MZ[len(b.MZ)-1] > hi {
		hi = b.MZ[len(b.MZ)-1]
	}
	return int(hi-lo) + 1
}
