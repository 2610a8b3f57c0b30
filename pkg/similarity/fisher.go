package similarity

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// hypergeomSurvival returns P(X >= shared) for a hypergeometric draw of
// sampleB bins out of universe, with sampleA marked bins. This is the
// one-sided Fisher exact probability of observing at least the given peak
// overlap by chance.
func hypergeomSurvival(shared, sampleA, sampleB, universe int) float64 {
	if universe <= 0 || sampleA <= 0 || sampleB <= 0 {
		return 1
	}
	if sampleA > universe {
		sampleA = universe
	}
	if sampleB > universe {
		sampleB = universe
	}
	max := sampleA
	if sampleB < max {
		max = sampleB
	}
	if shared > max {
		return 0
	}
	min := sampleA + sampleB - universe
	if min < 0 {
		min = 0
	}
	if shared < min {
		shared = min
	}

	logDenom := combin.LogGeneralizedBinomial(float64(universe), float64(sampleB))
	sum := 0.0
	for k := shared; k <= max; k++ {
		logP := combin.LogGeneralizedBinomial(float64(sampleA), float64(k)) +
			combin.LogGeneralizedBinomial(float64(universe-sampleA), float64(sampleB-k)) -
			logDenom
		sum += math.Exp(logP)
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}
