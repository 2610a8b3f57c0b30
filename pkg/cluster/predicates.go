package cluster

import "github.com/ChrisMcGann/speclust/pkg/core"

// SpectrumPredicate cheaply decides whether a cluster/spectrum pair is worth
// scoring at all.
type SpectrumPredicate interface {
	Test(c *Greedy, s *core.BinarySpectrum) bool
}

// ShareHighestPeaksPredicate accepts a pair iff at least one of the top-K
// peaks by intensity coincides between the two sides. The test is symmetric.
type ShareHighestPeaksPredicate struct {
	K int
}

// Test checks the cluster's representative against a spectrum.
func (p ShareHighestPeaksPredicate) Test(c *Greedy, s *core.BinarySpectrum) bool {
	return p.TestSpectra(c.Representative(), s)
}

// TestSpectra checks two binary spectra directly.
func (p ShareHighestPeaksPredicate) TestSpectra(a, b *core.BinarySpectrum) bool {
	k := p.K
	if k < 1 {
		k = 5
	}
	topA := a.TopPeakBins(k)
	topB := b.TopPeakBins(k)
	for _, binA := range topA {
		for _, binB := range topB {
			if binA == binB {
				return true
			}
		}
	}
	return false
}

// ClusterIsKnownComparisonPredicate reports whether two clusters have been
// scored against each other before: true iff either side lists the other in
// its best matches. Symmetric.
type ClusterIsKnownComparisonPredicate struct{}

func (ClusterIsKnownComparisonPredicate) Test(a, b *Greedy) bool {
	return a.IsKnownComparison(b.ID()) || b.IsKnownComparison(a.ID())
}
