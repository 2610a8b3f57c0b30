package similarity

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/ChrisMcGann/speclust/pkg/core"
)

// referenceKendall computes tau-b over float slices using explicit tie-group
// counting, an independent code path from the pairwise implementation.
func referenceKendall(x, y []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}

	var concordant, discordant int64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			prod := (x[i] - x[j]) * (y[i] - y[j])
			if prod > 0 {
				concordant++
			} else if prod < 0 {
				discordant++
			}
		}
	}

	tieGroups := func(v []float64) int64 {
		sorted := make([]float64, len(v))
		copy(sorted, v)
		sort.Float64s(sorted)
		var ties int64
		run := int64(1)
		for i := 1; i <= len(sorted); i++ {
			if i < len(sorted) && sorted[i] == sorted[i-1] {
				run++
				continue
			}
			ties += run * (run - 1) / 2
			run = 1
		}
		return ties
	}

	n0 := int64(n) * int64(n-1) / 2
	n1 := tieGroups(x)
	n2 := tieGroups(y)
	denom := math.Sqrt(float64(n0-n1)) * math.Sqrt(float64(n0-n2))
	if denom == 0 {
		return 0
	}
	return float64(concordant-discordant) / denom
}

func TestKendallAgreesWithReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 5 + rng.Intn(96)
		pairs := make([]IntPair, n)
		x := make([]float64, n)
		y := make([]float64, n)
		for i := 0; i < n; i++ {
			// small value range to exercise ties
			pairs[i] = IntPair{X: int32(rng.Intn(20)), Y: int32(rng.Intn(20))}
			x[i] = float64(pairs[i].X)
			y[i] = float64(pairs[i].Y)
		}

		got := KendallPairs(pairs)
		want := referenceKendall(x, y)
		if math.Abs(got-want) > 1e-7 {
			t.Fatalf("trial %d: KendallPairs=%.10f, reference=%.10f", trial, got, want)
		}
	}
}

func TestKendallKnownValues(t *testing.T) {
	tests := []struct {
		name  string
		pairs []IntPair
		want  float64
	}{
		{
			name:  "perfect agreement",
			pairs: []IntPair{{1, 10}, {2, 20}, {3, 30}, {4, 40}},
			want:  1.0,
		},
		{
			name:  "perfect disagreement",
			pairs: []IntPair{{1, 40}, {2, 30}, {3, 20}, {4, 10}},
			want:  -1.0,
		},
		{
			name:  "constant side",
			pairs: []IntPair{{1, 5}, {2, 5}, {3, 5}},
			want:  0,
		},
		{
			name:  "too short",
			pairs: []IntPair{{1, 1}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KendallPairs(tt.pairs)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.3f, got %.10f", tt.want, got)
			}
		})
	}
}

func TestHypergeomSurvival(t *testing.T) {
	// P(X >= 0) is always 1
	if p := hypergeomSurvival(0, 10, 10, 100); math.Abs(p-1) > 1e-12 {
		t.Errorf("P(X>=0) should be 1, got %g", p)
	}

	// impossible overlap
	if p := hypergeomSurvival(11, 10, 10, 100); p != 0 {
		t.Errorf("P(X>=11) with 10 draws should be 0, got %g", p)
	}

	// survival is non-increasing in the overlap
	prev := 1.0
	for k := 0; k <= 10; k++ {
		p := hypergeomSurvival(k, 10, 10, 100)
		if p > prev+1e-12 {
			t.Fatalf("survival increased at k=%d: %g > %g", k, p, prev)
		}
		prev = p
	}

	// full overlap of large spectra is essentially impossible by chance
	if p := hypergeomSurvival(40, 40, 40, 1000); p > 1e-30 {
		t.Errorf("expected vanishing probability for full overlap, got %g", p)
	}
}

func makeSpectrum(uui string, bins []int32, intensities []int32) *core.BinarySpectrum {
	return &core.BinarySpectrum{
		UUI:             uui,
		PrecursorMZBin:  500250,
		PrecursorCharge: 2,
		MZ:              bins,
		Intensity:       intensities,
	}
}

func TestCombinedScoreIdenticalSpectra(t *testing.T) {
	bins := make([]int32, 40)
	intensities := make([]int32, 40)
	for i := range bins {
		bins[i] = int32(100 + i*25)
		intensities[i] = int32(1000 + i*37)
	}

	a := makeSpectrum("a", bins, intensities)
	b := makeSpectrum("b", bins, intensities)

	score := CombinedFisherIntensityTest{}.Score(a, b)
	if score < 0.999 {
		t.Errorf("identical spectra should score near 1, got %.6f", score)
	}
}

func TestCombinedScoreDisjointSpectra(t *testing.T) {
	a := makeSpectrum("a", []int32{100, 200, 300}, []int32{10, 20, 30})
	b := makeSpectrum("b", []int32{150, 250, 350}, []int32{10, 20, 30})

	score := CombinedFisherIntensityTest{}.Score(a, b)
	if score != 0 {
		t.Errorf("disjoint spectra should score 0, got %.6f", score)
	}
}

func TestCombinedScoreRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scorer := CombinedFisherIntensityTest{}

	for trial := 0; trial < 20; trial++ {
		makeRandom := func(uui string) *core.BinarySpectrum {
			n := 10 + rng.Intn(30)
			binSet := make(map[int32]struct{})
			for len(binSet) < n {
				binSet[int32(100+rng.Intn(1000))] = struct{}{}
			}
			bins := make([]int32, 0, n)
			for b := range binSet {
				bins = append(bins, b)
			}
			sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })
			intensities := make([]int32, n)
			for i := range intensities {
				intensities[i] = int32(rng.Intn(10000))
			}
			return makeSpectrum(uui, bins, intensities)
		}

		a := makeRandom("a")
		b := makeRandom("b")
		score := scorer.Score(a, b)
		if score < 0 || score > 1 {
			t.Fatalf("score out of range: %.6f", score)
		}
		// the scorer itself is symmetric
		if back := scorer.Score(b, a); math.Abs(score-back) > 1e-12 {
			t.Fatalf("score not symmetric: %.12f vs %.12f", score, back)
		}
	}
}
