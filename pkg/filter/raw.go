// Package filter provides peak filtering functions, both on raw spectra
// before binarization and on binary spectra after it.
package filter

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/speclust/pkg/core"
)

// ImpossiblyHighTolerance is the slack in Dalton allowed above the maximum
// theoretically possible fragment mass.
const ImpossiblyHighTolerance = 1.5

// RawFilter transforms the peak list of a raw spectrum in place.
type RawFilter interface {
	Apply(spec *core.Spectrum)
}

// Chain composes raw filters left to right.
type Chain []RawFilter

func (c Chain) Apply(spec *core.Spectrum) {
	for _, f := range c {
		f.Apply(spec)
	}
}

// RemoveImpossiblyHighPeaks drops peaks above the total mass of the
// precursor ion plus tolerance. Such peaks are measurement artifacts.
type RemoveImpossiblyHighPeaks struct{}

func (RemoveImpossiblyHighPeaks) Apply(spec *core.Spectrum) {
	charge := spec.PrecursorCharge
	if charge < 1 {
		charge = 1
	}
	limit := spec.PrecursorMZ*float64(charge) + ImpossiblyHighTolerance

	filtered := spec.Peaks[:0]
	for _, peak := range spec.Peaks {
		if peak.MZ <= limit {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// RemovePrecursorPeaks drops peaks within WindowDa of the precursor m/z and
// its neutral-loss satellites at precursorMz - k/charge for small k.
type RemovePrecursorPeaks struct {
	WindowDa float64
}

func (f RemovePrecursorPeaks) Apply(spec *core.Spectrum) {
	charge := spec.PrecursorCharge
	if charge < 1 {
		charge = 1
	}

	filtered := spec.Peaks[:0]
	for _, peak := range spec.Peaks {
		drop := false
		for k := 0; k <= 2; k++ {
			center := spec.PrecursorMZ - float64(k)/float64(charge)
			if math.Abs(peak.MZ-center) <= f.WindowDa {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// KeepNHighestRawPeaks retains the N most intense peaks. Ties are broken
// toward the lower m/z. The surviving peaks are re-sorted by m/z.
type KeepNHighestRawPeaks struct {
	N int
}

func (f KeepNHighestRawPeaks) Apply(spec *core.Spectrum) {
	if f.N <= 0 || len(spec.Peaks) <= f.N {
		return
	}

	peaks := make([]core.Peak, len(spec.Peaks))
	copy(peaks, spec.Peaks)

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Intensity != peaks[j].Intensity {
			return peaks[i].Intensity > peaks[j].Intensity
		}
		return peaks[i].MZ < peaks[j].MZ
	})

	spec.Peaks = peaks[:f.N]
	spec.SortPeaks()
}
