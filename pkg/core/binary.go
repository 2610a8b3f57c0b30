package core

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// BinarySpectrum is the integerized form of a spectrum: m/z values mapped to
// bin indices and intensities mapped to integer ranks. It is immutable once
// built; the engine and the similarity scorers only ever see this form.
type BinarySpectrum struct {
	UUI             string // stable identifier, 32-char lowercase hex
	PrecursorMZBin  int32  // precursor m/z * 1000, rounded
	PrecursorCharge int32  // 0 = unknown
	MZ              []int32
	Intensity       []int32
}

// NewUUI returns a fresh 128-bit random identifier rendered as a fixed-width
// lowercase hex string.
func NewUUI() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NumberOfPeaks returns the peak count.
func (s *BinarySpectrum) NumberOfPeaks() int {
	return len(s.MZ)
}

// Copy returns a deep copy of the spectrum.
func (s *BinarySpectrum) Copy() *BinarySpectrum {
	c := &BinarySpectrum{
		UUI:             s.UUI,
		PrecursorMZBin:  s.PrecursorMZBin,
		PrecursorCharge: s.PrecursorCharge,
		MZ:              make([]int32, len(s.MZ)),
		Intensity:       make([]int32, len(s.Intensity)),
	}
	copy(c.MZ, s.MZ)
	copy(c.Intensity, s.Intensity)
	return c
}

// TopPeakBins returns the m/z bins of the n most intense peaks. Ties are
// broken toward the lower m/z bin.
func (s *BinarySpectrum) TopPeakBins(n int) []int32 {
	if n > len(s.MZ) {
		n = len(s.MZ)
	}
	type peak struct {
		mz        int32
		intensity int32
	}
	peaks := make([]peak, len(s.MZ))
	for i := range s.MZ {
		peaks[i] = peak{s.MZ[i], s.Intensity[i]}
	}
	// selection sort of the first n slots; peak lists are short
	for i := 0; i < n; i++ {
		best := i
		for j := i + 1; j < len(peaks); j++ {
			if peaks[j].intensity > peaks[best].intensity ||
				(peaks[j].intensity == peaks[best].intensity && peaks[j].mz < peaks[best].mz) {
				best = j
			}
		}
		peaks[i], peaks[best] = peaks[best], peaks[i]
	}
	bins := make([]int32, n)
	for i := 0; i < n; i++ {
		bins[i] = peaks[i].mz
	}
	return bins
}
