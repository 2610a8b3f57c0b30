package filter

import (
	"sort"

	"github.com/ChrisMcGann/speclust/pkg/core"
)

// HighestPeakPerBin keeps the single most intense peak per m/z window of
// Window bins. Ties are broken toward the lower m/z bin. The result has
// strictly increasing m/z bins and never more peaks than the input.
type HighestPeakPerBin struct {
	Window int32
}

// Apply returns a new BinarySpectrum with at most one peak per window.
func (f HighestPeakPerBin) Apply(s *core.BinarySpectrum) *core.BinarySpectrum {
	window := f.Window
	if window < 1 {
		window = 1
	}
	if len(s.MZ) == 0 {
		return s
	}

	type slot struct {
		mz        int32
		intensity int32
	}
	best := make(map[int32]slot, len(s.MZ))
	for i := range s.MZ {
		key := s.MZ[i] / window
		if s.MZ[i] < 0 && s.MZ[i]%window != 0 {
			key-- // floor division for negative bins
		}
		cur, ok := best[key]
		if !ok || s.Intensity[i] > cur.intensity ||
			(s.Intensity[i] == cur.intensity && s.MZ[i] < cur.mz) {
			best[key] = slot{s.MZ[i], s.Intensity[i]}
		}
	}

	out := &core.BinarySpectrum{
		UUI:             s.UUI,
		PrecursorMZBin:  s.PrecursorMZBin,
		PrecursorCharge: s.PrecursorCharge,
		MZ:              make([]int32, 0, len(best)),
		Intensity:       make([]int32, 0, len(best)),
	}
	keys := make([]int32, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		out.MZ = append(out.MZ, best[k].mz)
		out.Intensity = append(out.Intensity, best[k].intensity)
	}
	return out
}
