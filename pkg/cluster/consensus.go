// Package cluster implements greedy spectral clusters and the incremental
// consensus spectrum that summarizes their members.
package cluster

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/speclust/pkg/core"
)

// NoiseFilterIncrement is the default width, in m/z bins, of the windows the
// consensus noise filter operates on.
const NoiseFilterIncrement = 100

type binStat struct {
	summedIntensity int64
	count           int32
}

// ConsensusBuilder incrementally maintains the summed peak list of a
// cluster. Add and Merge are associative and commutative; the noise filter
// only runs when a representative is requested, so repeated adds stay cheap.
type ConsensusBuilder struct {
	uui                  string
	nSpectra             int64
	sumPrecursorMz       int64
	sumPrecursorCharge   int64
	peakMap              map[int32]*binStat
	noiseFilterIncrement int32

	dirty          bool
	representative *core.BinarySpectrum
}

// NewConsensusBuilder creates an empty builder. The uui assigned here is
// stable for the cluster's lifetime and doubles as the cluster id.
func NewConsensusBuilder(noiseFilterIncrement int32) *ConsensusBuilder {
	if noiseFilterIncrement < 1 {
		noiseFilterIncrement = NoiseFilterIncrement
	}
	return &ConsensusBuilder{
		uui:                  core.NewUUI(),
		peakMap:              make(map[int32]*binStat),
		noiseFilterIncrement: noiseFilterIncrement,
		dirty:                true,
	}
}

// UUI returns the stable identifier of the consensus spectrum.
func (b *ConsensusBuilder) UUI() string { return b.uui }

// NSpectra returns the number of spectra merged into the consensus.
func (b *ConsensusBuilder) NSpectra() int64 { return b.nSpectra }

// Add merges a single spectrum's peaks into the consensus.
func (b *ConsensusBuilder) Add(s *core.BinarySpectrum) {
	for i := range s.MZ {
		stat, ok := b.peakMap[s.MZ[i]]
		if !ok {
			stat = &binStat{}
			b.peakMap[s.MZ[i]] = stat
		}
		stat.summedIntensity += int64(s.Intensity[i])
		stat.count++
	}
	b.sumPrecursorMz += int64(s.PrecursorMZBin)
	b.sumPrecursorCharge += int64(s.PrecursorCharge)
	b.nSpectra++
	b.dirty = true
}

// Merge folds another consensus into this one by pointwise summation.
func (b *ConsensusBuilder) Merge(other *ConsensusBuilder) {
	for mz, os := range other.peakMap {
		stat, ok := b.peakMap[mz]
		if !ok {
			stat = &binStat{}
			b.peakMap[mz] = stat
		}
		stat.summedIntensity += os.summedIntensity
		stat.count += os.count
	}
	b.sumPrecursorMz += other.sumPrecursorMz
	b.sumPrecursorCharge += other.sumPrecursorCharge
	b.nSpectra += other.nSpectra
	b.dirty = true
}

// PeakCount returns the number of distinct bins currently held.
func (b *ConsensusBuilder) PeakCount() int { return len(b.peakMap) }

// Representative returns the noise-filtered consensus spectrum. The result
// is cached until the next Add or Merge.
func (b *ConsensusBuilder) Representative() *core.BinarySpectrum {
	if !b.dirty && b.representative != nil {
		return b.representative
	}
	b.representative = b.buildRepresentative()
	b.dirty = false
	return b.representative
}

// ConsensusSpectrum is an alias for Representative kept for callers that
// think in spectra rather than peak lists.
func (b *ConsensusBuilder) ConsensusSpectrum() *core.BinarySpectrum {
	return b.Representative()
}

func (b *ConsensusBuilder) buildRepresentative() *core.BinarySpectrum {
	s := &core.BinarySpectrum{
		UUI: b.uui,
	}
	if b.nSpectra > 0 {
		s.PrecursorMZBin = int32(math.Round(float64(b.sumPrecursorMz) / float64(b.nSpectra)))
		s.PrecursorCharge = int32(math.Round(float64(b.sumPrecursorCharge) / float64(b.nSpectra)))
	}
	if len(b.peakMap) == 0 {
		return s
	}

	// Within each noise window keep the top ceil(5*log2(n+1)) bins by
	// summed intensity. Dropped bins are pruned from the representative
	// only; the underlying map keeps them.
	keep := int(math.Ceil(5 * math.Log2(float64(b.nSpectra)+1)))
	if keep < 1 {
		keep = 1
	}

	type binPeak struct {
		mz  int32
		sum int64
	}
	windows := make(map[int32][]binPeak)
	for mz, stat := range b.peakMap {
		w := mz / b.noiseFilterIncrement
		if mz < 0 && mz%b.noiseFilterIncrement != 0 {
			w--
		}
		windows[w] = append(windows[w], binPeak{mz, stat.summedIntensity})
	}

	var kept []binPeak
	for _, peaks := range windows {
		sort.Slice(peaks, func(i, j int) bool {
			if peaks[i].sum != peaks[j].sum {
				return peaks[i].sum > peaks[j].sum
			}
			return peaks[i].mz < peaks[j].mz
		})
		if len(peaks) > keep {
			peaks = peaks[:keep]
		}
		kept = append(kept, peaks...)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].mz < kept[j].mz })

	s.MZ = make([]int32, len(kept))
	s.Intensity = make([]int32, len(kept))
	for i, p := range kept {
		s.MZ[i] = p.mz
		sum := p.sum
		if sum > math.MaxInt32 {
			sum = math.MaxInt32
		}
		s.Intensity[i] = int32(sum)
	}
	return s
}

// Bins returns the sparse consensus bins as sorted (mzBin, summedIntensity,
// count) triples. Used by the storage layer.
func (b *ConsensusBuilder) Bins() []ConsensusBin {
	bins := make([]ConsensusBin, 0, len(b.peakMap))
	for mz, stat := range b.peakMap {
		bins = append(bins, ConsensusBin{MZBin: mz, SummedIntensity: stat.summedIntensity, Count: stat.count})
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].MZBin < bins[j].MZBin })
	return bins
}

// ConsensusBin is one sparse consensus peak as persisted to disk.
type ConsensusBin struct {
	MZBin           int32
	SummedIntensity int64
	Count           int32
}

// RestoreConsensus rebuilds a builder from persisted state.
func RestoreConsensus(uui string, nSpectra, sumPrecursorMz, sumPrecursorCharge int64, bins []ConsensusBin, noiseFilterIncrement int32) *ConsensusBuilder {
	if noiseFilterIncrement < 1 {
		noiseFilterIncrement = NoiseFilterIncrement
	}
	b := &ConsensusBuilder{
		uui:                  uui,
		nSpectra:             nSpectra,
		sumPrecursorMz:       sumPrecursorMz,
		sumPrecursorCharge:   sumPrecursorCharge,
		peakMap:              make(map[int32]*binStat, len(bins)),
		noiseFilterIncrement: noiseFilterIncrement,
		dirty:                true,
	}
	for _, bin := range bins {
		b.peakMap[bin.MZBin] = &binStat{summedIntensity: bin.SummedIntensity, count: bin.Count}
	}
	return b
}

// SumPrecursorMz exposes the accumulated precursor m/z bins for persistence.
func (b *ConsensusBuilder) SumPrecursorMz() int64 { return b.sumPrecursorMz }

// SumPrecursorCharge exposes the accumulated charges for persistence.
func (b *ConsensusBuilder) SumPrecursorCharge() int64 { return b.sumPrecursorCharge }
