// Package engine implements the greedy, precursor-windowed clustering state
// machine. The engine consumes binarized spectra one at a time, keeps an
// ordered window of active clusters, and emits clusters in non-decreasing
// precursor-bin order once the window has moved past them.
package engine

import (
	"context"
	"sort"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/similarity"
	"go.uber.org/zap"
)

// Config parameterizes a Greedy engine.
type Config struct {
	// PrecursorToleranceBins is the maximum precursor-bin distance between a
	// spectrum and a cluster it may join.
	PrecursorToleranceBins int32
	// NoiseFilterIncrement is forwarded to new consensus builders.
	NoiseFilterIncrement int32
	// TopPeakShareK parameterizes the fast rejection predicate.
	TopPeakShareK int
}

// ThresholdAssessor yields the similarity threshold after n comparisons.
type ThresholdAssessor interface {
	Threshold(nComparisons int) float64
}

type activeCluster struct {
	cluster     *cluster.Greedy
	nCmp        int // comparisons performed against this cluster
	createdSeq  int
	precursorMZ int32
}

// Greedy is the clustering engine. It is not safe for concurrent use.
type Greedy struct {
	cfg       Config
	scorer    similarity.Scorer
	assessor  ThresholdAssessor
	predicate cluster.ShareHighestPeaksPredicate
	known     cluster.ClusterIsKnownComparisonPredicate
	log       *zap.Logger

	// active is sorted ascending by precursor bin; among equal bins, stable
	// in creation order.
	active  []*activeCluster
	nextSeq int

	emptyDropped int
}

// New creates an engine. log may be nil.
func New(cfg Config, scorer similarity.Scorer, assessor ThresholdAssessor, log *zap.Logger) *Greedy {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopPeakShareK < 1 {
		cfg.TopPeakShareK = 5
	}
	return &Greedy{
		cfg:       cfg,
		scorer:    scorer,
		assessor:  assessor,
		predicate: cluster.ShareHighestPeaksPredicate{K: cfg.TopPeakShareK},
		log:       log,
	}
}

// EmptySpectraDropped counts spectra discarded because filtering left them
// without peaks.
func (e *Greedy) EmptySpectraDropped() int { return e.emptyDropped }

// ProcessSpectrum consumes one binarized, per-bin-filtered spectrum and
// returns the clusters evicted by the moving precursor window, in ascending
// precursor-bin order.
func (e *Greedy) ProcessSpectrum(s *core.BinarySpectrum) []*cluster.Greedy {
	if s.NumberOfPeaks() == 0 {
		e.emptyDropped++
		e.log.Debug("dropping empty spectrum", zap.String("uui", s.UUI))
		return nil
	}

	evicted := e.evictBefore(s.PrecursorMZBin - e.cfg.PrecursorToleranceBins)

	var best *activeCluster
	bestScore := 0.0
	for _, ac := range e.candidateWindow(s.PrecursorMZBin, s.PrecursorCharge) {
		if !e.predicate.Test(ac.cluster, s) {
			continue
		}

		score := e.scorer.Score(ac.cluster.Representative(), s)
		ac.nCmp++
		ac.cluster.SaveComparisonResult(s.UUI, float32(score))

		if score < e.assessor.Threshold(ac.nCmp) {
			continue
		}
		if best == nil || betterCandidate(ac, score, best, bestScore) {
			best = ac
			bestScore = score
		}
	}

	if best != nil {
		best.cluster.AddSpectra(s)
		e.reposition(best)
		return evicted
	}

	c := cluster.NewGreedy(e.cfg.NoiseFilterIncrement, e.log)
	c.AddSpectra(s)
	e.insert(&activeCluster{
		cluster:     c,
		createdSeq:  e.nextSeq,
		precursorMZ: c.PrecursorMZBin(),
	})
	e.nextSeq++
	return evicted
}

// ProcessCluster consumes a cluster from a previous pass and merges it into
// the best-matching active cluster, or inserts it as a new active cluster.
// Every scored pair is recorded in both sides' best matches; pairs already
// recorded in either side's best matches are skipped.
func (e *Greedy) ProcessCluster(in *cluster.Greedy) []*cluster.Greedy {
	rep := in.Representative()
	if rep.NumberOfPeaks() == 0 {
		e.emptyDropped++
		return nil
	}

	evicted := e.evictBefore(rep.PrecursorMZBin - e.cfg.PrecursorToleranceBins)

	var best *activeCluster
	bestScore := 0.0
	for _, ac := range e.candidateWindow(rep.PrecursorMZBin, rep.PrecursorCharge) {
		if ac.cluster.ID() == in.ID() {
			continue
		}
		if e.known.Test(ac.cluster, in) {
			continue
		}
		if !e.predicate.TestSpectra(ac.cluster.Representative(), rep) {
			continue
		}

		score := e.scorer.Score(ac.cluster.Representative(), rep)
		ac.nCmp++
		ac.cluster.SaveComparisonResult(in.ID(), float32(score))
		in.SaveComparisonResult(ac.cluster.ID(), float32(score))

		if score < e.assessor.Threshold(ac.nCmp) {
			continue
		}
		if best == nil || betterCandidate(ac, score, best, bestScore) {
			best = ac
			bestScore = score
		}
	}

	if best != nil {
		best.cluster.Merge(in)
		e.reposition(best)
		return evicted
	}

	e.insert(&activeCluster{
		cluster:     in,
		createdSeq:  e.nextSeq,
		precursorMZ: rep.PrecursorMZBin,
	})
	e.nextSeq++
	return evicted
}

// Flush evicts every remaining active cluster in ascending precursor-bin
// order. The engine is empty afterwards and may be reused.
func (e *Greedy) Flush() []*cluster.Greedy {
	out := make([]*cluster.Greedy, len(e.active))
	for i, ac := range e.active {
		out[i] = ac.cluster
	}
	e.active = e.active[:0]
	return out
}

// Run pumps spectra from in through the engine, forwarding evicted clusters
// to emit. Cancellation is polled between spectra; on cancel the active
// clusters are flushed in order and the context error returned.
func (e *Greedy) Run(ctx context.Context, in <-chan *core.BinarySpectrum, emit func(*cluster.Greedy) error) error {
	flush := func() error {
		for _, c := range e.Flush() {
			if err := emit(c); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := flush(); err != nil {
				return err
			}
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				return flush()
			}
			for _, c := range e.ProcessSpectrum(s) {
				if err := emit(c); err != nil {
					return err
				}
			}
		}
	}
}

// evictBefore removes and returns all clusters below the given precursor
// bin. Eviction is total: evicted clusters are never revisited.
func (e *Greedy) evictBefore(bin int32) []*cluster.Greedy {
	n := 0
	for n < len(e.active) && e.active[n].precursorMZ < bin {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]*cluster.Greedy, n)
	for i := 0; i < n; i++ {
		out[i] = e.active[i].cluster
	}
	e.active = e.active[n:]
	return out
}

// candidateWindow returns the active clusters within precursor tolerance and
// with compatible charge. Charge 0 acts as a wildcard on either side.
func (e *Greedy) candidateWindow(bin int32, charge int32) []*activeCluster {
	var window []*activeCluster
	for _, ac := range e.active {
		d := ac.precursorMZ - bin
		if d < -e.cfg.PrecursorToleranceBins {
			continue
		}
		if d > e.cfg.PrecursorToleranceBins {
			break
		}
		cCharge := ac.cluster.PrecursorCharge()
		if charge != 0 && cCharge != 0 && charge != cCharge {
			continue
		}
		window = append(window, ac)
	}
	return window
}

// insert places a cluster into active keeping the precursor-bin order,
// stable with respect to creation order.
func (e *Greedy) insert(ac *activeCluster) {
	idx := sort.Search(len(e.active), func(i int) bool {
		return e.active[i].precursorMZ > ac.precursorMZ
	})
	e.active = append(e.active, nil)
	copy(e.active[idx+1:], e.active[idx:])
	e.active[idx] = ac
}

// reposition re-sorts a cluster whose consensus precursor may have drifted
// after an add or merge.
func (e *Greedy) reposition(ac *activeCluster) {
	newBin := ac.cluster.PrecursorMZBin()
	if newBin == ac.precursorMZ {
		return
	}
	for i, cur := range e.active {
		if cur == ac {
			e.active = append(e.active[:i], e.active[i+1:]...)
			break
		}
	}
	ac.precursorMZ = newBin
	e.insert(ac)
}

// betterCandidate applies the decision tie-break: highest similarity, then
// highest member count, then lowest precursor bin, then lowest id.
func betterCandidate(a *activeCluster, aScore float64, b *activeCluster, bScore float64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	if a.cluster.MemberCount() != b.cluster.MemberCount() {
		return a.cluster.MemberCount() > b.cluster.MemberCount()
	}
	if a.precursorMZ != b.precursorMZ {
		return a.precursorMZ < b.precursorMZ
	}
	return a.cluster.ID() < b.cluster.ID()
}
