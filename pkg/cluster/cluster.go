package cluster

import (
	"sort"

	"github.com/ChrisMcGann/speclust/pkg/core"
	"go.uber.org/zap"
)

// SavedComparisonMatches is the capacity of the per-cluster best-match list.
const SavedComparisonMatches = 30

// ComparisonMatch remembers the similarity a cluster scored against another
// spectrum or cluster.
type ComparisonMatch struct {
	OtherID    string
	Similarity float32
}

// Greedy is a cluster that never stores member peaks: members are tracked by
// id only and summarized by the incremental consensus.
type Greedy struct {
	id        string
	memberIDs map[string]struct{}
	consensus *ConsensusBuilder

	// bestMatches is kept sorted ascending by similarity; the head is the
	// lowest remembered similarity.
	bestMatches      []ComparisonMatch
	bestMatchIDIndex map[string]struct{} // lazy, nil when invalidated

	log *zap.Logger
}

// NewGreedy creates an empty cluster around a fresh consensus builder. The
// cluster id equals the consensus spectrum's uui.
func NewGreedy(noiseFilterIncrement int32, log *zap.Logger) *Greedy {
	if log == nil {
		log = zap.NewNop()
	}
	consensus := NewConsensusBuilder(noiseFilterIncrement)
	return &Greedy{
		id:          consensus.UUI(),
		memberIDs:   make(map[string]struct{}),
		consensus:   consensus,
		bestMatches: make([]ComparisonMatch, 0, SavedComparisonMatches),
		log:         log,
	}
}

// Restore rebuilds a cluster from persisted state.
func Restore(id string, memberIDs []string, consensus *ConsensusBuilder, bestMatches []ComparisonMatch, log *zap.Logger) *Greedy {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Greedy{
		id:          id,
		memberIDs:   make(map[string]struct{}, len(memberIDs)),
		consensus:   consensus,
		bestMatches: bestMatches,
		log:         log,
	}
	for _, m := range memberIDs {
		c.memberIDs[m] = struct{}{}
	}
	return c
}

// ID returns the cluster id.
func (c *Greedy) ID() string { return c.id }

// MemberIDs returns the ids of all clustered spectra.
func (c *Greedy) MemberIDs() []string {
	ids := make([]string, 0, len(c.memberIDs))
	for id := range c.memberIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemberCount returns the number of clustered spectra.
func (c *Greedy) MemberCount() int { return len(c.memberIDs) }

// HasMember reports whether uui is already clustered here.
func (c *Greedy) HasMember(uui string) bool {
	_, ok := c.memberIDs[uui]
	return ok
}

// Consensus returns the cluster's consensus builder.
func (c *Greedy) Consensus() *ConsensusBuilder { return c.consensus }

// Representative returns the current consensus spectrum.
func (c *Greedy) Representative() *core.BinarySpectrum {
	return c.consensus.Representative()
}

// PrecursorMZBin returns the consensus precursor bin.
func (c *Greedy) PrecursorMZBin() int32 {
	return c.consensus.Representative().PrecursorMZBin
}

// PrecursorCharge returns the consensus precursor charge.
func (c *Greedy) PrecursorCharge() int32 {
	return c.consensus.Representative().PrecursorCharge
}

// AddSpectra adds spectra to the cluster. Spectra whose uui is already a
// member are dropped; adding only duplicates is a no-op.
func (c *Greedy) AddSpectra(spectra ...*core.BinarySpectrum) {
	for _, s := range spectra {
		if _, dup := c.memberIDs[s.UUI]; dup {
			c.log.Warn("duplicate spectrum in cluster ignored",
				zap.String("cluster", c.id), zap.String("uui", s.UUI))
			continue
		}
		c.memberIDs[s.UUI] = struct{}{}
		c.consensus.Add(s)
	}
}

// Merge folds another cluster into this one. Overlapping member ids are
// warned about and de-duplicated. When the other cluster is larger, this
// cluster takes over its id so the consensus uui of the larger cluster
// survives.
func (c *Greedy) Merge(other *Greedy) {
	ownCount := len(c.memberIDs)
	otherCount := len(other.memberIDs)

	overlap := 0
	for id := range other.memberIDs {
		if _, dup := c.memberIDs[id]; dup {
			overlap++
			continue
		}
		c.memberIDs[id] = struct{}{}
	}
	if overlap > 0 {
		c.log.Warn("overlapping members on cluster merge",
			zap.String("cluster", c.id), zap.String("other", other.id), zap.Int("overlap", overlap))
	}

	c.consensus.Merge(other.consensus)

	// The consensus uui of the larger cluster survives as the id.
	if otherCount > ownCount {
		c.id = other.id
	}

	c.bestMatches = append(c.bestMatches, other.bestMatches...)
	sort.SliceStable(c.bestMatches, func(i, j int) bool {
		return c.bestMatches[i].Similarity < c.bestMatches[j].Similarity
	})
	if len(c.bestMatches) > SavedComparisonMatches {
		c.bestMatches = c.bestMatches[len(c.bestMatches)-SavedComparisonMatches:]
	}
	c.bestMatchIDIndex = nil
}

// SaveComparisonResult records a scored comparison in the bounded best-match
// list. Only the SavedComparisonMatches highest similarities are kept.
func (c *Greedy) SaveComparisonResult(otherID string, similarity float32) {
	if len(c.bestMatches) >= SavedComparisonMatches && similarity <= c.minBestSimilarity() {
		return
	}

	idx := sort.Search(len(c.bestMatches), func(i int) bool {
		return c.bestMatches[i].Similarity > similarity
	})
	c.bestMatches = append(c.bestMatches, ComparisonMatch{})
	copy(c.bestMatches[idx+1:], c.bestMatches[idx:])
	c.bestMatches[idx] = ComparisonMatch{OtherID: otherID, Similarity: similarity}

	if len(c.bestMatches) > SavedComparisonMatches {
		c.bestMatches = c.bestMatches[1:]
	}
	c.bestMatchIDIndex = nil
}

// IsKnownComparison reports whether id is in the best-match list. The id
// index is rebuilt lazily after mutations.
func (c *Greedy) IsKnownComparison(id string) bool {
	if c.bestMatchIDIndex == nil {
		c.bestMatchIDIndex = make(map[string]struct{}, len(c.bestMatches))
		for _, m := range c.bestMatches {
			c.bestMatchIDIndex[m.OtherID] = struct{}{}
		}
	}
	_, ok := c.bestMatchIDIndex[id]
	return ok
}

// BestMatches returns the recorded comparison matches, sorted ascending by
// similarity.
func (c *Greedy) BestMatches() []ComparisonMatch {
	out := make([]ComparisonMatch, len(c.bestMatches))
	copy(out, c.bestMatches)
	return out
}

func (c *Greedy) minBestSimilarity() float32 {
	if len(c.bestMatches) == 0 {
		return 0
	}
	return c.bestMatches[0].Similarity
}
