// Package msp writes clustering results as MSP spectral-library blocks, one
// per cluster, built from the cluster's consensus spectrum.
package msp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/normalizer"
	"github.com/ChrisMcGann/speclust/pkg/storage"
)

// modMassTolerance is the slack used when resolving a mass shift to a
// modification name.
const modMassTolerance = 0.01

// MspMod is a modification extracted from a mass-annotated peptide sequence.
type MspMod struct {
	Position  int    // residues preceding the modification; 0 = N-term, len(seq) = C-term
	AminoAcid string // modified residue, "[" for N-term, "]" for C-term
	Name      string // resolved modification name, or the raw mass when unknown
	Mass      float64
}

// Writer emits MSP blocks for clusters.
type Writer struct {
	w      *bufio.Writer
	binner normalizer.MzBinner
	modDB  *core.ModDatabase
}

// NewWriter creates an MSP writer. The binner must match the one the
// spectra were binarized with so peak m/z values can be recovered.
func NewWriter(out io.Writer, binner normalizer.MzBinner, modDB *core.ModDatabase) *Writer {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}
	return &Writer{
		w:      bufio.NewWriter(out),
		binner: binner,
		modDB:  modDB,
	}
}

// WriteCluster writes one MSP block for the cluster. The peptide sequence is
// elected by majority over the members' sequence properties.
func (w *Writer) WriteCluster(c *cluster.Greedy, props storage.PropertyStore) error {
	rep := c.Representative()

	sequence, maxRatio := w.electSequence(c, props)
	charge := rep.PrecursorCharge
	parent := normalizer.PrecursorBinner{}.UnBin(rep.PrecursorMZBin)

	if _, err := fmt.Fprintf(w.w, "Name: %s/%d\n", sequence, charge); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "Comment: Spec=Consensus Parent=%.4f Mods=%s Nreps=%d Naa=%d MaxRatio=%.3f\n",
		parent, w.GetModString(sequence), c.MemberCount(), len(sequence), maxRatio); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "Num peaks: %d\n", rep.NumberOfPeaks()); err != nil {
		return err
	}
	for i := range rep.MZ {
		if _, err := fmt.Fprintf(w.w, "%.4f\t%d\n", w.binner.UnBin(rep.MZ[i]), rep.Intensity[i]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w.w); err != nil {
		return err
	}
	return nil
}

// Flush writes any buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// electSequence returns the most common member sequence and the fraction of
// members carrying it.
func (w *Writer) electSequence(c *cluster.Greedy, props storage.PropertyStore) (string, float64) {
	counts := make(map[string]int)
	if props != nil {
		for _, id := range c.MemberIDs() {
			seq, err := props.Get(id, "sequence")
			if err != nil {
				continue
			}
			counts[seq]++
		}
	}

	best := ""
	bestCount := 0
	for seq, n := range counts {
		if n > bestCount || (n == bestCount && seq < best) {
			best = seq
			bestCount = n
		}
	}
	if best == "" {
		return "UNKNOWN", 0
	}
	return best, float64(bestCount) / float64(c.MemberCount())
}

// ExtractModsFromSequence parses the mass-shift annotations of a peptide
// sequence like "+42.011EVQLVET+42.011GGGLIQPGGSLR+42.011". The position of
// a modification is the number of residues preceding it; the N-terminus
// reports "[" and the C-terminus "]" as amino acid.
func (w *Writer) ExtractModsFromSequence(sequence string) []MspMod {
	var mods []MspMod
	residues := 0

	for i := 0; i < len(sequence); {
		ch := sequence[i]
		if ch != '+' && ch != '-' {
			residues++
			i++
			continue
		}

		end := i + 1
		for end < len(sequence) && (isDigit(sequence[end]) || sequence[end] == '.') {
			end++
		}
		mass, err := strconv.ParseFloat(sequence[i:end], 64)
		if err != nil {
			i = end
			continue
		}

		mod := MspMod{Position: residues, Mass: mass}
		switch {
		case residues == 0:
			mod.AminoAcid = "["
		case end >= len(sequence):
			mod.AminoAcid = "]"
		default:
			mod.AminoAcid = string(sequence[i-1])
		}
		if name, ok := w.modDB.NameByMass(mass, modMassTolerance); ok {
			mod.Name = name
		} else {
			mod.Name = strings.TrimPrefix(sequence[i:end], "+")
		}

		mods = append(mods, mod)
		i = end
	}

	return mods
}

// GetModString renders the modifications of a sequence in the MSP Mods
// format: count followed by "(pos,aa,name)" entries.
func (w *Writer) GetModString(sequence string) string {
	mods := w.ExtractModsFromSequence(sequence)
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(mods)))
	for _, m := range mods {
		fmt.Fprintf(&sb, "(%d,%s,%s)", m.Position, m.AminoAcid, m.Name)
	}
	return sb.String()
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
