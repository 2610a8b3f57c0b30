// Package normalizer maps real-valued m/z and intensity readings onto the
// integer space the clustering engine operates in.
package normalizer

import "math"

// SequestBinWidth is the classic SEQUEST fragment bin width in Thomson.
const SequestBinWidth = 1.0005079

// MZConstant is the fixed scale factor applied to precursor m/z values.
const MZConstant = 1000

// MzBinner assigns integer bin indices to m/z values and recovers an
// approximate m/z from a bin index.
type MzBinner interface {
	Bin(mz float64) int32
	UnBin(bin int32) float64
	// BinWidth returns the bin width in Thomson.
	BinWidth() float64
}

// SequestBinner bins fragment m/z values at the SEQUEST bin width.
type SequestBinner struct {
	Offset float64
}

// Bin maps an m/z value to its bin index. Ties resolve toward negative
// infinity.
func (b SequestBinner) Bin(mz float64) int32 {
	return int32(math.Floor((mz - b.Offset) / SequestBinWidth))
}

// UnBin returns the midpoint m/z of a bin.
func (b SequestBinner) UnBin(bin int32) float64 {
	return (float64(bin)+0.5)*SequestBinWidth + b.Offset
}

func (b SequestBinner) BinWidth() float64 { return SequestBinWidth }

// TideBinner bins fragment m/z values at a configurable high-resolution
// width, 0.02 Th by default.
type TideBinner struct {
	Width  float64
	Offset float64
}

// NewTideBinner returns a TideBinner at the default 0.02 Th width.
func NewTideBinner() TideBinner {
	return TideBinner{Width: 0.02}
}

func (b TideBinner) width() float64 {
	if b.Width <= 0 {
		return 0.02
	}
	return b.Width
}

func (b TideBinner) Bin(mz float64) int32 {
	x := mz - b.Offset
	q := math.Floor(x / b.width())
	// The rounded quotient can land on the next bin boundary; step back when
	// the exact remainder is negative.
	if math.FMA(-q, b.width(), x) < 0 {
		q--
	}
	return int32(q)
}

func (b TideBinner) UnBin(bin int32) float64 {
	return (float64(bin)+0.5)*b.width() + b.Offset
}

func (b TideBinner) BinWidth() float64 { return b.width() }

// PrecursorBinner scales precursor m/z values by MZConstant. The round trip
// bin/MZConstant recovers the m/z to within 0.5/MZConstant.
type PrecursorBinner struct{}

// Bin maps a precursor m/z to its integer representation.
func (PrecursorBinner) Bin(mz float64) int32 {
	return int32(math.Round(mz * MZConstant))
}

// UnBin recovers the approximate precursor m/z.
func (PrecursorBinner) UnBin(bin int32) float64 {
	return float64(bin) / MZConstant
}
