// Package mgf provides a streaming reader for Mascot Generic Format peak
// lists.
package mgf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/speclust/pkg/core"
)

// Reader provides streaming access to MGF files.
type Reader struct {
	scanner     *bufio.Scanner
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MGF reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
	}
}

// Next advances to the next spectrum. Returns false when no more spectra or
// on error.
func (r *Reader) Next() bool {
	r.currentSpec = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpec = spec
	return true
}

// Spectrum returns the current spectrum.
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading.
func (r *Reader) Err() error {
	return r.err
}

// readSpectrum reads a single BEGIN IONS / END IONS block.
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	spec := &core.Spectrum{
		SourceFormat:     "mgf",
		Peaks:            []core.Peak{},
		AdditionalParams: map[string]string{},
	}

	inIons := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !inIons {
			if line == "BEGIN IONS" {
				inIons = true
			}
			continue
		}

		if line == "END IONS" {
			spec.SortPeaks()
			return spec, nil
		}

		if idx := strings.Index(line, "="); idx > 0 && !isPeakLine(line) {
			key := line[:idx]
			value := line[idx+1:]
			if err := r.applyHeader(spec, key, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		peak, err := r.parsePeak(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		spec.Peaks = append(spec.Peaks, peak)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if inIons {
		return nil, fmt.Errorf("line %d: unexpected end of file inside ion block", r.lineNum)
	}

	return nil, io.EOF
}

// isPeakLine distinguishes "123.4 567.8" from "KEY=VALUE" lines. Peak lines
// start with a digit.
func isPeakLine(line string) bool {
	return len(line) > 0 && (line[0] >= '0' && line[0] <= '9')
}

// applyHeader stores a KEY=VALUE header on the spectrum.
func (r *Reader) applyHeader(spec *core.Spectrum, key, value string) error {
	switch strings.ToUpper(key) {
	case "PEPMASS":
		// PEPMASS may carry a second intensity field
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return fmt.Errorf("empty PEPMASS")
		}
		mz, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("invalid PEPMASS '%s': %w", value, err)
		}
		spec.PrecursorMZ = mz

	case "CHARGE":
		charge, err := parseCharge(value)
		if err != nil {
			return err
		}
		spec.PrecursorCharge = charge

	case "TITLE":
		spec.Title = value

	case "RTINSECONDS":
		rt, err := strconv.ParseFloat(value, 64)
		if err == nil {
			spec.RetentionTime = &rt
		}

	default:
		spec.AdditionalParams[key] = value
	}
	return nil
}

// parseCharge accepts the forms "2", "2+", "+2" and their negative
// counterparts. Multi-valued charge lists keep the first entry.
func parseCharge(value string) (int, error) {
	value = strings.TrimSpace(value)
	if idx := strings.IndexAny(value, ", "); idx > 0 {
		value = value[:idx]
	}

	sign := 1
	if strings.HasSuffix(value, "-") || strings.HasPrefix(value, "-") {
		sign = -1
	}
	value = strings.Trim(value, "+-")

	charge, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid CHARGE '%s': %w", value, err)
	}
	return sign * charge, nil
}

// parsePeak parses a single peak line (format: "mz intensity [charge]").
func (r *Reader) parsePeak(line string) (core.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	return core.Peak{MZ: mz, Intensity: intensity}, nil
}
