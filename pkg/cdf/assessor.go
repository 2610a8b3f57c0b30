// Package cdf maps the number of comparisons a cluster has seen to the
// similarity threshold required to call a match. The mapping was frozen from
// training and is shipped as a data resource, not code.
package cdf

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed cumulative_cdf.tsv
var cumulativeCDF []byte

// ThresholdAssessor yields the similarity threshold required to accept a
// match after n comparisons have been performed.
type ThresholdAssessor interface {
	Threshold(nComparisons int) float64
}

type tableRow struct {
	nComparisons int
	threshold    float64
}

// MinNumberComparisonsAssessor looks thresholds up in the frozen table, never
// assuming fewer than MinComparisons comparisons. Thresholds are
// monotonically non-increasing in the comparison count.
type MinNumberComparisonsAssessor struct {
	MinComparisons int

	rows []tableRow
}

// NewMinNumberComparisonsAssessor parses the embedded threshold table.
func NewMinNumberComparisonsAssessor(minComparisons int) (*MinNumberComparisonsAssessor, error) {
	rows, err := parseTable(cumulativeCDF)
	if err != nil {
		return nil, fmt.Errorf("parsing threshold table: %w", err)
	}
	return &MinNumberComparisonsAssessor{MinComparisons: minComparisons, rows: rows}, nil
}

// Threshold returns the similarity threshold for n comparisons. Counts below
// MinComparisons use the threshold parameterized for MinComparisons.
func (a *MinNumberComparisonsAssessor) Threshold(nComparisons int) float64 {
	n := nComparisons
	if n < a.MinComparisons {
		n = a.MinComparisons
	}
	// greatest breakpoint <= n; an exact match is its own breakpoint
	idx := sort.Search(len(a.rows), func(i int) bool { return a.rows[i].nComparisons > n }) - 1
	if idx < 0 {
		idx = 0
	}
	return a.rows[idx].threshold
}

func parseTable(data []byte) ([]tableRow, error) {
	var rows []tableRow
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields, got %d", lineNum, len(fields))
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid comparison count '%s': %w", lineNum, fields[0], err)
		}
		t, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid threshold '%s': %w", lineNum, fields[1], err)
		}
		rows = append(rows, tableRow{nComparisons: n, threshold: t})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("threshold table is empty")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].nComparisons < rows[j].nComparisons })
	for i := 1; i < len(rows); i++ {
		if rows[i].threshold > rows[i-1].threshold {
			return nil, fmt.Errorf("threshold table is not non-increasing at n=%d", rows[i].nComparisons)
		}
	}
	return rows, nil
}
