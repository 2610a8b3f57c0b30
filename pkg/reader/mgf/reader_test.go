package mgf

import (
	"strings"
	"testing"
)

const sampleMGF = `# comment line
BEGIN IONS
TITLE=run1.scan100
PEPMASS=500.25 12345.6
CHARGE=2+
RTINSECONDS=1200.5
SEQ=PEPTIDE
100.1 10.0
200.2 20.0
150.15 15.0
END IONS

BEGIN IONS
TITLE=run1.scan101
PEPMASS=900.10
CHARGE=3
300.3 30.0
END IONS
`

func TestReadSpectra(t *testing.T) {
	r := NewReader(strings.NewReader(sampleMGF))

	if !r.Next() {
		t.Fatalf("expected first spectrum, err: %v", r.Err())
	}
	spec := r.Spectrum()

	if spec.PrecursorMZ != 500.25 {
		t.Errorf("expected precursor 500.25, got %f", spec.PrecursorMZ)
	}
	if spec.PrecursorCharge != 2 {
		t.Errorf("expected charge 2, got %d", spec.PrecursorCharge)
	}
	if spec.Title != "run1.scan100" {
		t.Errorf("unexpected title %q", spec.Title)
	}
	if spec.RetentionTime == nil || *spec.RetentionTime != 1200.5 {
		t.Error("expected retention time 1200.5")
	}
	if spec.AdditionalParams["SEQ"] != "PEPTIDE" {
		t.Errorf("expected SEQ param, got %v", spec.AdditionalParams)
	}
	if len(spec.Peaks) != 3 {
		t.Fatalf("expected 3 peaks, got %d", len(spec.Peaks))
	}
	if !spec.ArePeaksSorted() {
		t.Error("peaks must come out sorted by m/z")
	}

	if !r.Next() {
		t.Fatalf("expected second spectrum, err: %v", r.Err())
	}
	spec = r.Spectrum()
	if spec.PrecursorMZ != 900.10 || spec.PrecursorCharge != 3 {
		t.Errorf("unexpected second spectrum: %f/%d", spec.PrecursorMZ, spec.PrecursorCharge)
	}

	if r.Next() {
		t.Error("expected end of input")
	}
	if r.Err() != nil {
		t.Errorf("unexpected error: %v", r.Err())
	}
}

func TestParseCharge(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2", 2},
		{"2+", 2},
		{"+2", 2},
		{"3-", -3},
		{"-3", -3},
		{"2+, 3+", 2},
	}

	for _, tt := range tests {
		got, err := parseCharge(tt.in)
		if err != nil {
			t.Errorf("parseCharge(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCharge(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if _, err := parseCharge("x"); err == nil {
		t.Error("expected error for invalid charge")
	}
}

func TestTruncatedBlock(t *testing.T) {
	r := NewReader(strings.NewReader("BEGIN IONS\nPEPMASS=500\n100 10\n"))
	if r.Next() {
		t.Error("truncated block must not yield a spectrum")
	}
	if r.Err() == nil {
		t.Error("expected error for truncated block")
	}
}

func TestMalformedPeakLine(t *testing.T) {
	r := NewReader(strings.NewReader("BEGIN IONS\nPEPMASS=500\n100 abc\nEND IONS\n"))
	if r.Next() {
		t.Error("malformed peak line must fail the spectrum")
	}
	if r.Err() == nil {
		t.Error("expected error for malformed peak line")
	}
}
