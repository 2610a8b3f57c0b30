package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectFileTypeByExtension(t *testing.T) {
	tests := []struct {
		name string
		want FileType
	}{
		{"spectra.mgf", FileTypeMGF},
		{"spectra.MGF", FileTypeMGF},
		{"spectra.ms2", FileTypeMS2},
		{"spectra.apl", FileTypeAPL},
		{"spectra.pkl", FileTypePKL},
		{"spectra.dta", FileTypeDTA},
		{"spectra.mzml", FileTypeMzML},
		{"spectra.mzxml", FileTypeMzXML},
	}

	for _, tt := range tests {
		path := writeFile(t, tt.name, "")
		got, err := DetectFileType(path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestDetectFileTypeBySniffing(t *testing.T) {
	mzml := writeFile(t, "data.xml",
		"<?xml version=\"1.0\"?>\n<mzML xmlns=\"http://psi.hupo.org/ms/mzml\">\n")
	got, err := DetectFileType(mzml)
	require.NoError(t, err)
	assert.Equal(t, FileTypeMzML, got)

	mzxml := writeFile(t, "data2.xml",
		"<?xml version=\"1.0\"?>\n<mzXML xmlns=\"http://sashimi.sourceforge.net\">\n")
	got, err = DetectFileType(mzxml)
	require.NoError(t, err)
	assert.Equal(t, FileTypeMzXML, got)
}

// Sniffing reads at most 10 lines; a header buried under a longer prologue
// is not detected. This mirrors the documented detection limit.
func TestDetectFileTypeSniffLimit(t *testing.T) {
	content := strings.Repeat("<!-- preamble -->\n", 12) +
		"<mzML xmlns=\"http://psi.hupo.org/ms/mzml\">\n"
	path := writeFile(t, "buried.xml", content)

	got, err := DetectFileType(path)
	require.NoError(t, err)
	assert.Equal(t, FileTypeUnknown, got)
}

func TestReadAllUnsupportedType(t *testing.T) {
	path := writeFile(t, "data.mzml", "<mzML/>")
	r := New(DefaultConfig(), nil, path)

	_, err := r.ReadAll(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFileType))
}

const testMGF = `BEGIN IONS
TITLE=first
PEPMASS=900.10
CHARGE=2+
SEQ=SECOND
100.0 10
200.0 20
300.0 30
END IONS
BEGIN IONS
TITLE=second
PEPMASS=500.25
CHARGE=2+
RTINSECONDS=55.5
100.0 10
200.0 20
300.0 30
END IONS
`

func TestReadAllSortsAndStoresProperties(t *testing.T) {
	path := writeFile(t, "run.mgf", testMGF)
	props := storage.NewInMemoryPropertyStore()

	r := New(DefaultConfig(), nil, path)
	spectra, err := r.ReadAll(context.Background(), props)
	require.NoError(t, err)
	require.Len(t, spectra, 2)

	// file order is not trusted: output is sorted by precursor bin
	assert.Equal(t, int32(500250), spectra[0].PrecursorMZBin)
	assert.Equal(t, int32(900100), spectra[1].PrecursorMZBin)

	// properties are keyed by the generated uui
	title, err := props.Get(spectra[0].UUI, PropertyTitle)
	require.NoError(t, err)
	assert.Equal(t, "second", title)

	rt, err := props.Get(spectra[0].UUI, PropertyRetentionTime)
	require.NoError(t, err)
	assert.Contains(t, rt, "55.5")

	seq, err := props.Get(spectra[1].UUI, PropertySequence)
	require.NoError(t, err)
	assert.Equal(t, "SECOND", seq)

	raw, err := props.Get(spectra[0].UUI, PropertyRawFile)
	require.NoError(t, err)
	assert.Equal(t, path, raw)
}

func TestPrepareBinarizes(t *testing.T) {
	r := New(DefaultConfig(), nil)

	spec := &core.Spectrum{
		PrecursorMZ:     500.25,
		PrecursorCharge: 2,
		Peaks: []core.Peak{
			{MZ: 100.0, Intensity: 10},
			{MZ: 200.0, Intensity: 40},
			{MZ: 300.0, Intensity: 20},
		},
	}

	bs := r.Prepare(spec)

	assert.NotEmpty(t, bs.UUI)
	assert.Equal(t, int32(500250), bs.PrecursorMZBin)
	assert.Equal(t, int32(2), bs.PrecursorCharge)
	require.Len(t, bs.MZ, 3)
	assert.Equal(t, len(bs.MZ), len(bs.Intensity))

	// m/z bins strictly increasing after the per-bin filter
	for i := 1; i < len(bs.MZ); i++ {
		assert.Greater(t, bs.MZ[i], bs.MZ[i-1])
	}

	// max-peak normalization puts the base peak at the scale ceiling
	maxIntensity := bs.Intensity[0]
	for _, v := range bs.Intensity {
		if v > maxIntensity {
			maxIntensity = v
		}
	}
	assert.Equal(t, int32(100000), maxIntensity)
}

func TestStreamDeliversAll(t *testing.T) {
	path := writeFile(t, "run.mgf", testMGF)
	r := New(DefaultConfig(), nil, path)

	out, errc := r.Stream(context.Background(), nil, 8)

	count := 0
	for range out {
		count++
	}
	require.NoError(t, <-errc)
	assert.Equal(t, 2, count)
}
