// Package reader turns peak-list files into the sorted stream of binary
// spectra the clustering engine consumes.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/filter"
	"github.com/ChrisMcGann/speclust/pkg/normalizer"
	"github.com/ChrisMcGann/speclust/pkg/reader/mgf"
	"github.com/ChrisMcGann/speclust/pkg/storage"
	"go.uber.org/zap"
)

// ErrUnsupportedFileType is returned for recognized but unsupported input
// formats.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// FileType identifies a peak-list file format.
type FileType string

const (
	FileTypeMGF     FileType = "mgf"
	FileTypeMzML    FileType = "mzml"
	FileTypeMzXML   FileType = "mzxml"
	FileTypeMS2     FileType = "ms2"
	FileTypeAPL     FileType = "apl"
	FileTypePKL     FileType = "pkl"
	FileTypeDTA     FileType = "dta"
	FileTypeUnknown FileType = ""
)

// Property names stored for each spectrum.
const (
	PropertyRetentionTime = "RT"
	PropertyRawFile       = "rawFile"
	PropertyTitle         = "title"
	PropertySequence      = "sequence"
)

var (
	mzMLHeaderPattern  = regexp.MustCompile(`<(indexedmzML|mzML)[ >]`)
	mzXMLHeaderPattern = regexp.MustCompile(`<mzXML[ >]`)
)

// sniffLines bounds content sniffing. Detection reads at most this many
// lines, so XML files with longer prologues are not recognized.
const sniffLines = 10

// DetectFileType determines the file type from the extension, falling back
// to content sniffing for XML formats.
func DetectFileType(path string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mgf":
		return FileTypeMGF, nil
	case ".ms2":
		return FileTypeMS2, nil
	case ".apl":
		return FileTypeAPL, nil
	case ".pkl":
		return FileTypePKL, nil
	case ".dta":
		return FileTypeDTA, nil
	case ".mzml":
		return FileTypeMzML, nil
	case ".mzxml":
		return FileTypeMzXML, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for i := 0; i < sniffLines && scanner.Scan(); i++ {
		line := scanner.Text()
		if mzMLHeaderPattern.MatchString(line) {
			return FileTypeMzML, nil
		}
		if mzXMLHeaderPattern.MatchString(line) {
			return FileTypeMzXML, nil
		}
	}
	return FileTypeUnknown, nil
}

// Config parameterizes spectrum preparation.
type Config struct {
	MzBinner            normalizer.MzBinner
	IntensityNormalizer normalizer.IntensityNormalizer
	PrecursorBinner     normalizer.PrecursorBinner
	LoadingFilter       filter.RawFilter
	PerBinFilter        filter.HighestPeakPerBin
	Workers             int
}

// DefaultConfig mirrors the canonical pipeline: Sequest m/z bins, max-peak
// intensity normalization, top-40 raw peaks.
func DefaultConfig() Config {
	return Config{
		MzBinner:            normalizer.SequestBinner{},
		IntensityNormalizer: normalizer.MaxPeakNormalizer{},
		LoadingFilter: filter.Chain{
			filter.RemoveImpossiblyHighPeaks{},
			filter.RemovePrecursorPeaks{WindowDa: 0.5},
			filter.KeepNHighestRawPeaks{N: 40},
		},
		PerBinFilter: filter.HighestPeakPerBin{Window: 1},
		Workers:      4,
	}
}

// Reader prepares spectra from one or more peak-list files.
type Reader struct {
	cfg   Config
	files []string
	log   *zap.Logger
}

// New creates a Reader over the given files.
func New(cfg Config, log *zap.Logger, files ...string) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Reader{cfg: cfg, files: files, log: log}
}

// ReadAll loads every spectrum, prepares it on a bounded worker pool, stores
// its properties, and returns the binary spectra sorted ascending by
// precursor bin. File order is not trusted.
func (r *Reader) ReadAll(ctx context.Context, props storage.PropertyStore) ([]*core.BinarySpectrum, error) {
	var raw []*core.Spectrum
	for _, path := range r.files {
		spectra, err := r.readFile(path)
		if err != nil {
			return nil, err
		}
		raw = append(raw, spectra...)
	}

	prepared := make([]*core.BinarySpectrum, len(raw))
	jobs := make(chan int, r.cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				prepared[i] = r.Prepare(raw[i])
			}
		}()
	}

sendLoop:
	for i := range raw {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	empty := 0
	out := make([]*core.BinarySpectrum, 0, len(prepared))
	for i, bs := range prepared {
		if bs.NumberOfPeaks() == 0 {
			empty++
			continue
		}
		if props != nil {
			if err := r.storeProperties(props, raw[i], bs); err != nil {
				return nil, fmt.Errorf("storing spectrum properties: %w", err)
			}
		}
		out = append(out, bs)
	}
	if empty > 0 {
		r.log.Warn("dropped spectra with no peaks after filtering", zap.Int("count", empty))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PrecursorMZBin < out[j].PrecursorMZBin
	})
	return out, nil
}

// Stream runs ReadAll and feeds the sorted spectra through a size-bounded
// channel. The channel is closed when the input is exhausted or ctx fires.
func (r *Reader) Stream(ctx context.Context, props storage.PropertyStore, buffer int) (<-chan *core.BinarySpectrum, <-chan error) {
	if buffer < 1 {
		buffer = 64
	}
	out := make(chan *core.BinarySpectrum, buffer)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		spectra, err := r.ReadAll(ctx, props)
		if err != nil {
			errc <- err
			return
		}
		for _, s := range spectra {
			select {
			case <-ctx.Done():
				return
			case out <- s:
			}
		}
	}()

	return out, errc
}

// Prepare applies the loading filters and binarization to a single raw
// spectrum.
func (r *Reader) Prepare(spec *core.Spectrum) *core.BinarySpectrum {
	if r.cfg.LoadingFilter != nil {
		r.cfg.LoadingFilter.Apply(spec)
	}

	intensities := make([]float64, len(spec.Peaks))
	for i, p := range spec.Peaks {
		intensities[i] = p.Intensity
	}

	bs := &core.BinarySpectrum{
		UUI:             core.NewUUI(),
		PrecursorMZBin:  r.cfg.PrecursorBinner.Bin(spec.PrecursorMZ),
		PrecursorCharge: int32(spec.PrecursorCharge),
		MZ:              make([]int32, len(spec.Peaks)),
		Intensity:       r.cfg.IntensityNormalizer.Normalize(intensities),
	}
	for i, p := range spec.Peaks {
		bs.MZ[i] = r.cfg.MzBinner.Bin(p.MZ)
	}

	return r.cfg.PerBinFilter.Apply(bs)
}

func (r *Reader) readFile(path string) ([]*core.Spectrum, error) {
	fileType, err := DetectFileType(path)
	if err != nil {
		return nil, err
	}

	switch fileType {
	case FileTypeMGF:
		return r.readMGF(path)
	case FileTypeUnknown:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFileType)
	default:
		return nil, fmt.Errorf("%s (%s): %w", path, fileType, ErrUnsupportedFileType)
	}
}

func (r *Reader) readMGF(path string) ([]*core.Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var spectra []*core.Spectrum
	mgfReader := mgf.NewReader(f)
	for mgfReader.Next() {
		spec := mgfReader.Spectrum()
		spec.SourceFile = path
		spectra = append(spectra, spec)
	}
	if err := mgfReader.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r.log.Info("read peak-list file", zap.String("file", path), zap.Int("spectra", len(spectra)))
	return spectra, nil
}

func (r *Reader) storeProperties(props storage.PropertyStore, spec *core.Spectrum, bs *core.BinarySpectrum) error {
	if spec.RetentionTime != nil {
		if err := props.Put(bs.UUI, PropertyRetentionTime, fmt.Sprintf("%f", *spec.RetentionTime)); err != nil {
			return err
		}
	}
	if spec.SourceFile != "" {
		if err := props.Put(bs.UUI, PropertyRawFile, spec.SourceFile); err != nil {
			return err
		}
	}
	if spec.Title != "" {
		if err := props.Put(bs.UUI, PropertyTitle, spec.Title); err != nil {
			return err
		}
	}
	if seq, ok := spec.AdditionalParams["SEQ"]; ok {
		if err := props.Put(bs.UUI, PropertySequence, seq); err != nil {
			return err
		}
	}
	return nil
}
