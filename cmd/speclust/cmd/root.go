// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"

	"github.com/ChrisMcGann/speclust/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Flags for cluster command
	inputFiles           []string
	outputFile           string
	mspFile              string
	sqliteFile           string
	configFile           string
	precursorTolBins     int
	fragmentTolerance    float64
	minComparisons       int
	nHighestPeaksRaw     int
	noiseFilterIncrement int
	topPeakShareK        int
	clusterStoreMode     string
	expectedClusterCount int
	workers              int
	logLevel             string
)

var rootCmd = &cobra.Command{
	Use:   "speclust",
	Short: "speclust - MS/MS spectrum clustering tool",
	Long: `speclust clusters large collections of tandem mass spectra by grouping
spectra that plausibly originate from the same peptide ion.

Each cluster is summarized by a consensus spectrum; results are written to a
binary cluster store and optionally exported as MSP or SQLite.`,
	Version: "1.0.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().StringSliceVarP(&inputFiles, "in", "i", nil, "Input peak-list files (required)")
	clusterCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output cluster store file (required)")
	clusterCmd.Flags().StringVar(&mspFile, "msp", "", "Also write clusters as MSP to this file")
	clusterCmd.Flags().StringVar(&sqliteFile, "sqlite", "", "Also archive consensus spectra to this SQLite file")
	clusterCmd.Flags().StringVar(&configFile, "config", "", "YAML configuration file")
	clusterCmd.Flags().IntVar(&precursorTolBins, "precursor-tolerance-bins", 10, "Precursor tolerance in bins")
	clusterCmd.Flags().Float64Var(&fragmentTolerance, "fragment-tolerance", 1.0, "Fragment tolerance in Th")
	clusterCmd.Flags().IntVar(&minComparisons, "min-comparisons", 10000, "Floor for the similarity threshold table")
	clusterCmd.Flags().IntVar(&nHighestPeaksRaw, "n-highest-peaks-raw", 40, "Raw peaks kept per spectrum before binarization")
	clusterCmd.Flags().IntVar(&noiseFilterIncrement, "noise-filter-increment", 100, "Consensus noise window in bins")
	clusterCmd.Flags().IntVar(&topPeakShareK, "top-peak-share-k", 5, "Top peaks compared by the fast rejection predicate")
	clusterCmd.Flags().StringVar(&clusterStoreMode, "cluster-store-mode", "dynamic", "Cluster store mode: static or dynamic")
	clusterCmd.Flags().IntVar(&expectedClusterCount, "expected-cluster-count", 0, "Expected cluster count (static store only)")
	clusterCmd.Flags().IntVar(&workers, "threads", 4, "Number of spectrum preparation workers")
	clusterCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	clusterCmd.MarkFlagRequired("in")
	clusterCmd.MarkFlagRequired("out")
}

// loadConfig merges the optional config file with flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return cfg, err
		}
	}

	if cmd.Flags().Changed("precursor-tolerance-bins") {
		cfg.Clustering.PrecursorToleranceBins = precursorTolBins
	}
	if cmd.Flags().Changed("fragment-tolerance") {
		cfg.Clustering.FragmentTolerance = fragmentTolerance
	}
	if cmd.Flags().Changed("min-comparisons") {
		cfg.Clustering.MinComparisons = minComparisons
	}
	if cmd.Flags().Changed("n-highest-peaks-raw") {
		cfg.Clustering.NHighestPeaksRaw = nHighestPeaksRaw
	}
	if cmd.Flags().Changed("noise-filter-increment") {
		cfg.Clustering.NoiseFilterIncrement = noiseFilterIncrement
	}
	if cmd.Flags().Changed("top-peak-share-k") {
		cfg.Clustering.TopPeakShareK = topPeakShareK
	}
	if cmd.Flags().Changed("cluster-store-mode") {
		cfg.Storage.ClusterStoreMode = clusterStoreMode
	}
	if cmd.Flags().Changed("expected-cluster-count") {
		cfg.Storage.ExpectedClusterCount = expectedClusterCount
	}
	if cmd.Flags().Changed("threads") {
		cfg.Clustering.Workers = workers
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	return cfg, cfg.Validate()
}

// newLogger builds a zap logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// IOError marks failures in the storage or output layer so the CLI can map
// them to the I/O exit code.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }
