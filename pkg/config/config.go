// Package config holds the clustering run configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the speclust run configuration.
type Config struct {
	Clustering ClusteringConfig `yaml:"clustering"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ClusteringConfig holds engine and preparation settings.
type ClusteringConfig struct {
	PrecursorToleranceBins int     `yaml:"precursor_tolerance_bins"`
	FragmentTolerance      float64 `yaml:"fragment_tolerance"` // Th; window for the per-bin filter and scorer
	MinComparisons         int     `yaml:"min_comparisons"`
	NHighestPeaksRaw       int     `yaml:"n_highest_peaks_raw"`
	NoiseFilterIncrement   int     `yaml:"noise_filter_increment"`
	TopPeakShareK          int     `yaml:"top_peak_share_k"`
	Workers                int     `yaml:"workers"`
}

// StorageConfig holds cluster store settings.
type StorageConfig struct {
	ClusterStoreMode     string `yaml:"cluster_store_mode"` // static, dynamic
	ExpectedClusterCount int    `yaml:"expected_cluster_count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		Clustering: ClusteringConfig{
			PrecursorToleranceBins: 10,
			FragmentTolerance:      1.0,
			MinComparisons:         10000,
			NHighestPeaksRaw:       40,
			NoiseFilterIncrement:   100,
			TopPeakShareK:          5,
			Workers:                4,
		},
		Storage: StorageConfig{
			ClusterStoreMode: "dynamic",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Clustering.PrecursorToleranceBins < 0 {
		return fmt.Errorf("precursor_tolerance_bins must be non-negative")
	}
	if c.Storage.ClusterStoreMode != "static" && c.Storage.ClusterStoreMode != "dynamic" {
		return fmt.Errorf("cluster_store_mode must be 'static' or 'dynamic', got %q", c.Storage.ClusterStoreMode)
	}
	if c.Storage.ClusterStoreMode == "static" && c.Storage.ExpectedClusterCount < 1 {
		return fmt.Errorf("static cluster store requires expected_cluster_count")
	}
	return nil
}
