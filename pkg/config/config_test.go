package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Clustering.NHighestPeaksRaw != 40 {
		t.Errorf("expected 40 raw peaks, got %d", cfg.Clustering.NHighestPeaksRaw)
	}
	if cfg.Clustering.NoiseFilterIncrement != 100 {
		t.Errorf("expected noise increment 100, got %d", cfg.Clustering.NoiseFilterIncrement)
	}
	if cfg.Clustering.TopPeakShareK != 5 {
		t.Errorf("expected top peak share 5, got %d", cfg.Clustering.TopPeakShareK)
	}
	if cfg.Storage.ClusterStoreMode != "dynamic" {
		t.Errorf("expected dynamic store mode, got %s", cfg.Storage.ClusterStoreMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
clustering:
  precursor_tolerance_bins: 25
  min_comparisons: 500
storage:
  cluster_store_mode: static
  expected_cluster_count: 10000
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Clustering.PrecursorToleranceBins != 25 {
		t.Errorf("expected tolerance 25, got %d", cfg.Clustering.PrecursorToleranceBins)
	}
	if cfg.Clustering.MinComparisons != 500 {
		t.Errorf("expected min comparisons 500, got %d", cfg.Clustering.MinComparisons)
	}
	// untouched fields keep their defaults
	if cfg.Clustering.NHighestPeaksRaw != 40 {
		t.Errorf("expected default raw peaks, got %d", cfg.Clustering.NHighestPeaksRaw)
	}
	if cfg.Storage.ClusterStoreMode != "static" {
		t.Errorf("expected static store, got %s", cfg.Storage.ClusterStoreMode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.ClusterStoreMode = "static"
	if err := cfg.Validate(); err == nil {
		t.Error("static mode without expected count must fail validation")
	}

	cfg.Storage.ExpectedClusterCount = 1000
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid static config rejected: %v", err)
	}

	cfg.Storage.ClusterStoreMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown store mode must fail validation")
	}
}
