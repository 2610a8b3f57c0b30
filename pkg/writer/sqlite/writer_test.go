package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/normalizer"
)

func TestWriteCluster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.db")

	w, err := NewWriter(path, normalizer.SequestBinner{})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	c := cluster.NewGreedy(100, nil)
	c.AddSpectra(&core.BinarySpectrum{
		UUI:             "m1",
		PrecursorMZBin:  500250,
		PrecursorCharge: 2,
		MZ:              []int32{100, 200, 300},
		Intensity:       []int32{10, 20, 30},
	})

	if err := w.WriteCluster(c); err != nil {
		t.Fatalf("failed to write cluster: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	var (
		clusterID   string
		precursorMz float64
		memberCount int
		peakCount   int
		memberIds   string
	)
	err = db.QueryRow(`SELECT ClusterId, PrecursorMz, MemberCount, PeakCount, MemberIds FROM ClusterTable`).
		Scan(&clusterID, &precursorMz, &memberCount, &peakCount, &memberIds)
	if err != nil {
		t.Fatalf("failed to query cluster: %v", err)
	}

	if clusterID != c.ID() {
		t.Errorf("expected cluster id %s, got %s", c.ID(), clusterID)
	}
	if precursorMz != 500.25 {
		t.Errorf("expected precursor 500.25, got %f", precursorMz)
	}
	if memberCount != 1 {
		t.Errorf("expected 1 member, got %d", memberCount)
	}
	if peakCount != 3 {
		t.Errorf("expected 3 peaks, got %d", peakCount)
	}
	if memberIds != "m1" {
		t.Errorf("expected member ids 'm1', got %q", memberIds)
	}

	var headerVersion int
	if err := db.QueryRow(`SELECT version FROM HeaderTable`).Scan(&headerVersion); err != nil {
		t.Fatalf("failed to query header: %v", err)
	}
	if headerVersion != 1 {
		t.Errorf("expected header version 1, got %d", headerVersion)
	}
}
