// Package sqlite archives cluster consensus spectra in a SQLite database
// for downstream tooling that prefers SQL over the binary .cls store.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/normalizer"
	_ "github.com/mattn/go-sqlite3"
)

const headerDateFormat = "2006-01-02"

// Writer handles writing cluster consensus spectra to a SQLite file.
type Writer struct {
	db          *sql.DB
	outputPath  string
	clusterStmt *sql.Stmt
	binner      normalizer.MzBinner
}

// NewWriter creates a new SQLite archive writer. The binner must match the
// one the spectra were binarized with.
func NewWriter(outputPath string, binner normalizer.MzBinner) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		binner:     binner,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ClusterTable (
		ClusterId TEXT PRIMARY KEY,
		PrecursorMz DOUBLE,
		PrecursorCharge INTEGER,
		MemberCount INTEGER,
		PeakCount INTEGER,
		blobMass BLOB,
		blobIntensity BLOB,
		MemberIds TEXT
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.clusterStmt, err = w.db.Prepare(`
		INSERT INTO ClusterTable (
			ClusterId, PrecursorMz, PrecursorCharge, MemberCount,
			PeakCount, blobMass, blobIntensity, MemberIds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster statement: %w", err)
	}

	return nil
}

// WriteCluster writes a single cluster's consensus spectrum to the database.
func (w *Writer) WriteCluster(c *cluster.Greedy) error {
	rep := c.Representative()

	mzBlob := make([]byte, len(rep.MZ)*8)
	intBlob := make([]byte, len(rep.Intensity)*8)
	for i := range rep.MZ {
		binary.LittleEndian.PutUint64(mzBlob[i*8:], math.Float64bits(w.binner.UnBin(rep.MZ[i])))
		binary.LittleEndian.PutUint64(intBlob[i*8:], math.Float64bits(float64(rep.Intensity[i])))
	}

	memberIds := ""
	for i, id := range c.MemberIDs() {
		if i > 0 {
			memberIds += ";"
		}
		memberIds += id
	}

	_, err := w.clusterStmt.Exec(
		c.ID(),
		normalizer.PrecursorBinner{}.UnBin(rep.PrecursorMZBin),
		rep.PrecursorCharge,
		c.MemberCount(),
		rep.NumberOfPeaks(),
		mzBlob,
		intBlob,
		memberIds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster %s: %w", c.ID(), err)
	}

	return nil
}

// Finalize writes the header table and closes the database
func (w *Writer) Finalize() error {
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Description)
		VALUES (?, ?, ?)
	`, 1, time.Now().Format(headerDateFormat), "speclust consensus archive")
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}

	if w.clusterStmt != nil {
		w.clusterStmt.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
