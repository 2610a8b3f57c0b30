package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChrisMcGann/speclust/pkg/cdf"
	"github.com/ChrisMcGann/speclust/pkg/cluster"
	"github.com/ChrisMcGann/speclust/pkg/config"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/engine"
	"github.com/ChrisMcGann/speclust/pkg/filter"
	"github.com/ChrisMcGann/speclust/pkg/normalizer"
	"github.com/ChrisMcGann/speclust/pkg/reader"
	"github.com/ChrisMcGann/speclust/pkg/similarity"
	"github.com/ChrisMcGann/speclust/pkg/storage"
	mspwriter "github.com/ChrisMcGann/speclust/pkg/writer/msp"
	sqlitewriter "github.com/ChrisMcGann/speclust/pkg/writer/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster spectra from peak-list files",
	Long: `Cluster spectra from one or more peak-list files into a binary cluster
store, optionally exporting consensus spectra as MSP or SQLite.

Examples:
  # Cluster two MGF files into a result store
  speclust cluster --in run1.mgf --in run2.mgf --out clusters.cls

  # Cluster and export MSP, with a pre-sized store
  speclust cluster --in run.mgf --out clusters.cls --msp clusters.msp \
    --cluster-store-mode static --expected-cluster-count 100000`,
	RunE: runCluster,
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	for _, f := range inputFiles {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", f)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	binner := normalizer.SequestBinner{}
	fragmentBins := int32(cfg.Clustering.FragmentTolerance / binner.BinWidth())
	readerCfg := reader.Config{
		MzBinner:            binner,
		IntensityNormalizer: normalizer.MaxPeakNormalizer{},
		LoadingFilter: filter.Chain{
			filter.RemoveImpossiblyHighPeaks{},
			filter.RemovePrecursorPeaks{WindowDa: 0.5},
			filter.KeepNHighestRawPeaks{N: cfg.Clustering.NHighestPeaksRaw},
		},
		PerBinFilter: filter.HighestPeakPerBin{
			Window: fragmentBins,
		},
		Workers: cfg.Clustering.Workers,
	}

	assessor, err := cdf.NewMinNumberComparisonsAssessor(cfg.Clustering.MinComparisons)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		PrecursorToleranceBins: int32(cfg.Clustering.PrecursorToleranceBins),
		NoiseFilterIncrement:   int32(cfg.Clustering.NoiseFilterIncrement),
		TopPeakShareK:          cfg.Clustering.TopPeakShareK,
	}, similarity.CombinedFisherIntensityTest{PeakMatchTolerance: fragmentBins}, assessor, log)

	props := storage.NewInMemoryPropertyStore()
	defer props.Close()

	store, err := openClusterStore(cfg, log)
	if err != nil {
		return &IOError{Err: err}
	}
	defer store.Close()

	spectra, errc := reader.New(readerCfg, log, inputFiles...).Stream(ctx, props, 256)

	var storedKeys []uint64
	emit := func(c *cluster.Greedy) error {
		if err := store.Put(storage.HashKey(c.ID()), c); err != nil {
			return &IOError{Err: err}
		}
		storedKeys = append(storedKeys, storage.HashKey(c.ID()))
		return nil
	}

	runErr := eng.Run(ctx, spectra, emit)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("clustering complete",
		zap.Int("clusters", len(storedKeys)),
		zap.Int("emptyDropped", eng.EmptySpectraDropped()))

	if mspFile != "" {
		if err := writeMsp(store, storedKeys, props, binner); err != nil {
			return &IOError{Err: err}
		}
	}
	if sqliteFile != "" {
		if err := writeSqlite(store, storedKeys, binner); err != nil {
			return &IOError{Err: err}
		}
	}

	fmt.Printf("Clustered into %d clusters\n", len(storedKeys))
	fmt.Printf("Output: %s\n", outputFile)
	return nil
}

func openClusterStore(cfg config.Config, log *zap.Logger) (storage.ClusterStore, error) {
	noise := int32(cfg.Clustering.NoiseFilterIncrement)
	if cfg.Storage.ClusterStoreMode == "static" {
		return storage.NewStaticClusterStore(outputFile, cfg.Storage.ExpectedClusterCount, noise, log)
	}
	return storage.NewDynamicClusterStore(outputFile, noise, log)
}

func writeMsp(store storage.ClusterStore, keys []uint64, props storage.PropertyStore, binner normalizer.MzBinner) error {
	f, err := os.Create(mspFile)
	if err != nil {
		return fmt.Errorf("creating MSP file: %w", err)
	}
	defer f.Close()

	w := mspwriter.NewWriter(f, binner, core.DefaultModDatabase())
	for _, key := range keys {
		c, err := store.Get(key)
		if err != nil {
			return fmt.Errorf("loading cluster %d: %w", key, err)
		}
		if err := w.WriteCluster(c, props); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeSqlite(store storage.ClusterStore, keys []uint64, binner normalizer.MzBinner) error {
	w, err := sqlitewriter.NewWriter(sqliteFile, binner)
	if err != nil {
		return err
	}
	for _, key := range keys {
		c, err := store.Get(key)
		if err != nil {
			w.Close()
			return fmt.Errorf("loading cluster %d: %w", key, err)
		}
		if err := w.WriteCluster(c); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
