// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/geocluster/dataset"
	"github.com/jcodagnone/geocluster/microcluster"
	"github.com/jcodagnone/geocluster/partition"
	"github.com/jcodagnone/geocluster/pipeline"
	"github.com/spf13/cobra"
)

type runOptions struct {
	Input       string
	CSV         dataset.CSVOptions
	Output      string
	Metadata    string
	DBPath      string
	MetricsFile string
	NoProgress  bool
}

var (
	runConfig = pipeline.DefaultConfig()
	runOpts   = &runOptions{}
)

// metadataPath is the default sidecar location for a stream.
func metadataPath(bin string) string {
	return bin + ".meta.txt"
}

// openDB opens the on disk microcluster database, or an in-memory one when
// dir is empty.
func openDB(dir string) (*sql.DB, error) {
	if dir == "" {
		return sql.Open("duckdb", "")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return sql.Open("duckdb", filepath.Join(dir, "geocluster.duckdb"))
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Clusters a CSV of points and writes the binary stream",
	Long: `Reads every point of --input, validates its coordinates against --region,
partitions the valid points spatially, refines every spatial cluster by the
numeric attributes, groups the outliers by attributes alone and writes one
record per point to --output, with a metadata sidecar next to it.

$ geocluster run --input trips.csv --region 40.4,-74.3,41.0,-73.6 --output trips.bin
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runPipeline(ctx, runConfig, runOpts)
	},
}

func runPipeline(ctx context.Context, cfg pipeline.Config, opts *runOptions) error {
	if opts.Input == "" || opts.Output == "" {
		return fmt.Errorf("--input and --output are required")
	}

	p, err := pipeline.New(cfg, pipeline.WithProgress(!opts.NoProgress))
	if err != nil {
		return err
	}

	db, err := openDB("")
	if err != nil {
		return fmt.Errorf("opening duckdb: %w", err)
	}
	defer db.Close()

	csv := opts.CSV
	csv.Path = opts.Input

	result, err := p.Run(ctx, dataset.NewCSVSource(db, csv))
	if err != nil {
		return err
	}

	meta := opts.Metadata
	if meta == "" {
		meta = metadataPath(opts.Output)
	}

	if err := result.Export(opts.Output, meta, !opts.NoProgress); err != nil {
		return err
	}

	result.Stats.Log()
	log.Printf("Wrote %s and %s (run %s)", opts.Output, meta, result.RunID)

	if opts.DBPath != "" {
		if err := saveMicroclusters(result, opts.DBPath); err != nil {
			return err
		}
	}

	if opts.MetricsFile != "" {
		m := pipeline.NewMetrics()
		m.Observe(&result.Stats, result.GeneratedAt)

		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	return nil
}

func saveMicroclusters(result *pipeline.Result, dir string) error {
	db, err := openDB(dir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	repo := microcluster.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	if err := result.Save(repo); err != nil {
		return err
	}

	log.Printf("Stored %d microclusters of run %s in %s", len(result.Microclusters), result.RunID, dir)

	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.Input, "input", "", "CSV file with one point per row")
	f.StringVar(&runOpts.CSV.IDColumn, "id-column", "", "Column with the point id; the row number when empty")
	f.StringVar(&runOpts.CSV.LatColumn, "lat-column", "pickup_latitude", "Latitude column")
	f.StringVar(&runOpts.CSV.LngColumn, "lng-column", "pickup_longitude", "Longitude column")
	f.StringSliceVar(&runOpts.CSV.Attributes, "attributes", nil,
		"Attribute columns, in order. Every other numeric column when empty")
	f.StringVar(&runOpts.Output, "output", "", "Binary stream to write")
	f.StringVar(&runOpts.Metadata, "metadata", "", "Metadata sidecar to write. Defaults to <output>.meta.txt")
	f.StringVar(&runOpts.DBPath, "db-path", "", "Directory of the DuckDB database where microclusters are stored")
	f.StringVar(&runOpts.MetricsFile, "metrics-file", "", "Write run statistics in the Prometheus textfile format")
	f.BoolVar(&runOpts.NoProgress, "no-progress", false, "Disable progress reporting")

	f.Var(&regionValue{r: &runConfig.Region}, "region", "Bounding region as minLat,minLng,maxLat,maxLng (required)")
	f.Var(newCountValue(&runConfig.SpatialClusters), "spatial-clusters", "Target spatial clusters or auto")
	f.Var(newCountValue(&runConfig.SubClusters), "sub-clusters",
		"Sub-clusters per spatial cluster or auto to search up to --max-sub-clusters")
	f.IntVar(&runConfig.MaxSubClusters, "max-sub-clusters", runConfig.MaxSubClusters, "Largest sub-cluster count searched")
	f.Var(newCountValue(&runConfig.OutlierGroups), "outlier-groups", "Attribute groups for outliers or auto")
	f.IntVar(&runConfig.MinPointsPerSub, "min-points-per-subcluster", runConfig.MinPointsPerSub,
		"Minimum points every sub-cluster must be able to hold")
	f.IntVar(&runConfig.MaxAttributeArity, "max-attribute-arity", runConfig.MaxAttributeArity,
		"Attributes stored per record; extra ones are dropped and counted")
	f.Int64Var(&runConfig.Seed, "seed", runConfig.Seed, "Random seed of every stochastic step")
	f.IntVar(&runConfig.ChunkSize, "chunk-size", runConfig.ChunkSize, "Points per processing chunk")
	f.IntVar(&runConfig.Workers, "workers", runConfig.Workers, "Concurrent workers")
	f.StringVar(&runConfig.Strategy, "strategy", runConfig.Strategy,
		"Partitioning strategy: auto, "+strings.Join(partition.Names(), ", "))
	f.IntVar(&runConfig.GridMinOccupancy, "grid-min-occupancy", 0,
		"Points a grid cell needs to become a cluster. Derived from the data when 0")
	f.IntVar(&runConfig.H3Resolution, "h3-resolution", runConfig.H3Resolution,
		"H3 resolution of microcluster cells, 0 disables them")
}
