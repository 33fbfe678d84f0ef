// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/inspect"
	"github.com/jcodagnone/geocluster/microcluster"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	Bin      string
	Metadata string
	DBPath   string
	Addr     string
}

var serveOpts = &serveOptions{}

func readMetadata(path string) (*codec.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return codec.ReadMetadata(f)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves a read-only JSON API over a stream and its microclusters",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if serveOpts.Bin == "" {
			return errors.New("--bin is required")
		}

		metaPath := serveOpts.Metadata
		if metaPath == "" {
			metaPath = metadataPath(serveOpts.Bin)
		}

		meta, err := readMetadata(metaPath)
		switch {
		case errors.Is(err, fs.ErrNotExist) && serveOpts.Metadata == "":
			log.Printf("No metadata sidecar at %s, serving records only", metaPath)
		case err != nil:
			return fmt.Errorf("reading metadata: %w", err)
		}

		arity := 0
		if meta != nil {
			arity = meta.Arity
		}

		file, err := codec.OpenMapped(serveOpts.Bin, arity)
		if err != nil {
			return err
		}
		defer file.Close()

		var repo microcluster.Repository

		if serveOpts.DBPath != "" {
			db, err := openDB(serveOpts.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			repo = microcluster.NewRepository(db)
			if err := repo.CreateSchema(); err != nil {
				return fmt.Errorf("creating table: %w", err)
			}
		}

		log.Printf("Serving %d records of %s on http://%s", file.Len(), serveOpts.Bin, serveOpts.Addr)

		return inspect.NewServer(file, meta, repo).Run(serveOpts.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOpts.Bin, "bin", "", "Uncompressed binary stream to serve")
	serveCmd.Flags().StringVar(&serveOpts.Metadata, "metadata", "", "Metadata sidecar. Defaults to <bin>.meta.txt")
	serveCmd.Flags().StringVar(&serveOpts.DBPath, "db-path", "", "Directory of the DuckDB database with stored microclusters")
	serveCmd.Flags().StringVar(&serveOpts.Addr, "addr", "localhost:8080", "Listen address")
}
