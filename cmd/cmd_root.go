// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

const envPrefix = "GEOCLUSTER_"

// envName maps a flag name to its environment variable: --spatial-clusters is
// read from GEOCLUSTER_SPATIAL_CLUSTERS.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv fills every flag the user did not set from the environment, after
// loading a .env file from the working directory when there is one.
func applyEnv(flags *pflag.FlagSet) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var errs []error

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}

		if v, ok := os.LookupEnv(envName(f.Name)); ok {
			if err := flags.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", envName(f.Name), err))
			}
		}
	})

	return errors.Join(errs...)
}

var rootCmd = &cobra.Command{
	Use:   "geocluster",
	Short: "hierarchical clustering of geo-tagged trip points",
	Long: `
geocluster groups geo-tagged points first by location and then by their
numeric attributes, summarizes every group as a microcluster and writes the
result as a fixed width binary stream for downstream visualization.

Every flag can also be set through a GEOCLUSTER_<FLAG> environment variable,
for example GEOCLUSTER_REGION, optionally declared in a .env file.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyEnv(cmd.Flags())
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
