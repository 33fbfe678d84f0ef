// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jcodagnone/geocluster/spatial"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugRegion spatial.Region

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

// classifyLines reads "lat,lng" lines and writes each one followed by the
// validation outcome.
func classifyLines(r io.Reader, w io.Writer, region spatial.Region) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lat, lng, err := parseLatLng(line)
		if err != nil {
			fmt.Fprintf(w, "%s\t%q\n", line, err)

			continue
		}

		fmt.Fprintf(w, "%s\t%s\n", line, spatial.Classify(lat, lng, region))
	}

	return scanner.Err()
}

func parseLatLng(line string) (float64, float64, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lng")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}

	return lat, lng, nil
}

var debugValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Classifies coordinates read from stdin",
	Long: `Reads one lat,lng pair per line and prints it followed by the outcome of the
coordinate validation against --region.

$ echo 0,0 | geocluster debug validate --region 40.4,-74.3,41.0,-73.6
0,0	sentinel
`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if debugRegion.IsZero() {
			return fmt.Errorf("--region is required")
		}

		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter coordinates to validate, one lat,lng pair per line…")
		}

		if err := classifyLines(os.Stdin, os.Stdout, debugRegion); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugValidateCmd)
	debugValidateCmd.Flags().Var(&regionValue{r: &debugRegion}, "region", "Bounding region as minLat,minLng,maxLat,maxLng")
}
