// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/utils/textutils"
	"github.com/spf13/cobra"
)

type codecOptions struct {
	Arity  int
	Offset int
	Limit  int
	Chunk  int
	Output string
}

var codecOpts = &codecOptions{}

var codecCmd = &cobra.Command{
	Use:   "codec",
	Short: "Inspects and converts binary point streams",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeRecord(w io.Writer, r *codec.Record) error {
	fields := make([]string, 0, 5+r.AttributeCount)
	fields = append(fields,
		strconv.FormatInt(int64(r.ID), 10),
		formatFloat(r.Lat),
		formatFloat(r.Lng),
		strconv.FormatInt(int64(r.SpatialCluster), 10),
		strconv.FormatInt(int64(r.SubCluster), 10),
	)

	for _, v := range r.Values() {
		fields = append(fields, formatFloat(v))
	}

	_, err := fmt.Fprintln(w, strings.Join(fields, "\t"))

	return err
}

// dump writes records [offset, offset+limit) of f as tab separated lines,
// reading one chunk at a time. limit 0 means every record.
func dump(w io.Writer, f *codec.File, opts *codecOptions) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, "id\tlat\tlng\tspatial_cluster\tsub_cluster\tattributes..."); err != nil {
		return err
	}

	index, written := 0, 0

	for opts.Limit == 0 || written < opts.Limit {
		chunk, err := f.NextChunk(max(opts.Chunk, 1))
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}

		for i := range chunk {
			if index++; index <= opts.Offset {
				continue
			}

			if opts.Limit > 0 && written == opts.Limit {
				break
			}

			if err := writeRecord(bw, &chunk[i]); err != nil {
				return err
			}

			written++
		}
	}

	return bw.Flush()
}

var codecDumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Prints the records of a stream as tab separated values",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, err := codec.Open(args[0], codecOpts.Arity)
		if err != nil {
			return err
		}
		defer f.Close()

		return dump(os.Stdout, f, codecOpts)
	},
}

var codecVerifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Decodes every record of a stream, checking its layout and id order",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		s, err := codec.Verify(args[0], codecOpts.Arity)
		if err != nil {
			return err
		}

		log.Printf("%s - %s records of arity %d (compressed: %t)",
			args[0], textutils.FormatInt(int64(s.Records)), s.Arity, s.Compressed)

		if s.Records > 0 {
			log.Printf("  ids %d..%d, %s outliers, %s records using every attribute slot",
				s.MinID, s.MaxID, textutils.FormatInt(int64(s.Outliers)), textutils.FormatInt(int64(s.Full)))
		}

		return nil
	},
}

var codecPackCmd = &cobra.Command{
	Use:   "pack <file>",
	Short: "Writes a zstd compressed copy of a stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		dst := codecOpts.Output
		if dst == "" {
			dst = args[0] + ".zst"
		}

		if _, err := codec.Verify(args[0], codecOpts.Arity); err != nil {
			return fmt.Errorf("refusing to pack an invalid stream: %w", err)
		}

		if err := codec.Pack(args[0], dst); err != nil {
			os.Remove(dst)

			return err
		}

		log.Printf("Packed %s into %s", args[0], dst)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(codecCmd)
	codecCmd.AddCommand(codecDumpCmd)
	codecCmd.AddCommand(codecVerifyCmd)
	codecCmd.AddCommand(codecPackCmd)

	codecCmd.PersistentFlags().IntVar(&codecOpts.Arity, "arity", 0,
		"Attribute arity of the stream. Inferred from the size of uncompressed files when 0")
	codecDumpCmd.Flags().IntVar(&codecOpts.Offset, "offset", 0, "Records to skip")
	codecDumpCmd.Flags().IntVar(&codecOpts.Limit, "limit", 0, "Records to print, 0 for all")
	codecDumpCmd.Flags().IntVar(&codecOpts.Chunk, "chunk-size", 10_000, "Records decoded at a time")
	codecPackCmd.Flags().StringVarP(&codecOpts.Output, "output", "o", "", "Destination. Defaults to <file>.zst")
}
