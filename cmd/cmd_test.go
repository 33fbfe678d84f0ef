// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/dataset"
	"github.com/jcodagnone/geocluster/pipeline"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountValue(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"auto", 0, false},
		{"AUTO", 0, false},
		{"12", 12, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"many", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n := 7
			err := newCountValue(&n).Set(tt.in)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 7, n)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRegionValue(t *testing.T) {
	var r spatial.Region

	v := &regionValue{r: &r}
	assert.Empty(t, v.String())

	require.NoError(t, v.Set("40.4, -74.3, 41.0, -73.6"))
	assert.Equal(t, spatial.Region{MinLat: 40.4, MinLng: -74.3, MaxLat: 41, MaxLng: -73.6}, r)
	assert.Equal(t, "40.4,-74.3,41,-73.6", v.String())

	require.ErrorIs(t, v.Set("41,-74,40,-73"), spatial.ErrInvalidRegion)
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEOCLUSTER_SPATIAL_CLUSTERS", "25")
	t.Setenv("GEOCLUSTER_SEED", "7")

	cfg := pipeline.DefaultConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Var(newCountValue(&cfg.SpatialClusters), "spatial-clusters", "")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "")

	require.NoError(t, flags.Parse([]string{"--seed", "99"}))
	require.NoError(t, applyEnv(flags))

	assert.Equal(t, 25, cfg.SpatialClusters)
	assert.Equal(t, int64(99), cfg.Seed, "command line wins over the environment")

	t.Setenv("GEOCLUSTER_SPATIAL_CLUSTERS", "lots")

	fresh := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fresh.Var(newCountValue(&cfg.SpatialClusters), "spatial-clusters", "")
	require.ErrorContains(t, applyEnv(fresh), "GEOCLUSTER_SPATIAL_CLUSTERS")
}

func TestApplyEnvDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEOCLUSTER_REGION=40.4,-74.3,41.0,-73.6\n"), 0o600))

	t.Cleanup(func() { os.Unsetenv("GEOCLUSTER_REGION") })

	var r spatial.Region

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Var(&regionValue{r: &r}, "region", "")

	require.NoError(t, applyEnv(flags))
	assert.InDelta(t, 41.0, r.MaxLat, 0)
}

func TestClassifyLines(t *testing.T) {
	region := spatial.Region{MinLat: 40.4, MinLng: -74.3, MaxLat: 41.0, MaxLng: -73.6}
	in := strings.NewReader("40.75,-73.98\n0,0\n\n91,-73.9\n10,10\nnot a point\n")

	var out bytes.Buffer
	require.NoError(t, classifyLines(in, &out, region))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "40.75,-73.98\tvalid", lines[0])
	assert.Equal(t, "0,0\tsentinel", lines[1])
	assert.Equal(t, "91,-73.9\tlat_range", lines[2])
	assert.Equal(t, "10,10\toutside_region", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "not a point\t"))
}

func tripsCSV() string {
	var b strings.Builder

	b.WriteString("trip_id,pickup_latitude,pickup_longitude,fare_amount,tip_amount\n")

	for i := range 40 {
		lat, lng := 40.7549, -73.9840
		if i%2 == 1 {
			lat, lng = 40.6413, -73.7781
		}

		fmt.Fprintf(&b, "%d,%.4f,%.4f,%.1f,%.1f\n", i+1, lat+float64(i%5)*0.0002, lng, 10+float64(i%4), float64(i%3))
	}

	b.WriteString("100,0,0,6.5,1.0\n")
	b.WriteString("101,,,7.0,\n")

	return b.String()
}

func TestRunPipeline(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "trips.csv")
	require.NoError(t, os.WriteFile(input, []byte(tripsCSV()), 0o600))

	cfg := pipeline.DefaultConfig()
	cfg.Region = spatial.Region{MinLat: 40.4, MinLng: -74.3, MaxLat: 41.0, MaxLng: -73.6}
	cfg.SpatialClusters = 2

	opts := &runOptions{
		Input:       input,
		CSV:         dataset.CSVOptions{IDColumn: "trip_id", LatColumn: "pickup_latitude", LngColumn: "pickup_longitude"},
		Output:      filepath.Join(dir, "trips.bin"),
		DBPath:      filepath.Join(dir, "db"),
		MetricsFile: filepath.Join(dir, "geocluster.prom"),
		NoProgress:  true,
	}

	require.NoError(t, runPipeline(context.Background(), cfg, opts))

	s, err := codec.Verify(opts.Output, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, s.Records)
	assert.Equal(t, codec.DefaultArity, s.Arity)
	assert.Equal(t, 2, s.Outliers)
	assert.Equal(t, int32(1), s.MinID)
	assert.Equal(t, int32(101), s.MaxID)

	meta, err := readMetadata(metadataPath(opts.Output))
	require.NoError(t, err)
	assert.Equal(t, []string{"fare_amount", "tip_amount"}, meta.Attributes)
	assert.Equal(t, 2, meta.SpatialClusters)

	f, err := codec.Open(opts.Output, 0)
	require.NoError(t, err)

	defer f.Close()

	var out bytes.Buffer
	require.NoError(t, dump(&out, f, &codecOptions{Offset: 40, Chunk: 7}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "100\t0\t0\t-1\t"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "101\tNaN\tNaN\t-1\t"), lines[2])

	_, err = os.Stat(opts.MetricsFile)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(opts.DBPath, "geocluster.duckdb"))
	require.NoError(t, err)

	packed := filepath.Join(dir, "trips.bin.zst")
	require.NoError(t, codec.Pack(opts.Output, packed))

	ps, err := codec.Verify(packed, codec.DefaultArity)
	require.NoError(t, err)
	assert.True(t, ps.Compressed)
	assert.Equal(t, s.Records, ps.Records)
}

func TestRunPipelineSchemaErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "trips.csv")
	require.NoError(t, os.WriteFile(input, []byte(tripsCSV()), 0o600))

	cfg := pipeline.DefaultConfig()
	cfg.Region = spatial.Region{MinLat: 40.4, MinLng: -74.3, MaxLat: 41.0, MaxLng: -73.6}

	opts := &runOptions{
		Input:      input,
		CSV:        dataset.CSVOptions{LatColumn: "dropoff_latitude", LngColumn: "pickup_longitude"},
		Output:     filepath.Join(dir, "trips.bin"),
		NoProgress: true,
	}

	err := runPipeline(context.Background(), cfg, opts)
	require.Error(t, err)
	assert.True(t, pipeline.IsSchemaError(err))

	_, err = os.Stat(opts.Output)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
