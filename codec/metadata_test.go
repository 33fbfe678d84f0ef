// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() *Metadata {
	return &Metadata{
		RunID:           "6c1f4d5e-4a57-4c1e-9b5c-0d1f0bba1d2e",
		GeneratedAt:     time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		ByteOrder:       ByteOrderName,
		Arity:           12,
		Records:         10,
		Valid:           8,
		Outliers:        2,
		Truncated:       1,
		Degenerate:      2,
		Strategy:        "batch-centroid",
		Seed:            42,
		Region:          "40.4,-74.3,41,-73.6",
		Bounds:          &spatial.Region{MinLat: 40.641, MinLng: -73.9845, MaxLat: 40.7552, MaxLng: -73.7779},
		SpatialClusters: 2,
		OutlierGroups:   1,
		Attributes:      []string{"fare_amount", "tip amount"},
		Clusters: []ClusterCount{
			{Spatial: -1, Sub: 0, Count: 2},
			{Spatial: 0, Sub: 0, Count: 4},
			{Spatial: 1, Sub: 0, Count: 4},
		},
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, sampleMetadata()))

	text := buf.String()
	assert.Contains(t, text, "byte_order=little-endian\n")
	assert.Contains(t, text, "record_bytes=128\n")
	assert.Contains(t, text, "attribute.1=tip amount\n")
	assert.Contains(t, text, "[clusters]\n")
	assert.Contains(t, text, "-1\t0\t2\n")

	got, err := ReadMetadata(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(sampleMetadata(), got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataWithoutBounds(t *testing.T) {
	m := sampleMetadata()
	m.Bounds = nil
	m.Clusters = nil

	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, m))
	assert.NotContains(t, buf.String(), "lat_min")

	got, err := ReadMetadata(&buf)
	require.NoError(t, err)
	assert.Nil(t, got.Bounds)
	assert.Empty(t, got.Clusters)
}

func TestReadMetadataErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "no separator", in: "format_version=1\nrecord_count\n"},
		{name: "bad record size", in: "format_version=1\ncount_bytes=4\nheader_bytes=32\nmax_attribute_arity=12\nrecord_bytes=100\n"},
		{name: "bad cluster row", in: "format_version=1\n[clusters]\n1\t2\n"},
		{name: "future version", in: "format_version=2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMetadata(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestReadMetadataAttributeCount(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, sampleMetadata()))

	tests := []struct {
		name  string
		count string
	}{
		{name: "negative", count: "-1"},
		{name: "more than listed", count: "3"},
		{name: "huge", count: "9223372036854775807"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := strings.Replace(buf.String(), "attribute_count=2\n", "attribute_count="+tt.count+"\n", 1)
			require.NotEqual(t, buf.String(), in)

			_, err := ReadMetadata(strings.NewReader(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Contains(t, err.Error(), "attribute_count")
		})
	}
}

func TestReadMetadataKeepsUnknownKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, sampleMetadata()))

	in := strings.Replace(buf.String(), "run_id=", "source=trips.csv\nrun_id=", 1)

	got, err := ReadMetadata(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "trips.csv"}, got.Extra)
}
