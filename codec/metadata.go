// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jcodagnone/geocluster/spatial"
)

const (
	metadataVersion = 1
	clustersSection = "[clusters]"
	clustersHeader  = "spatial_cluster\tsub_cluster\tpoint_count"
)

// ClusterCount is one row of the sidecar cluster table.
type ClusterCount struct {
	Spatial int32 `json:"spatial_cluster"`
	Sub     int32 `json:"sub_cluster"`
	Count   int64 `json:"point_count"`
}

// Metadata is the human readable sidecar of a stream. Decoding never needs it.
type Metadata struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	ByteOrder   string    `json:"byte_order"`
	Arity       int       `json:"max_attribute_arity"`
	Records     int64     `json:"record_count"`
	Valid       int64     `json:"valid_points"`
	Outliers    int64     `json:"outlier_points"`
	Truncated   int64     `json:"truncated_records"`
	Degenerate  int       `json:"degenerate_clusters"`
	Strategy    string    `json:"strategy"`
	Seed        int64     `json:"random_seed"`
	Region      string    `json:"bounding_region"`
	// Bounds covers the valid points; nil when there are none.
	Bounds          *spatial.Region   `json:"bounds,omitempty"`
	SpatialClusters int               `json:"spatial_clusters"`
	OutlierGroups   int               `json:"outlier_groups"`
	Attributes      []string          `json:"attributes"`
	Clusters        []ClusterCount    `json:"clusters"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// WriteMetadata writes m as key=value lines followed by the cluster table.
func WriteMetadata(w io.Writer, m *Metadata) error {
	bw := bufio.NewWriter(w)

	kv := func(key string, value any) {
		fmt.Fprintf(bw, "%s=%v\n", key, value)
	}

	fmt.Fprintln(bw, "# geocluster point stream metadata")
	kv("format_version", metadataVersion)
	kv("run_id", m.RunID)
	kv("generated_at", m.GeneratedAt.UTC().Format(time.RFC3339))
	kv("byte_order", ByteOrderName)
	kv("count_bytes", CountBytes)
	kv("header_bytes", HeaderBytes)
	kv("record_bytes", RecordSize(m.Arity))
	kv("max_attribute_arity", m.Arity)
	kv("record_count", m.Records)
	kv("valid_points", m.Valid)
	kv("outlier_points", m.Outliers)
	kv("truncated_records", m.Truncated)
	kv("degenerate_clusters", m.Degenerate)
	kv("strategy", m.Strategy)
	kv("random_seed", m.Seed)
	kv("bounding_region", m.Region)
	kv("spatial_clusters", m.SpatialClusters)
	kv("outlier_groups", m.OutlierGroups)

	if m.Bounds != nil {
		kv("lat_min", m.Bounds.MinLat)
		kv("lat_max", m.Bounds.MaxLat)
		kv("lng_min", m.Bounds.MinLng)
		kv("lng_max", m.Bounds.MaxLng)
	}

	kv("attribute_count", len(m.Attributes))

	for i, name := range m.Attributes {
		kv("attribute."+strconv.Itoa(i), name)
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, clustersSection)
	fmt.Fprintln(bw, clustersHeader)

	for _, c := range m.Clusters {
		fmt.Fprintf(bw, "%d\t%d\t%d\n", c.Spatial, c.Sub, c.Count)
	}

	return bw.Flush()
}

// ReadMetadata parses what WriteMetadata wrote. Derived layout keys are
// checked against the arity; unknown keys are kept in Extra.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	m := &Metadata{Extra: map[string]string{}}
	values := map[string]string{}
	sc := bufio.NewScanner(r)
	line := 0
	inClusters := false

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())

		switch {
		case text == "" || strings.HasPrefix(text, "#"):
			continue
		case text == clustersSection:
			inClusters = true
			continue
		case inClusters:
			if text == clustersHeader {
				continue
			}

			c, err := parseClusterRow(text)
			if err != nil {
				return nil, fmt.Errorf("metadata line %d: %w", line, err)
			}

			m.Clusters = append(m.Clusters, c)
		default:
			key, value, ok := strings.Cut(text, "=")
			if !ok {
				return nil, fmt.Errorf("metadata line %d: expected key=value, got %q", line, text)
			}

			values[key] = value
		}
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	if err := m.fill(values); err != nil {
		return nil, err
	}

	return m, nil
}

func parseClusterRow(text string) (ClusterCount, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return ClusterCount{}, fmt.Errorf("expected 3 columns, got %d", len(fields))
	}

	spatialID, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return ClusterCount{}, err
	}

	sub, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return ClusterCount{}, err
	}

	count, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ClusterCount{}, err
	}

	return ClusterCount{Spatial: int32(spatialID), Sub: int32(sub), Count: count}, nil
}

func (m *Metadata) fill(values map[string]string) error {
	var errs []string

	integer := func(key string) int64 {
		v, ok := values[key]
		delete(values, key)

		if !ok {
			return 0
		}

		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}

		return n
	}

	float := func(key string) float64 {
		v := values[key]
		delete(values, key)

		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}

		return f
	}

	text := func(key string) string {
		v := values[key]
		delete(values, key)

		return v
	}

	if v := integer("format_version"); v != metadataVersion {
		errs = append(errs, fmt.Sprintf("unsupported format_version %d", v))
	}

	m.RunID = text("run_id")

	if v := text("generated_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("generated_at: %v", err))
		}

		m.GeneratedAt = t
	}

	m.ByteOrder = text("byte_order")
	m.Arity = int(integer("max_attribute_arity"))

	if v := integer("count_bytes"); v != CountBytes {
		errs = append(errs, fmt.Sprintf("count_bytes %d, expected %d", v, CountBytes))
	}

	if v := integer("header_bytes"); v != HeaderBytes {
		errs = append(errs, fmt.Sprintf("header_bytes %d, expected %d", v, HeaderBytes))
	}

	if v := integer("record_bytes"); v != int64(RecordSize(m.Arity)) {
		errs = append(errs, fmt.Sprintf("record_bytes %d does not match arity %d", v, m.Arity))
	}

	m.Records = integer("record_count")
	m.Valid = integer("valid_points")
	m.Outliers = integer("outlier_points")
	m.Truncated = integer("truncated_records")
	m.Degenerate = int(integer("degenerate_clusters"))
	m.Strategy = text("strategy")
	m.Seed = integer("random_seed")
	m.Region = text("bounding_region")
	m.SpatialClusters = int(integer("spatial_clusters"))
	m.OutlierGroups = int(integer("outlier_groups"))

	if _, ok := values["lat_min"]; ok {
		m.Bounds = &spatial.Region{
			MinLat: float("lat_min"),
			MaxLat: float("lat_max"),
			MinLng: float("lng_min"),
			MaxLng: float("lng_max"),
		}
	}

	n := integer("attribute_count")
	present := int64(0)

	for present < n {
		if _, ok := values["attribute."+strconv.FormatInt(present, 10)]; !ok {
			break
		}

		present++
	}

	switch {
	case n < 0:
		errs = append(errs, fmt.Sprintf("negative attribute_count %d", n))
	case present < n:
		errs = append(errs, fmt.Sprintf("attribute_count %d but attribute.%d is missing", n, present))
	}

	m.Attributes = make([]string, present)

	for i := range m.Attributes {
		m.Attributes[i] = text("attribute." + strconv.Itoa(i))
	}

	for k, v := range values {
		m.Extra[k] = v
	}

	if len(m.Extra) == 0 {
		m.Extra = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: metadata: %s", ErrCorrupt, strings.Join(errs, "; "))
	}

	return nil
}
