// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset defines the point records flowing through the clustering
// pipeline and the sources they are read from.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/jcodagnone/geocluster/spatial"
)

const (
	// OutlierCluster is the spatial cluster id shared by every point without
	// trustworthy coordinates. It is never used as a real cluster id.
	OutlierCluster int32 = -1
	// Unassigned marks a cluster field the pipeline has not set yet.
	Unassigned int32 = -2
)

// Point is one row of the input with its cluster assignment.
//
// The cluster fields are written once by the pipeline and never touched again.
type Point struct {
	ID             int32          `json:"id"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	Attributes     []float64      `json:"attributes"`
	SpatialCluster int32          `json:"spatial_cluster"`
	SubCluster     int32          `json:"sub_cluster"`
	IsOutlier      bool           `json:"is_outlier"`
	Reason         spatial.Reason `json:"-"`
}

// NewPoint creates an unassigned point.
func NewPoint(id int32, lat, lng float64, attributes []float64) Point {
	return Point{
		ID:             id,
		Lat:            lat,
		Lng:            lng,
		Attributes:     attributes,
		SpatialCluster: Unassigned,
		SubCluster:     Unassigned,
	}
}

// Assigned reports whether both cluster fields were set.
func (p *Point) Assigned() bool {
	return p.SpatialCluster != Unassigned && p.SubCluster != Unassigned
}

// Coordinates returns the point location.
func (p *Point) Coordinates() spatial.Point {
	return spatial.Point{Lat: p.Lat, Lng: p.Lng}
}

// Schema describes the columns of a point source. It is declared once for the
// whole source, never per row.
type Schema struct {
	IDColumn   string   `json:"id_column,omitempty"`
	LatColumn  string   `json:"lat_column"`
	LngColumn  string   `json:"lng_column"`
	Attributes []string `json:"attributes"`
}

// Arity is the number of attributes every row carries.
func (s Schema) Arity() int {
	return len(s.Attributes)
}

// Source supplies points in a stable order.
type Source interface {
	// Schema resolves the columns of the source.
	Schema(ctx context.Context) (Schema, error)
	// Each calls fn for every row. Iteration stops at the first error.
	Each(ctx context.Context, fn func(Point) error) error
}

// Dataset is a fully loaded source.
type Dataset struct {
	Schema Schema
	Points []Point
}

// Load reads every point of src, checking that attribute arity is consistent
// and that no id is repeated.
func Load(ctx context.Context, src Source) (*Dataset, error) {
	schema, err := src.Schema(ctx)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Schema: schema}
	seen := roaring.New()
	arity := schema.Arity()

	err = src.Each(ctx, func(p Point) error {
		row := len(ds.Points)
		if len(p.Attributes) != arity {
			return &SchemaError{
				Row:     row,
				Message: fmt.Sprintf("inconsistent attribute arity: expected %d, got %d", arity, len(p.Attributes)),
			}
		}

		// uint32 conversion is a bijection over int32, so negative ids are fine.
		if !seen.CheckedAdd(uint32(p.ID)) {
			return &SchemaError{
				Column:  schema.IDColumn,
				Row:     row,
				Message: fmt.Sprintf("duplicate id %d", p.ID),
			}
		}

		ds.Points = append(ds.Points, p)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ds, nil
}

// SliceSource serves points that are already in memory.
type SliceSource struct {
	S      Schema
	Points []Point
}

// Schema implements Source.
func (s *SliceSource) Schema(_ context.Context) (Schema, error) {
	return s.S, nil
}

// Each implements Source.
func (s *SliceSource) Each(ctx context.Context, fn func(Point) error) error {
	for _, p := range s.Points {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.SpatialCluster, p.SubCluster = Unassigned, Unassigned
		p.IsOutlier = false

		if err := fn(p); err != nil {
			return err
		}
	}

	return nil
}

// ErrSchema is matched by every SchemaError.
var ErrSchema = errors.New("schema error")

// SchemaError reports missing or malformed columns and inconsistent rows.
type SchemaError struct {
	Column  string
	Row     int
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	msg := "schema error"
	if e.Column != "" {
		msg += fmt.Sprintf(" in column %q", e.Column)
	}

	if e.Row >= 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}

	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSchema) hold for any SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
