// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package microcluster summarizes every (spatial, sub) cluster pair into a
// compact row of statistics meant for bulk loading a spatial index.
package microcluster

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/jcodagnone/geocluster/dataset"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/uber/h3-go/v4"
)

// Key identifies a microcluster. Sub ids are only unique within a spatial
// cluster.
type Key struct {
	Spatial int32 `json:"spatial_cluster"`
	Sub     int32 `json:"sub_cluster"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Spatial, k.Sub)
}

// IsOutlier reports whether the key belongs to the outlier space.
func (k Key) IsOutlier() bool {
	return k.Spatial == dataset.OutlierCluster
}

// Compare orders keys by spatial cluster, then sub cluster.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Spatial, o.Spatial); c != 0 {
		return c
	}

	return cmp.Compare(k.Sub, o.Sub)
}

// Microcluster is the summary of one key.
//
// Coordinate statistics only consider members whose coordinates lie on the
// globe, which are counted by Located. Outlier microclusters may therefore have Located
// lower than Count, or zero.
type Microcluster struct {
	Key
	Count        int     `json:"point_count"`
	Located      int     `json:"located_count"`
	LatCentroid  float64 `json:"lat_centroid"`
	LatSpread    float64 `json:"lat_spread"`
	LngCentroid  float64 `json:"lng_centroid"`
	LngSpread    float64 `json:"lng_spread"`
	ApproxRadius float64 `json:"approx_radius"`
	RadiusMeters float64 `json:"radius_meters"`
	// Cell is the H3 cell of the centroid, for spatial clusters only.
	Cell string `json:"h3_cell,omitempty"`
}

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// std is the sample standard deviation, 0 with fewer than two values.
func (w *welford) std() float64 {
	if w.n < 2 {
		return 0
	}

	return math.Sqrt(w.m2 / float64(w.n-1))
}

type accumulator struct {
	count    int
	lat, lng welford
}

// Aggregator builds microclusters in a single pass over assigned points.
type Aggregator struct {
	resolution int
	groups     map[Key]*accumulator
}

// NewAggregator creates an aggregator. h3Resolution > 0 adds the H3 cell of
// each spatial microcluster centroid.
func NewAggregator(h3Resolution int) *Aggregator {
	return &Aggregator{resolution: h3Resolution, groups: make(map[Key]*accumulator)}
}

// Add folds p into its microcluster. Unassigned points are rejected.
func (a *Aggregator) Add(p *dataset.Point) error {
	if !p.Assigned() {
		return fmt.Errorf("point %d has no cluster assignment", p.ID)
	}

	key := Key{Spatial: p.SpatialCluster, Sub: p.SubCluster}

	acc, ok := a.groups[key]
	if !ok {
		acc = &accumulator{}
		a.groups[key] = acc
	}

	acc.count++

	if onGlobe(p.Lat, p.Lng) {
		acc.lat.add(p.Lat)
		acc.lng.add(p.Lng)
	}

	return nil
}

// onGlobe rejects NaN and out of range coordinates.
func onGlobe(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Len is the number of distinct keys seen so far.
func (a *Aggregator) Len() int {
	return len(a.groups)
}

// Microclusters returns one row per key, ordered by key.
func (a *Aggregator) Microclusters() ([]Microcluster, error) {
	out := make([]Microcluster, 0, len(a.groups))

	for key, acc := range a.groups {
		m := Microcluster{
			Key:         key,
			Count:       acc.count,
			Located:     acc.lat.n,
			LatCentroid: acc.lat.mean,
			LatSpread:   acc.lat.std(),
			LngCentroid: acc.lng.mean,
			LngSpread:   acc.lng.std(),
		}
		m.ApproxRadius = math.Hypot(m.LatSpread, m.LngSpread)
		m.RadiusMeters = spatial.DegreesToMeters(m.LatSpread, m.LngSpread, m.LatCentroid)

		if a.resolution > 0 && !key.IsOutlier() && m.Located > 0 {
			cell, err := h3.LatLngToCell(h3.NewLatLng(m.LatCentroid, m.LngCentroid), a.resolution)
			if err != nil {
				return nil, fmt.Errorf("error converting centroid of %s to h3 cell at res %d: %w", key, a.resolution, err)
			}

			m.Cell = cell.String()
		}

		out = append(out, m)
	}

	slices.SortFunc(out, func(x, y Microcluster) int {
		return x.Key.Compare(y.Key)
	})

	return out, nil
}

// Aggregate summarizes points.
func Aggregate(points []dataset.Point, h3Resolution int) ([]Microcluster, error) {
	a := NewAggregator(h3Resolution)

	for i := range points {
		if err := a.Add(&points[i]); err != nil {
			return nil, err
		}
	}

	return a.Microclusters()
}
