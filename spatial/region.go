// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRegion is returned when a bounding region cannot be parsed or is inverted.
var ErrInvalidRegion = errors.New("spatial: invalid region")

// Region is an inclusive latitude/longitude bounding box.
//
// There is no built-in region: every deployment supplies its own box.
type Region struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// ParseRegion parses "minLat,minLng,maxLat,maxLng".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("%w: expected minLat,minLng,maxLat,maxLng, got %q", ErrInvalidRegion, s)
	}

	var v [4]float64

	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q: %w", ErrInvalidRegion, part, err)
		}

		v[i] = f
	}

	r := Region{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}

	return r, nil
}

// Validate checks the box is well formed and lies within the globe.
func (r Region) Validate() error {
	for _, v := range []float64{r.MinLat, r.MinLng, r.MaxLat, r.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non finite bound in %s", ErrInvalidRegion, r)
		}
	}

	if r.MinLat > r.MaxLat || r.MinLng > r.MaxLng {
		return fmt.Errorf("%w: inverted bounds %s", ErrInvalidRegion, r)
	}

	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLng < -180 || r.MaxLng > 180 {
		return fmt.Errorf("%w: bounds outside the globe %s", ErrInvalidRegion, r)
	}

	return nil
}

// IsZero reports whether the region was never set.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Contains reports whether (lat, lng) falls inside the box, borders included.
func (r Region) Contains(lat, lng float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng
}

// String formats the region the same way ParseRegion reads it.
func (r Region) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.MinLat, r.MinLng, r.MaxLat, r.MaxLng)
}

// Bounds accumulates the bounding box of a set of points.
type Bounds struct {
	Region
	Count int
}

// Extend grows the bounds to include (lat, lng).
func (b *Bounds) Extend(lat, lng float64) {
	if b.Count == 0 {
		b.Region = Region{MinLat: lat, MinLng: lng, MaxLat: lat, MaxLng: lng}
	} else {
		b.MinLat = math.Min(b.MinLat, lat)
		b.MinLng = math.Min(b.MinLng, lng)
		b.MaxLat = math.Max(b.MaxLat, lat)
		b.MaxLng = math.Max(b.MaxLng, lng)
	}

	b.Count++
}
