// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// DegreesToMeters converts a spread expressed in degrees around latitude lat
// into meters: the great circle length of the diagonal of a latSpread by
// lngSpread box centered on lat.
func DegreesToMeters(latSpread, lngSpread, lat float64) float64 {
	from := Point{Lat: lat - latSpread/2, Lng: -lngSpread / 2}
	to := Point{Lat: lat + latSpread/2, Lng: lngSpread / 2}

	return from.HaversineDistance(&to)
}
