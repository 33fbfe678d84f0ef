// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import "math"

// Reason explains why a coordinate pair was accepted or rejected.
type Reason int

const (
	// ReasonValid the coordinates are usable.
	ReasonValid Reason = iota
	// ReasonSentinel the pair is (0,0), the "no fix" marker.
	ReasonSentinel
	// ReasonNaN latitude or longitude is missing.
	ReasonNaN
	// ReasonLatRange latitude outside [-90, 90].
	ReasonLatRange
	// ReasonLngRange longitude outside [-180, 180].
	ReasonLngRange
	// ReasonOutsideRegion valid on the globe but outside the region of interest.
	ReasonOutsideRegion
	// ReasonNoise valid coordinates in a cell too sparse to become a cluster.
	ReasonNoise
)

var reasonNames = [...]string{
	ReasonValid:         "valid",
	ReasonSentinel:      "sentinel",
	ReasonNaN:           "nan",
	ReasonLatRange:      "lat_range",
	ReasonLngRange:      "lng_range",
	ReasonOutsideRegion: "outside_region",
	ReasonNoise:         "noise",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}

	return reasonNames[r]
}

// Reasons lists every rejection reason in a stable order.
func Reasons() []Reason {
	return []Reason{ReasonSentinel, ReasonNaN, ReasonLatRange, ReasonLngRange, ReasonOutsideRegion, ReasonNoise}
}

// Classify checks a coordinate pair against the globe and the region of interest.
// It has no side effects.
func Classify(lat, lng float64, region Region) Reason {
	switch {
	case math.IsNaN(lat) || math.IsNaN(lng):
		return ReasonNaN
	case lat == 0 && lng == 0:
		return ReasonSentinel
	case lat < -90 || lat > 90:
		return ReasonLatRange
	case lng < -180 || lng > 180:
		return ReasonLngRange
	case !region.Contains(lat, lng):
		return ReasonOutsideRegion
	}

	return ReasonValid
}

// Valid is the boolean form of Classify.
func Valid(lat, lng float64, region Region) bool {
	return Classify(lat, lng, region) == ReasonValid
}
