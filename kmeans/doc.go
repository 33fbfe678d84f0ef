// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package kmeans implements seeded k-means clustering over dense float64
// vectors.
//
// Used by the spatial partitioner on (lat, lng) pairs and by the attribute
// refiner on normalized attribute vectors. Every random choice is drawn from a
// generator seeded by Options.Seed, so equal inputs give equal labels.
package kmeans
