// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"context"

	"github.com/jcodagnone/geocluster/kmeans"
	"github.com/jcodagnone/geocluster/spatial"
)

// BatchCentroidName identifies BatchCentroid.
const BatchCentroidName = "batch-centroid"

// BatchCentroid runs seeded k-means over (lat, lng). Point sets larger than
// BatchSize are refined with mini-batches.
type BatchCentroid struct {
	Seed      int64
	BatchSize int
	MaxIter   int
}

// Name implements Strategy.
func (b *BatchCentroid) Name() string {
	return BatchCentroidName
}

// Partition implements Strategy.
func (b *BatchCentroid) Partition(ctx context.Context, points []spatial.Point, k int) (*Result, error) {
	k = clampK(k, len(points))
	if k == 0 {
		return newResult(b.Name(), points, nil, 0), nil
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	_, labels, err := kmeans.Train(ctx, vectors(points), kmeans.Options{
		K:         k,
		Seed:      b.Seed,
		BatchSize: batch,
		MaxIter:   b.MaxIter,
		NInit:     3,
	})
	if err != nil {
		return nil, err
	}

	out := make([]int32, len(labels))
	for i, l := range labels {
		out[i] = int32(l)
	}

	return newResult(b.Name(), points, out, k), nil
}

func vectors(points []spatial.Point) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = []float64{p.Lat, p.Lng}
	}

	return out
}
