// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"cmp"
	"context"
	"slices"

	"github.com/jcodagnone/geocluster/kmeans"
	"github.com/jcodagnone/geocluster/spatial"
	"golang.org/x/sync/errgroup"
)

// HybridName identifies Hybrid.
const HybridName = "hybrid"

const (
	maxSampleSize    = 100_000
	samplePointsPerK = 10
	maxStrata        = 100
)

// Hybrid clusters a stratified sample with BatchCentroid and then assigns
// every point to the nearest sample centroid, one chunk at a time.
type Hybrid struct {
	Seed       int64
	BatchSize  int
	SampleSize int
	ChunkSize  int
	Workers    int
	Progress   func(n int)
}

// Name implements Strategy.
func (h *Hybrid) Name() string {
	return HybridName
}

// sampleSize defaults to min(100000, max(n/10, 10k)), never more than n.
func (h *Hybrid) sampleSize(n, k int) int {
	size := h.SampleSize
	if size <= 0 {
		size = min(maxSampleSize, max(n/10, samplePointsPerK*k))
	}

	return min(size, n)
}

// StratifiedSample orders points by (lat, lng), cuts the order into equal
// strata and draws the same share of seeded picks from each one, so sparse
// areas are represented as well as dense ones. Indices are returned sorted.
func StratifiedSample(points []spatial.Point, size int, seed int64) []int {
	n := len(points)
	if size >= n {
		return kmeans.SampleIndices(n, n, seed)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(points[a].Lat, points[b].Lat); c != 0 {
			return c
		}

		return cmp.Compare(points[a].Lng, points[b].Lng)
	})

	strata := min(size, maxStrata)
	rng := kmeans.NewRand(seed)
	sample := make([]int, 0, size)

	for s := range strata {
		lo, hi := s*n/strata, (s+1)*n/strata
		want := min((s+1)*size/strata-s*size/strata, hi-lo)

		for _, p := range rng.Perm(hi - lo)[:want] {
			sample = append(sample, order[lo+p])
		}
	}

	slices.Sort(sample)

	return sample
}

// Partition implements Strategy.
func (h *Hybrid) Partition(ctx context.Context, points []spatial.Point, k int) (*Result, error) {
	k = clampK(k, len(points))
	if k == 0 {
		return newResult(h.Name(), points, nil, 0), nil
	}

	idx := StratifiedSample(points, h.sampleSize(len(points), k), h.Seed)
	sample := make([]spatial.Point, len(idx))

	for i, j := range idx {
		sample[i] = points[j]
	}

	batch := &BatchCentroid{Seed: h.Seed, BatchSize: h.BatchSize}

	trained, err := batch.Partition(ctx, sample, k)
	if err != nil {
		return nil, err
	}

	centroids := make([][]float64, len(trained.Centroids))
	for i, c := range trained.Centroids {
		centroids[i] = []float64{c.Lat, c.Lng}
	}

	labels, err := h.assign(ctx, points, centroids)
	if err != nil {
		return nil, err
	}

	return newResult(h.Name(), points, labels, len(centroids)), nil
}

// assign labels every point with its nearest centroid. Chunks run in parallel
// and each one writes only its own slice of labels.
func (h *Hybrid) assign(ctx context.Context, points []spatial.Point, centroids [][]float64) ([]int32, error) {
	chunk := h.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	labels := make([]int32, len(points))

	g, ctx := errgroup.WithContext(ctx)
	if h.Workers > 0 {
		g.SetLimit(h.Workers)
	}

	for start := 0; start < len(points); start += chunk {
		end := min(start+chunk, len(points))

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			v := make([]float64, 2)
			for i := start; i < end; i++ {
				v[0], v[1] = points[i].Lat, points[i].Lng
				c, _ := kmeans.Nearest(centroids, v)
				labels[i] = int32(c)
			}

			if h.Progress != nil {
				h.Progress(end - start)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return labels, nil
}
