// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package kmeans

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const (
	defaultMaxIter   = 100
	defaultTolerance = 1e-9
)

var (
	// ErrNoData is returned when there is nothing to cluster.
	ErrNoData = errors.New("kmeans: no data")
	// ErrInvalidK is returned when K is not positive.
	ErrInvalidK = errors.New("kmeans: k must be positive")
	// ErrDimension is returned when vectors differ in length.
	ErrDimension = errors.New("kmeans: inconsistent dimension")
)

// Options configures a training run.
type Options struct {
	// K is clamped to the number of vectors.
	K       int
	MaxIter int
	// Tolerance stops iterating once no centroid moves more than this
	// (squared distance).
	Tolerance float64
	Seed      int64
	// NInit is the number of k-means++ restarts; the lowest inertia wins.
	NInit int
	// BatchSize > 0 selects mini-batch updates instead of full Lloyd passes.
	BatchSize int
}

func (o Options) withDefaults(n int) Options {
	if o.K > n {
		o.K = n
	}

	if o.MaxIter <= 0 {
		o.MaxIter = defaultMaxIter
	}

	if o.Tolerance <= 0 {
		o.Tolerance = defaultTolerance
	}

	if o.NInit <= 0 {
		o.NInit = 1
	}

	return o
}

// Model is a trained set of centroids.
type Model struct {
	Centroids [][]float64
	// Inertia is the sum of squared distances of every vector to its centroid.
	Inertia    float64
	Iterations int
}

// NewRand returns the generator used for a given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Train clusters data and returns the model plus the label of every vector.
// Labels are dense: every value in [0, len(Centroids)) is used at least once.
func Train(ctx context.Context, data [][]float64, opts Options) (*Model, []int, error) {
	if len(data) == 0 {
		return nil, nil, ErrNoData
	}

	if opts.K <= 0 {
		return nil, nil, ErrInvalidK
	}

	dim := len(data[0])
	for _, v := range data {
		if len(v) != dim {
			return nil, nil, ErrDimension
		}
	}

	opts = opts.withDefaults(len(data))
	rng := NewRand(opts.Seed)

	var (
		best       *Model
		bestLabels []int
	)

	for range opts.NInit {
		var (
			m      *Model
			labels []int
			err    error
		)

		if opts.BatchSize > 0 && opts.BatchSize < len(data) {
			m, labels, err = miniBatch(ctx, data, opts, rng)
		} else {
			m, labels, err = lloyd(ctx, data, opts, rng)
		}

		if err != nil {
			return nil, nil, err
		}

		if best == nil || m.Inertia < best.Inertia {
			best, bestLabels = m, labels
		}
	}

	best.compact(bestLabels)

	return best, bestLabels, nil
}

// initPlusPlus picks k seeds with the k-means++ rule.
func initPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(data[rng.IntN(len(data))]))

	dist := make([]float64, len(data))
	for i, v := range data {
		dist[i] = SquaredDistance(v, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(dist)

		next := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 && d > 0 {
					next = i
					break
				}

				next = i
			}
		} else {
			next = rng.IntN(len(data))
		}

		c := clone(data[next])
		centroids = append(centroids, c)

		for i, v := range data {
			if d := SquaredDistance(v, c); d < dist[i] {
				dist[i] = d
			}
		}
	}

	return centroids
}

func lloyd(ctx context.Context, data [][]float64, opts Options, rng *rand.Rand) (*Model, []int, error) {
	dim := len(data[0])
	centroids := initPlusPlus(data, opts.K, rng)
	labels := make([]int, len(data))
	sums := make([][]float64, opts.K)
	counts := make([]int, opts.K)

	for j := range sums {
		sums[j] = make([]float64, dim)
	}

	m := &Model{Centroids: centroids}

	for iter := range opts.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		m.Iterations = iter + 1
		changed := false

		for i, v := range data {
			c, _ := Nearest(centroids, v)
			if iter == 0 || labels[i] != c {
				labels[i] = c
				changed = true
			}
		}

		if !changed {
			break
		}

		for j := range sums {
			floats.Scale(0, sums[j])
			counts[j] = 0
		}

		for i, v := range data {
			floats.Add(sums[labels[i]], v)
			counts[labels[i]]++
		}

		shift := 0.0

		for j := range centroids {
			var next []float64
			if counts[j] > 0 {
				next = sums[j]
				floats.Scale(1/float64(counts[j]), next)
			} else {
				// Reseed an empty cluster with the vector farthest from its centroid.
				next = data[farthest(data, labels, centroids)]
			}

			shift = math.Max(shift, SquaredDistance(centroids[j], next))
			copy(centroids[j], next)
		}

		if shift <= opts.Tolerance {
			break
		}
	}

	m.Inertia = assign(data, centroids, labels)

	return m, labels, nil
}

// miniBatch implements Sculley's web-scale k-means: per-centroid learning
// rates decay with the number of vectors the centroid has absorbed.
func miniBatch(ctx context.Context, data [][]float64, opts Options, rng *rand.Rand) (*Model, []int, error) {
	centroids := initPlusPlus(data, opts.K, rng)
	seen := make([]int, opts.K)
	batch := make([]int, opts.BatchSize)
	nearest := make([]int, opts.BatchSize)
	m := &Model{Centroids: centroids}

	for iter := range opts.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		m.Iterations = iter + 1

		for b := range batch {
			batch[b] = rng.IntN(len(data))
			nearest[b], _ = Nearest(centroids, data[batch[b]])
		}

		shift := 0.0

		for b, i := range batch {
			c := nearest[b]
			seen[c]++
			eta := 1 / float64(seen[c])
			before := clone(centroids[c])
			floats.Scale(1-eta, centroids[c])
			floats.AddScaled(centroids[c], eta, data[i])
			shift = math.Max(shift, SquaredDistance(before, centroids[c]))
		}

		if shift <= opts.Tolerance {
			break
		}
	}

	labels := make([]int, len(data))
	m.Inertia = assign(data, centroids, labels)

	return m, labels, nil
}

// assign labels every vector with its nearest centroid and returns the inertia.
func assign(data, centroids [][]float64, labels []int) float64 {
	inertia := 0.0

	for i, v := range data {
		c, d := Nearest(centroids, v)
		labels[i] = c
		inertia += d
	}

	return inertia
}

func farthest(data [][]float64, labels []int, centroids [][]float64) int {
	best, bestDist := 0, -1.0

	for i, v := range data {
		if d := SquaredDistance(v, centroids[labels[i]]); d > bestDist {
			best, bestDist = i, d
		}
	}

	return best
}

// compact drops centroids that ended up without members and renumbers labels
// so they stay dense, preserving the relative order of the survivors.
func (m *Model) compact(labels []int) {
	counts := make([]int, len(m.Centroids))
	for _, l := range labels {
		counts[l]++
	}

	remap := make([]int, len(m.Centroids))
	kept := m.Centroids[:0]

	for j, c := range m.Centroids {
		if counts[j] == 0 {
			remap[j] = -1
			continue
		}

		remap[j] = len(kept)
		kept = append(kept, c)
	}

	if len(kept) == len(counts) {
		return
	}

	m.Centroids = kept
	for i, l := range labels {
		labels[i] = remap[l]
	}
}

// Predict returns the index of the nearest centroid to v.
func (m *Model) Predict(v []float64) int {
	c, _ := Nearest(m.Centroids, v)

	return c
}

// Nearest returns the index of the centroid closest to v and its squared
// distance. Ties go to the lowest index.
func Nearest(centroids [][]float64, v []float64) (int, float64) {
	best, bestDist := -1, math.Inf(1)

	for j, c := range centroids {
		if d := SquaredDistance(v, c); d < bestDist {
			best, bestDist = j, d
		}
	}

	return best, bestDist
}

// SquaredDistance is the squared euclidean distance between a and b.
func SquaredDistance(a, b []float64) float64 {
	sum := 0.0

	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return sum
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)

	return out
}
