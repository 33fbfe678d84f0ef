// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package partition assigns valid points to spatial clusters.
//
// Every strategy honors the same contract: given N points and a target K it
// returns a dense label in [0, K') for every point it keeps, where K' <= K, or
// Noise for points it folds into the outlier space.
package partition

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/jcodagnone/geocluster/spatial"
)

// Noise labels a point that a strategy refused to keep in a spatial cluster.
const Noise int32 = -1

const (
	minAutoK         = 1
	maxAutoK         = 1000
	pointsPerAutoK   = 1500
	defaultChunkSize = 100_000
	defaultBatchSize = 4096
)

// ErrUnknownStrategy is returned by New.
var ErrUnknownStrategy = errors.New("unknown partitioning strategy")

// Strategy is a swappable spatial partitioning algorithm.
type Strategy interface {
	Name() string
	Partition(ctx context.Context, points []spatial.Point, k int) (*Result, error)
}

// Result is the outcome of one strategy run.
type Result struct {
	Strategy string
	// Labels holds one entry per input point, in input order.
	Labels    []int32
	Centroids []spatial.Point
	Counts    []int
	Noise     int
}

// K is the number of spatial clusters produced.
func (r *Result) K() int {
	return len(r.Centroids)
}

// NoiseFraction is the share of points labeled Noise.
func (r *Result) NoiseFraction() float64 {
	if len(r.Labels) == 0 {
		return 0
	}

	return float64(r.Noise) / float64(len(r.Labels))
}

// AutoK derives a cluster count from the number of points: one cluster per
// 1500 points, at least 1, at most 1000 and never more than n.
func AutoK(n int) int {
	if n <= 0 {
		return 0
	}

	return min(max(n/pointsPerAutoK, minAutoK), maxAutoK, n)
}

// clampK never lets a strategy ask for more clusters than points.
func clampK(k, n int) int {
	if k <= 0 {
		k = AutoK(n)
	}

	return min(k, n)
}

// newResult builds a Result from raw labels, dropping empty clusters and
// renumbering the survivors densely in their original order. Centroids are
// the mean of the members.
func newResult(name string, points []spatial.Point, labels []int32, k int) *Result {
	counts := make([]int, k)
	sums := make([]spatial.Point, k)
	noise := 0

	for i, l := range labels {
		if l == Noise {
			noise++
			continue
		}

		counts[l]++
		sums[l].Lat += points[i].Lat
		sums[l].Lng += points[i].Lng
	}

	remap := make([]int32, k)
	res := &Result{Strategy: name, Labels: labels, Noise: noise}

	for j := range k {
		if counts[j] == 0 {
			remap[j] = Noise
			continue
		}

		remap[j] = int32(len(res.Centroids))
		res.Counts = append(res.Counts, counts[j])
		res.Centroids = append(res.Centroids, spatial.Point{
			Lat: sums[j].Lat / float64(counts[j]),
			Lng: sums[j].Lng / float64(counts[j]),
		})
	}

	if len(res.Centroids) != k {
		for i, l := range labels {
			if l != Noise {
				labels[i] = remap[l]
			}
		}
	}

	return res
}

// Options carries the tuning knobs shared by the strategies.
type Options struct {
	Seed int64
	// BatchSize of mini-batch updates in the batch-centroid strategy.
	BatchSize int
	// MinOccupancy of grid and hexgrid cells. 0 derives it from the data.
	MinOccupancy int
	// H3Resolution of the hexgrid strategy. 0 derives it from the data.
	H3Resolution int
	// SampleSize of the hybrid strategy. 0 derives it from the data.
	SampleSize int
	ChunkSize  int
	Workers    int
	// Progress is called by the hybrid strategy with the number of points
	// assigned by each finished chunk. Chunks finish concurrently.
	Progress func(n int)
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return defaultChunkSize
	}

	return o.ChunkSize
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}

	return o.Workers
}

// Names lists the strategies New accepts.
func Names() []string {
	return []string{BatchCentroidName, GridName, HexGridName, HybridName}
}

// New returns the strategy called name.
func New(name string, opts Options) (Strategy, error) {
	switch name {
	case BatchCentroidName:
		return &BatchCentroid{Seed: opts.Seed, BatchSize: opts.BatchSize}, nil
	case GridName:
		return &Grid{MinOccupancy: opts.MinOccupancy}, nil
	case HexGridName:
		return &HexGrid{Resolution: opts.H3Resolution, MinOccupancy: opts.MinOccupancy}, nil
	case HybridName:
		return &Hybrid{
			Seed:       opts.Seed,
			BatchSize:  opts.BatchSize,
			SampleSize: opts.SampleSize,
			ChunkSize:  opts.chunkSize(),
			Workers:    opts.workers(),
			Progress:   opts.Progress,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q (valid: %v)", ErrUnknownStrategy, name, Names())
	}
}

// Candidates returns every strategy, in the order Select breaks full ties.
func Candidates(opts Options) []Strategy {
	out := make([]Strategy, 0, len(Names()))

	for _, name := range Names() {
		s, _ := New(name, opts)
		out = append(out, s)
	}

	return out
}
