// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package refine splits groups of points into sub-clusters by their numeric
// attributes.
//
// Refinement never fails: groups that are too small, or whose attributes do
// not vary, come back as a single degenerate sub-cluster.
package refine

import (
	"context"
	"fmt"

	"github.com/jcodagnone/geocluster/kmeans"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxSub           = 8
	DefaultMinPointsPerSub  = 10
	DefaultSilhouetteSample = 1000
)

// Degenerate reasons.
const (
	ReasonTooFewPoints = "too few points"
	ReasonNoVariance   = "no attribute variance"
)

// Options controls the sub-cluster search.
type Options struct {
	// TargetSub fixes the number of sub-clusters. 0 searches 2..MaxSub and
	// keeps the count with the best silhouette.
	TargetSub       int
	MaxSub          int
	MinPointsPerSub int
	Seed            int64
	MaxIter         int
	// SilhouetteSample bounds the points used to score a candidate.
	SilhouetteSample int
}

func (o Options) withDefaults() Options {
	if o.MaxSub <= 0 {
		o.MaxSub = DefaultMaxSub
	}

	if o.MinPointsPerSub <= 0 {
		o.MinPointsPerSub = DefaultMinPointsPerSub
	}

	if o.SilhouetteSample <= 0 {
		o.SilhouetteSample = DefaultSilhouetteSample
	}

	return o
}

// Refinement is the sub-cluster assignment of one group.
type Refinement struct {
	// Labels holds a sub id in [0, S) per input row.
	Labels []int32
	S      int
	// Centroids live in the normalized attribute space of the group.
	Centroids  [][]float64
	Inertia    float64
	Quality    float64
	Candidates []Candidate
	Degenerate bool
	Reason     string
}

// Candidate records how one sub-cluster count scored.
type Candidate struct {
	S       int     `json:"s"`
	Inertia float64 `json:"inertia"`
	Quality float64 `json:"quality"`
}

func degenerate(n int, reason string) *Refinement {
	return &Refinement{Labels: make([]int32, n), S: 1, Degenerate: true, Reason: reason}
}

// maxCandidate is the largest sub-cluster count n points can support.
func (o Options) maxCandidate(n int) int {
	limit := o.MaxSub
	if o.TargetSub > 0 {
		limit = o.TargetSub
	}

	return min(limit, n/o.MinPointsPerSub)
}

// Refine sub-clusters the attribute vectors of one group. Only a cancelled
// context makes it return an error.
func Refine(ctx context.Context, attrs [][]float64, opts Options) (*Refinement, error) {
	opts = opts.withDefaults()
	n := len(attrs)

	if n < 2*opts.MinPointsPerSub {
		return degenerate(n, ReasonTooFewPoints), nil
	}

	upper := opts.maxCandidate(n)
	if upper < 2 {
		return degenerate(n, ReasonTooFewPoints), nil
	}

	data, varies := Normalize(attrs)
	if !varies {
		return degenerate(n, ReasonNoVariance), nil
	}

	lower := 2
	if opts.TargetSub > 0 {
		lower = upper
	}

	sample := kmeans.SampleIndices(n, opts.SilhouetteSample, opts.Seed)

	var best *Refinement

	for s := lower; s <= upper; s++ {
		m, labels, err := kmeans.Train(ctx, data, kmeans.Options{
			K:       s,
			Seed:    opts.Seed,
			MaxIter: opts.MaxIter,
		})
		if err != nil {
			return nil, fmt.Errorf("refining with %d sub-clusters: %w", s, err)
		}

		k := len(m.Centroids)
		cand := Candidate{S: k, Inertia: m.Inertia, Quality: kmeans.Silhouette(data, labels, k, sample)}

		// Strictly better quality wins, so ties keep the smaller count.
		if best == nil || cand.Quality > best.Quality {
			r := &Refinement{
				Labels:    make([]int32, n),
				S:         k,
				Centroids: m.Centroids,
				Inertia:   m.Inertia,
				Quality:   cand.Quality,
			}
			for i, l := range labels {
				r.Labels[i] = int32(l)
			}

			if best != nil {
				r.Candidates = best.Candidates
			}

			best = r
		}

		best.Candidates = append(best.Candidates, cand)
	}

	if best.S < 2 {
		// Duplicated vectors collapsed every candidate.
		best.Degenerate, best.Reason = true, ReasonNoVariance
	}

	return best, nil
}

// RefineAll refines independent groups concurrently. Group i is seeded with
// opts.Seed+i, so results do not depend on the number of workers.
func RefineAll(ctx context.Context, groups [][][]float64, opts Options, workers int) ([]*Refinement, error) {
	out := make([]*Refinement, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, attrs := range groups {
		g.Go(func() error {
			o := opts
			o.Seed += int64(i)

			r, err := Refine(ctx, attrs, o)
			if err != nil {
				return fmt.Errorf("group %d: %w", i, err)
			}

			out[i] = r

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
