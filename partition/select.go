// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"context"
	"errors"
	"math"

	"github.com/jcodagnone/geocluster/spatial"
	"golang.org/x/sync/errgroup"
)

// kPenalty weighs each cluster of distance between produced and requested K
// against one percentage point of noise.
const kPenalty = 0.1

// ErrNoStrategy is returned by Select when given no candidates.
var ErrNoStrategy = errors.New("no partitioning strategy to evaluate")

// Evaluation is the score of one candidate run.
type Evaluation struct {
	Strategy      string  `json:"strategy"`
	K             int     `json:"k"`
	NoiseFraction float64 `json:"noise_fraction"`
	Score         float64 `json:"score"`
}

// Score combines the percentage of noise points with how far the produced
// cluster count lands from the requested one. Lower is better.
func Score(r *Result, target int) float64 {
	return r.NoiseFraction()*100 + math.Abs(float64(r.K()-target))*kPenalty
}

// better reports whether a beats b: lower score, then lower noise. Full ties
// keep the earlier candidate.
func better(a, b Evaluation) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}

	return a.NoiseFraction < b.NoiseFraction
}

// Select runs every candidate concurrently and returns the best result along
// with the evaluation of every candidate in input order. The first failing
// candidate aborts the selection.
func Select(ctx context.Context, candidates []Strategy, points []spatial.Point, k int) (*Result, []Evaluation, error) {
	if len(candidates) == 0 {
		return nil, nil, ErrNoStrategy
	}

	target := clampK(k, len(points))
	results := make([]*Result, len(candidates))

	g, ctx := errgroup.WithContext(ctx)

	for i, s := range candidates {
		g.Go(func() error {
			r, err := s.Partition(ctx, points, target)
			if err != nil {
				return err
			}

			results[i] = r

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	evals := make([]Evaluation, len(results))
	best := 0

	for i, r := range results {
		evals[i] = Evaluation{
			Strategy:      r.Strategy,
			K:             r.K(),
			NoiseFraction: r.NoiseFraction(),
			Score:         Score(r, target),
		}

		if i > 0 && better(evals[i], evals[best]) {
			best = i
		}
	}

	return results[best], evals, nil
}
