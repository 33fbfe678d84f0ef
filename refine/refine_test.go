// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package refine

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fares returns n short cheap trips followed by n long expensive ones.
func fares(n int) [][]float64 {
	out := make([][]float64, 0, 2*n)
	for i := range n {
		out = append(out, []float64{5 + float64(i%5)*0.1, 1 + float64(i%3)*0.1})
	}

	for i := range n {
		out = append(out, []float64{60 + float64(i%5)*0.1, 20 + float64(i%3)*0.1})
	}

	return out
}

func TestRefineSinglePoint(t *testing.T) {
	r, err := Refine(context.Background(), [][]float64{{12.5, 2}}, Options{MinPointsPerSub: 5})
	require.NoError(t, err)

	assert.Equal(t, []int32{0}, r.Labels)
	assert.Equal(t, 1, r.S)
	assert.True(t, r.Degenerate)
	assert.Equal(t, ReasonTooFewPoints, r.Reason)
	assert.Empty(t, r.Candidates)
}

func TestRefineDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		attrs  [][]float64
		reason string
	}{
		{
			name:   "just under twice the minimum",
			attrs:  fares(5)[:9],
			reason: ReasonTooFewPoints,
		},
		{
			name:   "constant attributes",
			attrs:  [][]float64{{1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}},
			reason: ReasonNoVariance,
		},
		{
			name:   "no attributes",
			attrs:  make([][]float64, 12),
			reason: ReasonNoVariance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Refine(context.Background(), tt.attrs, Options{MinPointsPerSub: 5})
			require.NoError(t, err)

			assert.True(t, r.Degenerate)
			assert.Equal(t, tt.reason, r.Reason)
			assert.Equal(t, 1, r.S)
			assert.Len(t, r.Labels, len(tt.attrs))

			for _, l := range r.Labels {
				assert.Zero(t, l)
			}
		})
	}
}

func TestRefinePicksBestQuality(t *testing.T) {
	attrs := fares(20)

	r, err := Refine(context.Background(), attrs, Options{MinPointsPerSub: 5, MaxSub: 6, Seed: 42})
	require.NoError(t, err)

	assert.False(t, r.Degenerate)
	assert.Equal(t, 2, r.S)
	require.Len(t, r.Candidates, 5)
	assert.Equal(t, 2, r.Candidates[0].S)

	for _, c := range r.Candidates {
		assert.LessOrEqual(t, c.Quality, r.Quality)
	}

	for i := range 20 {
		assert.Equal(t, r.Labels[0], r.Labels[i])
		assert.Equal(t, r.Labels[20], r.Labels[20+i])
	}

	assert.NotEqual(t, r.Labels[0], r.Labels[20])
}

func TestRefineTargetReducedByMinPoints(t *testing.T) {
	// 40 points support at most 4 sub-clusters of 10.
	r, err := Refine(context.Background(), fares(20), Options{TargetSub: 8, MinPointsPerSub: 10, Seed: 1})
	require.NoError(t, err)

	require.Len(t, r.Candidates, 1)
	assert.LessOrEqual(t, r.S, 4)
}

func TestRefineImputesMissing(t *testing.T) {
	attrs := fares(10)
	attrs[3][1] = math.NaN()
	attrs[15][0] = math.NaN()

	r, err := Refine(context.Background(), attrs, Options{MinPointsPerSub: 5, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, r.Labels[0], r.Labels[3])
	assert.Equal(t, r.Labels[10], r.Labels[15])
}

func TestRefineAllDeterministic(t *testing.T) {
	groups := [][][]float64{fares(10), fares(15), {{1, 1}}, fares(30)}

	one, err := RefineAll(context.Background(), groups, Options{MinPointsPerSub: 5, Seed: 42}, 1)
	require.NoError(t, err)

	many, err := RefineAll(context.Background(), groups, Options{MinPointsPerSub: 5, Seed: 42}, 8)
	require.NoError(t, err)

	require.Len(t, many, len(groups))
	assert.True(t, many[2].Degenerate)

	for i := range groups {
		if diff := cmp.Diff(one[i].Labels, many[i].Labels); diff != "" {
			t.Errorf("group %d labels differ (-one +many):\n%s", i, diff)
		}
	}
}

func TestNormalize(t *testing.T) {
	out, varies := Normalize([][]float64{{1, 7, math.NaN()}, {3, 7, math.NaN()}, {math.NaN(), 7, math.NaN()}})
	require.True(t, varies)

	// Sample std of {1, 3} is sqrt(2).
	assert.InDelta(t, -1/math.Sqrt2, out[0][0], 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, out[1][0], 1e-12)
	assert.Zero(t, out[2][0])

	for _, row := range out {
		assert.Zero(t, row[1])
		assert.Zero(t, row[2])
	}

	_, varies = Normalize([][]float64{{1}, {1}})
	assert.False(t, varies)
}

func TestAutoOutlierGroups(t *testing.T) {
	assert.Equal(t, 5, AutoOutlierGroups(0))
	assert.Equal(t, 5, AutoOutlierGroups(10_000))
	assert.Equal(t, 12, AutoOutlierGroups(24_000))
	assert.Equal(t, 50, AutoOutlierGroups(1_000_000))
}

func TestClassifyOutliers(t *testing.T) {
	nan := math.NaN()
	attrs := fares(10)
	attrs = append(attrs, []float64{nan, nan}, []float64{nan, nan})

	c, err := ClassifyOutliers(context.Background(), attrs, 2, Options{MinPointsPerSub: 5, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Unusable)
	assert.Equal(t, int32(2), c.UnusableGroup)
	assert.Equal(t, int32(3), c.Groups())
	assert.Equal(t, 3, c.S)
	require.Len(t, c.Labels, len(attrs))

	assert.Equal(t, int32(2), c.Labels[20])
	assert.Equal(t, int32(2), c.Labels[21])
	assert.NotEqual(t, c.Labels[0], c.Labels[10])

	for _, l := range c.Labels[:20] {
		assert.Less(t, l, int32(2))
	}
}

func TestClassifyOutliersSmall(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name     string
		attrs    [][]float64
		groups   int32
		unusable int
	}{
		{name: "empty", attrs: nil, groups: 0},
		{name: "two usable", attrs: [][]float64{{1, 2}, {3, 4}}, groups: 1},
		{name: "only unusable", attrs: [][]float64{{nan}, {nan}}, groups: 1, unusable: 2},
		{name: "one of each", attrs: [][]float64{{1}, {nan}}, groups: 2, unusable: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ClassifyOutliers(context.Background(), tt.attrs, 0, Options{})
			require.NoError(t, err)

			assert.Equal(t, tt.groups, c.Groups())
			assert.Equal(t, tt.unusable, c.Unusable)
			assert.Len(t, c.Labels, len(tt.attrs))

			for _, l := range c.Labels {
				assert.Less(t, l, tt.groups)
			}
		})
	}
}
