// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoBlobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
		{10, 10}, {10, 11}, {11, 10}, {11, 11},
	}
}

func TestTrain(t *testing.T) {
	for _, batch := range []int{0, 4} {
		m, labels, err := Train(context.Background(), twoBlobs(), Options{K: 2, Seed: 42, NInit: 3, BatchSize: batch, MaxIter: 200})
		require.NoError(t, err)
		require.Len(t, m.Centroids, 2)
		require.Len(t, labels, 8)

		for i := 1; i < 4; i++ {
			assert.Equal(t, labels[0], labels[i])
			assert.Equal(t, labels[4], labels[4+i])
		}

		assert.NotEqual(t, labels[0], labels[4])
		assert.NotEqual(t, m.Predict([]float64{0.5, 0.5}), m.Predict([]float64{10.5, 10.5}))
	}
}

func TestTrainLloydCentroids(t *testing.T) {
	m, labels, err := Train(context.Background(), twoBlobs(), Options{K: 2, Seed: 1})
	require.NoError(t, err)

	low := m.Centroids[labels[0]]
	assert.InDelta(t, 0.5, low[0], 1e-9)
	assert.InDelta(t, 0.5, low[1], 1e-9)
	assert.InDelta(t, 4.0, m.Inertia, 1e-9)
}

func TestTrainDeterministic(t *testing.T) {
	data := make([][]float64, 0, 300)
	for i := range 300 {
		data = append(data, []float64{float64(i % 17), float64(i*7%23) / 3})
	}

	opts := Options{K: 5, Seed: 7, NInit: 2}

	m1, l1, err := Train(context.Background(), data, opts)
	require.NoError(t, err)

	m2, l2, err := Train(context.Background(), data, opts)
	require.NoError(t, err)

	assert.Equal(t, l1, l2)
	assert.Equal(t, m1.Centroids, m2.Centroids)
}

func TestTrainClampsAndCompacts(t *testing.T) {
	same := [][]float64{{3, 3}, {3, 3}, {3, 3}}

	m, labels, err := Train(context.Background(), same, Options{K: 10, Seed: 1})
	require.NoError(t, err)
	assert.Len(t, m.Centroids, 1)
	assert.Equal(t, []int{0, 0, 0}, labels)
}

func TestTrainErrors(t *testing.T) {
	_, _, err := Train(context.Background(), nil, Options{K: 1})
	assert.ErrorIs(t, err, ErrNoData)

	_, _, err = Train(context.Background(), twoBlobs(), Options{K: 0})
	assert.ErrorIs(t, err, ErrInvalidK)

	_, _, err = Train(context.Background(), [][]float64{{1, 2}, {1}}, Options{K: 1})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestTrainCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Train(ctx, twoBlobs(), Options{K: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearest(t *testing.T) {
	centroids := [][]float64{{0, 0}, {10, 10}, {20, 20}}

	c, d := Nearest(centroids, []float64{19, 19})
	assert.Equal(t, 2, c)
	assert.InDelta(t, 2, d, 1e-12)

	// Ties go to the lowest index.
	c, _ = Nearest(centroids, []float64{5, 5})
	assert.Equal(t, 0, c)
}

func TestSilhouette(t *testing.T) {
	data := twoBlobs()
	all := SampleIndices(len(data), 100, 1)

	good := Silhouette(data, []int{0, 0, 0, 0, 1, 1, 1, 1}, 2, all)
	bad := Silhouette(data, []int{0, 1, 0, 1, 0, 1, 0, 1}, 2, all)

	assert.Greater(t, good, 0.8)
	assert.Less(t, bad, good)
	assert.Zero(t, Silhouette(data, make([]int, 8), 1, all))
}

func TestSampleIndices(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, SampleIndices(3, 10, 1))

	s := SampleIndices(1000, 10, 5)
	assert.Len(t, s, 10)
	assert.IsIncreasing(t, s)
	assert.Equal(t, s, SampleIndices(1000, 10, 5))
}
