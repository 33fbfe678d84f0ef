// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package microcluster

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/jcodagnone/geocluster/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assigned(id int32, lat, lng float64, spatial, sub int32) dataset.Point {
	p := dataset.NewPoint(id, lat, lng, nil)
	p.SpatialCluster, p.SubCluster = spatial, sub
	p.IsOutlier = spatial == dataset.OutlierCluster

	return p
}

func TestAggregateCoverage(t *testing.T) {
	points := []dataset.Point{
		assigned(1, 40.75, -73.98, 0, 0),
		assigned(2, 40.76, -73.99, 0, 1),
		assigned(3, 40.64, -73.78, 1, 0),
		assigned(4, 0, 0, dataset.OutlierCluster, 0),
		assigned(5, 40.77, -73.97, 0, 0),
		assigned(6, 40.64, -73.77, 1, 0),
		assigned(7, math.NaN(), math.NaN(), dataset.OutlierCluster, 1),
	}

	ms, err := Aggregate(points, 7)
	require.NoError(t, err)

	want := map[Key]bool{}
	total := 0

	for _, p := range points {
		want[Key{Spatial: p.SpatialCluster, Sub: p.SubCluster}] = true
	}

	got := map[Key]bool{}

	for _, m := range ms {
		assert.False(t, got[m.Key], "key %s repeated", m.Key)
		got[m.Key] = true
		total += m.Count
	}

	assert.Equal(t, want, got)
	assert.Equal(t, len(points), total)

	// Ordered by key, outliers first.
	assert.Equal(t, Key{Spatial: -1, Sub: 0}, ms[0].Key)
	assert.Equal(t, Key{Spatial: 1, Sub: 0}, ms[len(ms)-1].Key)
}

func TestAggregateStatistics(t *testing.T) {
	points := []dataset.Point{
		assigned(1, 40.70, -74.00, 3, 2),
		assigned(2, 40.72, -73.98, 3, 2),
		assigned(3, 40.74, -73.96, 3, 2),
	}

	ms, err := Aggregate(points, 7)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	m := ms[0]
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 3, m.Located)
	assert.InDelta(t, 40.72, m.LatCentroid, 1e-12)
	assert.InDelta(t, -73.98, m.LngCentroid, 1e-12)
	// Sample standard deviation of {-0.02, 0, 0.02}.
	assert.InDelta(t, 0.02, m.LatSpread, 1e-12)
	assert.InDelta(t, 0.02, m.LngSpread, 1e-12)
	assert.InDelta(t, 0.02*math.Sqrt2, m.ApproxRadius, 1e-12)
	assert.InDelta(t, 2_790, m.RadiusMeters, 50)
	assert.NotEmpty(t, m.Cell)
}

func TestAggregateSingletonAndOutliers(t *testing.T) {
	points := []dataset.Point{
		assigned(1, 40.70, -74.00, 0, 0),
		assigned(2, 0, 0, dataset.OutlierCluster, 0),
		assigned(3, math.NaN(), 12, dataset.OutlierCluster, 0),
	}

	ms, err := Aggregate(points, 7)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	out := ms[0]
	assert.True(t, out.IsOutlier())
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 1, out.Located)
	assert.Zero(t, out.LatSpread)
	assert.Empty(t, out.Cell)

	single := ms[1]
	assert.Equal(t, 1, single.Count)
	assert.Zero(t, single.ApproxRadius)
	assert.Zero(t, single.RadiusMeters)
}

func TestAggregateSkipsOffGlobeCoordinates(t *testing.T) {
	points := []dataset.Point{
		assigned(1, 1e308, -73.9, dataset.OutlierCluster, 0),
		assigned(2, 1e308, -73.9, dataset.OutlierCluster, 0),
		assigned(3, 40.7, 1e308, dataset.OutlierCluster, 0),
		assigned(4, 95, -200, dataset.OutlierCluster, 0),
		assigned(5, 40.7, -73.9, dataset.OutlierCluster, 0),
	}

	ms, err := Aggregate(points, 7)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	m := ms[0]
	assert.Equal(t, 5, m.Count)
	assert.Equal(t, 1, m.Located)
	assert.InDelta(t, 40.7, m.LatCentroid, 1e-12)

	for _, v := range []float64{m.LatCentroid, m.LatSpread, m.LngCentroid, m.LngSpread, m.ApproxRadius, m.RadiusMeters} {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}

	_, err = json.Marshal(ms)
	assert.NoError(t, err)
}

func TestAggregateRejectsUnassigned(t *testing.T) {
	_, err := Aggregate([]dataset.Point{dataset.NewPoint(1, 40.7, -74, nil)}, 0)
	assert.Error(t, err)
}

func TestWelfordMatchesTwoPass(t *testing.T) {
	values := []float64{40.7128, 40.7306, 40.6782, 40.7589, 40.6413, 40.7484, 40.7061}

	var w welford
	for _, v := range values {
		w.add(v)
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}

	mean /= float64(len(values))

	ss := 0.0
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}

	assert.InDelta(t, mean, w.mean, 1e-12)
	assert.InDelta(t, math.Sqrt(ss/float64(len(values)-1)), w.std(), 1e-12)
}
