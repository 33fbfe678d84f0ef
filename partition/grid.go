// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/jcodagnone/geocluster/spatial"
)

// GridName identifies Grid.
const GridName = "grid"

// minCellOccupancy is the floor of the derived minimum cell occupancy.
const minCellOccupancy = 5

// Grid splits the bounding box of the points into square cells sized so that
// about k cells cover it. Cells with fewer than MinOccupancy points are folded
// into Noise.
type Grid struct {
	MinOccupancy int
}

// Name implements Strategy.
func (g *Grid) Name() string {
	return GridName
}

// minOccupancy defaults to max(5, n/(10k)).
func minOccupancy(configured, n, k int) int {
	if configured > 0 {
		return configured
	}

	return max(minCellOccupancy, n/(10*k))
}

// Partition implements Strategy.
func (g *Grid) Partition(ctx context.Context, points []spatial.Point, k int) (*Result, error) {
	k = clampK(k, len(points))
	if k == 0 {
		return newResult(g.Name(), points, nil, 0), nil
	}

	var b spatial.Bounds
	for _, p := range points {
		b.Extend(p.Lat, p.Lng)
	}

	height := b.MaxLat - b.MinLat
	width := b.MaxLng - b.MinLng

	cell := math.Sqrt(height * width / float64(k))
	if cell == 0 {
		// Degenerate box: a line or a single location.
		cell = max(height, width) / float64(k)
	}

	cols, rows := 1, 1
	if cell > 0 {
		cols = max(1, int(math.Ceil(width/cell)))
		rows = max(1, int(math.Ceil(height/cell)))
	}

	cellOf := func(p spatial.Point) int {
		c, r := 0, 0
		if cell > 0 {
			c = min(cols-1, int((p.Lng-b.MinLng)/cell))
			r = min(rows-1, int((p.Lat-b.MinLat)/cell))
		}

		return r*cols + c
	}

	cells := make([]int, len(points))
	occupancy := make(map[int]int)

	for i, p := range points {
		if i%chunkCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells[i] = cellOf(p)
		occupancy[cells[i]]++
	}

	return denseCells(g.Name(), points, cells, occupancy, minOccupancy(g.MinOccupancy, len(points), k), k), nil
}

// chunkCheck is how often long loops look at the context.
const chunkCheck = 1 << 14

// denseCells turns cell keys into dense cluster ids, ordered by key. Cells
// with fewer than minOcc points are folded into Noise. When more than k cells
// remain, the k most occupied ones are kept and every other cell joins the
// kept cell with the nearest centroid.
func denseCells[K int | uint64](name string, points []spatial.Point, cells []K, occupancy map[K]int, minOcc, k int) *Result {
	keys := make([]K, 0, len(occupancy))

	for key, n := range occupancy {
		if n >= minOcc {
			keys = append(keys, key)
		}
	}

	slices.SortFunc(keys, func(a, b K) int {
		if c := cmp.Compare(occupancy[b], occupancy[a]); c != 0 {
			return c
		}

		return cmp.Compare(a, b)
	})

	kept, merged := keys, keys[:0:0]
	if len(keys) > k {
		kept, merged = keys[:k], keys[k:]
	}

	slices.Sort(kept)

	ids := make(map[K]int32, len(keys))
	for i, key := range kept {
		ids[key] = int32(i)
	}

	if len(merged) > 0 {
		centers := cellCentroids(points, cells, ids, merged)

		for _, key := range merged {
			c := centers[key]
			best, bestDist := int32(0), math.Inf(1)

			for _, kk := range kept {
				other := centers[kk]
				if d := c.HaversineDistance(&other); d < bestDist {
					best, bestDist = ids[kk], d
				}
			}

			ids[key] = best
		}
	}

	labels := make([]int32, len(points))

	for i, key := range cells {
		id, ok := ids[key]
		if !ok {
			id = Noise
		}

		labels[i] = id
	}

	return newResult(name, points, labels, len(kept))
}

// cellCentroids averages the points of the kept cells and of the extra ones.
func cellCentroids[K int | uint64](points []spatial.Point, cells []K, kept map[K]int32, extra []K) map[K]spatial.Point {
	sums := make(map[K]spatial.Point, len(kept)+len(extra))
	counts := make(map[K]int, len(kept)+len(extra))

	for _, key := range extra {
		counts[key] = 0
	}

	for i, key := range cells {
		_, isKept := kept[key]
		if _, isExtra := counts[key]; !isKept && !isExtra {
			continue
		}

		s := sums[key]
		s.Lat += points[i].Lat
		s.Lng += points[i].Lng
		sums[key] = s
		counts[key]++
	}

	for key, s := range sums {
		n := float64(counts[key])
		sums[key] = spatial.Point{Lat: s.Lat / n, Lng: s.Lng / n}
	}

	return sums
}
