// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"context"
	"fmt"
	"math"

	"github.com/jcodagnone/geocluster/spatial"
	"github.com/uber/h3-go/v4"
)

// HexGridName identifies HexGrid.
const HexGridName = "hexgrid"

const maxH3Resolution = 15

// hexAreaKm2 is the average H3 hexagon area per resolution.
var hexAreaKm2 = [maxH3Resolution + 1]float64{
	4357449.416078383, 609788.441794133, 86801.780398997, 12393.434655088,
	1770.347654491, 252.903858182, 36.129062164, 5.161293360,
	0.737327598, 0.105332513, 0.015047502, 0.002149643,
	0.000307092, 0.000043870, 0.000006267, 0.000000895,
}

// HexGrid is the grid strategy over H3 cells instead of square degree cells.
type HexGrid struct {
	// Resolution in [1, 15]; 0 picks the resolution whose average cell area is
	// closest to area/k.
	Resolution   int
	MinOccupancy int
}

// Name implements Strategy.
func (h *HexGrid) Name() string {
	return HexGridName
}

// resolutionFor picks the H3 resolution whose cells best match a target area.
func resolutionFor(areaKm2 float64, k int) int {
	if areaKm2 <= 0 {
		return maxH3Resolution
	}

	target := math.Log(areaKm2 / float64(k))
	best, bestDiff := 0, math.Inf(1)

	for res, a := range hexAreaKm2 {
		if d := math.Abs(math.Log(a) - target); d < bestDiff {
			best, bestDiff = res, d
		}
	}

	return best
}

// Partition implements Strategy.
func (h *HexGrid) Partition(ctx context.Context, points []spatial.Point, k int) (*Result, error) {
	k = clampK(k, len(points))
	if k == 0 {
		return newResult(h.Name(), points, nil, 0), nil
	}

	res := h.Resolution
	if res <= 0 {
		var b spatial.Bounds
		for _, p := range points {
			b.Extend(p.Lat, p.Lng)
		}

		mid := (b.MinLat + b.MaxLat) / 2
		area := spatial.DegreesToMeters(b.MaxLat-b.MinLat, 0, mid) *
			spatial.DegreesToMeters(0, b.MaxLng-b.MinLng, mid) / 1e6
		res = resolutionFor(area, k)
	}

	if res > maxH3Resolution {
		return nil, fmt.Errorf("h3 resolution %d out of range [1, %d]", res, maxH3Resolution)
	}

	cells := make([]uint64, len(points))
	occupancy := make(map[uint64]int)

	for i, p := range points {
		if i%chunkCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
		if err != nil {
			return nil, fmt.Errorf("error converting %s to h3 cell at res %d: %w", p, res, err)
		}

		cells[i] = uint64(cell)
		occupancy[cells[i]]++
	}

	return denseCells(h.Name(), points, cells, occupancy, minOccupancy(h.MinOccupancy, len(points), k), k), nil
}
