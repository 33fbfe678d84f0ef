// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package refine

import (
	"context"
)

const (
	minOutlierGroups      = 5
	maxOutlierGroups      = 50
	pointsPerOutlierGroup = 2000
)

// AutoOutlierGroups derives the number of outlier groups from the number of
// outlier points: one per 2000, between 5 and 50.
func AutoOutlierGroups(n int) int {
	return min(max(n/pointsPerOutlierGroup, minOutlierGroups), maxOutlierGroups)
}

// Classification is the grouping of the outlier points.
type Classification struct {
	*Refinement
	// Unusable counts rows without a single finite attribute. They share the
	// group UnusableGroup, which is -1 when there are none.
	Unusable      int
	UnusableGroup int32
}

// ClassifyOutliers groups points without trustworthy coordinates by their
// attributes alone. Every row gets a group: rows with no usable attribute are
// placed together in a dedicated group numbered after the others. groups
// fixes the number of attribute groups; 0 derives it from the row count.
func ClassifyOutliers(ctx context.Context, attrs [][]float64, groups int, opts Options) (*Classification, error) {
	if len(attrs) == 0 {
		return &Classification{Refinement: &Refinement{}, UnusableGroup: -1}, nil
	}

	usable := make([][]float64, 0, len(attrs))
	index := make([]int, 0, len(attrs))

	for i, row := range attrs {
		if Usable(row) {
			usable = append(usable, row)
			index = append(index, i)
		}
	}

	if groups <= 0 {
		groups = AutoOutlierGroups(len(usable))
	}

	opts.TargetSub = groups

	r, err := Refine(ctx, usable, opts)
	if err != nil {
		return nil, err
	}

	c := &Classification{
		Refinement:    r,
		Unusable:      len(attrs) - len(usable),
		UnusableGroup: -1,
	}

	labels := make([]int32, len(attrs))
	for j, i := range index {
		labels[i] = r.Labels[j]
	}

	if c.Unusable > 0 {
		c.UnusableGroup = int32(r.S)
		if len(usable) == 0 {
			c.UnusableGroup = 0
		}

		for i, row := range attrs {
			if !Usable(row) {
				labels[i] = c.UnusableGroup
			}
		}
	}

	r.Labels = labels
	r.S = int(c.Groups())

	return c, nil
}

// Groups is the number of distinct outlier sub ids.
func (c *Classification) Groups() int32 {
	if c.UnusableGroup >= 0 {
		return c.UnusableGroup + 1
	}

	return int32(c.Refinement.S)
}
