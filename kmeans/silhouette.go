// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package kmeans

import (
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SampleIndices returns up to size distinct indices in [0, n), sorted, drawn
// with the generator for seed. When size >= n every index is returned.
func SampleIndices(n, size int, seed int64) []int {
	if size >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}

		return idx
	}

	idx := NewRand(seed).Perm(n)[:size]
	slices.Sort(idx)

	return idx
}

// Silhouette computes the mean silhouette coefficient of the vectors selected
// by sample. Distances are only measured between sampled vectors. Members of
// singleton clusters score 0, and a single cluster scores 0 overall.
func Silhouette(data [][]float64, labels []int, k int, sample []int) float64 {
	if k < 2 || len(sample) < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, i := range sample {
		sizes[labels[i]]++
	}

	sums := make([]float64, k)
	total := 0.0

	for _, i := range sample {
		floats.Scale(0, sums)

		for _, j := range sample {
			if i != j {
				sums[labels[j]] += floats.Distance(data[i], data[j], 2)
			}
		}

		own := labels[i]
		if sizes[own] < 2 {
			continue
		}

		a := sums[own] / float64(sizes[own]-1)
		b := -1.0

		for c := range k {
			if c == own || sizes[c] == 0 {
				continue
			}

			if mean := sums[c] / float64(sizes[c]); b < 0 || mean < b {
				b = mean
			}
		}

		if b < 0 {
			continue
		}

		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}

	return total / float64(len(sample))
}
