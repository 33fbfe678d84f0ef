// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package refine

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Normalize rescales every column of attrs to zero mean and unit variance,
// using only the rows given. Missing values (NaN or infinities) are imputed
// with the column mean, which normalizes to 0. Columns with no variance
// normalize to 0. The second result is false when no column varies, meaning
// the rows cannot be told apart by their attributes.
func Normalize(attrs [][]float64) ([][]float64, bool) {
	if len(attrs) == 0 {
		return nil, false
	}

	arity := len(attrs[0])
	out := make([][]float64, len(attrs))

	for i := range out {
		out[i] = make([]float64, arity)
	}

	varies := false
	column := make([]float64, 0, len(attrs))

	for c := range arity {
		column = column[:0]
		for _, row := range attrs {
			if finite(row[c]) {
				column = append(column, row[c])
			}
		}

		if len(column) < 2 {
			continue
		}

		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}

		varies = true

		for i, row := range attrs {
			if finite(row[c]) {
				out[i][c] = (row[c] - mean) / std
			}
		}
	}

	return out, varies
}

// Usable reports whether a row has at least one finite attribute.
func Usable(row []float64) bool {
	for _, v := range row {
		if finite(v) {
			return true
		}
	}

	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
