// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils holds the small string helpers shared by the CLI and the
// ingestion layer.
package textutils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Auto is the literal accepted wherever a count can be derived from the data.
const Auto = "auto"

// ErrInvalidCount is returned by ParseCount.
var ErrInvalidCount = errors.New("invalid count")

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

// ColumnKey folds a column header so that "Pickup Latitude", "pickup_latitude"
// and "PICKUP-LATITUDE" compare equal.
func ColumnKey(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '.' {
			return '_'
		}

		return r
	}, LowerASCIIFolding(s))
}

// ParseCount reads either a positive integer or "auto". Auto is returned as 0.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, Auto) {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidCount, s, err)
	}

	if n < 1 {
		return 0, fmt.Errorf("%w %q: must be positive or %q", ErrInvalidCount, s, Auto)
	}

	return n, nil
}

// FormatCount is the inverse of ParseCount.
func FormatCount(n int) string {
	if n <= 0 {
		return Auto
	}

	return strconv.Itoa(n)
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
