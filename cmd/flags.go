// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/jcodagnone/geocluster/utils/textutils"
)

// countValue is a flag holding a positive count or "auto", stored as 0.
type countValue struct {
	n *int
}

func newCountValue(n *int) *countValue {
	return &countValue{n: n}
}

func (c *countValue) String() string {
	if c.n == nil {
		return textutils.Auto
	}

	return textutils.FormatCount(*c.n)
}

func (c *countValue) Set(s string) error {
	n, err := textutils.ParseCount(s)
	if err != nil {
		return err
	}

	*c.n = n

	return nil
}

func (c *countValue) Type() string {
	return "count"
}

// regionValue is a "minLat,minLng,maxLat,maxLng" flag.
type regionValue struct {
	r *spatial.Region
}

func (v *regionValue) String() string {
	if v.r == nil || v.r.IsZero() {
		return ""
	}

	return v.r.String()
}

func (v *regionValue) Set(s string) error {
	r, err := spatial.ParseRegion(s)
	if err != nil {
		return err
	}

	*v.r = r

	return nil
}

func (v *regionValue) Type() string {
	return "region"
}
