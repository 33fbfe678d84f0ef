// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/partition"
	"github.com/jcodagnone/geocluster/refine"
	"github.com/jcodagnone/geocluster/spatial"
)

// StrategyAuto evaluates every partitioning strategy and keeps the best.
const StrategyAuto = "auto"

const (
	DefaultSeed         = 42
	DefaultChunkSize    = 100_000
	DefaultH3Resolution = 7
)

// Config holds every option of a run. Zero counts mean "auto".
type Config struct {
	// Region is required; points outside it become outliers.
	Region          spatial.Region
	SpatialClusters int
	// SubClusters fixes the sub-cluster count of every spatial cluster; 0
	// searches up to MaxSubClusters.
	SubClusters     int
	MaxSubClusters  int
	OutlierGroups   int
	MinPointsPerSub int
	// MaxAttributeArity is the attribute block of every encoded record.
	MaxAttributeArity int
	Seed              int64
	ChunkSize         int
	Workers           int
	Strategy          string
	// GridMinOccupancy overrides the derived minimum cell occupancy.
	GridMinOccupancy int
	// H3Resolution tags microclusters with an H3 cell; 0 disables it.
	H3Resolution int
}

// DefaultConfig returns a config with every default set and no region.
func DefaultConfig() Config {
	return Config{
		MaxSubClusters:    refine.DefaultMaxSub,
		MinPointsPerSub:   refine.DefaultMinPointsPerSub,
		MaxAttributeArity: codec.DefaultArity,
		Seed:              DefaultSeed,
		ChunkSize:         DefaultChunkSize,
		Workers:           runtime.NumCPU(),
		Strategy:          StrategyAuto,
		H3Resolution:      DefaultH3Resolution,
	}
}

// Validate reports every problem of c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Region.IsZero() {
		errs = append(errs, errors.New("bounding region is required"))
	} else if err := c.Region.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"target spatial clusters", c.SpatialClusters},
		{"target sub clusters", c.SubClusters},
		{"outlier groups", c.OutlierGroups},
		{"grid min occupancy", c.GridMinOccupancy},
		{"workers", c.Workers},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.value))
		}
	}

	if c.MaxSubClusters < 1 {
		errs = append(errs, fmt.Errorf("max sub clusters must be at least 1, got %d", c.MaxSubClusters))
	}

	if c.MinPointsPerSub < 1 {
		errs = append(errs, fmt.Errorf("min points per sub-cluster must be at least 1, got %d", c.MinPointsPerSub))
	}

	if c.MaxAttributeArity < 1 {
		errs = append(errs, fmt.Errorf("max attribute arity must be at least 1, got %d", c.MaxAttributeArity))
	}

	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk size must be at least 1, got %d", c.ChunkSize))
	}

	if c.H3Resolution < 0 || c.H3Resolution > 15 {
		errs = append(errs, fmt.Errorf("h3 resolution must be in [0, 15], got %d", c.H3Resolution))
	}

	if c.Strategy != StrategyAuto && !slices.Contains(partition.Names(), c.Strategy) {
		errs = append(errs, fmt.Errorf("%w %q (valid: auto, %v)", partition.ErrUnknownStrategy, c.Strategy, partition.Names()))
	}

	if len(errs) > 0 {
		return newError(KindConfig, "config", errors.Join(errs...))
	}

	return nil
}

func (c *Config) partitionOptions(progress func(int)) partition.Options {
	return partition.Options{
		Seed:         c.Seed,
		MinOccupancy: c.GridMinOccupancy,
		ChunkSize:    c.ChunkSize,
		Workers:      c.Workers,
		Progress:     progress,
	}
}

func (c *Config) refineOptions() refine.Options {
	return refine.Options{
		TargetSub:       c.SubClusters,
		MaxSub:          c.MaxSubClusters,
		MinPointsPerSub: c.MinPointsPerSub,
		Seed:            c.Seed,
	}
}
