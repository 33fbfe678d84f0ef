// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the hierarchical clustering of a point source:
// coordinate validation, spatial partitioning, attribute refinement of every
// spatial cluster alongside the classification of outliers, microcluster
// aggregation and finally the binary export.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/geocluster/dataset"
	"github.com/jcodagnone/geocluster/microcluster"
	"github.com/jcodagnone/geocluster/partition"
	"github.com/jcodagnone/geocluster/refine"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock, so tests get stable timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithProgress turns chunk progress reporting on or off. It is on by default.
func WithProgress(enabled bool) Option {
	return func(p *Pipeline) {
		p.progress = enabled
	}
}

// Pipeline runs the stages with one configuration.
type Pipeline struct {
	cfg      Config
	clock    clockwork.Clock
	progress bool
}

// New validates cfg and creates a pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, clock: clockwork.NewRealClock(), progress: true}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// SpatialCluster is one cluster produced by the partitioner.
type SpatialCluster struct {
	ID       int32         `json:"id"`
	Centroid spatial.Point `json:"centroid"`
	Members  int           `json:"member_count"`
}

// Result is a finished run. Points are ordered by ascending id and carry
// their final assignment.
type Result struct {
	RunID           string
	GeneratedAt     time.Time
	Config          Config
	Schema          dataset.Schema
	Points          []dataset.Point
	SpatialClusters []SpatialCluster
	// Refinements is indexed by spatial cluster id.
	Refinements   []*refine.Refinement
	Outliers      *refine.Classification
	Microclusters []microcluster.Microcluster
	Stats         Stats
}

type run struct {
	*Pipeline
	stats  Stats
	points []dataset.Point
	last   time.Time
}

func (r *run) phase(name string) {
	now := r.clock.Now()
	r.stats.Phases = append(r.stats.Phases, Phase{Name: name, Duration: now.Sub(r.last)})
	r.last = now
}

// Run executes every stage over src. Validation outcomes, degenerate clusters
// and noise are recorded in the result stats; only schema, IO and
// configuration problems fail the run.
func (p *Pipeline) Run(ctx context.Context, src dataset.Source) (*Result, error) {
	r := &run{Pipeline: p, stats: newStats(), last: p.clock.Now()}

	ds, err := dataset.Load(ctx, src)
	if err != nil {
		return nil, ingestError("load", err)
	}

	r.points = ds.Points
	r.stats.Points = int64(len(ds.Points))
	r.phase("load")

	valid, outliers := r.validate()
	r.phase("validate")

	clusters, members, noise, err := r.partition(ctx, valid)
	if err != nil {
		return nil, newError(KindIO, "partition", err)
	}

	if len(noise) > 0 {
		outliers = append(outliers, noise...)
		slices.Sort(outliers)
	}

	r.stats.Outliers = int64(len(outliers))
	r.stats.Valid = r.stats.Points - r.stats.Outliers
	r.phase("partition")

	refinements, classification, err := r.refine(ctx, members, outliers)
	if err != nil {
		return nil, newError(KindIO, "refine", err)
	}

	r.phase("refine")

	ms, err := microcluster.Aggregate(r.points, p.cfg.H3Resolution)
	if err != nil {
		return nil, newError(KindIO, "aggregate", err)
	}

	r.stats.Microclusters = len(ms)
	r.phase("aggregate")

	slices.SortFunc(r.points, func(a, b dataset.Point) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return &Result{
		RunID:           uuid.NewString(),
		GeneratedAt:     p.clock.Now().UTC(),
		Config:          p.cfg,
		Schema:          ds.Schema,
		Points:          r.points,
		SpatialClusters: clusters,
		Refinements:     refinements,
		Outliers:        classification,
		Microclusters:   ms,
		Stats:           r.stats,
	}, nil
}

// validate marks every point failing the coordinate checks as an outlier and
// returns the indices of both sets in input order.
func (r *run) validate() (valid, outliers []int) {
	for i := range r.points {
		pt := &r.points[i]

		pt.Reason = spatial.Classify(pt.Lat, pt.Lng, r.cfg.Region)
		if pt.Reason == spatial.ReasonValid {
			valid = append(valid, i)
			continue
		}

		pt.IsOutlier = true
		r.stats.OutliersByReason[pt.Reason.String()]++
		outliers = append(outliers, i)
	}

	return valid, outliers
}

func (r *run) strategies(progress func(int)) ([]partition.Strategy, error) {
	opts := r.cfg.partitionOptions(progress)
	if r.cfg.Strategy == StrategyAuto {
		return partition.Candidates(opts), nil
	}

	s, err := partition.New(r.cfg.Strategy, opts)
	if err != nil {
		return nil, err
	}

	return []partition.Strategy{s}, nil
}

// partition assigns spatial clusters to the valid points. It returns the
// members of every cluster and the points folded into noise, as indices.
func (r *run) partition(ctx context.Context, valid []int) ([]SpatialCluster, [][]int, []int, error) {
	if len(valid) == 0 {
		return nil, nil, nil, nil
	}

	coords := make([]spatial.Point, len(valid))
	for j, i := range valid {
		coords[j] = r.points[i].Coordinates()
	}

	var bar *progress
	if r.cfg.Strategy == StrategyAuto || r.cfg.Strategy == partition.HybridName {
		bar = newProgress(r.progress, len(coords), "Assigning points")
	}

	candidates, err := r.strategies(bar.Add)
	if err != nil {
		return nil, nil, nil, err
	}

	k := r.cfg.SpatialClusters
	if k == 0 {
		k = partition.AutoK(len(coords))
	}

	best, evals, err := partition.Select(ctx, candidates, coords, k)
	bar.Finish()

	if err != nil {
		return nil, nil, nil, err
	}

	r.stats.Strategy = best.Strategy
	r.stats.Evaluations = evals
	r.stats.SpatialClusters = best.K()

	clusters := make([]SpatialCluster, best.K())
	for c := range clusters {
		clusters[c] = SpatialCluster{ID: int32(c), Centroid: best.Centroids[c], Members: best.Counts[c]}
	}

	members := make([][]int, best.K())

	var noise []int

	for j, label := range best.Labels {
		pt := &r.points[valid[j]]
		if label == partition.Noise {
			pt.IsOutlier = true
			pt.Reason = spatial.ReasonNoise
			r.stats.OutliersByReason[pt.Reason.String()]++
			noise = append(noise, valid[j])

			continue
		}

		pt.SpatialCluster = label
		members[label] = append(members[label], valid[j])
	}

	if best.Noise > 0 {
		log.Printf("Partition - %d points in sparse cells folded into outliers", best.Noise)
	}

	return clusters, members, noise, nil
}

func (r *run) attributes(indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for j, i := range indices {
		out[j] = r.points[i].Attributes
	}

	return out
}

// refine sub-clusters every spatial cluster and classifies the outliers. The
// two sets of points are disjoint, so both run at once.
func (r *run) refine(ctx context.Context, members [][]int, outliers []int) ([]*refine.Refinement, *refine.Classification, error) {
	var (
		refinements    []*refine.Refinement
		classification *refine.Classification
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		groups := make([][][]float64, len(members))
		for c, idx := range members {
			groups[c] = r.attributes(idx)
		}

		var err error

		refinements, err = refine.RefineAll(ctx, groups, r.cfg.refineOptions(), r.cfg.Workers)
		if err != nil {
			return err
		}

		for c, ref := range refinements {
			for j, i := range members[c] {
				r.points[i].SubCluster = ref.Labels[j]
			}
		}

		return nil
	})

	g.Go(func() error {
		var err error

		classification, err = refine.ClassifyOutliers(ctx, r.attributes(outliers), r.cfg.OutlierGroups, r.cfg.refineOptions())
		if err != nil {
			return err
		}

		for j, i := range outliers {
			r.points[i].SpatialCluster = dataset.OutlierCluster
			r.points[i].SubCluster = classification.Labels[j]
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("refining clusters: %w", err)
	}

	for _, ref := range refinements {
		r.stats.SubClusters += ref.S

		if ref.Degenerate {
			r.stats.Degenerate++
			r.stats.DegenerateByReason[ref.Reason]++
		}
	}

	if r.stats.Degenerate > 0 {
		log.Printf("Refinement - %d spatial clusters kept as a single sub-cluster", r.stats.Degenerate)
	}

	if len(outliers) > 0 {
		r.stats.OutlierGroups = int(classification.Groups())
		r.stats.UnusableOutliers = classification.Unusable
	}

	return refinements, classification, nil
}
