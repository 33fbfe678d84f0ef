// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"log"
	"maps"
	"slices"
	"time"

	"github.com/jcodagnone/geocluster/partition"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/jcodagnone/geocluster/utils/textutils"
)

// Phase is the duration of one pipeline stage.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Stats records the conditions a run handled without failing.
type Stats struct {
	Points   int64 `json:"points"`
	Valid    int64 `json:"valid"`
	Outliers int64 `json:"outliers"`
	// OutliersByReason is keyed by spatial.Reason names.
	OutliersByReason   map[string]int64       `json:"outliers_by_reason"`
	Strategy           string                 `json:"strategy"`
	Evaluations        []partition.Evaluation `json:"evaluations"`
	SpatialClusters    int                    `json:"spatial_clusters"`
	SubClusters        int                    `json:"sub_clusters"`
	Degenerate         int                    `json:"degenerate_clusters"`
	DegenerateByReason map[string]int         `json:"degenerate_by_reason"`
	OutlierGroups      int                    `json:"outlier_groups"`
	UnusableOutliers   int                    `json:"unusable_outliers"`
	Microclusters      int                    `json:"microclusters"`
	Truncated          int64                  `json:"truncated_records"`
	Encoded            int64                  `json:"encoded_records"`
	Phases             []Phase                `json:"phases"`
}

func newStats() Stats {
	return Stats{
		OutliersByReason:   map[string]int64{},
		DegenerateByReason: map[string]int{},
	}
}

// Log writes the run summary, one line per stage.
func (s *Stats) Log() {
	log.Printf("Validation - %s points, %s valid, %s outliers",
		textutils.FormatInt(s.Points), textutils.FormatInt(s.Valid), textutils.FormatInt(s.Outliers))

	for _, reason := range spatial.Reasons() {
		if n := s.OutliersByReason[reason.String()]; n > 0 {
			log.Printf("  outliers %-15s %s", reason, textutils.FormatInt(n))
		}
	}

	for _, e := range s.Evaluations {
		log.Printf("Strategy %-14s k=%d noise=%.2f%% score=%.3f", e.Strategy, e.K, e.NoiseFraction*100, e.Score)
	}

	log.Printf("Partition - strategy %s, %d spatial clusters", s.Strategy, s.SpatialClusters)
	log.Printf("Refinement - %d sub-clusters, %d degenerate clusters", s.SubClusters, s.Degenerate)

	for _, reason := range slices.Sorted(maps.Keys(s.DegenerateByReason)) {
		log.Printf("  degenerate %-22s %d", reason, s.DegenerateByReason[reason])
	}

	log.Printf("Outliers - %d groups, %d points without usable attributes", s.OutlierGroups, s.UnusableOutliers)
	log.Printf("Aggregation - %d microclusters", s.Microclusters)

	for _, p := range s.Phases {
		log.Printf("  phase %-10s %s", p.Name, p.Duration.Round(time.Millisecond))
	}
}
