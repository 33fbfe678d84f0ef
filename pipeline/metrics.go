// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geocluster"

// Metrics exposes the statistics of one run as Prometheus gauges, meant for
// the node exporter textfile collector.
type Metrics struct {
	registry *prometheus.Registry

	Points          *prometheus.GaugeVec // labels: kind={valid,outlier}
	OutliersReason  *prometheus.GaugeVec // labels: reason
	SpatialClusters prometheus.Gauge
	SubClusters     prometheus.Gauge
	Degenerate      prometheus.Gauge
	OutlierGroups   prometheus.Gauge
	Microclusters   prometheus.Gauge
	Truncated       prometheus.Gauge
	PhaseDuration   *prometheus.GaugeVec // labels: phase
	LastRun         prometheus.Gauge
}

// NewMetrics creates the gauges in a registry of their own.
func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Points: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points",
			Help:      "Points of the last run by kind.",
		}, []string{"kind"}),
		OutliersReason: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outliers",
			Help:      "Outlier points of the last run by rejection reason.",
		}, []string{"reason"}),
		SpatialClusters: gauge("spatial_clusters", "Spatial clusters produced by the last run."),
		SubClusters:     gauge("sub_clusters", "Sub-clusters across every spatial cluster."),
		Degenerate:      gauge("degenerate_clusters", "Spatial clusters left as a single sub-cluster."),
		OutlierGroups:   gauge("outlier_groups", "Attribute groups of the outlier space."),
		Microclusters:   gauge("microclusters", "Microclusters aggregated by the last run."),
		Truncated:       gauge("truncated_records", "Records that lost attributes to the maximum arity."),
		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each stage of the last run.",
		}, []string{"phase"}),
		LastRun: gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
	}

	m.registry.MustRegister(
		m.Points,
		m.OutliersReason,
		m.SpatialClusters,
		m.SubClusters,
		m.Degenerate,
		m.OutlierGroups,
		m.Microclusters,
		m.Truncated,
		m.PhaseDuration,
		m.LastRun,
	)

	return m
}

// Observe copies s into the gauges.
func (m *Metrics) Observe(s *Stats, finished time.Time) {
	m.Points.WithLabelValues("valid").Set(float64(s.Valid))
	m.Points.WithLabelValues("outlier").Set(float64(s.Outliers))

	for reason, n := range s.OutliersByReason {
		m.OutliersReason.WithLabelValues(reason).Set(float64(n))
	}

	m.SpatialClusters.Set(float64(s.SpatialClusters))
	m.SubClusters.Set(float64(s.SubClusters))
	m.Degenerate.Set(float64(s.Degenerate))
	m.OutlierGroups.Set(float64(s.OutlierGroups))
	m.Microclusters.Set(float64(s.Microclusters))
	m.Truncated.Set(float64(s.Truncated))

	for _, p := range s.Phases {
		m.PhaseDuration.WithLabelValues(p.Name).Set(p.Duration.Seconds())
	}

	m.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the gauges in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
