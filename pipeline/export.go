// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/microcluster"
	"github.com/jcodagnone/geocluster/spatial"
	"github.com/jcodagnone/geocluster/utils/textutils"
)

// Export encodes the points to binPath and writes the metadata sidecar to
// metaPath. Records go out in chunks of Config.ChunkSize. On failure both
// files are removed, so a partial stream is never left behind.
func (r *Result) Export(binPath, metaPath string, showProgress bool) (err error) {
	defer func() {
		if err == nil {
			return
		}

		for _, path := range []string{binPath, metaPath} {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Printf("removing partial output %s: %v", path, rmErr)
			}
		}
	}()

	if err := r.encode(binPath, showProgress); err != nil {
		return newError(KindIO, "encode", err)
	}

	if err := r.writeMetadata(metaPath); err != nil {
		return newError(KindIO, "metadata", err)
	}

	return nil
}

func (r *Result) encode(path string, showProgress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := codec.NewEncoder(f, r.Config.MaxAttributeArity)
	if err != nil {
		return err
	}

	bar := newProgress(showProgress, len(r.Points), "Encoding points")
	chunk := max(r.Config.ChunkSize, 1)

	for start := 0; start < len(r.Points); start += chunk {
		end := min(start+chunk, len(r.Points))

		for i := start; i < end; i++ {
			if err := enc.Encode(codec.FromPoint(&r.Points[i])); err != nil {
				return fmt.Errorf("encoding point %d: %w", r.Points[i].ID, err)
			}
		}

		bar.Add(end - start)
	}

	bar.Finish()

	if err := enc.Close(); err != nil {
		return err
	}

	r.Stats.Encoded = enc.Count()
	r.Stats.Truncated = enc.Truncated()

	if r.Stats.Truncated > 0 {
		log.Printf("Encoding - %s records had attributes beyond arity %d dropped",
			textutils.FormatInt(r.Stats.Truncated), r.Config.MaxAttributeArity)
	}

	return f.Close()
}

func (r *Result) writeMetadata(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := codec.WriteMetadata(f, r.Metadata()); err != nil {
		return err
	}

	return f.Close()
}

// Metadata describes the exported stream.
func (r *Result) Metadata() *codec.Metadata {
	m := &codec.Metadata{
		RunID:           r.RunID,
		GeneratedAt:     r.GeneratedAt,
		ByteOrder:       codec.ByteOrderName,
		Arity:           r.Config.MaxAttributeArity,
		Records:         int64(len(r.Points)),
		Valid:           r.Stats.Valid,
		Outliers:        r.Stats.Outliers,
		Truncated:       r.Stats.Truncated,
		Degenerate:      r.Stats.Degenerate,
		Strategy:        r.Stats.Strategy,
		Seed:            r.Config.Seed,
		Region:          r.Config.Region.String(),
		SpatialClusters: r.Stats.SpatialClusters,
		OutlierGroups:   r.Stats.OutlierGroups,
		Attributes:      r.Schema.Attributes,
	}

	var b spatial.Bounds

	for i := range r.Points {
		if p := &r.Points[i]; !p.IsOutlier {
			b.Extend(p.Lat, p.Lng)
		}
	}

	if b.Count > 0 {
		m.Bounds = &b.Region
	}

	for _, mc := range r.Microclusters {
		m.Clusters = append(m.Clusters, codec.ClusterCount{Spatial: mc.Spatial, Sub: mc.Sub, Count: int64(mc.Count)})
	}

	return m
}

// Save stores the microclusters of the run in repo.
func (r *Result) Save(repo microcluster.Repository) error {
	if err := repo.SaveMicroclusters(r.RunID, r.GeneratedAt, r.Microclusters); err != nil {
		return newError(KindIO, "store", fmt.Errorf("saving microclusters of run %s: %w", r.RunID, err))
	}

	return nil
}
