// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package microcluster

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run is one pipeline execution whose microclusters were stored.
type Run struct {
	ID            string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	Microclusters int       `json:"microclusters"`
	Points        int64     `json:"points"`
}

// Filter narrows ListMicroclusters.
type Filter struct {
	Spatial      *int32
	OutliersOnly bool
	Limit        int
	Offset       int
}

// Repository persists microclusters, keyed by run.
type Repository interface {
	// CreateSchema creates the microclusters table
	CreateSchema() error

	// SaveMicroclusters replaces the rows of a run
	SaveMicroclusters(runID string, createdAt time.Time, rows []Microcluster) error

	// ListMicroclusters returns the rows of a run ordered by key
	ListMicroclusters(runID string, f Filter) ([]Microcluster, error)

	// ListRuns returns the stored runs, newest first
	ListRuns() ([]Run, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a repository over a DuckDB connection.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS microclusters (
			run_id VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			spatial_cluster INTEGER NOT NULL,
			sub_cluster INTEGER NOT NULL,
			point_count BIGINT NOT NULL,
			located_count BIGINT NOT NULL,
			lat_centroid DOUBLE NOT NULL,
			lat_spread DOUBLE NOT NULL,
			lng_centroid DOUBLE NOT NULL,
			lng_spread DOUBLE NOT NULL,
			approx_radius DOUBLE NOT NULL,
			radius_meters DOUBLE NOT NULL,
			h3_cell VARCHAR,
			PRIMARY KEY(run_id, spatial_cluster, sub_cluster)
		);
	`)

	return err
}

func rollback(tx *sql.Tx, err error) error {
	if rErr := tx.Rollback(); rErr != nil {
		return errors.Join(err, rErr)
	}

	return err
}

func (r *sqlRepository) SaveMicroclusters(runID string, createdAt time.Time, rows []Microcluster) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Exec(`DELETE FROM microclusters WHERE run_id = ?`, runID); err != nil {
		return rollback(tx, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO microclusters(
			run_id,
			created_at,
			spatial_cluster,
			sub_cluster,
			point_count,
			located_count,
			lat_centroid,
			lat_spread,
			lng_centroid,
			lng_spread,
			approx_radius,
			radius_meters,
			h3_cell
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return rollback(tx, err)
	}
	defer stmt.Close()

	for _, m := range rows {
		var cell *string
		if m.Cell != "" {
			cell = &m.Cell
		}

		if _, err = stmt.Exec(
			runID,
			createdAt,
			m.Spatial,
			m.Sub,
			m.Count,
			m.Located,
			m.LatCentroid,
			m.LatSpread,
			m.LngCentroid,
			m.LngSpread,
			m.ApproxRadius,
			m.RadiusMeters,
			cell,
		); err != nil {
			return rollback(tx, fmt.Errorf("inserting microcluster %s: %w", m.Key, err))
		}
	}

	return tx.Commit()
}

func (r *sqlRepository) ListMicroclusters(runID string, f Filter) ([]Microcluster, error) {
	where := []string{"run_id = ?"}
	args := []any{runID}

	if f.Spatial != nil {
		where = append(where, "spatial_cluster = ?")
		args = append(args, *f.Spatial)
	}

	if f.OutliersOnly {
		where = append(where, "spatial_cluster < 0")
	}

	query := `
		SELECT spatial_cluster, sub_cluster, point_count, located_count,
		       lat_centroid, lat_spread, lng_centroid, lng_spread,
		       approx_radius, radius_meters, h3_cell
		FROM microclusters
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY spatial_cluster, sub_cluster`

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, max(f.Offset, 0))
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Microcluster

	for rows.Next() {
		var (
			m    Microcluster
			cell sql.NullString
		)

		if err := rows.Scan(
			&m.Spatial, &m.Sub, &m.Count, &m.Located,
			&m.LatCentroid, &m.LatSpread, &m.LngCentroid, &m.LngSpread,
			&m.ApproxRadius, &m.RadiusMeters, &cell,
		); err != nil {
			return nil, err
		}

		m.Cell = cell.String
		out = append(out, m)
	}

	return out, rows.Err()
}

func (r *sqlRepository) ListRuns() ([]Run, error) {
	rows, err := r.db.Query(`
		SELECT run_id, MIN(created_at), COUNT(*), SUM(point_count)::BIGINT
		FROM microclusters
		GROUP BY run_id
		ORDER BY MIN(created_at) DESC, run_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run

	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.Microclusters, &run.Points); err != nil {
			return nil, err
		}

		out = append(out, run)
	}

	return out, rows.Err()
}
