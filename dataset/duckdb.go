// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/jcodagnone/geocluster/utils/textutils"
)

// CSVOptions selects the columns of a CSV file. Column names are matched
// ignoring case, accents and the choice of space, dash or underscore.
type CSVOptions struct {
	Path string
	// IDColumn may be empty, in which case the zero based row number is the id.
	IDColumn  string
	LatColumn string
	LngColumn string
	// Attributes lists the attribute columns in order. When empty every numeric
	// column other than id, latitude and longitude is used, in file order.
	Attributes []string
}

// CSVSource reads a CSV file through DuckDB's read_csv_auto.
type CSVSource struct {
	db     *sql.DB
	opts   CSVOptions
	schema *Schema
}

// NewCSVSource creates a source over db, which only needs to be an open
// DuckDB connection (an in-memory one is fine).
func NewCSVSource(db *sql.DB, opts CSVOptions) *CSVSource {
	return &CSVSource{db: db, opts: opts}
}

type column struct {
	name     string
	dataType string
}

var numericTypes = []string{
	"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
	"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
	"FLOAT", "DOUBLE", "DECIMAL",
}

func isNumeric(dataType string) bool {
	t := strings.ToUpper(dataType)
	for _, n := range numericTypes {
		if strings.HasPrefix(t, n) {
			return true
		}
	}

	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func (s *CSVSource) from() string {
	return "read_csv_auto(" + quoteLiteral(s.opts.Path) + ")"
}

func (s *CSVSource) describe(ctx context.Context) ([]column, error) {
	rows, err := s.db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+s.from())
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", s.opts.Path, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", s.opts.Path, err)
	}

	var cols []column

	for rows.Next() {
		dest := make([]any, len(names))
		values := make([]sql.NullString, len(names))

		for i := range values {
			dest[i] = &values[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning column description: %w", err)
		}

		cols = append(cols, column{name: values[0].String, dataType: values[1].String})
	}

	return cols, rows.Err()
}

// Schema implements Source. It fails with a SchemaError when a configured
// column is missing or not numeric, coordinates and id included.
func (s *CSVSource) Schema(ctx context.Context) (Schema, error) {
	if s.schema != nil {
		return *s.schema, nil
	}

	cols, err := s.describe(ctx)
	if err != nil {
		return Schema{}, err
	}

	byKey := make(map[string]column, len(cols))
	for _, c := range cols {
		byKey[textutils.ColumnKey(c.name)] = c
	}

	resolve := func(name string) (column, error) {
		c, ok := byKey[textutils.ColumnKey(name)]
		if !ok {
			return column{}, &SchemaError{Column: name, Row: -1, Message: "missing column"}
		}

		return c, nil
	}

	resolveNumeric := func(name, role string) (column, error) {
		c, err := resolve(name)
		if err != nil {
			return column{}, err
		}

		if !isNumeric(c.dataType) {
			return column{}, &SchemaError{
				Column:  c.name,
				Row:     -1,
				Message: fmt.Sprintf("%s column has non numeric type %s", role, c.dataType),
			}
		}

		return c, nil
	}

	var schema Schema

	if s.opts.IDColumn != "" {
		c, err := resolveNumeric(s.opts.IDColumn, "id")
		if err != nil {
			return Schema{}, err
		}

		schema.IDColumn = c.name
	}

	lat, err := resolveNumeric(s.opts.LatColumn, "latitude")
	if err != nil {
		return Schema{}, err
	}

	lng, err := resolveNumeric(s.opts.LngColumn, "longitude")
	if err != nil {
		return Schema{}, err
	}

	schema.LatColumn, schema.LngColumn = lat.name, lng.name

	if len(s.opts.Attributes) == 0 {
		for _, c := range cols {
			if c.name == schema.IDColumn || c.name == lat.name || c.name == lng.name {
				continue
			}

			if isNumeric(c.dataType) {
				schema.Attributes = append(schema.Attributes, c.name)
			}
		}
	} else {
		for _, name := range s.opts.Attributes {
			c, err := resolveNumeric(name, "attribute")
			if err != nil {
				return Schema{}, err
			}

			schema.Attributes = append(schema.Attributes, c.name)
		}
	}

	s.schema = &schema

	return schema, nil
}

func (s *CSVSource) query(schema Schema) string {
	exprs := make([]string, 0, 3+schema.Arity())
	if schema.IDColumn != "" {
		exprs = append(exprs, "TRY_CAST("+quoteIdent(schema.IDColumn)+" AS BIGINT)")
	} else {
		exprs = append(exprs, "NULL::BIGINT")
	}

	exprs = append(exprs,
		"TRY_CAST("+quoteIdent(schema.LatColumn)+" AS DOUBLE)",
		"TRY_CAST("+quoteIdent(schema.LngColumn)+" AS DOUBLE)",
	)
	for _, a := range schema.Attributes {
		exprs = append(exprs, "TRY_CAST("+quoteIdent(a)+" AS DOUBLE)")
	}

	return "SELECT " + strings.Join(exprs, ", ") + " FROM " + s.from()
}

// Each implements Source. Missing coordinates and attributes are read as NaN;
// a missing or out of range id is a SchemaError.
func (s *CSVSource) Each(ctx context.Context, fn func(Point) error) error {
	schema, err := s.Schema(ctx)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, s.query(schema))
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.opts.Path, err)
	}
	defer rows.Close()

	arity := schema.Arity()

	var id sql.NullInt64

	floats := make([]sql.NullFloat64, 2+arity)
	dest := make([]any, 0, 3+arity)
	dest = append(dest, &id)

	for i := range floats {
		dest = append(dest, &floats[i])
	}

	row := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning row %d: %w", row, err)
		}

		pointID := int64(row)

		if schema.IDColumn != "" {
			if !id.Valid {
				return &SchemaError{Column: schema.IDColumn, Row: row, Message: "missing or malformed id"}
			}

			pointID = id.Int64
		}

		if pointID < math.MinInt32 || pointID > math.MaxInt32 {
			return &SchemaError{Column: schema.IDColumn, Row: row, Message: fmt.Sprintf("id %d does not fit in 32 bits", pointID)}
		}

		attrs := make([]float64, arity)
		for i := range attrs {
			attrs[i] = orNaN(floats[2+i])
		}

		if err := fn(NewPoint(int32(pointID), orNaN(floats[0]), orNaN(floats[1]), attrs)); err != nil {
			return err
		}

		row++
	}

	return rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}

	return v.Float64
}
