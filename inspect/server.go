// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package inspect serves a read-only JSON view of an encoded point stream, its
// metadata sidecar and the stored microclusters.
package inspect

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geocluster/codec"
	"github.com/jcodagnone/geocluster/microcluster"
)

const (
	defaultLimit = 100
	maxLimit     = 10_000
)

type Server struct {
	file *codec.MappedFile
	meta *codec.Metadata
	repo microcluster.Repository
}

// NewServer creates a server over file. meta and repo are optional; their
// routes answer 404 when missing.
func NewServer(file *codec.MappedFile, meta *codec.Metadata, repo microcluster.Repository) *Server {
	return &Server{file: file, meta: meta, repo: repo}
}

// Router registers every route on a new engine.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	s.register(r)

	return r
}

func (s *Server) register(r gin.IRouter) {
	r.GET("/api/metadata", s.getMetadata)
	r.GET("/api/records", s.listRecords)
	r.GET("/api/records/:index", s.getRecord)
	r.GET("/api/ids/:id", s.findRecord)
	r.GET("/api/runs", s.listRuns)
	r.GET("/api/runs/:run_id/microclusters", s.listMicroclusters)
}

func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

// RecordResponse is a record with non finite numbers as null, which JSON
// cannot carry.
type RecordResponse struct {
	Index          int        `json:"index"`
	ID             int32      `json:"id"`
	Lat            *float64   `json:"lat"`
	Lng            *float64   `json:"lng"`
	SpatialCluster int32      `json:"spatial_cluster"`
	SubCluster     int32      `json:"sub_cluster"`
	AttributeCount int32      `json:"attribute_count"`
	Attributes     []*float64 `json:"attributes"`
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}

func newRecordResponse(index int, r codec.Record) RecordResponse {
	attrs := make([]*float64, len(r.Values()))
	for i, v := range r.Values() {
		attrs[i] = number(v)
	}

	return RecordResponse{
		Index:          index,
		ID:             r.ID,
		Lat:            number(r.Lat),
		Lng:            number(r.Lng),
		SpatialCluster: r.SpatialCluster,
		SubCluster:     r.SubCluster,
		AttributeCount: r.AttributeCount,
		Attributes:     attrs,
	}
}

func (s *Server) getMetadata(ctx *gin.Context) {
	if s.meta == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no metadata loaded"})

		return
	}

	ctx.JSON(http.StatusOK, s.meta)
}

func (s *Server) record(ctx *gin.Context, index int) {
	r, err := s.file.Record(index)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, newRecordResponse(index, r))
}

func (s *Server) getRecord(ctx *gin.Context) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})

		return
	}

	if index < 0 || index >= s.file.Len() {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "index out of range", "count": s.file.Len()})

		return
	}

	s.record(ctx, index)
}

func (s *Server) findRecord(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})

		return
	}

	index, ok := s.file.Find(int32(id))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no record with that id"})

		return
	}

	s.record(ctx, index)
}

func queryInt(ctx *gin.Context, name string, def int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name + " parameter")
	}

	return v, nil
}

// RecordPage is a window of the stream.
type RecordPage struct {
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	Records []RecordResponse `json:"records"`
}

func (s *Server) listRecords(ctx *gin.Context) {
	offset, err := queryInt(ctx, "offset", 0)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	limit, err := queryInt(ctx, "limit", defaultLimit)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	limit = min(limit, maxLimit)
	end := min(offset+limit, s.file.Len())
	page := RecordPage{Total: s.file.Len(), Offset: offset, Records: []RecordResponse{}}

	for i := offset; i < end; i++ {
		r, err := s.file.Record(i)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}

		page.Records = append(page.Records, newRecordResponse(i, r))
	}

	ctx.JSON(http.StatusOK, page)
}

func (s *Server) listRuns(ctx *gin.Context) {
	if s.repo == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no microcluster database"})

		return
	}

	runs, err := s.repo.ListRuns()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, runs)
}

func (s *Server) listMicroclusters(ctx *gin.Context) {
	if s.repo == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no microcluster database"})

		return
	}

	var f microcluster.Filter

	if raw := ctx.Query("spatial_cluster"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid spatial_cluster parameter"})

			return
		}

		spatial := int32(v)
		f.Spatial = &spatial
	}

	f.OutliersOnly = ctx.Query("outliers") == "true"

	var err error
	if f.Offset, err = queryInt(ctx, "offset", 0); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if f.Limit, err = queryInt(ctx, "limit", 0); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rows, err := s.repo.ListMicroclusters(ctx.Param("run_id"), f)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if rows == nil {
		rows = []microcluster.Microcluster{}
	}

	ctx.JSON(http.StatusOK, rows)
}
