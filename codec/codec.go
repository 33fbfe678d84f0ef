// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec reads and writes the fixed-layout binary point stream.
//
// A stream is a little-endian int32 record count followed by that many
// records of identical size:
//
//	id               int32
//	lat              float64
//	lng              float64
//	spatial_cluster  int32
//	sub_cluster      int32
//	attribute_count  int32
//	attributes       [arity]float64, right-padded with 0
//
// Records appear in ascending id order. A record is HeaderBytes+8*arity bytes
// long, so record i starts at CountBytes+i*RecordSize(arity).
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/jcodagnone/geocluster/dataset"
)

const (
	// CountBytes is the size of the leading record count.
	CountBytes = 4
	// HeaderBytes is the fixed part of a record.
	HeaderBytes = 32
	// DefaultArity is the attribute block size unless configured otherwise.
	DefaultArity = 12
	// ByteOrderName is stated in the sidecar metadata.
	ByteOrderName = "little-endian"
)

var order = binary.LittleEndian

var (
	// ErrShortFile is returned when the stream ends before the records its
	// count announces.
	ErrShortFile = errors.New("codec: short file")
	// ErrCorrupt is returned for streams whose structure is inconsistent.
	ErrCorrupt = errors.New("codec: corrupt file")
	// ErrOutOfOrder is returned when records are not given by ascending id.
	ErrOutOfOrder = errors.New("codec: records out of id order")
	// ErrArity is returned for an unusable attribute arity.
	ErrArity = errors.New("codec: invalid attribute arity")
)

// RecordSize is the byte length of every record for a given arity.
func RecordSize(arity int) int {
	return HeaderBytes + 8*arity
}

// FileSize is the exact length of a stream holding count records.
func FileSize(count, arity int) int64 {
	return CountBytes + int64(count)*int64(RecordSize(arity))
}

// Record is one decoded point.
type Record struct {
	ID             int32
	Lat            float64
	Lng            float64
	SpatialCluster int32
	SubCluster     int32
	// AttributeCount is the number of meaningful entries in Attributes.
	AttributeCount int32
	// Attributes always has the stream arity; entries past AttributeCount
	// are padding.
	Attributes []float64
}

// Values returns the attributes without padding.
func (r *Record) Values() []float64 {
	return r.Attributes[:r.AttributeCount]
}

// FromPoint builds the record of an assigned point. Attributes are shared,
// not copied.
func FromPoint(p *dataset.Point) Record {
	return Record{
		ID:             p.ID,
		Lat:            p.Lat,
		Lng:            p.Lng,
		SpatialCluster: p.SpatialCluster,
		SubCluster:     p.SubCluster,
		AttributeCount: int32(len(p.Attributes)),
		Attributes:     p.Attributes,
	}
}

func checkArity(arity int) error {
	if arity < 0 || RecordSize(arity) > math.MaxInt32 {
		return fmt.Errorf("%w: %d", ErrArity, arity)
	}

	return nil
}

// put writes r into buf, which must be RecordSize(arity) bytes. Attributes
// beyond arity are dropped and the result reports whether that happened.
func put(buf []byte, r *Record, arity int) bool {
	n := min(len(r.Attributes), int(r.AttributeCount))
	kept := min(n, arity)

	order.PutUint32(buf[0:], uint32(r.ID))
	order.PutUint64(buf[4:], math.Float64bits(r.Lat))
	order.PutUint64(buf[12:], math.Float64bits(r.Lng))
	order.PutUint32(buf[20:], uint32(r.SpatialCluster))
	order.PutUint32(buf[24:], uint32(r.SubCluster))
	order.PutUint32(buf[28:], uint32(int32(kept)))

	for i := range arity {
		v := 0.0
		if i < kept {
			v = r.Attributes[i]
		}

		order.PutUint64(buf[HeaderBytes+8*i:], math.Float64bits(v))
	}

	return n > arity
}

// parse decodes buf into r, reusing r.Attributes when it has room.
func parse(buf []byte, r *Record, arity int) error {
	r.ID = int32(order.Uint32(buf[0:]))
	r.Lat = math.Float64frombits(order.Uint64(buf[4:]))
	r.Lng = math.Float64frombits(order.Uint64(buf[12:]))
	r.SpatialCluster = int32(order.Uint32(buf[20:]))
	r.SubCluster = int32(order.Uint32(buf[24:]))
	r.AttributeCount = int32(order.Uint32(buf[28:]))

	if r.AttributeCount < 0 || int(r.AttributeCount) > arity {
		return fmt.Errorf("%w: record %d has attribute_count %d with arity %d", ErrCorrupt, r.ID, r.AttributeCount, arity)
	}

	if cap(r.Attributes) < arity {
		r.Attributes = make([]float64, arity)
	}

	r.Attributes = r.Attributes[:arity]
	for i := range arity {
		r.Attributes[i] = math.Float64frombits(order.Uint64(buf[HeaderBytes+8*i:]))
	}

	return nil
}
