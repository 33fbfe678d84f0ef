// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
)

// Encoder streams records to a seekable writer. The record count is written
// as a placeholder first and patched by Close.
type Encoder struct {
	w         io.WriteSeeker
	buf       *bufio.Writer
	start     int64
	arity     int
	record    []byte
	count     int64
	truncated int64
	lastID    int32
	closed    bool
}

// NewEncoder starts a stream at the current position of w.
func NewEncoder(w io.WriteSeeker, arity int) (*Encoder, error) {
	if err := checkArity(arity); err != nil {
		return nil, err
	}

	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating stream start: %w", err)
	}

	e := &Encoder{
		w:      w,
		buf:    bufio.NewWriterSize(w, 1<<16),
		start:  start,
		arity:  arity,
		record: make([]byte, RecordSize(arity)),
	}

	if _, err := e.buf.Write(make([]byte, CountBytes)); err != nil {
		return nil, err
	}

	return e, nil
}

// Encode appends r. Ids must be strictly ascending.
func (e *Encoder) Encode(r Record) error {
	if e.closed {
		return errors.New("codec: encode after close")
	}

	if e.count > 0 && r.ID <= e.lastID {
		return fmt.Errorf("%w: id %d after %d", ErrOutOfOrder, r.ID, e.lastID)
	}

	if e.count == math.MaxInt32 {
		return fmt.Errorf("codec: more than %d records", math.MaxInt32)
	}

	if put(e.record, &r, e.arity) {
		e.truncated++
	}

	if _, err := e.buf.Write(e.record); err != nil {
		return err
	}

	e.count++
	e.lastID = r.ID

	return nil
}

// Count is the number of records encoded so far.
func (e *Encoder) Count() int64 {
	return e.count
}

// Truncated is the number of records that lost attributes to the arity.
func (e *Encoder) Truncated() int64 {
	return e.truncated
}

// Close flushes the records and patches the record count. It leaves w
// positioned at the end of the stream.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true

	if err := e.buf.Flush(); err != nil {
		return err
	}

	end, err := e.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := e.w.Seek(e.start, io.SeekStart); err != nil {
		return err
	}

	var count [CountBytes]byte
	order.PutUint32(count[:], uint32(e.count))

	if _, err := e.w.Write(count[:]); err != nil {
		return fmt.Errorf("patching record count: %w", err)
	}

	_, err = e.w.Seek(end, io.SeekStart)

	return err
}
