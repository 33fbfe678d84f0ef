// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Decoder reads records sequentially. It never returns a record whose bytes
// were not all present.
type Decoder struct {
	r     *bufio.Reader
	arity int
	count int
	read  int
	buf   []byte
}

// NewDecoder reads the record count from r.
func NewDecoder(r io.Reader, arity int) (*Decoder, error) {
	if err := checkArity(arity); err != nil {
		return nil, err
	}

	d := &Decoder{r: bufio.NewReaderSize(r, 1<<16), arity: arity, buf: make([]byte, RecordSize(arity))}

	var count [CountBytes]byte
	if _, err := io.ReadFull(d.r, count[:]); err != nil {
		return nil, fmt.Errorf("%w: reading record count: %w", ErrShortFile, err)
	}

	n := int32(order.Uint32(count[:]))
	if n < 0 {
		return nil, fmt.Errorf("%w: negative record count %d", ErrCorrupt, n)
	}

	d.count = int(n)

	return d, nil
}

// Count is the number of records announced by the stream.
func (d *Decoder) Count() int {
	return d.count
}

// Arity is the attribute block size of every record.
func (d *Decoder) Arity() int {
	return d.arity
}

// Next returns the next record, or io.EOF after the last one.
func (d *Decoder) Next() (Record, error) {
	var r Record

	err := d.next(&r)

	return r, err
}

func (d *Decoder) next(r *Record) error {
	if d.read == d.count {
		return io.EOF
	}

	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: record %d of %d is incomplete", ErrShortFile, d.read, d.count)
		}

		return err
	}

	if err := parse(d.buf, r, d.arity); err != nil {
		return err
	}

	d.read++

	return nil
}

// NextChunk returns up to size records, so callers hold at most one chunk in
// memory. A size below 1 reads one record. It returns io.EOF once every record
// was read. On error no record of the failing chunk is returned.
func (d *Decoder) NextChunk(size int) ([]Record, error) {
	if d.read == d.count {
		return nil, io.EOF
	}

	n := min(max(size, 1), d.count-d.read)
	chunk := make([]Record, n)
	attrs := make([]float64, n*d.arity)

	for i := range chunk {
		chunk[i].Attributes = attrs[i*d.arity : (i+1)*d.arity : (i+1)*d.arity]
		if err := d.next(&chunk[i]); err != nil {
			return nil, err
		}
	}

	return chunk, nil
}

// DecodeAll reads every record of r.
func DecodeAll(r io.Reader, arity int) ([]Record, error) {
	d, err := NewDecoder(r, arity)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, min(d.Count(), 1<<16))

	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}
}
