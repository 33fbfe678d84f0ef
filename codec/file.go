// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// InferArity derives the attribute arity from the size of an uncompressed
// stream and its record count.
func InferArity(size int64, count int) (int, error) {
	body := size - CountBytes
	if body < 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortFile, size)
	}

	if count == 0 {
		if body != 0 {
			return 0, fmt.Errorf("%w: %d trailing bytes after an empty stream", ErrCorrupt, body)
		}

		return 0, fmt.Errorf("%w: cannot infer arity of an empty stream", ErrArity)
	}

	if body < int64(count)*HeaderBytes {
		return 0, fmt.Errorf("%w: %d records need at least %d bytes, have %d", ErrShortFile, count, int64(count)*HeaderBytes, body)
	}

	if body%int64(count) != 0 || (body/int64(count)-HeaderBytes)%8 != 0 {
		return 0, fmt.Errorf("%w: %d bytes do not hold %d equal records", ErrCorrupt, body, count)
	}

	return int((body/int64(count) - HeaderBytes) / 8), nil
}

// checkSize fails fast when size cannot hold count records.
func checkSize(size int64, count, arity int) error {
	want := FileSize(count, arity)

	switch {
	case size < want:
		return fmt.Errorf("%w: %d records of arity %d need %d bytes, have %d", ErrShortFile, count, arity, want, size)
	case size > want:
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, size-want)
	}

	return nil
}

func readCount(r io.Reader) (int, error) {
	var buf [CountBytes]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading record count: %w", ErrShortFile, err)
	}

	n := int32(order.Uint32(buf[:]))
	if n < 0 {
		return 0, fmt.Errorf("%w: negative record count %d", ErrCorrupt, n)
	}

	return int(n), nil
}

// File is an open stream on disk.
type File struct {
	*Decoder
	Compressed bool
	Size       int64
	closers    []func() error
}

// Open opens a stream for sequential decoding. zstd compressed files are
// detected and decompressed on the fly. arity 0 infers the arity from the
// file size, which requires an uncompressed file.
//
// For uncompressed files the size is checked against the record count before
// any record is read.
func Open(path string, arity int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	out := &File{closers: []func() error{f.Close}}

	fail := func(err error) (*File, error) {
		out.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return fail(err)
	}

	out.Size = info.Size()
	br := bufio.NewReader(f)

	magic, err := br.Peek(len(zstdMagic))
	if err == nil && bytes.Equal(magic, zstdMagic) {
		if arity <= 0 {
			return fail(fmt.Errorf("%w: arity must be given for compressed streams", ErrArity))
		}

		zr, err := zstd.NewReader(br)
		if err != nil {
			return fail(err)
		}

		out.closers = append(out.closers, func() error { zr.Close(); return nil })
		out.Compressed = true

		if out.Decoder, err = NewDecoder(zr, arity); err != nil {
			return fail(err)
		}

		return out, nil
	}

	count, err := readCount(io.NewSectionReader(f, 0, CountBytes))
	if err != nil {
		return fail(err)
	}

	if arity <= 0 {
		if arity, err = InferArity(out.Size, count); err != nil {
			return fail(err)
		}
	} else if err := checkSize(out.Size, count, arity); err != nil {
		return fail(err)
	}

	if out.Decoder, err = NewDecoder(br, arity); err != nil {
		return fail(err)
	}

	return out, nil
}

// Close releases the file.
func (f *File) Close() error {
	var errs []error

	for i := len(f.closers) - 1; i >= 0; i-- {
		errs = append(errs, f.closers[i]())
	}

	return errors.Join(errs...)
}

// MappedFile gives O(1) access to any record of an uncompressed stream.
type MappedFile struct {
	f     *os.File
	data  mmap.MMap
	count int
	arity int
}

// OpenMapped maps path read-only. arity 0 infers it from the file size.
func OpenMapped(path string, arity int) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := openMapped(f, arity)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

func openMapped(f *os.File, arity int) (*MappedFile, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	count, err := readCount(io.NewSectionReader(f, 0, CountBytes))
	if err != nil {
		return nil, err
	}

	if arity <= 0 {
		if arity, err = InferArity(info.Size(), count); err != nil {
			return nil, err
		}
	} else if err := checkSize(info.Size(), count, arity); err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MappedFile{f: f, data: data, count: count, arity: arity}, nil
}

// Len is the number of records.
func (m *MappedFile) Len() int {
	return m.count
}

// Arity is the attribute block size.
func (m *MappedFile) Arity() int {
	return m.arity
}

// Record decodes record i.
func (m *MappedFile) Record(i int) (Record, error) {
	if i < 0 || i >= m.count {
		return Record{}, fmt.Errorf("record %d out of range [0, %d)", i, m.count)
	}

	size := RecordSize(m.arity)
	off := CountBytes + i*size

	var r Record
	if err := parse(m.data[off:off+size], &r, m.arity); err != nil {
		return Record{}, err
	}

	return r, nil
}

// Find returns the index of the record with the given id, relying on the
// ascending id order.
func (m *MappedFile) Find(id int32) (int, bool) {
	lo, hi := 0, m.count
	size := RecordSize(m.arity)

	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if int32(order.Uint32(m.data[CountBytes+mid*size:])) < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo < m.count && int32(order.Uint32(m.data[CountBytes+lo*size:])) == id {
		return lo, true
	}

	return lo, false
}

// Close unmaps and closes the file.
func (m *MappedFile) Close() error {
	return errors.Join(m.data.Unmap(), m.f.Close())
}

// Pack writes a zstd compressed copy of src to dst.
func Pack(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer func() {
		if cErr := out.Close(); err == nil {
			err = cErr
		}
	}()

	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}

	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()

		return fmt.Errorf("compressing %s: %w", src, err)
	}

	return zw.Close()
}

// Summary is the result of Verify.
type Summary struct {
	Records    int
	Arity      int
	Compressed bool
	MinID      int32
	MaxID      int32
	Outliers   int
	// Full counts records using every attribute slot, the only ones that may
	// have been truncated.
	Full int
}

// Verify decodes every record of path, checking ids ascend.
func Verify(path string, arity int) (*Summary, error) {
	f, err := Open(path, arity)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Summary{Records: f.Count(), Arity: f.Arity(), Compressed: f.Compressed}

	var rec Record

	for i := 0; ; i++ {
		err := f.next(&rec)
		if errors.Is(err, io.EOF) {
			return s, nil
		}

		if err != nil {
			return nil, err
		}

		if i > 0 && rec.ID <= s.MaxID {
			return nil, fmt.Errorf("%w: id %d after %d", ErrOutOfOrder, rec.ID, s.MaxID)
		}

		if i == 0 {
			s.MinID = rec.ID
		}

		s.MaxID = rec.ID

		if rec.SpatialCluster < 0 {
			s.Outliers++
		}

		if s.Arity > 0 && int(rec.AttributeCount) == s.Arity {
			s.Full++
		}
	}
}
