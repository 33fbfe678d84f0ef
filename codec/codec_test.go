// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/geocluster/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) * 1.5
	}

	return out
}

func record(id int32, attrs []float64) Record {
	p := dataset.NewPoint(id, 40.7+float64(id)/1000, -73.9-float64(id)/1000, attrs)
	p.SpatialCluster, p.SubCluster = id%3, id%2

	if id%5 == 0 {
		p.SpatialCluster = dataset.OutlierCluster
	}

	return FromPoint(&p)
}

func encodeFile(t *testing.T, arity int, recs ...Record) (string, int64) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "points.bin")

	f, err := os.Create(path)
	require.NoError(t, err)

	defer f.Close()

	enc, err := NewEncoder(f, arity)
	require.NoError(t, err)

	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}

	require.NoError(t, enc.Close())
	assert.Equal(t, int64(len(recs)), enc.Count())

	return path, enc.Truncated()
}

func TestRecordSize(t *testing.T) {
	assert.Equal(t, 128, RecordSize(DefaultArity))
	assert.Equal(t, int64(4+3*128), FileSize(3, DefaultArity))
}

func TestRoundTripPadding(t *testing.T) {
	path, truncated := encodeFile(t, DefaultArity, record(1, seq(9)))
	assert.Zero(t, truncated)

	f, err := Open(path, 0)
	require.NoError(t, err)

	defer f.Close()

	assert.Equal(t, DefaultArity, f.Arity())

	rec, err := f.Next()
	require.NoError(t, err)

	assert.Equal(t, int32(9), rec.AttributeCount)
	assert.Equal(t, seq(9), rec.Values())
	assert.Equal(t, append(seq(9), 0, 0, 0), rec.Attributes)

	_, err = f.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRoundTripTruncation(t *testing.T) {
	path, truncated := encodeFile(t, DefaultArity, record(1, seq(15)), record(2, seq(3)))
	assert.Equal(t, int64(1), truncated)

	f, err := Open(path, DefaultArity)
	require.NoError(t, err)

	defer f.Close()

	rec, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(DefaultArity), rec.AttributeCount)
	assert.Equal(t, seq(15)[:DefaultArity], rec.Values())
}

func TestRoundTrip(t *testing.T) {
	var recs []Record
	for id := int32(-3); id < 40; id++ {
		recs = append(recs, record(id, seq(int(id+3)%6)))
	}

	path, _ := encodeFile(t, 4, recs...)

	f, err := Open(path, 4)
	require.NoError(t, err)

	defer f.Close()

	assert.Equal(t, len(recs), f.Count())

	var got []Record

	for {
		chunk, err := f.NextChunk(7)
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunk), 7)
		got = append(got, chunk...)
	}

	require.Len(t, got, len(recs))

	for i, r := range recs {
		g := got[i]
		assert.Equal(t, r.ID, g.ID)
		assert.Equal(t, r.Lat, g.Lat)
		assert.Equal(t, r.Lng, g.Lng)
		assert.Equal(t, r.SpatialCluster, g.SpatialCluster)
		assert.Equal(t, r.SubCluster, g.SubCluster)

		want := r.Attributes[:min(len(r.Attributes), 4)]
		if diff := cmp.Diff(want, g.Values()); diff != "" {
			t.Errorf("record %d attributes (-want +got):\n%s", r.ID, diff)
		}
	}
}

func TestEncoderRejectsOutOfOrder(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "points.bin"))
	require.NoError(t, err)

	defer f.Close()

	enc, err := NewEncoder(f, 2)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(record(5, nil)))

	assert.ErrorIs(t, enc.Encode(record(5, nil)), ErrOutOfOrder)
	assert.ErrorIs(t, enc.Encode(record(4, nil)), ErrOutOfOrder)
	require.NoError(t, enc.Encode(record(6, nil)))
	require.NoError(t, enc.Close())
	assert.Equal(t, int64(2), enc.Count())
}

func TestEncoderPatchesCountMidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.bin")

	f, err := os.Create(path)
	require.NoError(t, err)

	// A stream does not need to start at offset 0.
	_, err = f.Write([]byte("prefix"))
	require.NoError(t, err)

	enc, err := NewEncoder(f, 1)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(record(1, seq(1))))
	require.NoError(t, enc.Encode(record(2, seq(1))))
	require.NoError(t, enc.Close())

	_, err = f.Write([]byte("suffix"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "prefix", string(data[:6]))
	assert.Equal(t, []byte{2, 0, 0, 0}, data[6:10])
	assert.Equal(t, "suffix", string(data[len(data)-6:]))
}

func TestOpenShortFile(t *testing.T) {
	path, _ := encodeFile(t, DefaultArity, record(1, nil), record(2, nil), record(3, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name  string
		data  []byte
		arity int
		want  error
	}{
		{name: "missing last byte", data: data[:len(data)-1], arity: DefaultArity, want: ErrShortFile},
		{name: "missing last record", data: data[:len(data)-128], arity: DefaultArity, want: ErrShortFile},
		{name: "only the count", data: data[:4], arity: DefaultArity, want: ErrShortFile},
		{name: "empty", data: nil, arity: DefaultArity, want: ErrShortFile},
		{name: "trailing garbage", data: append(append([]byte{}, data...), 1, 2), arity: DefaultArity, want: ErrCorrupt},
		{name: "wrong arity", data: data, arity: 4, want: ErrCorrupt},
		{name: "inferred arity of a cut file", data: data[:len(data)-1], arity: 0, want: ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "cut.bin")
			require.NoError(t, os.WriteFile(p, tt.data, 0o600))

			_, err := Open(p, tt.arity)
			assert.ErrorIs(t, err, tt.want)

			_, err = OpenMapped(p, tt.arity)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNextChunkNonPositiveSize(t *testing.T) {
	path, _ := encodeFile(t, 2, record(1, nil), record(2, nil), record(3, nil))

	for _, size := range []int{0, -5} {
		f, err := Open(path, 2)
		require.NoError(t, err)

		var ids []int32

		for range 10 {
			chunk, err := f.NextChunk(size)
			if errors.Is(err, io.EOF) {
				break
			}

			require.NoError(t, err)
			require.Len(t, chunk, 1, "size=%d", size)
			ids = append(ids, chunk[0].ID)
		}

		assert.Equal(t, []int32{1, 2, 3}, ids, "size=%d", size)
		require.NoError(t, f.Close())
	}
}

func TestDecoderStreamShort(t *testing.T) {
	path, _ := encodeFile(t, 2, record(1, nil), record(2, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	// Streams cannot be sized up front, so the short record surfaces on read.
	d, err := NewDecoder(io.LimitReader(f, int64(len(data)-3)), 2)
	require.NoError(t, err)

	_, err = d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrShortFile)

	_, err = DecodeAll(io.LimitReader(f, 0), 2)
	assert.ErrorIs(t, err, ErrShortFile)
}

func TestDecoderCorruptAttributeCount(t *testing.T) {
	path, _ := encodeFile(t, 2, record(1, seq(2)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[CountBytes+28] = 9
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := Open(path, 2)
	require.NoError(t, err)

	defer f.Close()

	_, err = f.Next()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMappedFile(t *testing.T) {
	var recs []Record
	for id := int32(10); id < 60; id += 2 {
		recs = append(recs, record(id, seq(3)))
	}

	path, _ := encodeFile(t, 3, recs...)

	m, err := OpenMapped(path, 0)
	require.NoError(t, err)

	defer m.Close()

	assert.Equal(t, len(recs), m.Len())
	assert.Equal(t, 3, m.Arity())

	rec, err := m.Record(7)
	require.NoError(t, err)
	assert.Equal(t, recs[7].ID, rec.ID)
	assert.Equal(t, seq(3), rec.Values())

	_, err = m.Record(len(recs))
	assert.Error(t, err)

	i, ok := m.Find(30)
	assert.True(t, ok)
	assert.Equal(t, 10, i)

	i, ok = m.Find(31)
	assert.False(t, ok)
	assert.Equal(t, 11, i)
}

func TestInferArity(t *testing.T) {
	arity, err := InferArity(FileSize(10, 12), 10)
	require.NoError(t, err)
	assert.Equal(t, 12, arity)

	arity, err = InferArity(FileSize(3, 0), 3)
	require.NoError(t, err)
	assert.Zero(t, arity)

	_, err = InferArity(4, 0)
	assert.ErrorIs(t, err, ErrArity)

	_, err = InferArity(2, 0)
	assert.ErrorIs(t, err, ErrShortFile)

	_, err = InferArity(4+32*5, 10)
	assert.ErrorIs(t, err, ErrShortFile)
}

func TestPack(t *testing.T) {
	var recs []Record
	for id := range int32(500) {
		recs = append(recs, record(id, seq(5)))
	}

	path, _ := encodeFile(t, 6, recs...)
	packed := path + ".zst"

	require.NoError(t, Pack(path, packed))

	plain, err := os.Stat(path)
	require.NoError(t, err)

	small, err := os.Stat(packed)
	require.NoError(t, err)
	assert.Less(t, small.Size(), plain.Size())

	_, err = Open(packed, 0)
	assert.ErrorIs(t, err, ErrArity)

	s, err := Verify(packed, 6)
	require.NoError(t, err)
	assert.True(t, s.Compressed)
	assert.Equal(t, 500, s.Records)
	assert.Equal(t, int32(0), s.MinID)
	assert.Equal(t, int32(499), s.MaxID)
	assert.Equal(t, 100, s.Outliers)
	assert.Zero(t, s.Full)
}

func TestVerify(t *testing.T) {
	path, _ := encodeFile(t, 2, record(1, seq(2)), record(5, seq(4)), record(9, seq(1)))

	s, err := Verify(path, 0)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Records: 3, Arity: 2, MinID: 1, MaxID: 9, Outliers: 1, Full: 2}, s)
}
