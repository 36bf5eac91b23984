package images

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverlappingExtents(t *testing.T) {
	j := &journal{Extents: []extent{
		{Offset: 0, Data: []byte("xxxx")},
		{Offset: 2, Data: []byte("yy")},
		{Offset: 6, Data: []byte("z")},
	}}
	assert.Equal(t, []byte("xxyyefz"), merge([]byte("abcdef"), j, 16))
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := []byte("abc")
	merge(base, &journal{Extents: []extent{{Offset: 0, Data: []byte("X")}}}, 3)
	assert.Equal(t, []byte("abc"), base)
}

func TestMergeSkipsExtentsOutsideLimit(t *testing.T) {
	j := &journal{Extents: []extent{
		{Offset: math.MaxInt64 - 1, Data: []byte("xyz")},
		{Offset: -1, Data: []byte("x")},
		{Offset: 3, Data: []byte("toolong")},
		{Offset: 1, Data: []byte("B")},
	}}
	assert.Equal(t, []byte("aBcd"), merge([]byte("abcd"), j, 4))
}

func TestJournalEncodingIsDeterministic(t *testing.T) {
	j := &journal{Extents: []extent{{Offset: 4096, Data: []byte("sector")}}}
	a, err := encodeJournal(j)
	require.NoError(t, err)
	b, err := encodeJournal(j)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	decoded, err := decodeJournal(a)
	require.NoError(t, err)
	assert.Equal(t, j.Extents, decoded.Extents)

	_, err = decodeJournal([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestSnapshotCompression(t *testing.T) {
	data := bytes.Repeat([]byte("netboot "), 1024)
	compressed := compressSnapshot(data)
	assert.Less(t, len(compressed), len(data))

	out, err := decompressSnapshot(compressed, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = decompressSnapshot(compressed, int64(len(data))+1)
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	assert.Len(t, checksum(nil), 64)
	assert.NotEqual(t, checksum([]byte("a")), checksum([]byte("b")))
}
