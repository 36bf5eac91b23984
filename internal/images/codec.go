package images

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// extent is one recorded overlay write.
type extent struct {
	Offset int64  `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

// journal is the overlay blob: every write since the overlay was enabled,
// in arrival order. Later extents win where they overlap.
type journal struct {
	Extents []extent `cbor:"1,keyasint"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("images: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("images: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("images: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("images: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeJournal(j *journal) ([]byte, error) {
	data, err := cborEncMode.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode overlay journal: %w", err)
	}
	return data, nil
}

func decodeJournal(data []byte) (*journal, error) {
	var j journal
	if err := cborDecMode.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode overlay journal: %w", err)
	}
	return &j, nil
}

// merge returns base with every journal extent applied. The result grows to
// cover the furthest extent; gaps past the end of base read as zeroes.
// Extents that don't fit inside limit bytes are skipped.
func merge(base []byte, j *journal, limit int64) []byte {
	extents := make([]extent, 0, len(j.Extents))
	size := int64(len(base))
	for _, e := range j.Extents {
		n := int64(len(e.Data))
		if e.Offset < 0 || n > limit || e.Offset > limit-n {
			slog.Warn("Skipping overlay extent outside image bounds", "offset", e.Offset, "length", n, "limit", limit)
			continue
		}
		extents = append(extents, e)
		if end := e.Offset + n; end > size {
			size = end
		}
	}
	out := make([]byte, size)
	copy(out, base)
	for _, e := range extents {
		copy(out[e.Offset:], e.Data)
	}
	return out
}

func compressSnapshot(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompressSnapshot(compressed []byte, expectedSize int64) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, expectedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(out)) != expectedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), expectedSize)
	}
	return out, nil
}

// checksum is the hex BLAKE3-256 digest of data.
func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
