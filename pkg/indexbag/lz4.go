package indexbag

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrCorruptColumn is returned when a compressed column cannot be restored.
var ErrCorruptColumn = errors.New("indexbag: corrupt compressed column")

const (
	uint32ByteSize = 4
	uint64ByteSize = 8

	// Column encodings, stored in the first byte.
	columnRaw byte = 0
	columnLZ4 byte = 1
)

// CompressUint32Slice compresses a slice of uint32-s with LZ4.
func CompressUint32Slice(data []uint32) []byte {
	buf := make([]byte, len(data)*uint32ByteSize)
	for idx, val := range data {
		binary.LittleEndian.PutUint32(buf[idx*uint32ByteSize:], val)
	}

	return compressColumn(buf)
}

// DecompressUint32Slice restores a slice compressed by CompressUint32Slice.
// result must be preallocated with the original length.
func DecompressUint32Slice(data []byte, result []uint32) error {
	buf := make([]byte, len(result)*uint32ByteSize)

	err := decompressColumn(data, buf)
	if err != nil {
		return err
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint32(buf[idx*uint32ByteSize:])
	}

	return nil
}

// CompressUint64Slice compresses a slice of uint64-s with LZ4.
func CompressUint64Slice(data []uint64) []byte {
	buf := make([]byte, len(data)*uint64ByteSize)
	for idx, val := range data {
		binary.LittleEndian.PutUint64(buf[idx*uint64ByteSize:], val)
	}

	return compressColumn(buf)
}

// DecompressUint64Slice restores a slice compressed by CompressUint64Slice.
// result must be preallocated with the original length.
func DecompressUint64Slice(data []byte, result []uint64) error {
	buf := make([]byte, len(result)*uint64ByteSize)

	err := decompressColumn(data, buf)
	if err != nil {
		return err
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint64(buf[idx*uint64ByteSize:])
	}

	return nil
}

// compressColumn prefixes the block with its encoding; LZ4 reports 0 bytes
// written for incompressible input, which is then stored raw.
func compressColumn(raw []byte) []byte {
	compressed := make([]byte, 1+lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, compressed[1:], nil)
	if err != nil || written == 0 {
		stored := make([]byte, 1+len(raw))
		stored[0] = columnRaw
		copy(stored[1:], raw)

		return stored
	}

	compressed[0] = columnLZ4

	return compressed[:1+written]
}

func decompressColumn(data, result []byte) error {
	if len(data) == 0 {
		if len(result) == 0 {
			return nil
		}

		return fmt.Errorf("%w: empty block for %d bytes", ErrCorruptColumn, len(result))
	}

	switch data[0] {
	case columnRaw:
		if len(data)-1 != len(result) {
			return fmt.Errorf("%w: raw block has %d bytes instead of %d", ErrCorruptColumn, len(data)-1, len(result))
		}

		copy(result, data[1:])

		return nil
	case columnLZ4:
		read, err := lz4.UncompressBlock(data[1:], result)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptColumn, err)
		}

		if read != len(result) {
			return fmt.Errorf("%w: %d bytes restored instead of %d", ErrCorruptColumn, read, len(result))
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown encoding %d", ErrCorruptColumn, data[0])
	}
}
