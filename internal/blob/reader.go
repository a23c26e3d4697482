package blob

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Reader reads float32 arrays back from a blob file.
type Reader struct {
	file *os.File
	size int64
}

// Open opens a blob file for reading.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for inspection
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open blob file: %w", ErrStorage, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("%w: failed to stat blob file: %w", ErrStorage, err)
	}

	return &Reader{file: file, size: info.Size()}, nil
}

// Size returns the blob file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// ReadAt reads n floats starting at byte offset.
func (r *Reader) ReadAt(offset uint64, n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative element count %d", n)
	}
	if err := ValidateRegions([]Region{{Name: "read", Offset: offset, Size: uint64(n) * FloatSize}}, r.size); err != nil {
		return nil, err
	}

	raw := make([]byte, n*FloatSize)
	//nolint:gosec // G115: offset validated against file size above
	if _, err := r.file.ReadAt(raw, int64(offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to read %d floats at offset %d: %w", ErrStorage, n, offset, err)
	}

	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*FloatSize:]))
	}
	return out, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
