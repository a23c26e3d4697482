package blob

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// FloatSize is the size in bytes of one stored element.
const FloatSize = 4

// Writer appends float32 arrays to a blob file.
type Writer struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	offset uint64
	count  int
	err    error // first failure; the writer refuses further writes
	closed bool
}

// Create creates (or truncates) the blob file at path.
func Create(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from the build staging directory
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create blob file: %w", ErrStorage, err)
	}

	return &Writer{
		path: path,
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Path returns the blob file path.
func (w *Writer) Path() string {
	return w.path
}

// Write appends data and returns the byte offset at which it begins.
func (w *Writer) Write(data []float32) (uint64, error) {
	if w.closed {
		return 0, fmt.Errorf("%w: %w", ErrStorage, ErrWriterClosed)
	}
	if w.err != nil {
		return 0, w.err
	}

	offset := w.offset
	if len(data) == 0 {
		w.count++
		return offset, nil
	}
	if err := binary.Write(w.buf, binary.LittleEndian, data); err != nil {
		w.err = fmt.Errorf("%w: failed to write %d floats at offset %d: %w", ErrStorage, len(data), offset, err)
		return 0, w.err
	}

	w.offset += uint64(len(data)) * FloatSize
	w.count++
	return offset, nil
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() uint64 {
	return w.offset
}

// Count returns the number of arrays written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if w.err != nil {
		return w.err
	}
	if flushErr != nil {
		return fmt.Errorf("%w: failed to flush blob file: %w", ErrStorage, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: failed to close blob file: %w", ErrStorage, closeErr)
	}
	return nil
}
