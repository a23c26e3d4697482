package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// DType is a SafeTensors element type.
type DType string

// Element types that can be converted to float32.
const (
	F16  DType = "F16"
	F32  DType = "F32"
	F64  DType = "F64"
	BF16 DType = "BF16"
)

// Size returns the element size in bytes, or 0 for unsupported types.
func (d DType) Size() int {
	switch d {
	case F16, BF16:
		return 2
	case F32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

const maxHeaderSize = 100 * 1024 * 1024

// TensorInfo describes a tensor in a SafeTensors header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end]
}

// NumElements returns the product of the shape.
func (i TensorInfo) NumElements() int {
	n := 1
	for _, d := range i.Shape {
		n *= d
	}
	return n
}

// Header is the parsed JSON header of a SafeTensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits the "__metadata__" entry from the tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensors is a Source backed by a SafeTensors file.
type SafeTensors struct {
	file       *os.File
	header     Header
	dataOffset int64
	dataSize   int64
}

// OpenSafeTensors opens a SafeTensors file and parses its header.
func OpenSafeTensors(path string) (*SafeTensors, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for weight loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	st, err := readHeader(file)
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

func readHeader(file *os.File) (*SafeTensors, error) {
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxHeaderSize {
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: header size bounded above
	return &SafeTensors{
		file:       file,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   info.Size() - dataOffset,
	}, nil
}

// Close closes the file.
func (s *SafeTensors) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Metadata returns the header's "__metadata__" map.
func (s *SafeTensors) Metadata() map[string]string {
	return s.header.Metadata
}

// TensorInfo returns the header entry for a tensor.
func (s *SafeTensors) TensorInfo(name string) (TensorInfo, error) {
	info, ok := s.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return info, nil
}

// Len returns the number of tensors in the file.
func (s *SafeTensors) Len() int {
	return len(s.header.Tensors)
}

// Floats reads the named tensor as float32. The tensor must hold exactly
// n elements; its shape is otherwise ignored.
func (s *SafeTensors) Floats(name string, n int) ([]float32, error) {
	info, err := s.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if info.NumElements() != n {
		return nil, fmt.Errorf("%w: %s has shape %v, want %d elements", ErrSizeMismatch, name, info.Shape, n)
	}

	elemSize := info.DType.Size()
	if elemSize == 0 {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}

	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > s.dataSize || end-start != int64(n*elemSize) {
		return nil, fmt.Errorf("invalid data offsets for tensor %s: [%d, %d]", name, start, end)
	}

	raw := make([]byte, end-start)
	if _, err := s.file.ReadAt(raw, s.dataOffset+start); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}

	return decode(raw, info.DType, n), nil
}

func decode(raw []byte, dtype DType, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		switch dtype {
		case F32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		case F64:
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		case BF16:
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		case F16:
			out[i] = halfToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	}
	return out
}

// halfToFloat32 converts an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: normalize the mantissa.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
