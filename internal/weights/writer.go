package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Tensor is a float32 array with a shape, as written to a SafeTensors file.
type Tensor struct {
	Shape []int
	Data  []float32
}

// WriteSafeTensors writes float32 tensors to path. Tensors are laid out in
// alphabetical order by name.
func WriteSafeTensors(path string, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]interface{}, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var offset int64
	for _, name := range names {
		t := tensors[name]
		info := TensorInfo{DType: F32, Shape: t.Shape, DataOffsets: [2]int64{offset, offset + int64(len(t.Data))*4}}
		if info.NumElements() != len(t.Data) {
			return fmt.Errorf("%w: tensor %s has shape %v but %d values", ErrSizeMismatch, name, t.Shape, len(t.Data))
		}
		header[name] = info
		offset = info.DataOffsets[1]
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for weight export
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := writeBody(file, headerJSON, names, tensors); err != nil {
		_ = file.Close() // Best effort close on error
		return err
	}
	return file.Close()
}

func writeBody(file *os.File, headerJSON []byte, names []string, tensors map[string]Tensor) error {
	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if err := binary.Write(file, binary.LittleEndian, tensors[name].Data); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}
