package weights

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors.
var (
	ErrNotFound     = errors.New("weight tensor not found")
	ErrSizeMismatch = errors.New("weight tensor size mismatch")
)

// Source provides float32 weight arrays by name.
type Source interface {
	// Floats returns exactly n values for the named tensor.
	Floats(name string, n int) ([]float32, error)
}

// Zeros is a Source returning zero-filled placeholder arrays.
type Zeros struct{}

// Floats returns n zeros.
func (Zeros) Floats(_ string, n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative element count %d", ErrSizeMismatch, n)
	}
	return make([]float32, n), nil
}

// Map is an in-memory Source.
type Map map[string][]float32

// Floats returns the named array, which must hold exactly n values.
func (m Map) Floats(name string, n int) ([]float32, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrSizeMismatch, name, len(data), n)
	}
	return data, nil
}

// Names returns the tensor names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recorder wraps a Source and remembers every array it served, keyed by
// name. The captured map can be written back out with WriteSafeTensors.
type Recorder struct {
	Source Source
	Seen   Map
}

// NewRecorder wraps src.
func NewRecorder(src Source) *Recorder {
	return &Recorder{Source: src, Seen: make(Map)}
}

// Floats forwards to the wrapped source and records the result.
func (r *Recorder) Floats(name string, n int) ([]float32, error) {
	data, err := r.Source.Floats(name, n)
	if err != nil {
		return nil, err
	}
	r.Seen[name] = data
	return data, nil
}
