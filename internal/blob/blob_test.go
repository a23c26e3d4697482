package blob

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weight.bin")
	w, err := Create(path)
	require.NoError(t, err)

	a := []float32{1, 2, 3}
	b := []float32{4, 5}
	c := []float32{6, 7, 8, 9}

	offA, err := w.Write(a)
	require.NoError(t, err)
	offB, err := w.Write(b)
	require.NoError(t, err)
	offC, err := w.Write(c)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), offA)
	assert.Equal(t, uint64(4*len(a)), offB)
	assert.Equal(t, uint64(4*(len(a)+len(b))), offC)
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, uint64(4*9), w.Size())
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(36), info.Size())

	regions := []Region{
		{Name: "a", Offset: offA, Size: 12},
		{Name: "b", Offset: offB, Size: 8},
		{Name: "c", Offset: offC, Size: 16},
	}
	assert.NoError(t, ValidateRegions(regions, info.Size()))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadAt(offB, len(b))
	require.NoError(t, err)
	assert.Equal(t, b, got)

	got, err = r.ReadAt(offC, len(c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestWriterEmptyArray(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "weight.bin"))
	require.NoError(t, err)

	off, err := w.Write(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)

	off, err = w.Write([]float32{1})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)
	require.NoError(t, w.Close())
}

func TestWriterClosed(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "weight.bin"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]float32{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, ErrWriterClosed))
}

func TestCreateFailure(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "weight.bin"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestValidateRegions(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
		size    int64
		want    error
	}{
		{
			name:    "overlap",
			regions: []Region{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 4, Size: 8}},
			size:    16,
			want:    ErrOffsetOverlap,
		},
		{
			name:    "out of bounds",
			regions: []Region{{Name: "a", Offset: 8, Size: 16}},
			size:    16,
			want:    ErrOutOfBounds,
		},
		{
			name:    "misaligned",
			regions: []Region{{Name: "a", Offset: 2, Size: 4}},
			size:    16,
			want:    ErrMisaligned,
		},
		{
			name:    "unsorted input",
			regions: []Region{{Name: "b", Offset: 8, Size: 8}, {Name: "a", Offset: 0, Size: 8}},
			size:    16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegions(tt.regions, tt.size)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestReadAtOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weight.bin")
	w, err := Create(path)
	require.NoError(t, err)
	_, err = w.Write([]float32{1, 2})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadAt(4, 2)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestChecksumStable(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) string {
		path := filepath.Join(dir, name)
		w, err := Create(path)
		require.NoError(t, err)
		_, err = w.Write([]float32{0.5, -1, 3})
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return path
	}

	sumA, err := Checksum(write("a.bin"))
	require.NoError(t, err)
	sumB, err := Checksum(write("b.bin"))
	require.NoError(t, err)

	assert.Len(t, sumA, 64)
	assert.Equal(t, sumA, sumB)
}
