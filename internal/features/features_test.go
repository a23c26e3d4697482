package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureTable(t *testing.T) {
	tests := []struct {
		version int
		spatial int
		global  int
	}{
		{3, 22, 14},
		{4, 22, 14},
		{5, 13, 12},
		{6, 22, 16},
		{7, 22, 19},
		{8, 22, 19},
		{10, 22, 19},
		{14, 22, 19},
		{16, 22, 19},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.spatial, SpatialFeatures(tt.version), "spatial v%d", tt.version)
		assert.Equal(t, tt.global, GlobalFeatures(tt.version), "global v%d", tt.version)
	}
}

func TestFeatureTable_AllSupportedPositive(t *testing.T) {
	for v := OldestModelVersion; v <= LatestModelVersion; v++ {
		assert.Positive(t, SpatialFeatures(v), "v%d", v)
		assert.Positive(t, GlobalFeatures(v), "v%d", v)
		assert.Positive(t, InputsVersion(v), "v%d", v)
	}
}

func TestFeatureTable_Unsupported(t *testing.T) {
	for _, v := range []int{-1, 0, 1, 2, 17, 100} {
		assert.Equal(t, -1, SpatialFeatures(v), "v%d", v)
		assert.Equal(t, -1, GlobalFeatures(v), "v%d", v)
		assert.Equal(t, -1, InputsVersion(v), "v%d", v)

		_, err := Resolve(v, 0)
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	}
}

func TestOutputChannels(t *testing.T) {
	policy := map[int]int{3: 1, 11: 1, 12: 2, 15: 2, 16: 4}
	for v, want := range policy {
		assert.Equal(t, want, PolicyChannels(v), "policy v%d", v)
	}

	scoreValue := map[int]int{3: 1, 4: 2, 7: 2, 8: 4, 9: 6, 16: 6}
	for v, want := range scoreValue {
		assert.Equal(t, want, ScoreValueChannels(v), "score value v%d", v)
	}
}

func TestMetaChannels(t *testing.T) {
	assert.Equal(t, 0, MetaChannels(0))
	assert.Equal(t, 192, MetaChannels(1))
	assert.Equal(t, -1, MetaChannels(2))

	_, err := Resolve(16, 2)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestModelIO_Version3(t *testing.T) {
	io, err := ModelIO(Geometry{Batch: 1, Width: 19, Height: 19}, 3, 0)
	require.NoError(t, err)

	require.Len(t, io.Inputs, 2)
	assert.Equal(t, Feature{Name: InputSpatialName, Shape: []int{1, 22, 19, 19}}, io.Inputs[0])
	assert.Equal(t, Feature{Name: InputGlobalName, Shape: []int{1, 14}}, io.Inputs[1])

	require.Len(t, io.Outputs, 5)
	assert.Equal(t, Feature{Name: OutputPolicyName, Shape: []int{1, 1, 19, 19}}, io.Outputs[0])
	assert.Equal(t, Feature{Name: OutputPolicyPassName, Shape: []int{1, 1}}, io.Outputs[1])
	assert.Equal(t, Feature{Name: OutputValueName, Shape: []int{1, 3}}, io.Outputs[2])
	assert.Equal(t, Feature{Name: OutputScoreValueName, Shape: []int{1, 1}}, io.Outputs[3])
	assert.Equal(t, Feature{Name: OutputOwnershipName, Shape: []int{1, 1, 19, 19}}, io.Outputs[4])
}

func TestModelIO_MetaInput(t *testing.T) {
	io, err := ModelIO(Geometry{Batch: 2, Width: 9, Height: 7}, 15, 1)
	require.NoError(t, err)

	require.Len(t, io.Inputs, 3)
	meta, ok := io.Input(InputMetaName)
	require.True(t, ok)
	assert.Equal(t, []int{2, 192}, meta.Shape)

	policy, ok := io.Output(OutputPolicyName)
	require.True(t, ok)
	assert.Equal(t, []int{2, 2, 7, 9}, policy.Shape)
}

func TestModelIO_Errors(t *testing.T) {
	_, err := ModelIO(Geometry{Batch: 1, Width: 19, Height: 19}, 2, 0)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ModelIO(Geometry{Batch: 0, Width: 19, Height: 19}, 8, 0)
	require.Error(t, err)
}

func TestNumElements(t *testing.T) {
	assert.Equal(t, 1, NumElements(nil))
	assert.Equal(t, 24, NumElements([]int{2, 3, 4}))
}
