package coreml_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/katacoreml/coreml"
)

func tinyArchitecture() coreml.Architecture {
	return coreml.Architecture{
		Name:            "tiny",
		ModelVersion:    16,
		TrunkChannels:   4,
		MidChannels:     3,
		RegularChannels: 3,
		GPoolChannels:   2,
		P1Channels:      2,
		G1Channels:      2,
		PassChannels:    3,
		V1Channels:      2,
		V2Channels:      3,
		Activation:      coreml.Mish,
		Blocks:          []coreml.BlockSpec{{Kind: coreml.KindOrdinary}, {Kind: coreml.KindGlobalPooling}},
	}
}

func TestBuildAndInspect(t *testing.T) {
	m, err := coreml.FromArchitecture(tinyArchitecture(), coreml.ZeroWeights())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "tiny.mlpackage")
	res, err := coreml.Build(context.Background(), coreml.BuildOptions{
		Model:    m,
		Geometry: coreml.Geometry{Batch: 1, Width: 19, Height: 19},
		Output:   out,
		TempBase: t.TempDir(),
	})
	require.NoError(t, err)

	r, err := coreml.Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, res.Operations, r.Operations)
	assert.Equal(t, []int{1, 4, 19, 19}, r.Outputs[0].Shape)

	_, err = coreml.Build(context.Background(), coreml.BuildOptions{
		Model:    m,
		Geometry: coreml.Geometry{Batch: 1, Width: 19, Height: 19},
		Output:   out,
		TempBase: t.TempDir(),
	})
	assert.True(t, errors.Is(err, coreml.ErrPackageCollision))
}

func TestFromArchitectureUnsupportedVersion(t *testing.T) {
	a := tinyArchitecture()
	a.ModelVersion = 2
	_, err := coreml.FromArchitecture(a, coreml.ZeroWeights())
	assert.True(t, errors.Is(err, coreml.ErrUnsupportedVersion))
}

func TestLowerInconsistent(t *testing.T) {
	m, err := coreml.FromArchitecture(tinyArchitecture(), coreml.ZeroWeights())
	require.NoError(t, err)
	m.Trunk.TrunkNumChannels = 5

	cfg, err := coreml.NewLowerConfig(m, coreml.Geometry{Batch: 1, Width: 19, Height: 19}, 0)
	require.NoError(t, err)
	_, err = coreml.Lower(cfg, nil)

	var ie *coreml.InconsistencyError
	require.True(t, errors.As(err, &ie))
	assert.True(t, errors.Is(err, coreml.ErrInconsistent))
}
