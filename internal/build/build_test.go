package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/katacoreml/internal/blob"
	"github.com/born-ml/katacoreml/internal/config"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/mil"
	"github.com/born-ml/katacoreml/internal/mlpackage"
	"github.com/born-ml/katacoreml/internal/weights"
)

const buildFile = `
model "tiny" {
  version          = 8
  trunk_channels   = 4
  mid_channels     = 3
  regular_channels = 3
  gpool_channels   = 2
  p1_channels      = 2
  g1_channels      = 2
  v1_channels      = 2
  v2_channels      = 3
  activation       = "mish"

  block "ordinary" {}
  block "gpool" {}
}

build {
  board_x = 9
  board_y = 9
}
`

func tinyOptions(t *testing.T) Options {
	t.Helper()
	cfg, err := config.Parse([]byte(buildFile), "tiny.hcl", nil)
	require.NoError(t, err)
	opts, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	opts.Output = filepath.Join(dir, "tiny.mlpackage")
	opts.TempBase = t.TempDir()
	return opts
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunWritesPackage(t *testing.T) {
	opts := tinyOptions(t)

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "CoreML5", res.Opset)
	assert.Positive(t, res.BlobArrays)
	assert.Equal(t, res.Operations, sum(res.OpCounts))

	m, err := mlpackage.ReadManifest(opts.Output)
	require.NoError(t, err)
	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, RootItemName, items[0].Name)
	assert.Equal(t, WeightsItemName, items[1].Name)
	assert.Equal(t, config.DefaultAuthor, items[0].Author)

	data, err := os.ReadFile(mlpackage.ItemPath(opts.Output, items[0]))
	require.NoError(t, err)
	model, err := mil.Unmarshal(data)
	require.NoError(t, err)
	require.NoError(t, model.Validate())
	assert.Equal(t, res.OpCounts, model.OpCounts())
	assert.Equal(t, []int{1, 22, 9, 9}, model.Description.Inputs[0].Shape)

	blobPath := filepath.Join(mlpackage.ItemPath(opts.Output, items[1]), BlobFileName)
	info, err := os.Stat(blobPath)
	require.NoError(t, err)
	assert.Equal(t, int64(res.BlobBytes), info.Size())

	checksum, err := blob.Checksum(blobPath)
	require.NoError(t, err)
	user := model.Description.Metadata.UserDefined
	assert.Equal(t, checksum, user[MetaWeightsSHA256])
	assert.Equal(t, "tiny", user[MetaModelName])
	assert.Equal(t, "8", user[MetaModelVersion])
	assert.Equal(t, "9x9", user[MetaBoard])

	requireEmptyDir(t, opts.TempBase)
}

func TestRunInconsistentDescriptorLeavesNoArtifact(t *testing.T) {
	opts := tinyOptions(t)
	opts.Model.PolicyHead.P2Conv.InChannels = 7

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, desc.ErrInconsistent), "got %v", err)

	_, err = os.Stat(opts.Output)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	requireEmptyDir(t, opts.TempBase)
	requireEmptyDir(t, filepath.Dir(opts.Output))
}

func TestRunFailureKeepsPreviousPackage(t *testing.T) {
	opts := tinyOptions(t)
	opts.Overwrite = true
	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	before, err := mlpackage.ReadManifest(opts.Output)
	require.NoError(t, err)

	opts.Model.ValueHead.V3Bias.Weights = nil
	_, err = Run(context.Background(), opts)
	require.Error(t, err)

	after, err := mlpackage.ReadManifest(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	requireEmptyDir(t, opts.TempBase)
}

func TestRunCollision(t *testing.T) {
	opts := tinyOptions(t)
	require.NoError(t, os.Mkdir(opts.Output, 0o750))

	_, err := Run(context.Background(), opts)
	assert.True(t, errors.Is(err, mlpackage.ErrCollision))
	requireEmptyDir(t, opts.Output)
	requireEmptyDir(t, opts.TempBase)
}

func TestRunCanceled(t *testing.T) {
	opts := tinyOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, opts)
	assert.True(t, errors.Is(err, context.Canceled))
	_, err = os.Stat(opts.Output)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	requireEmptyDir(t, opts.TempBase)
}

func TestRunUnsupportedSpecificationVersion(t *testing.T) {
	opts := tinyOptions(t)
	opts.SpecificationVersion = 5

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	requireEmptyDir(t, opts.TempBase)
}

func TestFromConfigWithWeights(t *testing.T) {
	cfg, err := config.Parse([]byte(buildFile), "tiny.hcl", nil)
	require.NoError(t, err)

	// Record every weight name the architecture needs and write them out
	// with recognizable values.
	rec := weights.NewRecorder(weights.Zeros{})
	_, err = desc.FromArchitecture(cfg.Model, rec)
	require.NoError(t, err)

	tensors := make(map[string]weights.Tensor, len(rec.Seen))
	for name, data := range rec.Seen {
		filled := make([]float32, len(data))
		for i := range filled {
			filled[i] = 0.5
		}
		tensors[name] = weights.Tensor{Shape: []int{len(data)}, Data: filled}
	}
	path := filepath.Join(t.TempDir(), "tiny.safetensors")
	require.NoError(t, weights.WriteSafeTensors(path, tensors, nil))

	cfg.Build.Weights = path
	opts, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), opts.Model.Trunk.InitialConv.Weights[0])
	assert.Equal(t, features.Geometry{Batch: 1, Width: 9, Height: 9}, opts.Geometry)

	cfg.Build.Weights = filepath.Join(t.TempDir(), "missing.safetensors")
	_, err = FromConfig(context.Background(), cfg)
	assert.Error(t, err)
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
