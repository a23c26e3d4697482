package lower

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/katacoreml/internal/blob"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/mil"
	"github.com/born-ml/katacoreml/internal/weights"
)

var board19 = features.Geometry{Batch: 1, Width: 19, Height: 19}

// memSink is an in-memory BlobSink that records every write.
type memSink struct {
	size    uint64
	offsets []uint64
	lengths []int
	failAt  int // 1-based write index that fails; 0 never fails
}

var errSinkFull = errors.New("sink full")

func (s *memSink) Write(data []float32) (uint64, error) {
	if s.failAt > 0 && len(s.offsets)+1 == s.failAt {
		return 0, errSinkFull
	}
	off := s.size
	s.offsets = append(s.offsets, off)
	s.lengths = append(s.lengths, len(data))
	s.size += uint64(len(data)) * 4
	return off, nil
}

func arch(version, metaVersion int, act desc.ActivationKind) desc.Architecture {
	return desc.Architecture{
		Name:               "tiny",
		ModelVersion:       version,
		MetaEncoderVersion: metaVersion,
		TrunkChannels:      4,
		MidChannels:        3,
		RegularChannels:    3,
		GPoolChannels:      2,
		MetaHiddenChannels: 5,
		P1Channels:         2,
		G1Channels:         2,
		PassChannels:       3,
		V1Channels:         2,
		V2Channels:         3,
		Activation:         act,
		Blocks: []desc.BlockSpec{
			{Kind: desc.KindOrdinary},
			{Kind: desc.KindGlobalPooling},
			{Kind: desc.KindNestedBottleneck, Blocks: []desc.BlockSpec{{Kind: desc.KindOrdinary}, {Kind: desc.KindGlobalPooling}}},
		},
	}
}

func tinyModel(t *testing.T, version, metaVersion int, act desc.ActivationKind) *desc.Model {
	t.Helper()
	m, err := desc.FromArchitecture(arch(version, metaVersion, act), weights.Zeros{})
	require.NoError(t, err)
	return m
}

func lowerTiny(t *testing.T, m *desc.Model, sink BlobSink) *mil.Model {
	t.Helper()
	cfg, err := NewConfig(m, board19, 0)
	require.NoError(t, err)
	model, err := Lower(cfg, sink)
	require.NoError(t, err)
	return model
}

func TestLowerWellFormed(t *testing.T) {
	for _, version := range []int{3, 8, 14, 15} {
		m := tinyModel(t, version, 0, desc.Mish)
		model := lowerTiny(t, m, &memSink{})

		fn := model.Program.Main()
		require.NotNil(t, fn)
		assert.Equal(t, "CoreML5", fn.Opset)
		require.NoError(t, fn.Block().Validate(fn.Inputs), "version %d", version)
		require.NoError(t, model.Validate())

		assert.Equal(t, []string{
			features.OutputPolicyName,
			features.OutputPolicyPassName,
			features.OutputValueName,
			features.OutputScoreValueName,
			features.OutputOwnershipName,
		}, fn.Block().Outputs)
	}
}

func TestLowerModelIOVersion3(t *testing.T) {
	model := lowerTiny(t, tinyModel(t, 3, 0, desc.ReLU), &memSink{})

	d := model.Description
	require.Len(t, d.Inputs, 2)
	assert.Equal(t, features.InputSpatialName, d.Inputs[0].Name)
	assert.Equal(t, []int{1, 22, 19, 19}, d.Inputs[0].Shape)
	assert.Equal(t, features.InputGlobalName, d.Inputs[1].Name)
	assert.Equal(t, []int{1, 14}, d.Inputs[1].Shape)

	require.Len(t, d.Outputs, 5)
	assert.Equal(t, []int{1, 1, 19, 19}, d.Outputs[0].Shape)
	assert.Equal(t, []int{1, 1}, d.Outputs[1].Shape)
	assert.Equal(t, []int{1, 3}, d.Outputs[2].Shape)
	assert.Equal(t, []int{1, 1}, d.Outputs[3].Shape)
	assert.Equal(t, []int{1, 1, 19, 19}, d.Outputs[4].Shape)
	for _, f := range append(d.Inputs, d.Outputs...) {
		assert.NotEmpty(t, f.Description, f.Name)
	}
}

func TestLowerDeterministic(t *testing.T) {
	m := tinyModel(t, 8, 0, desc.Mish)

	a, err := mil.Marshal(lowerTiny(t, m, &memSink{}))
	require.NoError(t, err)
	b, err := mil.Marshal(lowerTiny(t, m, &memSink{}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLowerBlobOffsets(t *testing.T) {
	sink := &memSink{}
	model := lowerTiny(t, tinyModel(t, 8, 0, desc.Mish), sink)

	require.NotEmpty(t, sink.offsets)
	assert.Equal(t, uint64(0), sink.offsets[0])
	for i := 1; i < len(sink.offsets); i++ {
		assert.Equal(t, sink.offsets[i-1]+uint64(4*sink.lengths[i-1]), sink.offsets[i])
	}

	written := make(map[uint64]bool, len(sink.offsets))
	for _, off := range sink.offsets {
		written[off] = true
	}
	blobs := 0
	for _, op := range model.Program.Main().Block().Operations {
		if op.Type != "const" {
			continue
		}
		val := op.Attributes["val"]
		if val.Blob == nil {
			continue
		}
		blobs++
		assert.Equal(t, DefaultBlobFile, val.Blob.FileName)
		assert.True(t, written[val.Blob.Offset], "%s at %d", op.Name(), val.Blob.Offset)
	}
	assert.Equal(t, len(sink.offsets), blobs)
}

func TestLowerIntoBlobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weight.bin")
	w, err := blob.Create(path)
	require.NoError(t, err)

	model := lowerTiny(t, tinyModel(t, 15, 0, desc.Mish), w)
	require.NoError(t, w.Close())

	var regions []blob.Region
	for _, op := range model.Program.Main().Block().Operations {
		val, ok := op.Attributes["val"]
		if op.Type != "const" || !ok || val.Blob == nil {
			continue
		}
		regions = append(regions, blob.Region{
			Name:   op.Name(),
			Offset: val.Blob.Offset,
			Size:   uint64(val.Type.NumElements()) * blob.FloatSize,
		})
	}
	require.NotEmpty(t, regions)
	assert.NoError(t, blob.ValidateRegions(regions, int64(w.Size())))
}

func TestLowerFailsBeforeWriting(t *testing.T) {
	m := tinyModel(t, 8, 0, desc.Mish)
	m.Trunk.Blocks[0].(*desc.ResidualBlock).FinalConv.OutChannels = 5

	cfg, err := NewConfig(m, board19, 0)
	require.NoError(t, err)

	sink := &memSink{}
	_, err = Lower(cfg, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, desc.ErrInconsistent))
	assert.Empty(t, sink.offsets)
}

func TestLowerRejectsMismatchedIO(t *testing.T) {
	m := tinyModel(t, 8, 0, desc.Mish)
	cfg, err := NewConfig(m, board19, 0)
	require.NoError(t, err)

	cfg.Geometry = features.Geometry{Batch: 1, Width: 9, Height: 9}
	sink := &memSink{}
	_, err = Lower(cfg, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, desc.ErrInconsistent))
	assert.Empty(t, sink.offsets)
}

func TestLowerRejectsOpsetMismatch(t *testing.T) {
	cfg, err := NewConfig(tinyModel(t, 8, 0, desc.Mish), board19, mil.SpecificationVersionIOS17)
	require.NoError(t, err)
	assert.Equal(t, "CoreML7", cfg.Opset)

	cfg.Opset = "CoreML5"
	_, err = Lower(cfg, &memSink{})
	assert.True(t, errors.Is(err, mil.ErrMalformed))
}

func TestLowerSinkFailure(t *testing.T) {
	cfg, err := NewConfig(tinyModel(t, 8, 0, desc.Mish), board19, 0)
	require.NoError(t, err)

	_, err = Lower(cfg, &memSink{failAt: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSinkFull))
}

func TestLowerActivations(t *testing.T) {
	mish := lowerTiny(t, tinyModel(t, 8, 0, desc.Mish), &memSink{}).OpCounts()
	assert.Positive(t, mish["softplus"])
	assert.Equal(t, mish["softplus"], mish["tanh"])
	assert.Zero(t, mish["relu"])

	relu := lowerTiny(t, tinyModel(t, 8, 0, desc.ReLU), &memSink{}).OpCounts()
	assert.Equal(t, mish["softplus"], relu["relu"])
	assert.Zero(t, relu["softplus"])

	identity := lowerTiny(t, tinyModel(t, 8, 0, desc.Identity), &memSink{}).OpCounts()
	assert.Zero(t, identity["relu"])
	assert.Zero(t, identity["softplus"])
	assert.Equal(t, relu["conv"], identity["conv"])
}

func TestLowerBlockStructure(t *testing.T) {
	model := lowerTiny(t, tinyModel(t, 8, 0, desc.ReLU), &memSink{})
	counts := model.OpCounts()

	// 5 residual blocks, each with 2 convs; gpool blocks add one more.
	// Trunk, policy and value heads add 1, 3 and 2.
	assert.Equal(t, 5*2+2+1+3+2, counts["conv"])
	// One skip add per block, bias injections for global input, two gpool
	// blocks and the policy head, plus v2/v3/sv3 biases.
	assert.Equal(t, 5+1+2+1+3, counts["add"])
	assert.Equal(t, 4, counts["reshape"])
	assert.Equal(t, 4, counts["concat"])
	assert.Equal(t, 3, counts["reduce_max"])
	assert.Equal(t, 4, counts["reduce_mean"])
	assert.Equal(t, 5, counts["identity"])

	names := make(map[string]bool)
	for _, op := range model.Program.Main().Block().Operations {
		for _, out := range op.Outputs {
			names[out.Name] = true
		}
	}
	assert.True(t, names["trunk_block3_block2"])
	assert.True(t, names["trunk_block2_gpool_to_bias_mul_weight"])
	assert.True(t, names["policy_head_p2_conv_pad"])
}

func TestLowerMetadataEncoder(t *testing.T) {
	model := lowerTiny(t, tinyModel(t, 16, 1, desc.Mish), &memSink{})

	fn := model.Program.Main()
	require.Len(t, fn.Inputs, 3)
	assert.Equal(t, features.InputMetaName, fn.Inputs[2].Name)
	assert.Equal(t, mil.Tensor(mil.Float32, 1, features.NumMetaChannelsV1), fn.Inputs[2].Type)
	assert.Equal(t, []int{1, 4, 19, 19}, model.Description.Outputs[0].Shape)

	_, ok := lookup(model, "trunk_metadata_bias")
	assert.True(t, ok)
}

func TestLowerPassHidden(t *testing.T) {
	plain := lowerTiny(t, tinyModel(t, 14, 0, desc.ReLU), &memSink{})
	_, ok := lookup(plain, "policy_head_gpool_to_pass_mul2")
	assert.False(t, ok)

	hidden := lowerTiny(t, tinyModel(t, 15, 0, desc.ReLU), &memSink{})
	op, ok := lookup(hidden, "policy_head_gpool_to_pass_mul2")
	require.True(t, ok)
	assert.Equal(t, "matmul", op.Type)
	assert.Equal(t, mil.Tensor(mil.Float32, 1, 2), op.Outputs[0].Type)
}

func TestLowerGlobalPoolScale(t *testing.T) {
	model := lowerTiny(t, tinyModel(t, 8, 0, desc.ReLU), &memSink{})

	op, ok := lookup(model, "policy_head_g1_pool_scaled_mean_factor")
	require.True(t, ok)
	assert.InDelta(t, 0.5, op.Attributes["val"].Immediate.Floats[0], 1e-6)

	op, ok = lookup(model, "value_head_v1_pool_quadratic_factor")
	require.True(t, ok)
	assert.InDelta(t, 0.15, op.Attributes["val"].Immediate.Floats[0], 1e-6)

	op, ok = lookup(model, "trunk_initial_conv_pad")
	require.True(t, ok)
	assert.Equal(t, []int32{2, 2, 2, 2}, op.Attributes["val"].Immediate.Ints)
}

func TestLowerRoundTrip(t *testing.T) {
	model := lowerTiny(t, tinyModel(t, 16, 1, desc.Mish), &memSink{})

	data, err := mil.Marshal(model)
	require.NoError(t, err)
	back, err := mil.Unmarshal(data)
	require.NoError(t, err)
	require.NoError(t, back.Validate())
	assert.Equal(t, model.OpCounts(), back.OpCounts())

	again, err := mil.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func lookup(m *mil.Model, name string) (*mil.Operation, bool) {
	for _, op := range m.Program.Main().Block().Operations {
		for _, out := range op.Outputs {
			if out.Name == name {
				return op, true
			}
		}
	}
	return nil, false
}
