package desc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/weights"
)

func testArch(version, metaVersion int) Architecture {
	return Architecture{
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
		Activation:         Mish,
		Blocks: []BlockSpec{
			{Kind: KindOrdinary},
			{Kind: KindGlobalPooling},
			{Kind: KindNestedBottleneck, Blocks: []BlockSpec{{Kind: KindOrdinary}, {Kind: KindGlobalPooling}}},
		},
	}
}

func build(t *testing.T, version, metaVersion int) *Model {
	t.Helper()
	m, err := FromArchitecture(testArch(version, metaVersion), weights.Zeros{})
	require.NoError(t, err)
	return m
}

func requireInconsistentAt(t *testing.T, err error, path string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)
	var ie *InconsistencyError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, path, ie.Path, ie.Details)
}

func TestFromArchitecture(t *testing.T) {
	m := build(t, 3, 0)

	assert.Equal(t, 22, m.NumInputChannels)
	assert.Equal(t, 14, m.NumInputGlobalChannels)
	assert.Equal(t, 1, m.NumPolicyChannels)
	assert.Equal(t, 1, m.NumScoreValueChannels)
	assert.Nil(t, m.Trunk.MetadataEncoder)
	assert.Equal(t, 5, m.NumBlocks())
	assert.Equal(t, DefaultPostProcessParams(), m.PostProcess)

	assert.Equal(t, 5, m.Trunk.InitialConv.ConvY)
	assert.Len(t, m.Trunk.InitialConv.Weights, 4*22*5*5)

	nested, ok := m.Trunk.Blocks[2].(*NestedBottleneckResidualBlock)
	require.True(t, ok)
	assert.Equal(t, KindNestedBottleneck, nested.Kind())
	assert.Equal(t, "trunk.block3.block2", nested.Blocks[1].BlockName())
	assert.Equal(t, KindGlobalPooling, nested.Blocks[1].Kind())
	assert.Equal(t, 3, nested.PreConv.OutChannels)
}

func TestFromArchitectureMetadataEncoder(t *testing.T) {
	m := build(t, 16, 1)

	require.NotNil(t, m.Trunk.MetadataEncoder)
	assert.Equal(t, features.NumMetaChannelsV1, m.NumInputMetaChannels)
	assert.Equal(t, features.NumMetaChannelsV1, m.Trunk.MetadataEncoder.Mul1.InChannels)
	assert.Equal(t, 4, m.Trunk.MetadataEncoder.Mul3.OutChannels)
	assert.Equal(t, 4, m.NumPolicyChannels)
}

func TestFromArchitecturePassHidden(t *testing.T) {
	m := build(t, 15, 0)
	assert.Equal(t, 3, m.PolicyHead.GPoolToPassMul.OutChannels)
	assert.Equal(t, 2, m.PolicyHead.GPoolToPassMul2.OutChannels)

	m = build(t, 14, 0)
	assert.Equal(t, 2, m.PolicyHead.GPoolToPassMul.OutChannels)
	assert.Empty(t, m.PolicyHead.GPoolToPassMul2.Weights)
}

func TestFromArchitectureRecordsWeightNames(t *testing.T) {
	rec := weights.NewRecorder(weights.Zeros{})
	_, err := FromArchitecture(testArch(8, 0), rec)
	require.NoError(t, err)

	assert.Len(t, rec.Seen["trunk.block1.regular_conv.weight"], 3*4*3*3)
	assert.Len(t, rec.Seen["trunk.block2.gpool_to_bias_mul.weight"], 3*2*3)
	assert.Len(t, rec.Seen["trunk.block3.block1.mid_bn.variance"], 3)
	assert.Len(t, rec.Seen["value_head.sv3_bias.weight"], 4)
}

func TestFromArchitectureMissingWeights(t *testing.T) {
	_, err := FromArchitecture(testArch(8, 0), weights.Map{})
	assert.True(t, errors.Is(err, weights.ErrNotFound))
}

func TestFromArchitectureUnsupportedVersion(t *testing.T) {
	_, err := FromArchitecture(testArch(2, 0), weights.Zeros{})
	assert.True(t, errors.Is(err, features.ErrUnsupportedVersion))

	_, err = FromArchitecture(testArch(8, 7), weights.Zeros{})
	assert.True(t, errors.Is(err, features.ErrUnsupportedVersion))
}

func TestFromArchitectureRejectsNonPositiveChannels(t *testing.T) {
	a := testArch(8, 0)
	a.MidChannels = 0
	_, err := FromArchitecture(a, weights.Zeros{})
	requireInconsistentAt(t, err, "trunk.block1.regular_conv")
}

func TestValidateChannelMismatch(t *testing.T) {
	m := build(t, 8, 0)
	rb := m.Trunk.Blocks[0].(*ResidualBlock)
	rb.FinalConv.InChannels = 2
	requireInconsistentAt(t, Validate(m), "trunk.block1.final_conv")
}

func TestValidateGlobalPoolingMismatch(t *testing.T) {
	m := build(t, 8, 0)
	gb := m.Trunk.Blocks[1].(*GlobalPoolingResidualBlock)
	gb.GPoolToBiasMul.InChannels = 2 * gb.GPoolConv.OutChannels
	gb.GPoolToBiasMul.Weights = make([]float32, gb.GPoolToBiasMul.InChannels*gb.GPoolToBiasMul.OutChannels)
	requireInconsistentAt(t, Validate(m), "trunk.block2.gpool_to_bias_mul")
}

func TestValidateWeightLength(t *testing.T) {
	m := build(t, 8, 0)
	m.ValueHead.V2Mul.Weights = m.ValueHead.V2Mul.Weights[1:]
	requireInconsistentAt(t, Validate(m), "value_head.v2_mul")
}

func TestValidateNesting(t *testing.T) {
	m := build(t, 8, 0)
	nested := m.Trunk.Blocks[2].(*NestedBottleneckResidualBlock)
	nested.Blocks = nil
	requireInconsistentAt(t, Validate(m), "trunk.block3")

	m = build(t, 8, 0)
	m.Trunk.Blocks[1] = nil
	requireInconsistentAt(t, Validate(m), "trunk.block2")

	m = build(t, 8, 0)
	var rb *ResidualBlock
	m.Trunk.Blocks[0] = rb
	requireInconsistentAt(t, Validate(m), "trunk.block1")
}

func TestValidateModelCounts(t *testing.T) {
	m := build(t, 8, 0)
	m.NumInputChannels = 19
	requireInconsistentAt(t, Validate(m), "model.num_input_channels")

	m = build(t, 8, 0)
	m.PolicyHead.ModelVersion = 9
	requireInconsistentAt(t, Validate(m), "policy_head")

	m = build(t, 8, 0)
	m.Trunk.TipActivation.Kind = ActivationKind(9)
	requireInconsistentAt(t, Validate(m), "trunk.tip_activation")
}

func TestValidateMetadataEncoderPresence(t *testing.T) {
	m := build(t, 16, 1)
	m.Trunk.MetadataEncoder = nil
	requireInconsistentAt(t, Validate(m), "trunk.metadata_encoder")
}

func TestParse(t *testing.T) {
	k, err := ParseActivation("Mish")
	require.NoError(t, err)
	assert.Equal(t, Mish, k)
	_, err = ParseActivation("gelu")
	assert.Error(t, err)

	bk, err := ParseBlockKind("nested_bottleneck")
	require.NoError(t, err)
	assert.Equal(t, KindNestedBottleneck, bk)
	assert.Equal(t, "gpool", KindGlobalPooling.String())
	_, err = ParseBlockKind("dense")
	assert.Error(t, err)
}
