package desc

import (
	"fmt"

	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/weights"
)

// Kernel sizes used when an Architecture leaves them unset.
const (
	DefaultInitialConvSize = 5
	DefaultBlockConvSize   = 3
	DefaultEpsilon         = 1e-3
)

// BlockSpec describes one trunk block. Blocks is used only by nested
// bottleneck blocks.
type BlockSpec struct {
	Kind   BlockKind
	Blocks []BlockSpec
}

// Architecture is a compact description of a network from which a full
// descriptor tree can be built.
type Architecture struct {
	Name               string
	SHA256             string
	ModelVersion       int
	MetaEncoderVersion int

	TrunkChannels      int
	MidChannels        int // residual blocks and nested bottleneck width
	RegularChannels    int // gpool blocks, regular path
	GPoolChannels      int // gpool blocks, pooled path
	MetaHiddenChannels int
	P1Channels         int
	G1Channels         int
	PassChannels       int // policy pass hidden width, model version 15+
	V1Channels         int
	V2Channels         int

	InitialConvSize int
	BlockConvSize   int
	Activation      ActivationKind
	Epsilon         float32 // batch norm epsilon; zero selects DefaultEpsilon

	Blocks      []BlockSpec
	PostProcess *PostProcessParams
}

// FromArchitecture builds and validates a descriptor tree, pulling every
// weight array from src by "<layer>.<role>".
func FromArchitecture(a Architecture, src weights.Source) (*Model, error) {
	counts, err := features.Resolve(a.ModelVersion, a.MetaEncoderVersion)
	if err != nil {
		return nil, err
	}
	if a.InitialConvSize == 0 {
		a.InitialConvSize = DefaultInitialConvSize
	}
	if a.BlockConvSize == 0 {
		a.BlockConvSize = DefaultBlockConvSize
	}
	if a.Epsilon == 0 {
		a.Epsilon = DefaultEpsilon
	}
	post := DefaultPostProcessParams()
	if a.PostProcess != nil {
		post = *a.PostProcess
	}

	as := &assembler{arch: &a, src: src}
	m := &Model{
		Name:                   a.Name,
		SHA256:                 a.SHA256,
		ModelVersion:           a.ModelVersion,
		NumInputChannels:       counts.Spatial,
		NumInputGlobalChannels: counts.Global,
		NumInputMetaChannels:   counts.Meta,
		NumPolicyChannels:      counts.Policy,
		NumValueChannels:       counts.Value,
		NumScoreValueChannels:  counts.ScoreValue,
		NumOwnershipChannels:   counts.Ownership,
		MetaEncoderVersion:     a.MetaEncoderVersion,
		PostProcess:            post,
		Trunk:                  as.trunk(counts),
		PolicyHead:             as.policyHead(counts),
		ValueHead:              as.valueHead(counts),
	}
	if as.err != nil {
		return nil, as.err
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// assembler builds layers and keeps the first weight lookup failure.
type assembler struct {
	arch *Architecture
	src  weights.Source
	err  error
}

func (as *assembler) floats(name string, n int) []float32 {
	if as.err != nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	data, err := as.src.Floats(name, n)
	if err != nil {
		as.err = fmt.Errorf("failed to load %s: %w", name, err)
	}
	return data
}

func (as *assembler) conv(name string, k, in, out int) ConvLayer {
	return ConvLayer{
		Name:        name,
		ConvY:       k,
		ConvX:       k,
		InChannels:  in,
		OutChannels: out,
		DilationY:   1,
		DilationX:   1,
		Weights:     as.floats(name+".weight", out*in*k*k),
	}
}

func (as *assembler) bn(name string, c int) BatchNormLayer {
	return BatchNormLayer{
		Name:        name,
		NumChannels: c,
		Epsilon:     as.arch.Epsilon,
		HasScale:    true,
		HasBias:     true,
		Mean:        as.floats(name+".mean", c),
		Variance:    as.floats(name+".variance", c),
		Scale:       as.floats(name+".scale", c),
		Bias:        as.floats(name+".bias", c),
	}
}

func (as *assembler) act(name string) ActivationLayer {
	return ActivationLayer{Name: name, Kind: as.arch.Activation}
}

func (as *assembler) matmul(name string, in, out int) MatMulLayer {
	return MatMulLayer{Name: name, InChannels: in, OutChannels: out, Weights: as.floats(name+".weight", in*out)}
}

func (as *assembler) matbias(name string, c int) MatBiasLayer {
	return MatBiasLayer{Name: name, NumChannels: c, Weights: as.floats(name+".weight", c)}
}

func (as *assembler) trunk(counts features.Counts) Trunk {
	a := as.arch
	c := a.TrunkChannels
	t := Trunk{
		Name:               "trunk",
		ModelVersion:       a.ModelVersion,
		TrunkNumChannels:   c,
		MidNumChannels:     a.MidChannels,
		RegularNumChannels: a.RegularChannels,
		GPoolNumChannels:   a.GPoolChannels,
		MetaEncoderVersion: a.MetaEncoderVersion,
		InitialConv:        as.conv("trunk.initial_conv", a.InitialConvSize, counts.Spatial, c),
		InitialMatMul:      as.matmul("trunk.initial_matmul", counts.Global, c),
	}
	if counts.Meta > 0 {
		const p = "trunk.metadata_encoder"
		h := a.MetaHiddenChannels
		t.MetadataEncoder = &MetadataEncoder{
			Name:                 p,
			Version:              a.MetaEncoderVersion,
			NumInputMetaChannels: counts.Meta,
			Mul1:                 as.matmul(p+".mul1", counts.Meta, h),
			Bias1:                as.matbias(p+".bias1", h),
			Act1:                 as.act(p + ".act1"),
			Mul2:                 as.matmul(p+".mul2", h, h),
			Bias2:                as.matbias(p+".bias2", h),
			Act2:                 as.act(p + ".act2"),
			Mul3:                 as.matmul(p+".mul3", h, c),
		}
	}
	t.Blocks = as.blocks("trunk", a.Blocks, c)
	t.TipBN = as.bn("trunk.tip_bn", c)
	t.TipActivation = as.act("trunk.tip_activation")
	return t
}

func (as *assembler) blocks(path string, specs []BlockSpec, c int) []Block {
	out := make([]Block, 0, len(specs))
	for i, spec := range specs {
		out = append(out, as.block(fmt.Sprintf("%s.block%d", path, i+1), spec, c))
	}
	return out
}

func (as *assembler) block(p string, spec BlockSpec, c int) Block {
	a := as.arch
	k := a.BlockConvSize
	switch spec.Kind {
	case KindGlobalPooling:
		return &GlobalPoolingResidualBlock{
			Name:            p,
			ModelVersion:    a.ModelVersion,
			PreBN:           as.bn(p+".pre_bn", c),
			PreActivation:   as.act(p + ".pre_activation"),
			RegularConv:     as.conv(p+".regular_conv", k, c, a.RegularChannels),
			GPoolConv:       as.conv(p+".gpool_conv", k, c, a.GPoolChannels),
			GPoolBN:         as.bn(p+".gpool_bn", a.GPoolChannels),
			GPoolActivation: as.act(p + ".gpool_activation"),
			GPoolToBiasMul:  as.matmul(p+".gpool_to_bias_mul", 3*a.GPoolChannels, a.RegularChannels),
			MidBN:           as.bn(p+".mid_bn", a.RegularChannels),
			MidActivation:   as.act(p + ".mid_activation"),
			FinalConv:       as.conv(p+".final_conv", k, a.RegularChannels, c),
		}
	case KindNestedBottleneck:
		inner := a.MidChannels
		return &NestedBottleneckResidualBlock{
			Name:           p,
			PreBN:          as.bn(p+".pre_bn", c),
			PreActivation:  as.act(p + ".pre_activation"),
			PreConv:        as.conv(p+".pre_conv", 1, c, inner),
			Blocks:         as.blocks(p, spec.Blocks, inner),
			PostBN:         as.bn(p+".post_bn", inner),
			PostActivation: as.act(p + ".post_activation"),
			PostConv:       as.conv(p+".post_conv", 1, inner, c),
		}
	default:
		if spec.Kind != KindOrdinary && as.err == nil {
			as.err = inconsistent(p, "unknown block kind %s", spec.Kind)
		}
		return &ResidualBlock{
			Name:          p,
			PreBN:         as.bn(p+".pre_bn", c),
			PreActivation: as.act(p + ".pre_activation"),
			RegularConv:   as.conv(p+".regular_conv", k, c, a.MidChannels),
			MidBN:         as.bn(p+".mid_bn", a.MidChannels),
			MidActivation: as.act(p + ".mid_activation"),
			FinalConv:     as.conv(p+".final_conv", k, a.MidChannels, c),
		}
	}
}

func (as *assembler) policyHead(counts features.Counts) PolicyHead {
	a := as.arch
	const p = "policy_head"
	c := a.TrunkChannels
	h := PolicyHead{
		Name:              p,
		ModelVersion:      a.ModelVersion,
		PolicyOutChannels: counts.Policy,
		P1Conv:            as.conv(p+".p1_conv", 1, c, a.P1Channels),
		G1Conv:            as.conv(p+".g1_conv", 1, c, a.G1Channels),
		G1BN:              as.bn(p+".g1_bn", a.G1Channels),
		G1Activation:      as.act(p + ".g1_activation"),
		GPoolToBiasMul:    as.matmul(p+".gpool_to_bias_mul", 3*a.G1Channels, a.P1Channels),
		P1BN:              as.bn(p+".p1_bn", a.P1Channels),
		P1Activation:      as.act(p + ".p1_activation"),
		P2Conv:            as.conv(p+".p2_conv", 1, a.P1Channels, counts.Policy),
	}
	if HasPassHidden(a.ModelVersion) {
		h.GPoolToPassMul = as.matmul(p+".gpool_to_pass_mul", 3*a.G1Channels, a.PassChannels)
		h.GPoolToPassBias = as.matbias(p+".gpool_to_pass_bias", a.PassChannels)
		h.PassActivation = as.act(p + ".pass_activation")
		h.GPoolToPassMul2 = as.matmul(p+".gpool_to_pass_mul2", a.PassChannels, counts.Policy)
	} else {
		h.GPoolToPassMul = as.matmul(p+".gpool_to_pass_mul", 3*a.G1Channels, counts.Policy)
	}
	return h
}

func (as *assembler) valueHead(counts features.Counts) ValueHead {
	a := as.arch
	const p = "value_head"
	c := a.TrunkChannels
	return ValueHead{
		Name:           p,
		ModelVersion:   a.ModelVersion,
		V1Conv:         as.conv(p+".v1_conv", 1, c, a.V1Channels),
		V1BN:           as.bn(p+".v1_bn", a.V1Channels),
		V1Activation:   as.act(p + ".v1_activation"),
		V2Mul:          as.matmul(p+".v2_mul", 3*a.V1Channels, a.V2Channels),
		V2Bias:         as.matbias(p+".v2_bias", a.V2Channels),
		V2Activation:   as.act(p + ".v2_activation"),
		V3Mul:          as.matmul(p+".v3_mul", a.V2Channels, counts.Value),
		V3Bias:         as.matbias(p+".v3_bias", counts.Value),
		SV3Mul:         as.matmul(p+".sv3_mul", a.V2Channels, counts.ScoreValue),
		SV3Bias:        as.matbias(p+".sv3_bias", counts.ScoreValue),
		VOwnershipConv: as.conv(p+".v_ownership_conv", 1, a.V1Channels, counts.Ownership),
	}
}
