package desc

import (
	"errors"
	"fmt"

	"github.com/born-ml/katacoreml/internal/features"
)

// ErrInconsistent is returned for descriptors whose channel counts, weight
// sizes or block nesting do not fit together.
var ErrInconsistent = errors.New("descriptor inconsistency")

// InconsistencyError locates a descriptor inconsistency.
type InconsistencyError struct {
	Path    string // Structural path of the offending layer (e.g., "trunk.block2.regular_conv")
	Details string
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrInconsistent, e.Path, e.Details)
}

// Unwrap returns ErrInconsistent.
func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}

func inconsistent(path, format string, args ...any) error {
	return &InconsistencyError{Path: path, Details: fmt.Sprintf(format, args...)}
}

// Validate checks the whole model and returns the first inconsistency.
// Unsupported model versions fail with features.ErrUnsupportedVersion.
func Validate(m *Model) error {
	if m == nil {
		return inconsistent("model", "nil model")
	}

	counts, err := features.Resolve(m.ModelVersion, m.MetaEncoderVersion)
	if err != nil {
		return err
	}
	if err := checkCounts(m, counts); err != nil {
		return err
	}
	if err := validateTrunk(m); err != nil {
		return err
	}
	if err := validatePolicyHead(m); err != nil {
		return err
	}
	return validateValueHead(m)
}

func checkCounts(m *Model, c features.Counts) error {
	checks := []struct {
		name      string
		got, want int
	}{
		{"num_input_channels", m.NumInputChannels, c.Spatial},
		{"num_input_global_channels", m.NumInputGlobalChannels, c.Global},
		{"num_input_meta_channels", m.NumInputMetaChannels, c.Meta},
		{"num_policy_channels", m.NumPolicyChannels, c.Policy},
		{"num_value_channels", m.NumValueChannels, c.Value},
		{"num_score_value_channels", m.NumScoreValueChannels, c.ScoreValue},
		{"num_ownership_channels", m.NumOwnershipChannels, c.Ownership},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			return inconsistent("model."+chk.name, "got %d, model version %d requires %d",
				chk.got, m.ModelVersion, chk.want)
		}
	}

	parts := []struct {
		path    string
		version int
	}{
		{"trunk", m.Trunk.ModelVersion},
		{"policy_head", m.PolicyHead.ModelVersion},
		{"value_head", m.ValueHead.ModelVersion},
	}
	for _, part := range parts {
		if part.version != m.ModelVersion {
			return inconsistent(part.path, "model version %d differs from model's %d", part.version, m.ModelVersion)
		}
	}
	if m.Trunk.MetaEncoderVersion != m.MetaEncoderVersion {
		return inconsistent("trunk", "metadata encoder version %d differs from model's %d",
			m.Trunk.MetaEncoderVersion, m.MetaEncoderVersion)
	}
	return nil
}

func validateTrunk(m *Model) error {
	t := &m.Trunk
	c := t.TrunkNumChannels
	if c <= 0 {
		return inconsistent("trunk", "trunk channels must be positive, got %d", c)
	}

	if err := checkConv("trunk.initial_conv", &t.InitialConv, m.NumInputChannels, c); err != nil {
		return err
	}
	if err := checkMatMul("trunk.initial_matmul", &t.InitialMatMul, m.NumInputGlobalChannels, c); err != nil {
		return err
	}

	switch {
	case m.MetaEncoderVersion > 0 && t.MetadataEncoder == nil:
		return inconsistent("trunk.metadata_encoder", "missing for metadata encoder version %d", m.MetaEncoderVersion)
	case m.MetaEncoderVersion == 0 && t.MetadataEncoder != nil:
		return inconsistent("trunk.metadata_encoder", "present but model has no metadata input")
	case t.MetadataEncoder != nil:
		if err := checkMetadataEncoder(t.MetadataEncoder, m.NumInputMetaChannels, c); err != nil {
			return err
		}
	}

	if len(t.Blocks) == 0 {
		return inconsistent("trunk", "no blocks")
	}
	if err := checkBlocks("trunk", t.Blocks, c, m.ModelVersion); err != nil {
		return err
	}

	if err := checkBN("trunk.tip_bn", &t.TipBN, c); err != nil {
		return err
	}
	return checkActivation("trunk.tip_activation", &t.TipActivation)
}

func checkMetadataEncoder(e *MetadataEncoder, metaChannels, trunkChannels int) error {
	const p = "trunk.metadata_encoder"
	if e.NumInputMetaChannels != metaChannels {
		return inconsistent(p, "input channels %d, model declares %d", e.NumInputMetaChannels, metaChannels)
	}
	if err := checkMatMul(p+".mul1", &e.Mul1, metaChannels, -1); err != nil {
		return err
	}
	hidden := e.Mul1.OutChannels
	if err := checkMatBias(p+".bias1", &e.Bias1, hidden); err != nil {
		return err
	}
	if err := checkActivation(p+".act1", &e.Act1); err != nil {
		return err
	}
	if err := checkMatMul(p+".mul2", &e.Mul2, hidden, -1); err != nil {
		return err
	}
	if err := checkMatBias(p+".bias2", &e.Bias2, e.Mul2.OutChannels); err != nil {
		return err
	}
	if err := checkActivation(p+".act2", &e.Act2); err != nil {
		return err
	}
	return checkMatMul(p+".mul3", &e.Mul3, e.Mul2.OutChannels, trunkChannels)
}

func checkBlocks(path string, blocks []Block, channels, modelVersion int) error {
	for i, b := range blocks {
		if err := checkBlock(fmt.Sprintf("%s.block%d", path, i+1), b, channels, modelVersion); err != nil {
			return err
		}
	}
	return nil
}

func checkBlock(p string, b Block, c, modelVersion int) error {
	switch b := b.(type) {
	case *ResidualBlock:
		if b == nil {
			return inconsistent(p, "nil block")
		}
		if err := checkBN(p+".pre_bn", &b.PreBN, c); err != nil {
			return err
		}
		if err := checkActivation(p+".pre_activation", &b.PreActivation); err != nil {
			return err
		}
		if err := checkConv(p+".regular_conv", &b.RegularConv, c, -1); err != nil {
			return err
		}
		mid := b.RegularConv.OutChannels
		if err := checkBN(p+".mid_bn", &b.MidBN, mid); err != nil {
			return err
		}
		if err := checkActivation(p+".mid_activation", &b.MidActivation); err != nil {
			return err
		}
		return checkConv(p+".final_conv", &b.FinalConv, mid, c)

	case *GlobalPoolingResidualBlock:
		if b == nil {
			return inconsistent(p, "nil block")
		}
		if b.ModelVersion != modelVersion {
			return inconsistent(p, "model version %d differs from model's %d", b.ModelVersion, modelVersion)
		}
		if err := checkBN(p+".pre_bn", &b.PreBN, c); err != nil {
			return err
		}
		if err := checkActivation(p+".pre_activation", &b.PreActivation); err != nil {
			return err
		}
		if err := checkConv(p+".regular_conv", &b.RegularConv, c, -1); err != nil {
			return err
		}
		regular := b.RegularConv.OutChannels
		if err := checkConv(p+".gpool_conv", &b.GPoolConv, c, -1); err != nil {
			return err
		}
		gpool := b.GPoolConv.OutChannels
		if err := checkBN(p+".gpool_bn", &b.GPoolBN, gpool); err != nil {
			return err
		}
		if err := checkActivation(p+".gpool_activation", &b.GPoolActivation); err != nil {
			return err
		}
		if err := checkMatMul(p+".gpool_to_bias_mul", &b.GPoolToBiasMul, 3*gpool, regular); err != nil {
			return err
		}
		if err := checkBN(p+".mid_bn", &b.MidBN, regular); err != nil {
			return err
		}
		if err := checkActivation(p+".mid_activation", &b.MidActivation); err != nil {
			return err
		}
		return checkConv(p+".final_conv", &b.FinalConv, regular, c)

	case *NestedBottleneckResidualBlock:
		if b == nil {
			return inconsistent(p, "nil block")
		}
		if err := checkBN(p+".pre_bn", &b.PreBN, c); err != nil {
			return err
		}
		if err := checkActivation(p+".pre_activation", &b.PreActivation); err != nil {
			return err
		}
		if err := checkConv(p+".pre_conv", &b.PreConv, c, -1); err != nil {
			return err
		}
		inner := b.PreConv.OutChannels
		if len(b.Blocks) == 0 {
			return inconsistent(p, "nested bottleneck block has no sub-blocks")
		}
		if err := checkBlocks(p, b.Blocks, inner, modelVersion); err != nil {
			return err
		}
		if err := checkBN(p+".post_bn", &b.PostBN, inner); err != nil {
			return err
		}
		if err := checkActivation(p+".post_activation", &b.PostActivation); err != nil {
			return err
		}
		return checkConv(p+".post_conv", &b.PostConv, inner, c)

	case nil:
		return inconsistent(p, "nil block")

	default:
		return inconsistent(p, "unknown block type %T", b)
	}
}

func validatePolicyHead(m *Model) error {
	h := &m.PolicyHead
	const p = "policy_head"
	c := m.Trunk.TrunkNumChannels

	if h.PolicyOutChannels != m.NumPolicyChannels {
		return inconsistent(p, "policy out channels %d, model declares %d", h.PolicyOutChannels, m.NumPolicyChannels)
	}
	if err := checkConv(p+".p1_conv", &h.P1Conv, c, -1); err != nil {
		return err
	}
	p1 := h.P1Conv.OutChannels
	if err := checkConv(p+".g1_conv", &h.G1Conv, c, -1); err != nil {
		return err
	}
	g1 := h.G1Conv.OutChannels
	if err := checkBN(p+".g1_bn", &h.G1BN, g1); err != nil {
		return err
	}
	if err := checkActivation(p+".g1_activation", &h.G1Activation); err != nil {
		return err
	}
	if err := checkMatMul(p+".gpool_to_bias_mul", &h.GPoolToBiasMul, 3*g1, p1); err != nil {
		return err
	}
	if err := checkBN(p+".p1_bn", &h.P1BN, p1); err != nil {
		return err
	}
	if err := checkActivation(p+".p1_activation", &h.P1Activation); err != nil {
		return err
	}
	if err := checkConv(p+".p2_conv", &h.P2Conv, p1, h.PolicyOutChannels); err != nil {
		return err
	}

	if !HasPassHidden(h.ModelVersion) {
		return checkMatMul(p+".gpool_to_pass_mul", &h.GPoolToPassMul, 3*g1, h.PolicyOutChannels)
	}
	if err := checkMatMul(p+".gpool_to_pass_mul", &h.GPoolToPassMul, 3*g1, -1); err != nil {
		return err
	}
	pass := h.GPoolToPassMul.OutChannels
	if err := checkMatBias(p+".gpool_to_pass_bias", &h.GPoolToPassBias, pass); err != nil {
		return err
	}
	if err := checkActivation(p+".pass_activation", &h.PassActivation); err != nil {
		return err
	}
	return checkMatMul(p+".gpool_to_pass_mul2", &h.GPoolToPassMul2, pass, h.PolicyOutChannels)
}

func validateValueHead(m *Model) error {
	h := &m.ValueHead
	const p = "value_head"
	c := m.Trunk.TrunkNumChannels

	if err := checkConv(p+".v1_conv", &h.V1Conv, c, -1); err != nil {
		return err
	}
	v1 := h.V1Conv.OutChannels
	if err := checkBN(p+".v1_bn", &h.V1BN, v1); err != nil {
		return err
	}
	if err := checkActivation(p+".v1_activation", &h.V1Activation); err != nil {
		return err
	}
	if err := checkMatMul(p+".v2_mul", &h.V2Mul, 3*v1, -1); err != nil {
		return err
	}
	v2 := h.V2Mul.OutChannels
	if err := checkMatBias(p+".v2_bias", &h.V2Bias, v2); err != nil {
		return err
	}
	if err := checkActivation(p+".v2_activation", &h.V2Activation); err != nil {
		return err
	}
	if err := checkMatMul(p+".v3_mul", &h.V3Mul, v2, m.NumValueChannels); err != nil {
		return err
	}
	if err := checkMatBias(p+".v3_bias", &h.V3Bias, m.NumValueChannels); err != nil {
		return err
	}
	if err := checkMatMul(p+".sv3_mul", &h.SV3Mul, v2, m.NumScoreValueChannels); err != nil {
		return err
	}
	if err := checkMatBias(p+".sv3_bias", &h.SV3Bias, m.NumScoreValueChannels); err != nil {
		return err
	}
	return checkConv(p+".v_ownership_conv", &h.VOwnershipConv, v1, m.NumOwnershipChannels)
}

// checkConv validates a convolution reading in channels. A negative out
// accepts any positive output channel count.
func checkConv(p string, l *ConvLayer, in, out int) error {
	if l.ConvY <= 0 || l.ConvX <= 0 {
		return inconsistent(p, "kernel %dx%d must be positive", l.ConvY, l.ConvX)
	}
	if l.ConvY%2 == 0 || l.ConvX%2 == 0 {
		return inconsistent(p, "kernel %dx%d must be odd for same-size padding", l.ConvY, l.ConvX)
	}
	if l.DilationY <= 0 || l.DilationX <= 0 {
		return inconsistent(p, "dilation %dx%d must be positive", l.DilationY, l.DilationX)
	}
	if err := checkChannels(p, l.InChannels, l.OutChannels, in, out); err != nil {
		return err
	}
	return checkLen(p, "weights", len(l.Weights), l.OutChannels*l.InChannels*l.ConvY*l.ConvX)
}

func checkMatMul(p string, l *MatMulLayer, in, out int) error {
	if err := checkChannels(p, l.InChannels, l.OutChannels, in, out); err != nil {
		return err
	}
	return checkLen(p, "weights", len(l.Weights), l.InChannels*l.OutChannels)
}

func checkChannels(p string, gotIn, gotOut, in, out int) error {
	if gotIn <= 0 || gotOut <= 0 {
		return inconsistent(p, "channels %d->%d must be positive", gotIn, gotOut)
	}
	if gotIn != in {
		return inconsistent(p, "input channels %d, predecessor produces %d", gotIn, in)
	}
	if out >= 0 && gotOut != out {
		return inconsistent(p, "output channels %d, successor expects %d", gotOut, out)
	}
	return nil
}

func checkMatBias(p string, l *MatBiasLayer, channels int) error {
	if l.NumChannels != channels {
		return inconsistent(p, "channels %d, predecessor produces %d", l.NumChannels, channels)
	}
	return checkLen(p, "weights", len(l.Weights), channels)
}

func checkBN(p string, l *BatchNormLayer, channels int) error {
	if l.NumChannels <= 0 {
		return inconsistent(p, "channels %d must be positive", l.NumChannels)
	}
	if l.NumChannels != channels {
		return inconsistent(p, "channels %d, predecessor produces %d", l.NumChannels, channels)
	}
	if l.Epsilon < 0 {
		return inconsistent(p, "negative epsilon %g", l.Epsilon)
	}
	if err := checkLen(p, "mean", len(l.Mean), channels); err != nil {
		return err
	}
	if err := checkLen(p, "variance", len(l.Variance), channels); err != nil {
		return err
	}
	if l.HasScale {
		if err := checkLen(p, "scale", len(l.Scale), channels); err != nil {
			return err
		}
	}
	if l.HasBias {
		return checkLen(p, "bias", len(l.Bias), channels)
	}
	return nil
}

func checkActivation(p string, l *ActivationLayer) error {
	switch l.Kind {
	case Identity, ReLU, Mish:
		return nil
	default:
		return inconsistent(p, "unknown activation %s", l.Kind)
	}
}

func checkLen(p, what string, got, want int) error {
	if got != want {
		return inconsistent(p, "%s holds %d values, dimensions require %d", what, got, want)
	}
	return nil
}
