package lower

import (
	"fmt"

	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/mil"
)

// model lowers the trunk and both heads and returns the tensor holding each
// logical output.
func (l *lowerer) model() map[string]string {
	m := l.cfg.Model
	trunk := l.trunk(&m.Trunk)

	policy, pass := l.policyHead(trunk, &m.PolicyHead)
	value, scoreValue, ownership := l.valueHead(trunk, &m.ValueHead)

	return map[string]string{
		features.OutputPolicyName:     policy,
		features.OutputPolicyPassName: pass,
		features.OutputValueName:      value,
		features.OutputScoreValueName: scoreValue,
		features.OutputOwnershipName:  ownership,
	}
}

func (l *lowerer) trunk(t *desc.Trunk) string {
	const p = "trunk"
	x := l.conv(features.InputSpatialName, &t.InitialConv, p+".initial_conv")

	global := l.matmul(features.InputGlobalName, &t.InitialMatMul, p+".initial_matmul")
	x = l.addBias(x, global, p+".global_bias")

	if e := t.MetadataEncoder; e != nil {
		meta := l.metadataEncoder(e)
		x = l.addBias(x, meta, p+".metadata_bias")
	}

	x = l.blocks(x, p, t.Blocks)

	x = l.batchNorm(x, &t.TipBN, p+".tip_bn")
	return l.activation(x, &t.TipActivation, p+".tip_activation")
}

func (l *lowerer) metadataEncoder(e *desc.MetadataEncoder) string {
	const p = "trunk.metadata_encoder"
	x := l.matmul(features.InputMetaName, &e.Mul1, p+".mul1")
	x = l.matBias(x, &e.Bias1, p+".bias1")
	x = l.activation(x, &e.Act1, p+".act1")
	x = l.matmul(x, &e.Mul2, p+".mul2")
	x = l.matBias(x, &e.Bias2, p+".bias2")
	x = l.activation(x, &e.Act2, p+".act2")
	return l.matmul(x, &e.Mul3, p+".mul3")
}

func (l *lowerer) blocks(x, path string, blocks []desc.Block) string {
	for i, b := range blocks {
		x = l.block(x, fmt.Sprintf("%s.block%d", path, i+1), b)
	}
	return x
}

func (l *lowerer) block(x, p string, b desc.Block) string {
	if l.err != nil {
		return x
	}
	switch b := b.(type) {
	case *desc.ResidualBlock:
		return l.residual(x, p, b)
	case *desc.GlobalPoolingResidualBlock:
		return l.gpoolResidual(x, p, b)
	case *desc.NestedBottleneckResidualBlock:
		return l.nested(x, p, b)
	default:
		l.fail(p, &desc.InconsistencyError{Path: p, Details: fmt.Sprintf("unknown block type %T", b)})
		return x
	}
}

// skip adds the block input back onto its result. The sum is named after
// the block itself.
func (l *lowerer) skip(x, y, p string) string {
	return l.op("add", mil.SanitizeName(p), mil.Args{"x": {x}, "y": {y}}, l.typeOf(x))
}

func (l *lowerer) residual(x, p string, b *desc.ResidualBlock) string {
	y := l.batchNorm(x, &b.PreBN, p+".pre_bn")
	y = l.activation(y, &b.PreActivation, p+".pre_activation")
	y = l.conv(y, &b.RegularConv, p+".regular_conv")
	y = l.batchNorm(y, &b.MidBN, p+".mid_bn")
	y = l.activation(y, &b.MidActivation, p+".mid_activation")
	y = l.conv(y, &b.FinalConv, p+".final_conv")
	return l.skip(x, y, p)
}

func (l *lowerer) gpoolResidual(x, p string, b *desc.GlobalPoolingResidualBlock) string {
	y := l.batchNorm(x, &b.PreBN, p+".pre_bn")
	y = l.activation(y, &b.PreActivation, p+".pre_activation")
	regular := l.conv(y, &b.RegularConv, p+".regular_conv")

	g := l.conv(y, &b.GPoolConv, p+".gpool_conv")
	g = l.batchNorm(g, &b.GPoolBN, p+".gpool_bn")
	g = l.activation(g, &b.GPoolActivation, p+".gpool_activation")
	g = l.globalPool(g, p+".gpool_pool")
	g = l.matmul(g, &b.GPoolToBiasMul, p+".gpool_to_bias_mul")
	y = l.addBias(regular, g, p+".gpool_bias")

	y = l.batchNorm(y, &b.MidBN, p+".mid_bn")
	y = l.activation(y, &b.MidActivation, p+".mid_activation")
	y = l.conv(y, &b.FinalConv, p+".final_conv")
	return l.skip(x, y, p)
}

func (l *lowerer) nested(x, p string, b *desc.NestedBottleneckResidualBlock) string {
	y := l.batchNorm(x, &b.PreBN, p+".pre_bn")
	y = l.activation(y, &b.PreActivation, p+".pre_activation")
	y = l.conv(y, &b.PreConv, p+".pre_conv")
	y = l.blocks(y, p, b.Blocks)
	y = l.batchNorm(y, &b.PostBN, p+".post_bn")
	y = l.activation(y, &b.PostActivation, p+".post_activation")
	y = l.conv(y, &b.PostConv, p+".post_conv")
	return l.skip(x, y, p)
}

func (l *lowerer) policyHead(x string, h *desc.PolicyHead) (policy, pass string) {
	const p = "policy_head"
	p1 := l.conv(x, &h.P1Conv, p+".p1_conv")

	g1 := l.conv(x, &h.G1Conv, p+".g1_conv")
	g1 = l.batchNorm(g1, &h.G1BN, p+".g1_bn")
	g1 = l.activation(g1, &h.G1Activation, p+".g1_activation")
	pooled := l.globalPool(g1, p+".g1_pool")

	bias := l.matmul(pooled, &h.GPoolToBiasMul, p+".gpool_to_bias_mul")
	p1 = l.addBias(p1, bias, p+".p1_bias")
	p1 = l.batchNorm(p1, &h.P1BN, p+".p1_bn")
	p1 = l.activation(p1, &h.P1Activation, p+".p1_activation")
	policy = l.conv(p1, &h.P2Conv, p+".p2_conv")

	pass = l.matmul(pooled, &h.GPoolToPassMul, p+".gpool_to_pass_mul")
	if desc.HasPassHidden(h.ModelVersion) {
		pass = l.matBias(pass, &h.GPoolToPassBias, p+".gpool_to_pass_bias")
		pass = l.activation(pass, &h.PassActivation, p+".pass_activation")
		pass = l.matmul(pass, &h.GPoolToPassMul2, p+".gpool_to_pass_mul2")
	}
	return policy, pass
}

func (l *lowerer) valueHead(x string, h *desc.ValueHead) (value, scoreValue, ownership string) {
	const p = "value_head"
	v1 := l.conv(x, &h.V1Conv, p+".v1_conv")
	v1 = l.batchNorm(v1, &h.V1BN, p+".v1_bn")
	v1 = l.activation(v1, &h.V1Activation, p+".v1_activation")

	pooled := l.valuePool(v1, p+".v1_pool")
	v2 := l.matmul(pooled, &h.V2Mul, p+".v2_mul")
	v2 = l.matBias(v2, &h.V2Bias, p+".v2_bias")
	v2 = l.activation(v2, &h.V2Activation, p+".v2_activation")

	value = l.matmul(v2, &h.V3Mul, p+".v3_mul")
	value = l.matBias(value, &h.V3Bias, p+".v3_bias")

	scoreValue = l.matmul(v2, &h.SV3Mul, p+".sv3_mul")
	scoreValue = l.matBias(scoreValue, &h.SV3Bias, p+".sv3_bias")

	ownership = l.conv(v1, &h.VOwnershipConv, p+".v_ownership_conv")
	return value, scoreValue, ownership
}
