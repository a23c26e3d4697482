package lower

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/mil"
)

var outputDescriptions = map[string]string{
	features.OutputPolicyName:     "Policy logits per board location",
	features.OutputPolicyPassName: "Policy logit for passing",
	features.OutputValueName:      "Win, loss and no-result logits",
	features.OutputScoreValueName: "Score value predictions",
	features.OutputOwnershipName:  "Ownership prediction per board location",
}

var inputDescriptions = map[string]string{
	features.InputSpatialName: "Spatial input features",
	features.InputGlobalName:  "Global input features",
	features.InputMetaName:    "Game metadata input features",
}

// Lower validates cfg and emits the ML Program for cfg.Model, writing every
// weight array to sink. Nothing reaches sink unless validation passes.
func Lower(cfg Config, sink BlobSink) (*mil.Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	inputs := make([]mil.NamedTensor, len(cfg.IO.Inputs))
	for i, in := range cfg.IO.Inputs {
		inputs[i] = mil.NamedTensor{Name: in.Name, Type: mil.Tensor(mil.Float32, in.Shape...)}
	}
	b, err := mil.NewBlockBuilder(inputs)
	if err != nil {
		return nil, err
	}

	l := &lowerer{cfg: &cfg, sink: sink, b: b}
	outputs := l.model()
	if l.err != nil {
		return nil, l.err
	}

	for _, out := range cfg.IO.Outputs {
		l.op("identity", out.Name, mil.Args{"x": {outputs[out.Name]}}, l.typeOf(outputs[out.Name]))
	}
	if l.err != nil {
		return nil, l.err
	}
	for _, out := range cfg.IO.Outputs {
		if err := b.Output(out.Name); err != nil {
			return nil, err
		}
	}
	blk, err := b.Seal()
	if err != nil {
		return nil, err
	}

	model := &mil.Model{
		SpecificationVersion: cfg.SpecificationVersion,
		Description: mil.Description{
			Inputs:   describe(cfg.IO.Inputs, inputDescriptions),
			Outputs:  describe(cfg.IO.Outputs, outputDescriptions),
			Metadata: cfg.Metadata,
		},
		Program: &mil.Program{
			Version: mil.ProgramVersion,
			Functions: map[string]*mil.Function{
				mil.MainFunction: {
					Inputs: inputs,
					Opset:  cfg.Opset,
					Blocks: map[string]*mil.Block{cfg.Opset: blk},
				},
			},
		},
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("lowered program is malformed: %w", err)
	}
	return model, nil
}

func describe(list []features.Feature, descriptions map[string]string) []mil.Feature {
	out := make([]mil.Feature, len(list))
	for i, f := range list {
		out[i] = mil.Feature{Name: f.Name, Description: descriptions[f.Name], Shape: append([]int(nil), f.Shape...)}
	}
	return out
}

// lowerer emits operations into one block. The first failure is kept in
// err and turns every later call into a no-op.
type lowerer struct {
	cfg  *Config
	sink BlobSink
	b    *mil.BlockBuilder
	err  error
}

func (l *lowerer) fail(path string, err error) {
	if l.err != nil {
		return
	}
	if errors.Is(err, mil.ErrDuplicateTensor) || errors.Is(err, mil.ErrUnknownTensor) {
		err = fmt.Errorf("%w: %w", &desc.InconsistencyError{Path: path, Details: "tensor naming conflict"}, err)
	}
	l.err = err
}

func (l *lowerer) typeOf(name string) mil.TensorType {
	t, _ := l.b.Tensor(name)
	return t
}

// shape returns the dimensions of a produced tensor. After a failure it
// returns a zero shape of the requested rank so callers can keep going.
func (l *lowerer) shape(name string, rank int) []int {
	t, ok := l.b.Tensor(name)
	if !ok || t.Rank() != rank {
		if l.err == nil {
			l.fail(name, &desc.InconsistencyError{
				Path:    name,
				Details: fmt.Sprintf("expected a rank %d tensor, have %s", rank, t),
			})
		}
		return make([]int, rank)
	}
	return t.Shape
}

func (l *lowerer) op(typ, name string, in mil.Args, out mil.TensorType) string {
	if l.err != nil {
		return name
	}
	if _, err := l.b.Op(typ, name, in, out); err != nil {
		l.fail(name, err)
	}
	return name
}

func (l *lowerer) constant(path, role string, v mil.Value) string {
	name := mil.SanitizeName(path) + "_" + role
	if l.err != nil {
		return name
	}
	if _, err := l.b.Const(name, v); err != nil {
		l.fail(path, err)
	}
	return name
}

// weights writes data to the blob sink and emits a blob-backed constant.
func (l *lowerer) weights(path, role string, shape []int, data []float32) string {
	name := mil.SanitizeName(path) + "_" + role
	if l.err != nil {
		return name
	}
	if features.NumElements(shape) != len(data) {
		l.fail(path, &desc.InconsistencyError{
			Path:    path,
			Details: fmt.Sprintf("%s holds %d values, shape %v requires %d", role, len(data), shape, features.NumElements(shape)),
		})
		return name
	}
	offset, err := l.sink.Write(data)
	if err != nil {
		l.fail(path, fmt.Errorf("failed to store %s: %w", name, err))
		return name
	}
	return l.constant(path, role, mil.BlobValue(shape, l.cfg.BlobFile, offset))
}

func (l *lowerer) conv(x string, c *desc.ConvLayer, path string) string {
	in := l.shape(x, 4)
	weight := l.weights(path, "weight", []int{c.OutChannels, c.InChannels, c.ConvY, c.ConvX}, c.Weights)
	padY := int32(c.DilationY * (c.ConvY - 1) / 2) //nolint:gosec // G115: kernel sizes are small
	padX := int32(c.DilationX * (c.ConvX - 1) / 2) //nolint:gosec // G115: kernel sizes are small
	padType := l.constant(path, "pad_type", mil.StringValue("custom"))
	pad := l.constant(path, "pad", mil.IntsValue(padY, padY, padX, padX))
	strides := l.constant(path, "strides", mil.IntsValue(1, 1))
	//nolint:gosec // G115: dilations are small
	dilations := l.constant(path, "dilations", mil.IntsValue(int32(c.DilationY), int32(c.DilationX)))
	groups := l.constant(path, "groups", mil.IntValue(1))

	return l.op("conv", mil.SanitizeName(path), mil.Args{
		"x":         {x},
		"weight":    {weight},
		"strides":   {strides},
		"pad":       {pad},
		"pad_type":  {padType},
		"dilations": {dilations},
		"groups":    {groups},
	}, mil.Tensor(mil.Float32, in[0], c.OutChannels, in[2], in[3]))
}

func (l *lowerer) batchNorm(x string, bn *desc.BatchNormLayer, path string) string {
	c := []int{bn.NumChannels}
	args := mil.Args{
		"x":        {x},
		"mean":     {l.weights(path, "mean", c, bn.Mean)},
		"variance": {l.weights(path, "variance", c, bn.Variance)},
	}
	if bn.HasScale {
		args["gamma"] = []string{l.weights(path, "gamma", c, bn.Scale)}
	}
	if bn.HasBias {
		args["beta"] = []string{l.weights(path, "beta", c, bn.Bias)}
	}
	args["epsilon"] = []string{l.constant(path, "epsilon", mil.FloatValue(bn.Epsilon))}
	return l.op("batch_norm", mil.SanitizeName(path), args, l.typeOf(x))
}

func (l *lowerer) activation(x string, a *desc.ActivationLayer, path string) string {
	name := mil.SanitizeName(path)
	t := l.typeOf(x)
	switch a.Kind {
	case desc.Identity:
		return x
	case desc.ReLU:
		return l.op("relu", name, mil.Args{"x": {x}}, t)
	case desc.Mish:
		sp := l.op("softplus", name+"_softplus", mil.Args{"x": {x}}, t)
		th := l.op("tanh", name+"_tanh", mil.Args{"x": {sp}}, t)
		return l.op("mul", name, mil.Args{"x": {x}, "y": {th}}, t)
	default:
		l.fail(path, &desc.InconsistencyError{Path: path, Details: fmt.Sprintf("unknown activation %s", a.Kind)})
		return x
	}
}

func (l *lowerer) matmul(x string, m *desc.MatMulLayer, path string) string {
	in := l.shape(x, 2)
	weight := l.weights(path, "weight", []int{m.InChannels, m.OutChannels}, m.Weights)
	tx := l.constant(path, "transpose_x", mil.BoolValue(false))
	ty := l.constant(path, "transpose_y", mil.BoolValue(false))
	return l.op("matmul", mil.SanitizeName(path), mil.Args{
		"x":           {x},
		"y":           {weight},
		"transpose_x": {tx},
		"transpose_y": {ty},
	}, mil.Tensor(mil.Float32, in[0], m.OutChannels))
}

func (l *lowerer) matBias(x string, m *desc.MatBiasLayer, path string) string {
	bias := l.weights(path, "bias", []int{m.NumChannels}, m.Weights)
	return l.op("add", mil.SanitizeName(path), mil.Args{"x": {x}, "y": {bias}}, l.typeOf(x))
}

// addBias reshapes a (batch, C) tensor to (batch, C, 1, 1) and adds it to a
// (batch, C, H, W) tensor.
func (l *lowerer) addBias(x, bias, path string) string {
	v := l.shape(bias, 2)
	//nolint:gosec // G115: batch and channel counts are small
	shape := l.constant(path, "shape", mil.IntsValue(int32(v[0]), int32(v[1]), 1, 1))
	name := mil.SanitizeName(path)
	reshaped := l.op("reshape", name+"_reshape", mil.Args{"x": {bias}, "shape": {shape}},
		mil.Tensor(mil.Float32, v[0], v[1], 1, 1))
	return l.op("add", name, mil.Args{"x": {x}, "y": {reshaped}}, l.typeOf(x))
}

func (l *lowerer) reduce(typ, x, path, role string) string {
	in := l.shape(x, 4)
	axes := l.constant(path, role+"_axes", mil.IntsValue(2, 3))
	keep := l.constant(path, role+"_keep_dims", mil.BoolValue(false))
	return l.op(typ, mil.SanitizeName(path)+"_"+role, mil.Args{"x": {x}, "axes": {axes}, "keep_dims": {keep}},
		mil.Tensor(mil.Float32, in[0], in[1]))
}

func (l *lowerer) scale(x, path, role string, s float32) string {
	k := l.constant(path, role+"_factor", mil.FloatValue(s))
	return l.op("mul", mil.SanitizeName(path)+"_"+role, mil.Args{"x": {x}, "y": {k}}, l.typeOf(x))
}

func (l *lowerer) concat(path string, parts ...string) string {
	v := l.shape(parts[0], 2)
	axis := l.constant(path, "axis", mil.IntValue(1))
	interleave := l.constant(path, "interleave", mil.BoolValue(false))
	return l.op("concat", mil.SanitizeName(path), mil.Args{"values": parts, "axis": {axis}, "interleave": {interleave}},
		mil.Tensor(mil.Float32, v[0], len(parts)*v[1]))
}

// boardScale is (sqrt(area) - 14) / 10, the board-size term of pooling.
func (l *lowerer) boardScale() float32 {
	return float32((math.Sqrt(float64(l.cfg.Geometry.Area())) - 14) * 0.1)
}

// globalPool concatenates mean, board-scaled mean and max over the board:
// (batch, C, H, W) -> (batch, 3C).
func (l *lowerer) globalPool(x, path string) string {
	mean := l.reduce("reduce_mean", x, path, "mean")
	scaled := l.scale(mean, path, "scaled_mean", l.boardScale())
	maxPool := l.reduce("reduce_max", x, path, "max")
	return l.concat(path, mean, scaled, maxPool)
}

// valuePool concatenates mean, mean*s and mean*(s*s-0.1) with s the board
// scale: (batch, C, H, W) -> (batch, 3C).
func (l *lowerer) valuePool(x, path string) string {
	s := l.boardScale()
	mean := l.reduce("reduce_mean", x, path, "mean")
	linear := l.scale(mean, path, "linear", s)
	quadratic := l.scale(mean, path, "quadratic", s*s-0.1)
	return l.concat(path, mean, linear, quadratic)
}
