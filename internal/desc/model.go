package desc

// MetadataEncoder embeds the optional game-metadata input into a trunk bias.
type MetadataEncoder struct {
	Name                 string
	Version              int
	NumInputMetaChannels int
	Mul1                 MatMulLayer
	Bias1                MatBiasLayer
	Act1                 ActivationLayer
	Mul2                 MatMulLayer
	Bias2                MatBiasLayer
	Act2                 ActivationLayer
	Mul3                 MatMulLayer
}

// Trunk is the shared residual tower.
type Trunk struct {
	Name               string
	ModelVersion       int
	TrunkNumChannels   int
	MidNumChannels     int
	RegularNumChannels int
	GPoolNumChannels   int
	MetaEncoderVersion int
	InitialConv        ConvLayer
	InitialMatMul      MatMulLayer
	MetadataEncoder    *MetadataEncoder
	Blocks             []Block
	TipBN              BatchNormLayer
	TipActivation      ActivationLayer
}

// PolicyHead produces the policy and policy-pass outputs.
type PolicyHead struct {
	Name              string
	ModelVersion      int
	PolicyOutChannels int
	P1Conv            ConvLayer
	G1Conv            ConvLayer
	G1BN              BatchNormLayer
	G1Activation      ActivationLayer
	GPoolToBiasMul    MatMulLayer
	P1BN              BatchNormLayer
	P1Activation      ActivationLayer
	P2Conv            ConvLayer
	GPoolToPassMul    MatMulLayer
	// The remaining pass layers are used from model version 15 on.
	GPoolToPassBias MatBiasLayer
	PassActivation  ActivationLayer
	GPoolToPassMul2 MatMulLayer
}

// HasPassHidden reports whether the policy pass path has a hidden layer
// (bias, activation and a second matmul) at this model version.
func HasPassHidden(modelVersion int) bool {
	return modelVersion >= 15
}

// ValueHead produces the value, score-value and ownership outputs.
type ValueHead struct {
	Name           string
	ModelVersion   int
	V1Conv         ConvLayer
	V1BN           BatchNormLayer
	V1Activation   ActivationLayer
	V2Mul          MatMulLayer
	V2Bias         MatBiasLayer
	V2Activation   ActivationLayer
	V3Mul          MatMulLayer
	V3Bias         MatBiasLayer
	SV3Mul         MatMulLayer
	SV3Bias        MatBiasLayer
	VOwnershipConv ConvLayer
}

// PostProcessParams are scalar multipliers applied by the consumer to raw
// network outputs. They are carried into the package metadata.
type PostProcessParams struct {
	TDScoreMultiplier             float64
	ScoreMeanMultiplier           float64
	ScoreStdevMultiplier          float64
	LeadMultiplier                float64
	VarianceTimeMultiplier        float64
	ShorttermValueErrorMultiplier float64
	ShorttermScoreErrorMultiplier float64
}

// DefaultPostProcessParams returns the standard multipliers.
func DefaultPostProcessParams() PostProcessParams {
	return PostProcessParams{
		TDScoreMultiplier:             20,
		ScoreMeanMultiplier:           20,
		ScoreStdevMultiplier:          20,
		LeadMultiplier:                20,
		VarianceTimeMultiplier:        40,
		ShorttermValueErrorMultiplier: 0.25,
		ShorttermScoreErrorMultiplier: 30,
	}
}

// Model is the root descriptor.
type Model struct {
	Name                   string
	SHA256                 string
	ModelVersion           int
	NumInputChannels       int
	NumInputGlobalChannels int
	NumInputMetaChannels   int
	NumPolicyChannels      int
	NumValueChannels       int
	NumScoreValueChannels  int
	NumOwnershipChannels   int
	MetaEncoderVersion     int
	PostProcess            PostProcessParams
	Trunk                  Trunk
	PolicyHead             PolicyHead
	ValueHead              ValueHead
}

// NumBlocks returns the number of trunk blocks, counting nested sub-blocks.
func (m *Model) NumBlocks() int {
	return countBlocks(m.Trunk.Blocks)
}

func countBlocks(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		n++
		if nb, ok := b.(*NestedBottleneckResidualBlock); ok {
			n += countBlocks(nb.Blocks)
		}
	}
	return n
}
