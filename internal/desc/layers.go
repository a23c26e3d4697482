package desc

import (
	"fmt"
	"strings"
)

// ActivationKind selects an activation function.
type ActivationKind int

// Activation kinds.
const (
	Identity ActivationKind = 0
	ReLU     ActivationKind = 1
	Mish     ActivationKind = 2
)

// String returns the lower-case activation name.
func (k ActivationKind) String() string {
	switch k {
	case Identity:
		return "identity"
	case ReLU:
		return "relu"
	case Mish:
		return "mish"
	default:
		return fmt.Sprintf("ActivationKind(%d)", int(k))
	}
}

// ParseActivation parses "identity", "relu" or "mish".
func ParseActivation(s string) (ActivationKind, error) {
	switch strings.ToLower(s) {
	case "identity":
		return Identity, nil
	case "relu":
		return ReLU, nil
	case "mish":
		return Mish, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

// ConvLayer is a 2D convolution with same-size padding.
// Weights are laid out (OutChannels, InChannels, ConvY, ConvX).
type ConvLayer struct {
	Name        string
	ConvY       int
	ConvX       int
	InChannels  int
	OutChannels int
	DilationY   int
	DilationX   int
	Weights     []float32
}

// BatchNormLayer is an inference-mode batch normalization.
type BatchNormLayer struct {
	Name        string
	NumChannels int
	Epsilon     float32
	HasScale    bool
	HasBias     bool
	Mean        []float32
	Variance    []float32
	Scale       []float32
	Bias        []float32
}

// ActivationLayer applies an activation function.
type ActivationLayer struct {
	Name string
	Kind ActivationKind
}

// MatMulLayer multiplies a (batch, InChannels) tensor by a weight matrix
// laid out (InChannels, OutChannels).
type MatMulLayer struct {
	Name        string
	InChannels  int
	OutChannels int
	Weights     []float32
}

// MatBiasLayer adds a per-channel bias to a (batch, NumChannels) tensor.
type MatBiasLayer struct {
	Name        string
	NumChannels int
	Weights     []float32
}
