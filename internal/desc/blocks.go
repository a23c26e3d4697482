package desc

import "fmt"

// BlockKind tags the trunk block variants.
type BlockKind int

// Block kinds.
const (
	KindOrdinary         BlockKind = 0
	KindGlobalPooling    BlockKind = 2
	KindNestedBottleneck BlockKind = 3
)

// String returns the configuration spelling of the kind.
func (k BlockKind) String() string {
	switch k {
	case KindOrdinary:
		return "ordinary"
	case KindGlobalPooling:
		return "gpool"
	case KindNestedBottleneck:
		return "nested_bottleneck"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// ParseBlockKind parses "ordinary", "gpool" or "nested_bottleneck".
func ParseBlockKind(s string) (BlockKind, error) {
	switch s {
	case "ordinary", "regular":
		return KindOrdinary, nil
	case "gpool", "global_pooling":
		return KindGlobalPooling, nil
	case "nested_bottleneck", "nested":
		return KindNestedBottleneck, nil
	default:
		return 0, fmt.Errorf("unknown block kind %q", s)
	}
}

// Block is one trunk block. The set of implementations is closed.
type Block interface {
	Kind() BlockKind
	BlockName() string
	isBlock()
}

// ResidualBlock is pre-BN/act, conv, mid-BN/act, conv, plus a skip add.
type ResidualBlock struct {
	Name          string
	PreBN         BatchNormLayer
	PreActivation ActivationLayer
	RegularConv   ConvLayer
	MidBN         BatchNormLayer
	MidActivation ActivationLayer
	FinalConv     ConvLayer
}

// GlobalPoolingResidualBlock adds a pooled branch whose matmul output is
// injected as a per-channel bias before the mid normalization.
type GlobalPoolingResidualBlock struct {
	Name            string
	ModelVersion    int
	PreBN           BatchNormLayer
	PreActivation   ActivationLayer
	RegularConv     ConvLayer
	GPoolConv       ConvLayer
	GPoolBN         BatchNormLayer
	GPoolActivation ActivationLayer
	GPoolToBiasMul  MatMulLayer
	MidBN           BatchNormLayer
	MidActivation   ActivationLayer
	FinalConv       ConvLayer
}

// NestedBottleneckResidualBlock wraps a sequence of sub-blocks in an outer
// pre and post convolution.
type NestedBottleneckResidualBlock struct {
	Name           string
	PreBN          BatchNormLayer
	PreActivation  ActivationLayer
	PreConv        ConvLayer
	Blocks         []Block
	PostBN         BatchNormLayer
	PostActivation ActivationLayer
	PostConv       ConvLayer
}

func (*ResidualBlock) Kind() BlockKind                 { return KindOrdinary }
func (*GlobalPoolingResidualBlock) Kind() BlockKind    { return KindGlobalPooling }
func (*NestedBottleneckResidualBlock) Kind() BlockKind { return KindNestedBottleneck }

func (b *ResidualBlock) BlockName() string                 { return b.Name }
func (b *GlobalPoolingResidualBlock) BlockName() string    { return b.Name }
func (b *NestedBottleneckResidualBlock) BlockName() string { return b.Name }

func (*ResidualBlock) isBlock()                 {}
func (*GlobalPoolingResidualBlock) isBlock()    {}
func (*NestedBottleneckResidualBlock) isBlock() {}
