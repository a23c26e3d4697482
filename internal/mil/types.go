package mil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Common errors.
var (
	ErrUnknownTensor   = errors.New("reference to unknown tensor")
	ErrDuplicateTensor = errors.New("duplicate tensor name")
	ErrSealed          = errors.New("block is sealed")
	ErrMalformed       = errors.New("malformed program")
)

// DataType is a MIL element type.
type DataType int32

// MIL element types (values match the MIL protobuf enum).
const (
	Bool    DataType = 1
	String  DataType = 2
	Float16 DataType = 10
	Float32 DataType = 11
	Float64 DataType = 12
	Int32   DataType = 23
	Int64   DataType = 24
)

// String returns the MIL spelling of the type.
func (d DataType) String() string {
	switch d {
	case Bool:
		return "bool"
	case String:
		return "string"
	case Float16:
		return "fp16"
	case Float32:
		return "fp32"
	case Float64:
		return "fp64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int32(d))
	}
}

// TensorType is an element type plus a static shape. A nil shape is a scalar.
type TensorType struct {
	DataType DataType
	Shape    []int
}

// Tensor returns a tensor type with the given shape.
func Tensor(dt DataType, shape ...int) TensorType {
	if len(shape) == 0 {
		return TensorType{DataType: dt}
	}
	return TensorType{DataType: dt, Shape: append([]int(nil), shape...)}
}

// Rank returns the number of dimensions.
func (t TensorType) Rank() int {
	return len(t.Shape)
}

// NumElements returns the product of the dimensions (1 for scalars).
func (t TensorType) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Equal reports whether two tensor types are identical.
func (t TensorType) Equal(o TensorType) bool {
	if t.DataType != o.DataType || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

func (t TensorType) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = strconv.Itoa(d)
	}
	return t.DataType.String() + "[" + strings.Join(dims, ",") + "]"
}

func (t TensorType) validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %s", ErrMalformed, t)
		}
	}
	return nil
}

// NamedTensor is a named, typed value in a block or function signature.
type NamedTensor struct {
	Name string
	Type TensorType
}

// Args maps an operation parameter to the tensors bound to it.
// Most parameters bind exactly one tensor; variadic ones like concat's
// "values" bind several.
type Args map[string][]string

// Operation is a single MIL operation.
type Operation struct {
	Type       string
	Inputs     Args
	Outputs    []NamedTensor
	Attributes map[string]Value
}

// Name returns the operation's "name" attribute, if any.
func (op *Operation) Name() string {
	v, ok := op.Attributes["name"]
	if !ok || v.Immediate == nil || len(v.Immediate.Strings) != 1 {
		return ""
	}
	return v.Immediate.Strings[0]
}

// Block is a sealed sequence of operations with declared outputs.
type Block struct {
	Operations []*Operation
	Outputs    []string
}

// Function is a MIL function: typed inputs plus one block per opset.
type Function struct {
	Inputs []NamedTensor
	Opset  string
	Blocks map[string]*Block
}

// Block returns the block specialized for the function's opset.
func (f *Function) Block() *Block {
	return f.Blocks[f.Opset]
}

// MainFunction is the conventional name of a program's entry function.
const MainFunction = "main"

// Program is the top-level MIL artifact.
type Program struct {
	Version   int64
	Functions map[string]*Function
}

// Main returns the program's entry function, or nil.
func (p *Program) Main() *Function {
	return p.Functions[MainFunction]
}
