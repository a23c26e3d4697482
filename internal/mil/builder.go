package mil

import (
	"fmt"
	"sort"
)

// BlockBuilder assembles a Block one operation at a time, rejecting
// references to tensors that do not exist yet and names that already do.
type BlockBuilder struct {
	inputs  map[string]TensorType
	tensors map[string]TensorType
	ops     []*Operation
	outputs []string
	sealed  bool
}

// NewBlockBuilder starts a block inside a function with the given inputs.
func NewBlockBuilder(inputs []NamedTensor) (*BlockBuilder, error) {
	b := &BlockBuilder{
		inputs:  make(map[string]TensorType, len(inputs)),
		tensors: make(map[string]TensorType),
	}
	for _, in := range inputs {
		if _, dup := b.inputs[in.Name]; dup {
			return nil, fmt.Errorf("%w: function input %q", ErrDuplicateTensor, in.Name)
		}
		b.inputs[in.Name] = in.Type
	}
	return b, nil
}

// Tensor returns the type of a function input or an already produced tensor.
func (b *BlockBuilder) Tensor(name string) (TensorType, bool) {
	if t, ok := b.tensors[name]; ok {
		return t, true
	}
	t, ok := b.inputs[name]
	return t, ok
}

// Len returns the number of operations added so far.
func (b *BlockBuilder) Len() int {
	return len(b.ops)
}

// Add appends an operation after checking its references and outputs.
func (b *BlockBuilder) Add(op *Operation) error {
	if b.sealed {
		return ErrSealed
	}
	if op.Type == "" {
		return fmt.Errorf("%w: operation without type", ErrMalformed)
	}
	if len(op.Outputs) == 0 {
		return fmt.Errorf("%w: %s operation %q has no outputs", ErrMalformed, op.Type, op.Name())
	}

	for _, param := range sortedKeys(op.Inputs) {
		for _, ref := range op.Inputs[param] {
			if _, ok := b.Tensor(ref); !ok {
				return fmt.Errorf("%w: %s %q input %s=%q", ErrUnknownTensor, op.Type, op.Name(), param, ref)
			}
		}
	}

	seen := make(map[string]bool, len(op.Outputs))
	for _, out := range op.Outputs {
		if err := out.Type.validate(); err != nil {
			return fmt.Errorf("output %q: %w", out.Name, err)
		}
		if _, ok := b.Tensor(out.Name); ok || seen[out.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTensor, out.Name)
		}
		seen[out.Name] = true
	}

	for _, out := range op.Outputs {
		b.tensors[out.Name] = out.Type
	}
	b.ops = append(b.ops, op)
	return nil
}

// Const adds a const operation producing name with value v and returns name.
func (b *BlockBuilder) Const(name string, v Value) (string, error) {
	op := &Operation{
		Type:    "const",
		Outputs: []NamedTensor{{Name: name, Type: v.Type}},
		Attributes: map[string]Value{
			"name": StringValue(name),
			"val":  v,
		},
	}
	if err := b.Add(op); err != nil {
		return "", err
	}
	return name, nil
}

// Op adds a single-output operation named after its output and returns
// the output name.
func (b *BlockBuilder) Op(typ, name string, inputs Args, out TensorType) (string, error) {
	if len(inputs) == 0 {
		inputs = nil
	}
	op := &Operation{
		Type:       typ,
		Inputs:     inputs,
		Outputs:    []NamedTensor{{Name: name, Type: out}},
		Attributes: map[string]Value{"name": StringValue(name)},
	}
	if err := b.Add(op); err != nil {
		return "", err
	}
	return name, nil
}

// Output declares tensors as block outputs, in order.
func (b *BlockBuilder) Output(names ...string) error {
	if b.sealed {
		return ErrSealed
	}
	for _, name := range names {
		if _, ok := b.Tensor(name); !ok {
			return fmt.Errorf("%w: block output %q", ErrUnknownTensor, name)
		}
		for _, existing := range b.outputs {
			if existing == name {
				return fmt.Errorf("%w: block output %q declared twice", ErrDuplicateTensor, name)
			}
		}
		b.outputs = append(b.outputs, name)
	}
	return nil
}

// Seal finishes the block. The builder rejects further changes.
func (b *BlockBuilder) Seal() (*Block, error) {
	if b.sealed {
		return nil, ErrSealed
	}
	if len(b.outputs) == 0 {
		return nil, fmt.Errorf("%w: block declares no outputs", ErrMalformed)
	}
	b.sealed = true
	return &Block{Operations: b.ops, Outputs: b.outputs}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
