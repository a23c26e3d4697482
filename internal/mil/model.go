package mil

import "fmt"

// Feature is a model-level float32 multi-array input or output.
type Feature struct {
	Name        string
	Description string
	Shape       []int
}

// Metadata is the Core ML model metadata block.
type Metadata struct {
	ShortDescription string
	VersionString    string
	Author           string
	License          string
	UserDefined      map[string]string
}

// Description declares the model's inputs, outputs and metadata.
type Description struct {
	Inputs   []Feature
	Outputs  []Feature
	Metadata Metadata
}

// Model is a Core ML model whose body is an ML Program.
type Model struct {
	SpecificationVersion int
	Description          Description
	Program              *Program
}

// Validate checks the program and that the model description matches the
// main function's signature and block outputs.
func (m *Model) Validate() error {
	if m.Program == nil {
		return fmt.Errorf("%w: model has no program", ErrMalformed)
	}
	opset, err := OpsetFor(m.SpecificationVersion)
	if err != nil {
		return err
	}
	if err := m.Program.Validate(); err != nil {
		return err
	}

	fn := m.Program.Main()
	if fn.Opset != opset {
		return fmt.Errorf("%w: main targets opset %q, specification version %d requires %q",
			ErrMalformed, fn.Opset, m.SpecificationVersion, opset)
	}
	if len(fn.Inputs) != len(m.Description.Inputs) {
		return fmt.Errorf("%w: %d declared inputs, main takes %d",
			ErrMalformed, len(m.Description.Inputs), len(fn.Inputs))
	}
	for i, in := range m.Description.Inputs {
		arg := fn.Inputs[i]
		if arg.Name != in.Name || !arg.Type.Equal(Tensor(Float32, in.Shape...)) {
			return fmt.Errorf("%w: input %d is %s %s, main takes %s %s",
				ErrMalformed, i, in.Name, Tensor(Float32, in.Shape...), arg.Name, arg.Type)
		}
	}

	blk := fn.Block()
	if len(blk.Outputs) != len(m.Description.Outputs) {
		return fmt.Errorf("%w: %d declared outputs, block produces %d",
			ErrMalformed, len(m.Description.Outputs), len(blk.Outputs))
	}
	types := make(map[string]TensorType)
	for _, op := range blk.Operations {
		for _, out := range op.Outputs {
			types[out.Name] = out.Type
		}
	}
	for i, out := range m.Description.Outputs {
		want := Tensor(Float32, out.Shape...)
		if blk.Outputs[i] != out.Name || !types[out.Name].Equal(want) {
			return fmt.Errorf("%w: output %d is %s %s, block produces %s %s",
				ErrMalformed, i, out.Name, want, blk.Outputs[i], types[blk.Outputs[i]])
		}
	}
	return nil
}

// OpCounts returns how many operations of each type the main block holds.
func (m *Model) OpCounts() map[string]int {
	counts := make(map[string]int)
	if m.Program == nil || m.Program.Main() == nil || m.Program.Main().Block() == nil {
		return counts
	}
	for _, op := range m.Program.Main().Block().Operations {
		counts[op.Type]++
	}
	return counts
}
