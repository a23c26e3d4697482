package mil

import (
	"errors"
	"fmt"
)

// Validate replays the block through a builder, checking that every input
// reference resolves to a function input or an earlier output, that names
// are unique and that the declared outputs exist.
func (blk *Block) Validate(inputs []NamedTensor) error {
	b, err := NewBlockBuilder(inputs)
	if err != nil {
		return err
	}
	for i, op := range blk.Operations {
		if op == nil {
			return fmt.Errorf("%w: operation %d is nil", ErrMalformed, i)
		}
		if err := b.Add(op); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	if err := b.Output(blk.Outputs...); err != nil {
		return err
	}
	_, err = b.Seal()
	return err
}

// Validate checks the function's block for its own opset.
func (f *Function) Validate() error {
	if f.Opset == "" {
		return fmt.Errorf("%w: function without opset", ErrMalformed)
	}
	blk := f.Block()
	if blk == nil {
		return fmt.Errorf("%w: no block for opset %q", ErrMalformed, f.Opset)
	}
	return blk.Validate(f.Inputs)
}

// Validate checks every function of the program.
func (p *Program) Validate() error {
	if p.Main() == nil {
		return fmt.Errorf("%w: program has no %q function", ErrMalformed, MainFunction)
	}
	var errs []error
	for _, name := range sortedKeys(p.Functions) {
		if err := p.Functions[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("function %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
