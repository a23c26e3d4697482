package mil

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Unmarshal decodes a Core ML Model protobuf produced by Marshal.
// Fields outside the subset this package models are skipped.
func Unmarshal(data []byte) (*Model, error) {
	m := &Model{}
	err := readFields(data, func(f field) error {
		switch f.num {
		case fieldModelSpecificationVersion:
			m.SpecificationVersion = int(f.val) //nolint:gosec // G115: small enum
		case fieldModelDescription:
			return readDescription(f.buf, &m.Description)
		case fieldModelMLProgram:
			m.Program = &Program{}
			return readProgram(f.buf, m.Program)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if m.Program == nil {
		return nil, fmt.Errorf("%w: model has no ML program", ErrMalformed)
	}
	return m, nil
}

// field is one decoded protobuf field. Varint and fixed-width values are
// stored in val, length-delimited payloads in buf.
type field struct {
	num protowire.Number
	typ protowire.Type
	val uint64
	buf []byte
}

func readFields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.val, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(data)
			f.val = uint64(v)
		case protowire.Fixed64Type:
			f.val, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.buf, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// expect rejects a known field carrying the wrong wire type.
func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, f.num, f.typ, typ)
	}
	return nil
}

func readDescription(data []byte, d *Description) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldDescriptionInput, fieldDescriptionOutput:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			var feat Feature
			if err := readFeature(f.buf, &feat); err != nil {
				return err
			}
			if f.num == fieldDescriptionInput {
				d.Inputs = append(d.Inputs, feat)
			} else {
				d.Outputs = append(d.Outputs, feat)
			}
		case fieldDescriptionMetadata:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			return readMetadata(f.buf, &d.Metadata)
		}
		return nil
	})
}

func readMetadata(data []byte, md *Metadata) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldMetadataShortDescription:
			md.ShortDescription = string(f.buf)
		case fieldMetadataVersionString:
			md.VersionString = string(f.buf)
		case fieldMetadataAuthor:
			md.Author = string(f.buf)
		case fieldMetadataLicense:
			md.License = string(f.buf)
		case fieldMetadataUserDefined:
			key, value, err := readMapEntry(f)
			if err != nil {
				return err
			}
			if md.UserDefined == nil {
				md.UserDefined = make(map[string]string)
			}
			md.UserDefined[key] = string(value)
		}
		return nil
	})
}

func readFeature(data []byte, feat *Feature) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldFeatureName:
			feat.Name = string(f.buf)
		case fieldFeatureShortDescription:
			feat.Description = string(f.buf)
		case fieldFeatureType:
			return readFields(f.buf, func(tf field) error {
				if tf.num != fieldFeatureTypeMultiArray {
					return fmt.Errorf("%w: feature %q is not a multi-array", ErrMalformed, feat.Name)
				}
				return readArrayType(tf.buf, feat)
			})
		}
		return nil
	})
}

func readArrayType(data []byte, feat *Feature) error {
	dataType := uint64(0)
	err := readFields(data, func(f field) error {
		switch f.num {
		case fieldArrayShape:
			dims, err := appendVarints(nil, f)
			if err != nil {
				return err
			}
			for _, d := range dims {
				feat.Shape = append(feat.Shape, int(d)) //nolint:gosec // G115: array dimensions fit in int
			}
		case fieldArrayDataType:
			dataType = f.val
		}
		return nil
	})
	if err != nil {
		return err
	}
	if dataType != arrayDataTypeFloat32 {
		return fmt.Errorf("%w: feature %q has array data type %d, only float32 is supported",
			ErrMalformed, feat.Name, dataType)
	}
	return nil
}

func readProgram(data []byte, p *Program) error {
	p.Functions = make(map[string]*Function)
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldProgramVersion:
			p.Version = int64(f.val) //nolint:gosec // G115: small version number
		case fieldProgramFunctions:
			name, value, err := readMapEntry(f)
			if err != nil {
				return err
			}
			fn := &Function{}
			if err := readFunction(value, fn); err != nil {
				return fmt.Errorf("function %q: %w", name, err)
			}
			p.Functions[name] = fn
		}
		return nil
	})
}

func readFunction(data []byte, fn *Function) error {
	fn.Blocks = make(map[string]*Block)
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldFunctionInputs:
			nt, err := readNamedTensor(f.buf)
			if err != nil {
				return err
			}
			fn.Inputs = append(fn.Inputs, nt)
		case fieldFunctionOpset:
			fn.Opset = string(f.buf)
		case fieldFunctionBlocks:
			opset, value, err := readMapEntry(f)
			if err != nil {
				return err
			}
			blk := &Block{}
			if err := readBlock(value, blk); err != nil {
				return fmt.Errorf("block %q: %w", opset, err)
			}
			fn.Blocks[opset] = blk
		}
		return nil
	})
}

func readBlock(data []byte, blk *Block) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldBlockOutputs:
			blk.Outputs = append(blk.Outputs, string(f.buf))
		case fieldBlockOperations:
			op := &Operation{}
			if err := readOperation(f.buf, op); err != nil {
				return fmt.Errorf("operation %d: %w", len(blk.Operations), err)
			}
			blk.Operations = append(blk.Operations, op)
		}
		return nil
	})
}

func readOperation(data []byte, op *Operation) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldOperationType:
			op.Type = string(f.buf)
		case fieldOperationInputs:
			param, value, err := readMapEntry(f)
			if err != nil {
				return err
			}
			refs, err := readArgument(value)
			if err != nil {
				return fmt.Errorf("input %q: %w", param, err)
			}
			if op.Inputs == nil {
				op.Inputs = make(Args)
			}
			op.Inputs[param] = refs
		case fieldOperationOutputs:
			nt, err := readNamedTensor(f.buf)
			if err != nil {
				return err
			}
			op.Outputs = append(op.Outputs, nt)
		case fieldOperationAttributes:
			name, value, err := readMapEntry(f)
			if err != nil {
				return err
			}
			var v Value
			if err := readValue(value, &v); err != nil {
				return fmt.Errorf("attribute %q: %w", name, err)
			}
			if op.Attributes == nil {
				op.Attributes = make(map[string]Value)
			}
			op.Attributes[name] = v
		}
		return nil
	})
}

func readArgument(data []byte) ([]string, error) {
	var refs []string
	err := readFields(data, func(f field) error {
		if f.num != fieldArgumentArguments {
			return nil
		}
		var name string
		bound := false
		err := readFields(f.buf, func(bf field) error {
			if bf.num == fieldBindingName {
				name = string(bf.buf)
				bound = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !bound {
			return fmt.Errorf("%w: argument binds an inline value, only tensor names are supported", ErrMalformed)
		}
		refs = append(refs, name)
		return nil
	})
	return refs, err
}

func readNamedTensor(data []byte) (NamedTensor, error) {
	var nt NamedTensor
	err := readFields(data, func(f field) error {
		switch f.num {
		case fieldNamedValueTypeName:
			nt.Name = string(f.buf)
		case fieldNamedValueTypeType:
			t, err := readValueType(f.buf)
			if err != nil {
				return fmt.Errorf("tensor %q: %w", nt.Name, err)
			}
			nt.Type = t
		}
		return nil
	})
	return nt, err
}

func readValueType(data []byte) (TensorType, error) {
	var t TensorType
	found := false
	err := readFields(data, func(f field) error {
		if f.num != fieldValueTypeTensor {
			return fmt.Errorf("%w: only tensor value types are supported (field %d)", ErrMalformed, f.num)
		}
		found = true
		rank := uint64(0)
		err := readFields(f.buf, func(tf field) error {
			switch tf.num {
			case fieldTensorTypeDataType:
				t.DataType = DataType(tf.val) //nolint:gosec // G115: small enum
			case fieldTensorTypeRank:
				rank = tf.val
			case fieldTensorTypeDimensions:
				size, err := readDimension(tf.buf)
				if err != nil {
					return err
				}
				t.Shape = append(t.Shape, size)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if rank != uint64(len(t.Shape)) {
			return fmt.Errorf("%w: rank %d with %d dimensions", ErrMalformed, rank, len(t.Shape))
		}
		return nil
	})
	if err == nil && !found {
		err = fmt.Errorf("%w: empty value type", ErrMalformed)
	}
	return t, err
}

func readDimension(data []byte) (int, error) {
	size := -1
	err := readFields(data, func(f field) error {
		if f.num != fieldDimensionConstant {
			return fmt.Errorf("%w: only constant dimensions are supported", ErrMalformed)
		}
		size = 0
		return readFields(f.buf, func(cf field) error {
			if cf.num == fieldConstantDimensionSize {
				size = int(cf.val) //nolint:gosec // G115: dimensions fit in int
			}
			return nil
		})
	})
	if err == nil && size < 0 {
		err = fmt.Errorf("%w: empty dimension", ErrMalformed)
	}
	return size, err
}

func readValue(data []byte, v *Value) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldValueType:
			t, err := readValueType(f.buf)
			if err != nil {
				return err
			}
			v.Type = t
		case fieldValueImmediate:
			return readFields(f.buf, func(imf field) error {
				if imf.num != fieldImmediateTensor {
					return fmt.Errorf("%w: only tensor immediates are supported", ErrMalformed)
				}
				v.Immediate = &Immediate{}
				return readTensorValue(imf.buf, v.Immediate)
			})
		case fieldValueBlobFile:
			v.Blob = &BlobRef{}
			return readFields(f.buf, func(bf field) error {
				switch bf.num {
				case fieldBlobFileName:
					v.Blob.FileName = string(bf.buf)
				case fieldBlobOffset:
					v.Blob.Offset = bf.val
				}
				return nil
			})
		}
		return nil
	})
}

func readTensorValue(data []byte, im *Immediate) error {
	return readFields(data, func(f field) error {
		switch f.num {
		case fieldTensorValueFloats:
			im.Floats = []float32{}
			return readFields(f.buf, func(vf field) error {
				bits, err := appendFixed32s(nil, vf)
				for _, b := range bits {
					im.Floats = append(im.Floats, math.Float32frombits(b))
				}
				return err
			})
		case fieldTensorValueInts:
			im.Ints = []int32{}
			return readFields(f.buf, func(vf field) error {
				vals, err := appendVarints(nil, vf)
				for _, v := range vals {
					im.Ints = append(im.Ints, int32(v)) //nolint:gosec // G115: int32 sign-extended on the wire
				}
				return err
			})
		case fieldTensorValueBools:
			im.Bools = []bool{}
			return readFields(f.buf, func(vf field) error {
				vals, err := appendVarints(nil, vf)
				for _, v := range vals {
					im.Bools = append(im.Bools, protowire.DecodeBool(v))
				}
				return err
			})
		case fieldTensorValueStrings:
			im.Strings = []string{}
			return readFields(f.buf, func(vf field) error {
				if vf.num == fieldRepeatedValues {
					im.Strings = append(im.Strings, string(vf.buf))
				}
				return nil
			})
		}
		return nil
	})
}

func readMapEntry(f field) (string, []byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", nil, err
	}
	var key string
	var value []byte
	err := readFields(f.buf, func(ef field) error {
		switch ef.num {
		case fieldMapKey:
			key = string(ef.buf)
		case fieldMapValue:
			value = ef.buf
		}
		return nil
	})
	return key, value, err
}

// appendVarints accepts both packed and unpacked encodings.
func appendVarints(dst []uint64, f field) ([]uint64, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, f.val), nil
	case protowire.BytesType:
		b := f.buf
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, fmt.Errorf("%w: packed field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
			}
			dst = append(dst, v)
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, fmt.Errorf("%w: field %d has wire type %d, want varint", ErrMalformed, f.num, f.typ)
	}
}

// appendFixed32s accepts both packed and unpacked encodings.
func appendFixed32s(dst []uint32, f field) ([]uint32, error) {
	switch f.typ {
	case protowire.Fixed32Type:
		return append(dst, uint32(f.val)), nil //nolint:gosec // G115: fixed32 payload
	case protowire.BytesType:
		b := f.buf
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return dst, fmt.Errorf("%w: packed field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
			}
			dst = append(dst, v)
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, fmt.Errorf("%w: field %d has wire type %d, want fixed32", ErrMalformed, f.num, f.typ)
	}
}
