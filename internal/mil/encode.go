package mil

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal validates m and encodes it as a Core ML Model protobuf.
// Map fields are written in sorted key order, so equal models encode to
// identical bytes.
func Marshal(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate model: %w", err)
	}

	var b []byte
	//nolint:gosec // G115: specification versions are small
	b = appendVarintField(b, fieldModelSpecificationVersion, uint64(m.SpecificationVersion))
	b = appendMessageField(b, fieldModelDescription, encodeDescription(&m.Description))
	b = appendMessageField(b, fieldModelMLProgram, encodeProgram(m.Program))
	return b, nil
}

func encodeDescription(d *Description) []byte {
	var b []byte
	for i := range d.Inputs {
		b = appendMessageField(b, fieldDescriptionInput, encodeFeature(&d.Inputs[i]))
	}
	for i := range d.Outputs {
		b = appendMessageField(b, fieldDescriptionOutput, encodeFeature(&d.Outputs[i]))
	}
	return appendMessageField(b, fieldDescriptionMetadata, encodeMetadata(&d.Metadata))
}

func encodeMetadata(md *Metadata) []byte {
	var b []byte
	b = appendStringField(b, fieldMetadataShortDescription, md.ShortDescription)
	b = appendStringField(b, fieldMetadataVersionString, md.VersionString)
	b = appendStringField(b, fieldMetadataAuthor, md.Author)
	b = appendStringField(b, fieldMetadataLicense, md.License)
	for _, k := range sortedKeys(md.UserDefined) {
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, k)
		entry = appendStringField(entry, fieldMapValue, md.UserDefined[k])
		b = appendMessageField(b, fieldMetadataUserDefined, entry)
	}
	return b
}

func encodeFeature(f *Feature) []byte {
	var shape []byte
	for _, d := range f.Shape {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	var array []byte
	if len(shape) > 0 {
		array = appendMessageField(array, fieldArrayShape, shape)
	}
	array = appendVarintField(array, fieldArrayDataType, arrayDataTypeFloat32)

	typ := appendMessageField(nil, fieldFeatureTypeMultiArray, array)

	var b []byte
	b = appendStringField(b, fieldFeatureName, f.Name)
	b = appendStringField(b, fieldFeatureShortDescription, f.Description)
	return appendMessageField(b, fieldFeatureType, typ)
}

func encodeProgram(p *Program) []byte {
	var b []byte
	//nolint:gosec // G115: program versions are small
	b = appendVarintField(b, fieldProgramVersion, uint64(p.Version))
	for _, name := range sortedKeys(p.Functions) {
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, name)
		entry = appendMessageField(entry, fieldMapValue, encodeFunction(p.Functions[name]))
		b = appendMessageField(b, fieldProgramFunctions, entry)
	}
	return b
}

func encodeFunction(f *Function) []byte {
	var b []byte
	for i := range f.Inputs {
		b = appendMessageField(b, fieldFunctionInputs, encodeNamedTensor(&f.Inputs[i]))
	}
	b = appendStringField(b, fieldFunctionOpset, f.Opset)
	for _, opset := range sortedKeys(f.Blocks) {
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, opset)
		entry = appendMessageField(entry, fieldMapValue, encodeBlock(f.Blocks[opset]))
		b = appendMessageField(b, fieldFunctionBlocks, entry)
	}
	return b
}

func encodeBlock(blk *Block) []byte {
	var b []byte
	for _, out := range blk.Outputs {
		b = protowire.AppendTag(b, fieldBlockOutputs, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	for _, op := range blk.Operations {
		b = appendMessageField(b, fieldBlockOperations, encodeOperation(op))
	}
	return b
}

func encodeOperation(op *Operation) []byte {
	var b []byte
	b = appendStringField(b, fieldOperationType, op.Type)
	for _, param := range sortedKeys(op.Inputs) {
		var arg []byte
		for _, ref := range op.Inputs[param] {
			binding := appendStringField(nil, fieldBindingName, ref)
			arg = appendMessageField(arg, fieldArgumentArguments, binding)
		}
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, param)
		entry = appendMessageField(entry, fieldMapValue, arg)
		b = appendMessageField(b, fieldOperationInputs, entry)
	}
	for i := range op.Outputs {
		b = appendMessageField(b, fieldOperationOutputs, encodeNamedTensor(&op.Outputs[i]))
	}
	for _, name := range sortedKeys(op.Attributes) {
		v := op.Attributes[name]
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, name)
		entry = appendMessageField(entry, fieldMapValue, encodeValue(&v))
		b = appendMessageField(b, fieldOperationAttributes, entry)
	}
	return b
}

func encodeNamedTensor(nt *NamedTensor) []byte {
	var b []byte
	b = appendStringField(b, fieldNamedValueTypeName, nt.Name)
	return appendMessageField(b, fieldNamedValueTypeType, encodeValueType(nt.Type))
}

func encodeValueType(t TensorType) []byte {
	var tt []byte
	//nolint:gosec // G115: MIL data types are small positive enums
	tt = appendVarintField(tt, fieldTensorTypeDataType, uint64(t.DataType))
	tt = appendVarintField(tt, fieldTensorTypeRank, uint64(t.Rank()))
	for _, d := range t.Shape {
		//nolint:gosec // G115: dimensions are validated non-negative
		constant := appendVarintField(nil, fieldConstantDimensionSize, uint64(d))
		dim := appendMessageField(nil, fieldDimensionConstant, constant)
		tt = appendMessageField(tt, fieldTensorTypeDimensions, dim)
	}
	return appendMessageField(nil, fieldValueTypeTensor, tt)
}

func encodeValue(v *Value) []byte {
	var b []byte
	b = appendMessageField(b, fieldValueType, encodeValueType(v.Type))
	switch {
	case v.Blob != nil:
		var blob []byte
		blob = appendStringField(blob, fieldBlobFileName, v.Blob.FileName)
		blob = appendVarintField(blob, fieldBlobOffset, v.Blob.Offset)
		b = appendMessageField(b, fieldValueBlobFile, blob)
	case v.Immediate != nil:
		tensor := encodeImmediate(v.Immediate)
		b = appendMessageField(b, fieldValueImmediate, appendMessageField(nil, fieldImmediateTensor, tensor))
	}
	return b
}

func encodeImmediate(im *Immediate) []byte {
	var values []byte
	var field protowire.Number
	switch {
	case im.Floats != nil:
		field = fieldTensorValueFloats
		var packed []byte
		for _, f := range im.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		values = appendPacked(packed)
	case im.Ints != nil:
		field = fieldTensorValueInts
		var packed []byte
		for _, i := range im.Ints {
			packed = protowire.AppendVarint(packed, uint64(int64(i)))
		}
		values = appendPacked(packed)
	case im.Bools != nil:
		field = fieldTensorValueBools
		var packed []byte
		for _, v := range im.Bools {
			packed = protowire.AppendVarint(packed, protowire.EncodeBool(v))
		}
		values = appendPacked(packed)
	case im.Strings != nil:
		field = fieldTensorValueStrings
		for _, s := range im.Strings {
			values = protowire.AppendTag(values, fieldRepeatedValues, protowire.BytesType)
			values = protowire.AppendString(values, s)
		}
	default:
		return nil
	}
	return appendMessageField(nil, field, values)
}

func appendPacked(packed []byte) []byte {
	if len(packed) == 0 {
		return nil
	}
	return appendMessageField(nil, fieldRepeatedValues, packed)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// appendStringField writes s unless it is empty (proto3 default).
func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendVarintField writes v unless it is zero (proto3 default).
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
