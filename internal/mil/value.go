package mil

// Immediate holds literal tensor contents. Exactly one slice is populated.
type Immediate struct {
	Floats  []float32
	Ints    []int32
	Bools   []bool
	Strings []string
}

// BlobRef points at a float array stored in a weight blob file.
type BlobRef struct {
	FileName string
	Offset   uint64
}

// Value is a typed literal, stored inline or in a weight blob.
type Value struct {
	Type      TensorType
	Immediate *Immediate
	Blob      *BlobRef
}

// StringValue returns a scalar string value.
func StringValue(s string) Value {
	return Value{Type: Tensor(String), Immediate: &Immediate{Strings: []string{s}}}
}

// BoolValue returns a scalar bool value.
func BoolValue(b bool) Value {
	return Value{Type: Tensor(Bool), Immediate: &Immediate{Bools: []bool{b}}}
}

// FloatValue returns a scalar float32 value.
func FloatValue(f float32) Value {
	return Value{Type: Tensor(Float32), Immediate: &Immediate{Floats: []float32{f}}}
}

// IntValue returns a scalar int32 value.
func IntValue(i int32) Value {
	return Value{Type: Tensor(Int32), Immediate: &Immediate{Ints: []int32{i}}}
}

// IntsValue returns a rank-1 int32 value.
func IntsValue(vals ...int32) Value {
	return Value{
		Type:      Tensor(Int32, len(vals)),
		Immediate: &Immediate{Ints: append([]int32(nil), vals...)},
	}
}

// BlobValue returns a float32 tensor value stored in a blob file.
func BlobValue(shape []int, fileName string, offset uint64) Value {
	return Value{
		Type: Tensor(Float32, shape...),
		Blob: &BlobRef{FileName: fileName, Offset: offset},
	}
}
