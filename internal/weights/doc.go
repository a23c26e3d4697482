// Package weights supplies float32 weight arrays to descriptor
// construction.
//
// A Source is looked up by tensor name ("<layer>.<role>", for example
// "trunk.block1.regular_conv.weight") and the number of elements the
// layer expects. Three sources are provided:
//
//   - Zeros returns placeholder arrays, for structure-only builds.
//   - Map serves arrays held in memory.
//   - SafeTensors reads a SafeTensors file. F32, F16, BF16 and F64
//     tensors are converted to float32 on read.
//
// WriteSafeTensors writes the inverse format, which is handy for exporting
// a descriptor's weights or producing fixtures.
package weights
