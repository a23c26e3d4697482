// Package mil models Core ML ML Programs (MIL): typed tensors, operations,
// blocks, functions and programs, wrapped in a Core ML Model together with
// its model-level input/output description.
//
// Blocks are built with a BlockBuilder, which enforces the dataflow
// discipline of the format: every operation input names either a function
// input or the output of an earlier operation, tensor names are unique, and
// a sealed block is never modified again.
//
// Models are serialized to the Core ML protobuf wire format with Marshal and
// read back with Unmarshal.
package mil
