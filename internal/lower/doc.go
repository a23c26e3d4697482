// Package lower translates a validated network descriptor into a Core ML
// ML Program.
//
// Lower is a single function over an explicit Config. It validates the
// descriptor and the model I/O contract before the first weight array is
// handed to the BlobSink, then emits every layer as a fixed pattern of MIL
// operations in one forward pass:
//
//	conv        const weight/pad_type/pad/strides/dilations/groups + conv
//	batch norm  const mean/variance/gamma/beta/epsilon + batch_norm
//	activation  relu, softplus+tanh+mul for mish, nothing for identity
//	matmul      const weight/transpose flags + matmul
//	bias        const bias + add
//
// Tensor names are derived from the structural path of each layer, so
// "trunk.block3.regular_conv" produces "trunk_block3_regular_conv" plus
// role-suffixed constants such as "trunk_block3_regular_conv_weight".
// Logical outputs are bound with identity operations named after the model
// outputs.
package lower
