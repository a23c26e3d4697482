// Package desc holds the network descriptor: the read-only tree of layers,
// trunk blocks and heads that the lowering engine translates into an ML
// Program.
//
// Trunk blocks form a closed sum type. Block is implemented only by
// *ResidualBlock, *GlobalPoolingResidualBlock and
// *NestedBottleneckResidualBlock, and consumers dispatch with a type switch.
//
// Validate checks the channel bookkeeping of a whole model before anything
// is written: every layer's input channel count must equal its
// predecessor's output, every weight array must hold exactly the number of
// values its dimensions declare, and the model-level stream counts must
// match the feature table for the model version.
//
// FromArchitecture builds a complete descriptor from a compact Architecture
// and a weights.Source.
package desc
