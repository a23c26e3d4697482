// Package coreml converts KataGo network descriptors into Core ML model
// packages.
//
// The pipeline has four stages, each usable on its own:
//
//   - a descriptor tree (Model) is built from an Architecture and a weight
//     source, or populated directly by a loader
//   - Lower turns the descriptor into an ML Program, writing every weight
//     array to a blob sink
//   - the program is serialized and assembled with its weights into a
//     .mlpackage directory
//   - Inspect reads a package back and summarizes it
//
// Most callers only need Build:
//
//	cfg, err := coreml.LoadConfig(ctx, "b18c384.hcl", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts, err := coreml.OptionsFromConfig(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := coreml.Build(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %d ops, %d weight bytes\n", res.Output, res.Operations, res.BlobBytes)
package coreml

import (
	"context"

	"github.com/born-ml/katacoreml/internal/blob"
	"github.com/born-ml/katacoreml/internal/build"
	"github.com/born-ml/katacoreml/internal/config"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/inspect"
	"github.com/born-ml/katacoreml/internal/lower"
	"github.com/born-ml/katacoreml/internal/mil"
	"github.com/born-ml/katacoreml/internal/mlpackage"
	"github.com/born-ml/katacoreml/internal/tempdir"
	"github.com/born-ml/katacoreml/internal/weights"
)

// Descriptor types.
type (
	// Model is a validated network descriptor tree.
	Model = desc.Model
	// Architecture is a compact network description from which FromArchitecture
	// builds a Model.
	Architecture = desc.Architecture
	// BlockSpec describes one trunk block of an Architecture.
	BlockSpec = desc.BlockSpec
	// InconsistencyError locates a descriptor inconsistency.
	InconsistencyError = desc.InconsistencyError
	// Geometry is the batch size and board dimensions of a lowering.
	Geometry = features.Geometry
	// WeightSource provides weight arrays by name.
	WeightSource = weights.Source
)

// BlockKind identifies a trunk block type.
type BlockKind = desc.BlockKind

// Block kinds.
const (
	KindOrdinary         = desc.KindOrdinary
	KindGlobalPooling    = desc.KindGlobalPooling
	KindNestedBottleneck = desc.KindNestedBottleneck
)

// ActivationKind identifies an activation function.
type ActivationKind = desc.ActivationKind

// Activations.
const (
	Identity = desc.Identity
	ReLU     = desc.ReLU
	Mish     = desc.Mish
)

// Lowering and packaging types.
type (
	// LowerConfig is everything one lowering needs.
	LowerConfig = lower.Config
	// BlobSink stores weight arrays during lowering.
	BlobSink = lower.BlobSink
	// Program is a lowered Core ML model with its ML Program.
	Program = mil.Model
	// BuildOptions describes one build.
	BuildOptions = build.Options
	// BuildResult summarizes a finished build.
	BuildResult = build.Result
	// Config is a decoded HCL build file.
	Config = config.Config
	// Manifest is a package's Manifest.json.
	Manifest = mlpackage.Manifest
	// PackageItem is a file or directory placed in a package.
	PackageItem = mlpackage.Item
	// AssembleOptions controls Assemble.
	AssembleOptions = mlpackage.Options
	// Report summarizes an assembled package.
	Report = inspect.Report
)

// Errors. Match them with errors.Is.
var (
	ErrUnsupportedVersion = features.ErrUnsupportedVersion
	ErrInconsistent       = desc.ErrInconsistent
	ErrStorage            = blob.ErrStorage
	ErrResourceCreation   = tempdir.ErrCreate
	ErrPackageCollision   = mlpackage.ErrCollision
	ErrInvalidConfig      = config.ErrInvalidConfig
	ErrUnknownTensor      = mil.ErrUnknownTensor
	ErrDuplicateTensor    = mil.ErrDuplicateTensor
	ErrMalformed          = mil.ErrMalformed
)

// FromArchitecture builds and validates a descriptor tree, reading every
// weight array from src. Use ZeroWeights for placeholder weights.
func FromArchitecture(a Architecture, src WeightSource) (*Model, error) {
	return desc.FromArchitecture(a, src)
}

// ZeroWeights is a WeightSource of zero-filled arrays.
func ZeroWeights() WeightSource {
	return weights.Zeros{}
}

// Validate checks a descriptor tree for structural consistency.
func Validate(m *Model) error {
	return desc.Validate(m)
}

// NewLowerConfig derives the model I/O for m at geometry g. A specVersion of
// 0 selects the default Core ML specification version.
func NewLowerConfig(m *Model, g Geometry, specVersion int) (LowerConfig, error) {
	return lower.NewConfig(m, g, specVersion)
}

// Lower emits the ML Program for cfg.Model, writing weights to sink.
// Nothing reaches sink unless the descriptor is consistent.
func Lower(cfg LowerConfig, sink BlobSink) (*Program, error) {
	return lower.Lower(cfg, sink)
}

// Marshal serializes a lowered program to Core ML protobuf bytes.
func Marshal(p *Program) ([]byte, error) {
	return mil.Marshal(p)
}

// Unmarshal decodes Core ML protobuf bytes.
func Unmarshal(data []byte) (*Program, error) {
	return mil.Unmarshal(data)
}

// LoadConfig reads an HCL build file. vars are visible as var.<name>.
func LoadConfig(ctx context.Context, path string, vars map[string]string) (*Config, error) {
	return config.Load(ctx, path, vars)
}

// OptionsFromConfig builds the descriptor a build file describes.
func OptionsFromConfig(ctx context.Context, cfg *Config) (BuildOptions, error) {
	return build.FromConfig(ctx, cfg)
}

// Build lowers, serializes and packages a model. Either a complete package
// is written to opts.Output or opts.Output is left as it was.
func Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	return build.Run(ctx, opts)
}

// Assemble builds a package at dest from a root model file and extra items.
func Assemble(dest string, root PackageItem, items []PackageItem, opts AssembleOptions) error {
	return mlpackage.Assemble(dest, root, items, opts)
}

// ReadManifest reads the manifest of the package at dir.
func ReadManifest(dir string) (*Manifest, error) {
	return mlpackage.ReadManifest(dir)
}

// Inspect summarizes the package at path.
func Inspect(path string) (*Report, error) {
	return inspect.Package(path)
}
