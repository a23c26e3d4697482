package lower

import (
	"fmt"
	"slices"

	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/mil"
)

// DefaultBlobFile is the blob reference path used by weight constants.
const DefaultBlobFile = "@model_path/weights/weight.bin"

// BlobSink stores a weight array and returns its byte offset.
type BlobSink interface {
	Write(data []float32) (uint64, error)
}

// Config is everything one lowering needs. Build it once with NewConfig
// and pass it to Lower.
type Config struct {
	Model                *desc.Model
	IO                   *features.IOSpec
	Geometry             features.Geometry
	SpecificationVersion int
	Opset                string
	BlobFile             string
	Metadata             mil.Metadata
}

// NewConfig derives the model I/O for m at geometry g and fills defaults.
// A specVersion of 0 selects mil.DefaultSpecificationVersion.
func NewConfig(m *desc.Model, g features.Geometry, specVersion int) (Config, error) {
	if m == nil {
		return Config{}, &desc.InconsistencyError{Path: "model", Details: "nil model"}
	}
	if specVersion == 0 {
		specVersion = mil.DefaultSpecificationVersion
	}
	opset, err := mil.OpsetFor(specVersion)
	if err != nil {
		return Config{}, err
	}
	ioSpec, err := features.ModelIO(g, m.ModelVersion, m.MetaEncoderVersion)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Model:                m,
		IO:                   ioSpec,
		Geometry:             g,
		SpecificationVersion: specVersion,
		Opset:                opset,
		BlobFile:             DefaultBlobFile,
	}, nil
}

// validate checks the descriptor and that the I/O contract agrees with it.
// It performs no I/O.
func (c *Config) validate() error {
	if c.Model == nil {
		return &desc.InconsistencyError{Path: "model", Details: "nil model"}
	}
	if err := desc.Validate(c.Model); err != nil {
		return err
	}
	if err := c.Geometry.Validate(); err != nil {
		return &desc.InconsistencyError{Path: "geometry", Details: err.Error()}
	}

	opset, err := mil.OpsetFor(c.SpecificationVersion)
	if err != nil {
		return err
	}
	if c.Opset != opset {
		return fmt.Errorf("%w: opset %q does not match specification version %d (%q)",
			mil.ErrMalformed, c.Opset, c.SpecificationVersion, opset)
	}
	if c.BlobFile == "" {
		return fmt.Errorf("%w: empty blob file reference", mil.ErrMalformed)
	}

	want, err := features.ModelIO(c.Geometry, c.Model.ModelVersion, c.Model.MetaEncoderVersion)
	if err != nil {
		return err
	}
	if c.IO == nil {
		return &desc.InconsistencyError{Path: "io", Details: "missing model I/O"}
	}
	if err := sameFeatures("io.inputs", c.IO.Inputs, want.Inputs); err != nil {
		return err
	}
	return sameFeatures("io.outputs", c.IO.Outputs, want.Outputs)
}

func sameFeatures(path string, got, want []features.Feature) error {
	if len(got) != len(want) {
		return &desc.InconsistencyError{Path: path, Details: fmt.Sprintf("%d features, descriptor requires %d", len(got), len(want))}
	}
	for i := range want {
		if got[i].Name != want[i].Name || !slices.Equal(got[i].Shape, want[i].Shape) {
			return &desc.InconsistencyError{
				Path:    path,
				Details: fmt.Sprintf("feature %d is %s%v, descriptor requires %s%v", i, got[i].Name, got[i].Shape, want[i].Name, want[i].Shape),
			}
		}
	}
	return nil
}
