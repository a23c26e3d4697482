package features

// Model-level input and output names.
const (
	InputSpatialName = "input_spatial"
	InputGlobalName  = "input_global"
	InputMetaName    = "input_meta"

	OutputPolicyName     = "output_policy"
	OutputPolicyPassName = "output_policy_pass"
	OutputValueName      = "output_value"
	OutputScoreValueName = "output_score_value"
	OutputOwnershipName  = "output_ownership"
)

// Feature is one named, shaped float32 model input or output.
type Feature struct {
	Name  string
	Shape []int
}

// IOSpec is the boundary contract of a model: ordered inputs and outputs.
type IOSpec struct {
	Counts  Counts
	Inputs  []Feature
	Outputs []Feature
}

// Input returns the input feature with the given name.
func (s *IOSpec) Input(name string) (Feature, bool) {
	return find(s.Inputs, name)
}

// Output returns the output feature with the given name.
func (s *IOSpec) Output(name string) (Feature, bool) {
	return find(s.Outputs, name)
}

func find(list []Feature, name string) (Feature, bool) {
	for _, f := range list {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// ModelIO derives the model-level input/output features for a model version
// and geometry. Inputs are spatial, global and (when a metadata encoder is
// present) meta; outputs are policy, policy pass, value, score value and
// ownership, in that order.
func ModelIO(g Geometry, modelVersion, metaEncoderVersion int) (*IOSpec, error) {
	counts, err := Resolve(modelVersion, metaEncoderVersion)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	spec := &IOSpec{Counts: counts}

	spec.Inputs = append(spec.Inputs,
		Feature{Name: InputSpatialName, Shape: g.Spatial(counts.Spatial)},
		Feature{Name: InputGlobalName, Shape: g.Vector(counts.Global)},
	)
	if counts.Meta > 0 {
		spec.Inputs = append(spec.Inputs, Feature{Name: InputMetaName, Shape: g.Vector(counts.Meta)})
	}

	spec.Outputs = append(spec.Outputs,
		Feature{Name: OutputPolicyName, Shape: g.Spatial(counts.Policy)},
		Feature{Name: OutputPolicyPassName, Shape: g.Vector(counts.Policy)},
		Feature{Name: OutputValueName, Shape: g.Vector(counts.Value)},
		Feature{Name: OutputScoreValueName, Shape: g.Vector(counts.ScoreValue)},
		Feature{Name: OutputOwnershipName, Shape: g.Spatial(counts.Ownership)},
	)

	return spec, nil
}
