package mil

import "fmt"

// Core ML specification versions that can carry an ML Program.
const (
	SpecificationVersionIOS15 = 6
	SpecificationVersionIOS16 = 7
	SpecificationVersionIOS17 = 8
	SpecificationVersionIOS18 = 9

	// MinSpecificationVersion is the oldest version with ML Program support.
	MinSpecificationVersion = SpecificationVersionIOS15
	// DefaultSpecificationVersion is used when none is configured.
	DefaultSpecificationVersion = SpecificationVersionIOS15
	// ProgramVersion is the MIL program format version.
	ProgramVersion = 1
)

var opsets = map[int]string{
	SpecificationVersionIOS15: "CoreML5",
	SpecificationVersionIOS16: "CoreML6",
	SpecificationVersionIOS17: "CoreML7",
	SpecificationVersionIOS18: "CoreML8",
}

// OpsetFor returns the opset tag matching a specification version.
func OpsetFor(specVersion int) (string, error) {
	opset, ok := opsets[specVersion]
	if !ok {
		return "", fmt.Errorf("%w: specification version %d has no ML Program opset (supported %d-%d)",
			ErrMalformed, specVersion, MinSpecificationVersion, SpecificationVersionIOS18)
	}
	return opset, nil
}
