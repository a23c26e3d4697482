// Package mlpackage assembles and reads Core ML model packages.
//
// A package is a directory with a JSON manifest and a data tree:
//
//	model.mlpackage/
//	  Manifest.json
//	  Data/com.apple.CoreML/model.mlmodel
//	  Data/com.apple.CoreML/weights/weight.bin
//
// Assemble builds the whole tree in a staging directory next to the
// destination and renames it into place, so a failed assembly never
// leaves a partial package behind:
//
//	root := mlpackage.Item{Name: "model.mlmodel", Source: programPath}
//	weights := mlpackage.Item{Name: "weights", Source: weightsDir}
//	err := mlpackage.Assemble("out.mlpackage", root, []mlpackage.Item{weights},
//		mlpackage.Options{Overwrite: true})
package mlpackage
