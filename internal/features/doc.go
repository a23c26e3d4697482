// Package features resolves tensor shapes for KataGo networks.
//
// A KataGo network consumes a fixed number of spatial and global input
// features determined by its model version, and produces policy, value,
// score-value and ownership outputs whose channel counts also depend on the
// version. This package holds that lookup table and derives the model-level
// input/output contract from it.
//
// Lookup functions return -1 for versions outside the table. Callers must
// check the result (or use [Resolve], which does it for them) before any
// shape is used:
//
//	io, err := features.ModelIO(features.Geometry{Batch: 1, Width: 19, Height: 19}, 8, 0)
//	if err != nil {
//	    return err // wraps features.ErrUnsupportedVersion
//	}
//	for _, in := range io.Inputs {
//	    fmt.Println(in.Name, in.Shape)
//	}
package features
