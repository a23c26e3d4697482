// Package blob stores weight arrays for an ML program in a flat binary file.
//
// A weight blob is a sequential concatenation of little-endian float32 arrays
// with no header and no padding:
//
//	[array 0: 4*n0 bytes][array 1: 4*n1 bytes]...[array k: 4*nk bytes]
//
// Every Write returns the byte offset at which its array begins, so offsets
// are strictly increasing and satisfy offset(i+1) = offset(i) + 4*len(array i).
// Program constants reference arrays by (file name, offset); readers must know
// the element count from the constant's declared shape.
//
// Example usage:
//
//	w, err := blob.Create("weights/weight.bin")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	offset, err := w.Write(conv.Weights)
//	if err != nil {
//	    return err // wraps blob.ErrStorage
//	}
//
// A Writer serves exactly one file and one build; it is not safe for
// concurrent use.
package blob
