package blob

import (
	"fmt"
	"sort"
)

// Region is a named byte range of a blob file.
type Region struct {
	Name   string
	Offset uint64
	Size   uint64
}

// End returns the first byte after the region.
func (r Region) End() uint64 {
	return r.Offset + r.Size
}

// ValidateRegions checks a set of regions against a blob of fileSize bytes:
// every region must be float32 aligned, lie within the file and not overlap
// any other region.
func ValidateRegions(regions []Region, fileSize int64) error {
	if fileSize < 0 {
		return &ValidationError{
			Type:    "out_of_bounds",
			Details: fmt.Sprintf("negative file size %d", fileSize),
		}
	}
	size := uint64(fileSize)

	// Sort regions by offset for efficient overlap detection.
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, r := range sorted {
		if r.Offset%FloatSize != 0 || r.Size%FloatSize != 0 {
			return &ValidationError{
				Type:    "misaligned",
				Region:  r.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (must be multiples of %d)", r.Offset, r.Size, FloatSize),
			}
		}

		if r.End() < r.Offset || r.End() > size {
			return &ValidationError{
				Type:    "out_of_bounds",
				Region:  r.Name,
				Details: fmt.Sprintf("offset %d + size %d > file size %d", r.Offset, r.Size, size),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if r.End() > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Region:  r.Name,
					Region2: next.Name,
					Details: fmt.Sprintf("ranges [%d-%d] and [%d-%d] overlap",
						r.Offset, r.End(), next.Offset, next.End()),
				}
			}
		}
	}

	return nil
}
