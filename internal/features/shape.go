package features

import "fmt"

// Geometry is the fixed input geometry a model is specialised for.
type Geometry struct {
	Batch  int
	Width  int // nnXLen
	Height int // nnYLen
}

// Validate checks that every dimension is positive.
func (g Geometry) Validate() error {
	if g.Batch <= 0 || g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid geometry: batch=%d width=%d height=%d (all must be positive)",
			g.Batch, g.Width, g.Height)
	}
	return nil
}

// Area returns the number of board locations.
func (g Geometry) Area() int {
	return g.Width * g.Height
}

// Spatial returns the NCHW shape of a spatial tensor with the given channels.
func (g Geometry) Spatial(channels int) []int {
	return SpatialShape(g.Batch, channels, g.Height, g.Width)
}

// Vector returns the shape of a per-batch channel vector.
func (g Geometry) Vector(channels int) []int {
	return VectorShape(g.Batch, channels)
}

// SpatialShape returns (batch, channels, height, width).
func SpatialShape(batch, channels, height, width int) []int {
	return []int{batch, channels, height, width}
}

// VectorShape returns (batch, channels).
func VectorShape(batch, channels int) []int {
	return []int{batch, channels}
}

// NumElements returns the product of the dimensions of a shape.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
