package tree

import (
	"gonum.org/v1/gonum/floats"
)

// BoundingBox is the minimal axis-aligned box containing all points in a
// subtree. Min and Max always have the tree's dimensionality.
type BoundingBox struct {
	Min []float64
	Max []float64
}

// NewBoundingBox returns the degenerate box containing a single point.
func NewBoundingBox(point []float64) *BoundingBox {
	min := make([]float64, len(point))
	max := make([]float64, len(point))
	copy(min, point)
	copy(max, point)
	return &BoundingBox{Min: min, Max: max}
}

// Copy returns an independent copy of the box.
func (b *BoundingBox) Copy() *BoundingBox {
	min := make([]float64, len(b.Min))
	max := make([]float64, len(b.Max))
	copy(min, b.Min)
	copy(max, b.Max)
	return &BoundingBox{Min: min, Max: max}
}

// Dimensions returns the dimensionality of the box.
func (b *BoundingBox) Dimensions() int {
	return len(b.Min)
}

// Contains reports whether the point lies inside the box, boundary included.
func (b *BoundingBox) Contains(point []float64) bool {
	for i, v := range point {
		if v < b.Min[i] || v > b.Max[i] {
			return false
		}
	}
	return true
}

// Range returns the extent of the box along one dimension.
func (b *BoundingBox) Range(dim int) float64 {
	return b.Max[dim] - b.Min[dim]
}

// RangeSum returns the sum of the extents over all dimensions. A random cut
// lands in a dimension with probability proportional to its share of this sum.
func (b *BoundingBox) RangeSum() float64 {
	return floats.Sum(b.Max) - floats.Sum(b.Min)
}

// MergedWithPoint returns a new box grown just enough to contain the point.
func (b *BoundingBox) MergedWithPoint(point []float64) *BoundingBox {
	merged := b.Copy()
	merged.AddPoint(point)
	return merged
}

// AddPoint grows the box in place to contain the point.
func (b *BoundingBox) AddPoint(point []float64) {
	for i, v := range point {
		if v < b.Min[i] {
			b.Min[i] = v
		}
		if v > b.Max[i] {
			b.Max[i] = v
		}
	}
}

// MergeBox grows the box in place to contain another box.
func (b *BoundingBox) MergeBox(other *BoundingBox) {
	for i := range b.Min {
		if other.Min[i] < b.Min[i] {
			b.Min[i] = other.Min[i]
		}
		if other.Max[i] > b.Max[i] {
			b.Max[i] = other.Max[i]
		}
	}
}
