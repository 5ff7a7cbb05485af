package tree

import (
	"gonum.org/v1/gonum/floats"
)

// DiVector is a directional decomposition of an anomaly score: for each
// dimension, the share of the score attributable to the point's value being
// below (Low) or above (High) the values the tree expects.
type DiVector struct {
	Low  []float64
	High []float64
}

// NewDiVector returns a zero DiVector of the given dimensionality.
func NewDiVector(dimensions int) *DiVector {
	return &DiVector{
		Low:  make([]float64, dimensions),
		High: make([]float64, dimensions),
	}
}

// Total returns the sum of all components.
func (v *DiVector) Total() float64 {
	return floats.Sum(v.Low) + floats.Sum(v.High)
}

// Scale multiplies every component by f.
func (v *DiVector) Scale(f float64) {
	floats.Scale(f, v.Low)
	floats.Scale(f, v.High)
}

// AddScaled adds f times each component of other.
func (v *DiVector) AddScaled(other *DiVector, f float64) {
	floats.AddScaled(v.Low, f, other.Low)
	floats.AddScaled(v.High, f, other.High)
}

// Add accumulates another DiVector component-wise.
func (v *DiVector) Add(other *DiVector) {
	floats.Add(v.Low, other.Low)
	floats.Add(v.High, other.High)
}

// Renormalize rescales the vector so its total equals target. A zero vector
// is left untouched unless target is positive, in which case the mass is
// spread evenly for lack of directional evidence.
func (v *DiVector) Renormalize(target float64) {
	total := v.Total()
	if total > 0 {
		v.Scale(target / total)
		return
	}
	if target > 0 {
		share := target / float64(2*len(v.Low))
		for i := range v.Low {
			v.Low[i] = share
			v.High[i] = share
		}
	}
}
