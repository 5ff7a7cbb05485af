package threshold

import "fmt"

// TransformMethod selects the input normalization applied before shingling.
// The set is closed; calibration behavior is selected at construction, not
// through open-ended polymorphism.
type TransformMethod int

const (
	// TransformNone feeds raw values through.
	TransformNone TransformMethod = iota
	// TransformDifference feeds successive differences, making level shifts
	// stand out as spikes.
	TransformDifference
	// TransformNormalize feeds z-scores against discounted running
	// statistics per input dimension.
	TransformNormalize
)

// ParseTransformMethod maps a config string to a method.
func ParseTransformMethod(s string) (TransformMethod, error) {
	switch s {
	case "", "none":
		return TransformNone, nil
	case "difference":
		return TransformDifference, nil
	case "normalize":
		return TransformNormalize, nil
	default:
		return TransformNone, fmt.Errorf("unknown transform method %q", s)
	}
}

// Transform applies a TransformMethod to a stream of observation blocks,
// tracking the running statistics it needs online.
type Transform struct {
	method  TransformMethod
	stats   []*Deviation
	lastRaw []float64
	seen    bool
}

// NewTransform creates a transform over blocks of the given dimensionality.
// discount controls how fast the normalization statistics forget.
func NewTransform(method TransformMethod, dimensions int, discount float64) *Transform {
	stats := make([]*Deviation, dimensions)
	for i := range stats {
		stats[i] = NewDeviation(discount)
	}
	return &Transform{method: method, stats: stats}
}

// Method returns the selected method.
func (t *Transform) Method() TransformMethod {
	return t.method
}

// Differenced reports whether the transform subtracts the previous
// observation.
func (t *Transform) Differenced() bool {
	return t.method == TransformDifference
}

// Apply transforms one observation block and folds it into the running
// statistics. The first block of a differenced stream transforms to zeros.
func (t *Transform) Apply(block []float64) []float64 {
	out := make([]float64, len(block))
	switch t.method {
	case TransformDifference:
		if t.seen {
			for i, v := range block {
				out[i] = v - t.lastRaw[i]
			}
		}
	case TransformNormalize:
		for i, v := range block {
			mean, dev := t.stats[i].Mean(), t.stats[i].Deviation()
			if dev > 0 {
				out[i] = (v - mean) / dev
			} else {
				out[i] = 0
			}
		}
	default:
		copy(out, block)
	}

	for i, v := range block {
		t.stats[i].Update(v)
	}
	t.lastRaw = append(t.lastRaw[:0], block...)
	t.seen = true
	return out
}

// Invert maps a block from transformed space back to input space. reference
// is the raw observation preceding the block; it is only consulted by the
// differencing transform and may be nil otherwise.
func (t *Transform) Invert(block, reference []float64) []float64 {
	out := make([]float64, len(block))
	switch t.method {
	case TransformDifference:
		for i, v := range block {
			if reference != nil {
				out[i] = v + reference[i]
			} else {
				out[i] = v
			}
		}
	case TransformNormalize:
		for i, v := range block {
			out[i] = t.stats[i].Mean() + v*t.stats[i].Deviation()
		}
	default:
		copy(out, block)
	}
	return out
}
