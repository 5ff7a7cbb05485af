// Package threshold holds the score-calibration primitives: discounted
// running statistics, the adaptive thresholder that converts raw forest
// scores into grades, and the input transforms applied before shingling.
package threshold

import "math"

// Deviation tracks a discounted running mean and standard deviation. With a
// zero discount it degrades to the plain running statistics; with a positive
// discount older observations fade at that rate.
type Deviation struct {
	discount   float64
	weight     float64
	sum        float64
	sumSquared float64
	count      int
}

// NewDeviation creates an empty accumulator. discount must lie in [0, 1).
func NewDeviation(discount float64) *Deviation {
	return &Deviation{discount: discount}
}

// Update folds one observation into the statistics.
func (d *Deviation) Update(value float64) {
	factor := 1.0
	if d.discount != 0 {
		factor = math.Min(1.0-d.discount, 1.0-1.0/float64(d.count+2))
	}
	d.sum = d.sum*factor + value
	d.sumSquared = d.sumSquared*factor + value*value
	d.weight = d.weight*factor + 1.0
	d.count++
}

// Mean returns the discounted mean, zero when empty.
func (d *Deviation) Mean() float64 {
	if d.IsEmpty() {
		return 0
	}
	return d.sum / d.weight
}

// Deviation returns the discounted standard deviation, zero when empty.
func (d *Deviation) Deviation() float64 {
	if d.IsEmpty() {
		return 0
	}
	mean := d.sum / d.weight
	variance := d.sumSquared/d.weight - mean*mean
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// Count returns the number of observations folded in.
func (d *Deviation) Count() int {
	return d.count
}

// IsEmpty reports whether any weight has accumulated.
func (d *Deviation) IsEmpty() bool {
	return d.weight <= 0
}

// Reset clears the accumulator.
func (d *Deviation) Reset() {
	d.weight = 0
	d.sum = 0
	d.sumSquared = 0
	d.count = 0
}
