package threshold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviationUndiscounted(t *testing.T) {
	d := NewDeviation(0)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		d.Update(v)
	}

	assert.Equal(t, 5, d.Count())
	assert.InDelta(t, 3.0, d.Mean(), 1e-12)
	assert.InDelta(t, math.Sqrt(2.0), d.Deviation(), 1e-12)
}

func TestDeviationEmpty(t *testing.T) {
	d := NewDeviation(0.01)

	assert.True(t, d.IsEmpty())
	assert.Equal(t, 0.0, d.Mean())
	assert.Equal(t, 0.0, d.Deviation())
}

func TestDeviationConstantStream(t *testing.T) {
	d := NewDeviation(0.01)
	for i := 0; i < 100; i++ {
		d.Update(2.5)
	}

	assert.InDelta(t, 2.5, d.Mean(), 1e-9)
	assert.InDelta(t, 0.0, d.Deviation(), 1e-6)
}

func TestDeviationDiscountTracksLevelShift(t *testing.T) {
	d := NewDeviation(0.1)
	for i := 0; i < 100; i++ {
		d.Update(0)
	}
	for i := 0; i < 100; i++ {
		d.Update(10)
	}

	// An undiscounted mean would sit at 5; the discounted one follows the new
	// level.
	assert.Greater(t, d.Mean(), 9.0)
}

func TestDeviationReset(t *testing.T) {
	d := NewDeviation(0)
	d.Update(4)
	d.Reset()

	assert.True(t, d.IsEmpty())
	assert.Equal(t, 0, d.Count())
	assert.Equal(t, 0.0, d.Mean())
}
