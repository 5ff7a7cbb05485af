package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityNeverExceeded(t *testing.T) {
	s := New(16, 0, 1)
	for i := 0; i < 5000; i++ {
		s.Offer([]float64{float64(i)}, uint64(i))
		require.LessOrEqual(t, s.Size(), 16)
	}
	assert.Equal(t, 16, s.Size())
}

func TestEarlyOffersAlwaysAccepted(t *testing.T) {
	s := New(64, 0, 1)
	// Below the initial accept fraction every offer lands.
	for i := 0; i < 8; i++ {
		accepted, evicted := s.Offer([]float64{float64(i)}, uint64(i))
		assert.True(t, accepted)
		assert.Nil(t, evicted)
	}
	assert.Equal(t, 8, s.Size())
}

func TestEvictionReturnsDisplacedPoint(t *testing.T) {
	s := New(8, 0, 1)

	var sawEviction bool
	for i := 0; i < 2000; i++ {
		accepted, evicted := s.Offer([]float64{float64(i)}, uint64(i))
		if evicted != nil {
			require.True(t, accepted)
			require.Len(t, evicted.Point, 1)
			sawEviction = true
		}
	}
	assert.True(t, sawEviction)
	assert.Equal(t, 8, s.Size())
}

func TestTimeDecayFavorsRecentPoints(t *testing.T) {
	s := New(32, 0.01, 1)
	for i := 0; i < 20000; i++ {
		s.Offer([]float64{float64(i)}, uint64(i))
	}

	var meanSeq float64
	s.Points(func(_ []float64, seq uint64) {
		meanSeq += float64(seq)
	})
	meanSeq /= float64(s.Size())

	// With decay the reservoir skews toward the tail of the stream; a uniform
	// reservoir would center near 10000.
	assert.Greater(t, meanSeq, 15000.0)
}

func TestOfferClonesPoint(t *testing.T) {
	s := New(4, 0, 1)
	p := []float64{1, 2}
	s.Offer(p, 0)
	p[0] = 99

	s.Points(func(point []float64, _ uint64) {
		assert.Equal(t, []float64{1, 2}, point)
	})
}

func TestHeapKeepsWorstAtRoot(t *testing.T) {
	s := New(16, 0, 3)
	for i := 0; i < 4000; i++ {
		s.Offer([]float64{0}, uint64(i))
	}
	require.Equal(t, 16, s.Size())

	max := math.Inf(-1)
	for _, e := range s.heap {
		if e.weight > max {
			max = e.weight
		}
	}
	assert.Equal(t, max, s.heap[0].weight)
}
