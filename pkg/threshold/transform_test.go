package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransformMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    TransformMethod
		wantErr bool
	}{
		{in: "", want: TransformNone},
		{in: "none", want: TransformNone},
		{in: "difference", want: TransformDifference},
		{in: "normalize", want: TransformNormalize},
		{in: "log", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransformMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformNonePassthrough(t *testing.T) {
	tr := NewTransform(TransformNone, 2, 0)

	out := tr.Apply([]float64{3, -1})
	assert.Equal(t, []float64{3, -1}, out)
	assert.False(t, tr.Differenced())
	assert.Equal(t, TransformNone, tr.Method())
}

func TestTransformDifference(t *testing.T) {
	tr := NewTransform(TransformDifference, 2, 0)
	assert.True(t, tr.Differenced())

	out := tr.Apply([]float64{5, 10})
	assert.Equal(t, []float64{0, 0}, out)

	out = tr.Apply([]float64{7, 8})
	assert.Equal(t, []float64{2, -2}, out)
}

func TestTransformDifferenceInvert(t *testing.T) {
	tr := NewTransform(TransformDifference, 1, 0)
	tr.Apply([]float64{5})
	diff := tr.Apply([]float64{9})

	back := tr.Invert(diff, []float64{5})
	assert.Equal(t, []float64{9}, back)
}

func TestTransformNormalize(t *testing.T) {
	tr := NewTransform(TransformNormalize, 1, 0)

	// No spread yet: z-score defaults to zero.
	out := tr.Apply([]float64{100})
	assert.Equal(t, []float64{0}, out)

	for i := 0; i < 50; i++ {
		tr.Apply([]float64{0})
		tr.Apply([]float64{10})
	}

	high := tr.Apply([]float64{10})
	low := tr.Apply([]float64{0})
	assert.Positive(t, high[0])
	assert.Negative(t, low[0])
}

func TestTransformNormalizeInvert(t *testing.T) {
	tr := NewTransform(TransformNormalize, 1, 0)
	for i := 0; i < 50; i++ {
		tr.Apply([]float64{0})
		tr.Apply([]float64{10})
	}

	// Mean 5, deviation 5 over the alternating stream.
	back := tr.Invert([]float64{1}, nil)
	assert.InDelta(t, 10.0, back[0], 1e-6)
}
