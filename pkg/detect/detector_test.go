package detect

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/cutforest/pkg/forest"
	"github.com/yairfalse/cutforest/pkg/threshold"
)

func testConfig() Config {
	return Config{
		Dimensions:               1,
		ShingleSize:              1,
		NumberOfTrees:            20,
		SampleSize:               128,
		OutputAfter:              64,
		RandomSeed:               42,
		AnomalyRate:              0.005,
		ZFactor:                  2.5,
		ScoreDifferencing:        0.5,
		AlertOnce:                true,
		ParallelExecutionEnabled: true,
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero dimensions", mutate: func(c *Config) { c.Dimensions = 0 }},
		{name: "shingle does not divide", mutate: func(c *Config) { c.Dimensions = 5; c.ShingleSize = 2 }},
		{name: "anomaly rate too high", mutate: func(c *Config) { c.AnomalyRate = 1.0 }},
		{name: "score differencing out of range", mutate: func(c *Config) { c.ScoreDifferencing = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, zaptest.NewLogger(t))
			assert.ErrorIs(t, err, forest.ErrInvalidConfiguration)
		})
	}
}

func TestProcessRejectsBadBlocks(t *testing.T) {
	d, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Process(ctx, []float64{1, 2}, 0)
	assert.ErrorIs(t, err, forest.ErrDimensionMismatch)

	_, err = d.Process(ctx, []float64{math.NaN()}, 0)
	assert.ErrorIs(t, err, forest.ErrNonFiniteInput)
}

func TestWarmupGradesZero(t *testing.T) {
	d, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 64; i++ {
		desc, err := d.Process(ctx, []float64{1.0}, int64(i))
		require.NoError(t, err)
		assert.Equal(t, StateWarmup, desc.State)
		assert.Equal(t, 0.0, desc.Grade)
		assert.NotEmpty(t, desc.ID)
		assert.Equal(t, int64(i), desc.Timestamp)
	}

	desc, err := d.Process(ctx, []float64{1.0}, 64)
	require.NoError(t, err)
	assert.NotEqual(t, StateWarmup, desc.State)
}

func TestSpikeAlertsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Dimensions = 2
	cfg.ShingleSize = 2
	d, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	ts := int64(0)
	for i := 0; i < 200; i++ {
		desc, err := d.Process(ctx, []float64{1.0}, ts)
		require.NoError(t, err)
		if i > 80 {
			assert.Equal(t, 0.0, desc.Grade)
		}
		ts++
	}

	var alerts []*AnomalyDescriptor
	for i := 0; i < 4; i++ {
		desc, err := d.Process(ctx, []float64{100.0}, ts)
		require.NoError(t, err)
		if desc.Grade > 0 {
			alerts = append(alerts, desc)
		}
		ts++
	}

	// One sustained excursion, one alert.
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, StateAlerted, alert.State)
	assert.Greater(t, alert.Score, alert.Threshold)
	assert.Len(t, alert.High, 2)
	assert.Len(t, alert.Low, 2)
	require.Len(t, alert.ExpectedValue, 1)
	// The forest expected the stream to stay at its usual level.
	assert.InDelta(t, 1.0, alert.ExpectedValue[0], 0.5)

	// Recovery: stream returns to its level, detector goes quiet.
	var last *AnomalyDescriptor
	for i := 0; i < 20; i++ {
		last, err = d.Process(ctx, []float64{1.0}, ts)
		require.NoError(t, err)
		ts++
	}
	assert.Equal(t, StateQuiet, last.State)
	assert.Equal(t, 0.0, last.Grade)
}

func TestRepeatAlertsWithoutSuppression(t *testing.T) {
	cfg := testConfig()
	cfg.AlertOnce = false
	d, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	ts := int64(0)
	for i := 0; i < 200; i++ {
		_, err := d.Process(ctx, []float64{1.0}, ts)
		require.NoError(t, err)
		ts++
	}

	flagged := 0
	for i := 0; i < 3; i++ {
		desc, err := d.Process(ctx, []float64{100.0}, ts)
		require.NoError(t, err)
		if desc.Grade > 0 {
			flagged++
		}
		ts++
	}
	assert.GreaterOrEqual(t, flagged, 2)
}

func TestShingledDetectorWarmsUpLater(t *testing.T) {
	cfg := testConfig()
	cfg.Dimensions = 4
	cfg.ShingleSize = 4
	d, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	// The first three blocks only fill the shingle window; no score yet.
	for i := 0; i < 3; i++ {
		desc, err := d.Process(ctx, []float64{1.0}, int64(i))
		require.NoError(t, err)
		assert.Equal(t, StateWarmup, desc.State)
		assert.Equal(t, 0.0, desc.Score)
	}

	for i := 3; i < 80; i++ {
		desc, err := d.Process(ctx, []float64{1.0}, int64(i))
		require.NoError(t, err)
		assert.Equal(t, 0.0, desc.Grade)
	}
}

func TestDifferenceTransformFlagsLevelShift(t *testing.T) {
	cfg := testConfig()
	cfg.Transform = threshold.TransformDifference
	d, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	ts := int64(0)
	// A steadily climbing series differences to a constant stream.
	level := 0.0
	for i := 0; i < 200; i++ {
		level += 1.0
		_, err := d.Process(ctx, []float64{level}, ts)
		require.NoError(t, err)
		ts++
	}

	// A jump of 50 shows up as a spike in difference space.
	level += 50.0
	desc, err := d.Process(ctx, []float64{level}, ts)
	require.NoError(t, err)
	assert.Positive(t, desc.Grade)
}

func TestStateAccessor(t *testing.T) {
	d, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, StateWarmup, d.State())
	assert.NotNil(t, d.Forest())
	assert.Equal(t, 1, d.Forest().Dimensions())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(8, 4)

	assert.Equal(t, DefaultNumberOfTrees, cfg.NumberOfTrees)
	assert.Equal(t, forest.DefaultSampleSize, cfg.SampleSize)
	assert.Equal(t, DefaultZFactor, cfg.ZFactor)
	assert.True(t, cfg.AlertOnce)
	assert.NoError(t, cfg.Validate())
}
