package detect

import (
	"fmt"

	"github.com/yairfalse/cutforest/pkg/forest"
	"github.com/yairfalse/cutforest/pkg/threshold"
)

// State is the calibration state machine. WARMUP holds until the forest has
// seen OutputAfter points; afterwards the detector is ACTIVE with QUIET and
// ALERTED sub-states driven solely by score-vs-threshold crossings.
type State string

const (
	StateWarmup  State = "warmup"
	StateQuiet   State = "quiet"
	StateAlerted State = "alerted"
)

// AnomalyDescriptor is the immutable result of processing one point. It is
// created per call and never retained by the engine.
type AnomalyDescriptor struct {
	// ID uniquely identifies this processing result.
	ID string

	// Timestamp is the caller-supplied timestamp of the observation.
	Timestamp int64

	// Score is the raw aggregate anomaly score of the shingled point.
	Score float64

	// Grade is 0 for normal points and grows with severity above the
	// threshold, capped at 1. Suppressed repeats of a sustained excursion
	// grade 0 even though their score remains high.
	Grade float64

	// Threshold is the adaptive threshold the score was graded against.
	Threshold float64

	// Low and High attribute the score to each shingle dimension,
	// split by direction. Nil until the detector is warmed up and the point
	// graded anomalous.
	Low  []float64
	High []float64

	// ExpectedValue is the forest's expectation for the newest observation
	// block, in input space. Nil unless the point graded anomalous.
	ExpectedValue []float64

	// State is the detector state after processing this point.
	State State
}

// Config describes a thresholded detector. Geometry fields are required;
// zero tunables take defaults.
type Config struct {
	// Dimensions is the full shingled dimensionality handed to the forest.
	Dimensions int

	// ShingleSize is the window length; the input block size is
	// Dimensions/ShingleSize.
	ShingleSize int

	// NumberOfTrees defaults to 30 for the calibrated use case.
	NumberOfTrees int

	// SampleSize defaults to 256.
	SampleSize int

	// OutputAfter defaults to 256.
	OutputAfter int

	// RandomSeed fixes all random choices.
	RandomSeed uint64

	// TimeDecay is passed through to the forest.
	TimeDecay float64

	// AnomalyRate is the target fraction of flagged points; it sets the
	// discount of the threshold statistics. Defaults to 0.005.
	AnomalyRate float64

	// ZFactor is the multiplier over the running score deviation. Defaults
	// to 2.5.
	ZFactor float64

	// ScoreDifferencing blends the deviation estimates in [0,1]. Defaults
	// to 0.5.
	ScoreDifferencing float64

	// Transform selects input normalization.
	Transform threshold.TransformMethod

	// AutoAdjust lets the absolute threshold floor follow low score regimes.
	AutoAdjust bool

	// AlertOnce suppresses repeat alerts while a single excursion stays
	// above threshold.
	AlertOnce bool

	// ParallelExecutionEnabled and ThreadPoolSize pass through to the
	// forest.
	ParallelExecutionEnabled bool
	ThreadPoolSize           int
}

// Defaults for the calibrated configuration.
const (
	DefaultNumberOfTrees = 30
	DefaultAnomalyRate   = 0.005
	DefaultZFactor       = 2.5
)

// DefaultConfig returns the standard calibrated setup for the geometry.
func DefaultConfig(dimensions, shingleSize int) Config {
	return Config{
		Dimensions:               dimensions,
		ShingleSize:              shingleSize,
		NumberOfTrees:            DefaultNumberOfTrees,
		SampleSize:               forest.DefaultSampleSize,
		OutputAfter:              forest.DefaultOutputAfter,
		TimeDecay:                forest.DefaultTimeDecay,
		AnomalyRate:              DefaultAnomalyRate,
		ZFactor:                  DefaultZFactor,
		ScoreDifferencing:        threshold.DefaultScoreDifferencing,
		AlertOnce:                true,
		ParallelExecutionEnabled: true,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.NumberOfTrees == 0 {
		out.NumberOfTrees = DefaultNumberOfTrees
	}
	if out.SampleSize == 0 {
		out.SampleSize = forest.DefaultSampleSize
	}
	if out.OutputAfter == 0 {
		out.OutputAfter = forest.DefaultOutputAfter
	}
	if out.AnomalyRate == 0 {
		out.AnomalyRate = DefaultAnomalyRate
	}
	if out.ZFactor == 0 {
		out.ZFactor = DefaultZFactor
	}
	if out.ScoreDifferencing == 0 {
		out.ScoreDifferencing = threshold.DefaultScoreDifferencing
	}
	return out
}

// Validate rejects unusable configurations.
func (c *Config) Validate() error {
	fc := c.forestConfig()
	if err := fc.Validate(); err != nil {
		return err
	}
	if c.AnomalyRate < 0 || c.AnomalyRate >= 1 {
		return fmt.Errorf("%w: anomaly rate must be in [0,1), got %g", forest.ErrInvalidConfiguration, c.AnomalyRate)
	}
	if c.ScoreDifferencing < 0 || c.ScoreDifferencing > 1 {
		return fmt.Errorf("%w: score differencing must be in [0,1], got %g", forest.ErrInvalidConfiguration, c.ScoreDifferencing)
	}
	return nil
}

func (c *Config) forestConfig() forest.Config {
	return forest.Config{
		Dimensions:               c.Dimensions,
		ShingleSize:              c.ShingleSize,
		NumberOfTrees:            c.NumberOfTrees,
		SampleSize:               c.SampleSize,
		RandomSeed:               c.RandomSeed,
		TimeDecay:                c.TimeDecay,
		OutputAfter:              c.OutputAfter,
		ParallelExecutionEnabled: c.ParallelExecutionEnabled,
		ThreadPoolSize:           c.ThreadPoolSize,
	}
}
