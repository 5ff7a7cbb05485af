package forest

import "fmt"

// Defaults mirror the ones the calibration layer and most callers want.
const (
	DefaultNumberOfTrees = 100
	DefaultSampleSize    = 256
	DefaultTimeDecay     = 0.0001
	DefaultOutputAfter   = 256
)

// Config describes a forest. Zero values for the tunable fields are replaced
// by defaults at construction; geometry fields must be set explicitly.
type Config struct {
	// Dimensions is the full dimensionality of points fed to the forest,
	// i.e. shingle size times base dimension.
	Dimensions int

	// ShingleSize is the number of consecutive observations flattened into
	// one point. Must divide Dimensions.
	ShingleSize int

	// NumberOfTrees is the ensemble size.
	NumberOfTrees int

	// SampleSize bounds each tree's sample pool.
	SampleSize int

	// RandomSeed fixes all random choices; a fixed seed plus a fixed update
	// order makes every result bit-reproducible.
	RandomSeed uint64

	// TimeDecay is the exponential downweighting rate of older samples.
	TimeDecay float64

	// OutputAfter is the number of updates before scores become non-zero.
	OutputAfter int

	// ParallelExecutionEnabled fans per-tree work out across goroutines.
	ParallelExecutionEnabled bool

	// ThreadPoolSize caps the fan-out; zero means one goroutine per tree.
	ThreadPoolSize int

	// SharedPool drives all trees from one sample pool instead of
	// independent per-tree pools. Eviction decisions are then serialized
	// through that single pool.
	SharedPool bool

	// MedianAggregation aggregates per-tree scores with the median instead
	// of the mean, trading sensitivity for robustness.
	MedianAggregation bool
}

// DefaultConfig returns a Config with the standard tuning for the given
// geometry.
func DefaultConfig(dimensions, shingleSize int) Config {
	return Config{
		Dimensions:               dimensions,
		ShingleSize:              shingleSize,
		NumberOfTrees:            DefaultNumberOfTrees,
		SampleSize:               DefaultSampleSize,
		TimeDecay:                DefaultTimeDecay,
		OutputAfter:              DefaultOutputAfter,
		ParallelExecutionEnabled: true,
	}
}

// Validate rejects unusable configurations before any state is built.
func (c *Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfiguration, c.Dimensions)
	}
	if c.ShingleSize <= 0 {
		return fmt.Errorf("%w: shingle size must be positive, got %d", ErrInvalidConfiguration, c.ShingleSize)
	}
	if c.Dimensions%c.ShingleSize != 0 {
		return fmt.Errorf("%w: shingle size %d does not divide dimensions %d", ErrInvalidConfiguration, c.ShingleSize, c.Dimensions)
	}
	if c.NumberOfTrees <= 0 {
		return fmt.Errorf("%w: number of trees must be positive, got %d", ErrInvalidConfiguration, c.NumberOfTrees)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("%w: sample size must be positive, got %d", ErrInvalidConfiguration, c.SampleSize)
	}
	if c.TimeDecay < 0 {
		return fmt.Errorf("%w: time decay must be non-negative, got %g", ErrInvalidConfiguration, c.TimeDecay)
	}
	if c.OutputAfter < 0 {
		return fmt.Errorf("%w: output after must be non-negative, got %d", ErrInvalidConfiguration, c.OutputAfter)
	}
	if c.ThreadPoolSize < 0 {
		return fmt.Errorf("%w: thread pool size must be non-negative, got %d", ErrInvalidConfiguration, c.ThreadPoolSize)
	}
	return nil
}

// withDefaults fills unset tunables.
func (c Config) withDefaults() Config {
	if c.NumberOfTrees == 0 {
		c.NumberOfTrees = DefaultNumberOfTrees
	}
	if c.SampleSize == 0 {
		c.SampleSize = DefaultSampleSize
	}
	return c
}
