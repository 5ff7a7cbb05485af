package threshold

import "math"

// Tuning constants for the adaptive threshold. The absolute floor keeps the
// threshold from collapsing on extremely regular streams; the initial value
// governs the blend-in period right after the minimum score count is reached.
const (
	DefaultZFactor           = 3.0
	MinimumZFactor           = 2.0
	DefaultScoreDifferencing = 0.5

	defaultMinimumScores             = 10
	defaultAbsoluteThreshold         = 0.8
	defaultInitialThreshold          = 1.5
	defaultFactorAdjustmentThreshold = 0.9
)

// Thresholder maintains an adaptive threshold over the stream of anomaly
// scores and grades each score against it. The threshold follows a
// discounted mean plus a z-factor multiple of a blended deviation estimate,
// tightening as more scores are seen.
type Thresholder struct {
	count             int
	lastScore         float64
	zFactor           float64
	scoreDifferencing float64
	autoAdjust        bool
	minimumScores     int

	absoluteThreshold         float64
	initialThreshold          float64
	factorAdjustmentThreshold float64

	shingleSize int
	transformed bool
	differenced bool

	primary      *Deviation
	secondary    *Deviation
	thresholdDev *Deviation
}

// NewThresholder creates a thresholder whose deviations discount old scores
// at the given rate (typically the target anomaly rate). autoAdjust lets the
// absolute floor follow unusually low score regimes.
func NewThresholder(discount float64, autoAdjust bool) *Thresholder {
	return &Thresholder{
		zFactor:                   DefaultZFactor,
		scoreDifferencing:         DefaultScoreDifferencing,
		autoAdjust:                autoAdjust,
		minimumScores:             defaultMinimumScores,
		absoluteThreshold:         defaultAbsoluteThreshold,
		initialThreshold:          defaultInitialThreshold,
		factorAdjustmentThreshold: defaultFactorAdjustmentThreshold,
		shingleSize:               1,
		primary:                   NewDeviation(discount),
		secondary:                 NewDeviation(discount),
		thresholdDev:              NewDeviation(discount / 2.0),
	}
}

// SetZFactor overrides the z-factor multiplier; values below the minimum are
// clamped at grading time.
func (t *Thresholder) SetZFactor(factor float64) {
	t.zFactor = factor
}

// SetScoreDifferencing sets the blend between the deviation estimates; must
// be in [0, 1].
func (t *Thresholder) SetScoreDifferencing(v float64) {
	if v >= 0 && v <= 1 {
		t.scoreDifferencing = v
	}
}

// SetContext tells the thresholder about the input pipeline feeding it, which
// changes how the long-term deviation is estimated.
func (t *Thresholder) SetContext(shingleSize int, transformed, differenced bool) {
	if shingleSize > 0 {
		t.shingleSize = shingleSize
	}
	t.transformed = transformed
	t.differenced = differenced
}

// Ready reports whether enough scores were seen to grade against the running
// statistics rather than the initial threshold.
func (t *Thresholder) Ready() bool {
	return t.count >= t.minimumScores && t.primary.Count() >= t.minimumScores
}

// intermediateFraction ramps from 0 to 1 between minimumScores and twice
// that, blending the initial threshold out.
func (t *Thresholder) intermediateFraction() float64 {
	switch {
	case t.count < t.minimumScores:
		return 0
	case t.count > 2*t.minimumScores:
		return 1
	default:
		return float64(t.count-t.minimumScores) / float64(t.minimumScores)
	}
}

// adjustedFactor shrinks the z-factor when the score regime sits well below
// the usual mean of 1, clamped at the minimum z-factor.
func (t *Thresholder) adjustedFactor(factor float64) float64 {
	base := t.primary.Mean()
	corrected := factor
	if base < t.factorAdjustmentThreshold && t.transformed {
		corrected = base * factor / t.factorAdjustmentThreshold
	}
	return math.Max(corrected, MinimumZFactor)
}

// longTermDeviation estimates the deviation scale used to stretch the
// threshold above the mean.
func (t *Thresholder) longTermDeviation() float64 {
	if t.shingleSize == 1 && !t.differenced {
		return math.Min(math.Sqrt2*t.thresholdDev.Mean(), t.primary.Mean())
	}
	first := t.primary.Deviation()
	if v := math.Sqrt2 * t.thresholdDev.Deviation(); v < first {
		first = v
	}
	if v := t.secondary.Deviation(); v < first {
		first = v
	}
	return t.scoreDifferencing*first + (1.0-t.scoreDifferencing)*t.secondary.Deviation()
}

// Threshold returns the current effective threshold.
func (t *Thresholder) Threshold() float64 {
	threshold, _ := t.ThresholdAndGrade(math.Inf(-1))
	return threshold
}

// ThresholdAndGrade evaluates a score against the current threshold. The
// grade is 0 below threshold and grows continuously with the score's
// z-distance above it, capped at 1.
func (t *Thresholder) ThresholdAndGrade(score float64) (float64, float64) {
	fraction := t.intermediateFraction()
	factor := t.adjustedFactor(t.zFactor)
	scaledDeviation := (factor-1.0)*t.longTermDeviation() + t.primary.Deviation()

	absolute := t.absoluteThreshold
	if mean := t.primary.Mean(); t.autoAdjust && fraction >= 1 && mean < t.factorAdjustmentThreshold {
		absolute = mean * absolute / t.factorAdjustmentThreshold
	}

	var threshold float64
	if !t.Ready() {
		threshold = math.Max(t.initialThreshold, absolute)
	} else {
		blended := fraction*(t.primary.Mean()+scaledDeviation) + (1.0-fraction)*t.initialThreshold
		threshold = math.Max(blended, absolute)
	}

	if score < threshold || threshold == 0 {
		return threshold, 0
	}
	grade := t.surpriseIndex(score, threshold, factor, scaledDeviation/factor)
	grade = math.Min(math.Floor(grade*20.0)/16.0, 1.0)
	if grade <= 0 {
		return threshold, 0
	}
	return threshold, grade
}

// surpriseIndex maps a score above the threshold to [0, 1].
func (t *Thresholder) surpriseIndex(score, base, factor, deviation float64) float64 {
	if t.Ready() {
		zFactor := 2.0 * factor
		if deviation > 0 {
			zFactor = math.Min((score-base)/deviation, factor)
		}
		return math.Max(zFactor/factor, 0)
	}
	v := (score - t.absoluteThreshold) / t.absoluteThreshold
	return math.Min(1, math.Max(v, 0))
}

// Update folds one score into the running statistics. Call exactly once per
// processed point, after grading.
func (t *Thresholder) Update(score float64) {
	primary := math.Min(2.0, score)
	t.primary.Update(primary)
	t.secondary.Update(score - t.lastScore)
	if gap := primary - t.primary.Mean(); gap > 0 {
		t.thresholdDev.Update(gap)
	}
	t.lastScore = score
	t.count++
}

// LastScore returns the most recently folded score.
func (t *Thresholder) LastScore() float64 {
	return t.lastScore
}
