package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholderInitialThreshold(t *testing.T) {
	th := NewThresholder(0.005, false)

	assert.False(t, th.Ready())
	assert.InDelta(t, 1.5, th.Threshold(), 1e-12)
}

func TestThresholderReadyAfterMinimumScores(t *testing.T) {
	th := NewThresholder(0.005, false)
	for i := 0; i < 9; i++ {
		th.Update(1.0)
	}
	assert.False(t, th.Ready())

	th.Update(1.0)
	assert.True(t, th.Ready())
}

func TestThresholderQuietStreamFloor(t *testing.T) {
	th := NewThresholder(0.005, false)
	for i := 0; i < 100; i++ {
		th.Update(0.5)
	}

	// Mean plus deviation sits at 0.5; the absolute floor holds at 0.8.
	threshold, grade := th.ThresholdAndGrade(0.5)
	assert.InDelta(t, 0.8, threshold, 1e-9)
	assert.Equal(t, 0.0, grade)

	_, grade = th.ThresholdAndGrade(3.0)
	assert.Equal(t, 1.0, grade)
}

func TestThresholderGradesAgainstRunningStatistics(t *testing.T) {
	th := NewThresholder(0.005, false)
	for i := 0; i < 200; i++ {
		v := 0.9
		if i%2 == 1 {
			v = 1.1
		}
		th.Update(v)
	}

	_, grade := th.ThresholdAndGrade(1.0)
	assert.Equal(t, 0.0, grade)

	_, grade = th.ThresholdAndGrade(5.0)
	assert.Greater(t, grade, 0.9)
}

func TestThresholderGradeBounds(t *testing.T) {
	th := NewThresholder(0.005, false)
	for i := 0; i < 50; i++ {
		th.Update(1.0)
	}

	for _, score := range []float64{0, 0.5, 1, 2, 5, 100} {
		_, grade := th.ThresholdAndGrade(score)
		assert.GreaterOrEqual(t, grade, 0.0)
		assert.LessOrEqual(t, grade, 1.0)
	}
}

func TestThresholderNotReadyGradesAgainstFloor(t *testing.T) {
	th := NewThresholder(0.005, false)

	_, grade := th.ThresholdAndGrade(5.0)
	assert.Equal(t, 1.0, grade)

	_, grade = th.ThresholdAndGrade(1.0)
	assert.Equal(t, 0.0, grade)
}

func TestThresholderLastScore(t *testing.T) {
	th := NewThresholder(0.005, false)
	th.Update(1.25)

	assert.Equal(t, 1.25, th.LastScore())
}

func TestSetScoreDifferencingRejectsOutOfRange(t *testing.T) {
	th := NewThresholder(0.005, false)
	th.SetScoreDifferencing(0.7)
	assert.Equal(t, 0.7, th.scoreDifferencing)

	th.SetScoreDifferencing(1.5)
	assert.Equal(t, 0.7, th.scoreDifferencing)

	th.SetScoreDifferencing(-0.1)
	assert.Equal(t, 0.7, th.scoreDifferencing)
}
