package forest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/yairfalse/cutforest/pkg/shingle"
)

// Within-tree candidate selection bias: fully score-driven for a single
// missing dimension, half score / half random for several, matching the
// conservative 25th-percentile completion.
const (
	singleMissingCentrality = 1.0
	multiMissingCentrality  = 0.5
)

const seedStride = 0x9e3779b97f4a7c15

// Impute fills the NaN coordinates of the point with values the forest
// considers least anomalous. With one missing dimension the per-tree median
// is used; with several, the per-tree candidate at the 25th percentile of
// induced anomaly score. A point with no missing values is returned
// unchanged, and a fully missing point fails closed to a copy of the input.
func (f *Forest) Impute(point []float64) ([]float64, error) {
	if err := f.checkPoint(point, true); err != nil {
		return nil, err
	}

	missing := missingDimensions(point)
	out := append([]float64(nil), point...)
	if len(missing) == 0 || len(missing) == len(point) {
		return out, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.warmedUp() {
		return out, nil
	}

	centrality := multiMissingCentrality
	if len(missing) == 1 {
		centrality = singleMissingCentrality
	}

	points := make([][]float64, len(f.members))
	scores := make([]float64, len(f.members))
	f.forEachMember(func(i int, m *member) {
		seed := f.cfg.RandomSeed + uint64(i+1)*seedStride
		points[i], scores[i] = m.tree.Impute(point, missing, centrality, seed)
	})

	if len(missing) == 1 {
		d := missing[0]
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p[d]
		}
		sort.Float64s(values)
		out[d] = stat.Quantile(0.5, stat.Empirical, values, nil)
		return out, nil
	}

	// Several gaps: pick the candidate whose induced score sits at the 25th
	// percentile, a deliberate bias toward low-anomaly completions.
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })
	pick := order[len(order)/4]
	copy(out, points[pick])
	return out, nil
}

// Forecast extrapolates the stream horizon steps past the given shingled
// point by repeated shift-and-impute, returning the forecast blocks
// flattened oldest first.
func (f *Forest) Forecast(point []float64, horizon int) ([]float64, error) {
	if err := f.checkPoint(point, false); err != nil {
		return nil, err
	}
	baseDim := f.cfg.Dimensions / f.cfg.ShingleSize
	out := make([]float64, 0, horizon*baseDim)

	current := append([]float64(nil), point...)
	placeholder := make([]float64, baseDim)
	for i := range placeholder {
		placeholder[i] = math.NaN()
	}

	for step := 0; step < horizon; step++ {
		next := shingle.Shift(current, placeholder)
		imputed, err := f.Impute(next)
		if err != nil {
			return nil, err
		}
		out = append(out, imputed[len(imputed)-baseDim:]...)
		current = imputed
	}
	return out, nil
}

// ForecastOne is the one-step convenience form: the first value of the next
// observation block.
func (f *Forest) ForecastOne(point []float64) (float64, error) {
	values, err := f.Forecast(point, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

func missingDimensions(point []float64) []int {
	var missing []int
	for i, v := range point {
		if math.IsNaN(v) {
			missing = append(missing, i)
		}
	}
	return missing
}
