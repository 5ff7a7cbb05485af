// Package forest implements the random cut forest ensemble: N independent
// trees over time-decayed sample pools, with a single serialized mutation
// path (Update) and parallel read paths (Score, Impute, Forecast, Attribute).
package forest

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/yairfalse/cutforest/pkg/sampler"
	"github.com/yairfalse/cutforest/pkg/tree"
)

// member pairs one tree with its sample pool. In shared-pool mode the pool is
// nil and the forest-level pool drives every tree.
type member struct {
	pool *sampler.Sampler
	tree *tree.Tree
}

// Forest is a streaming random cut forest. Update must be called from one
// goroutine at a time (it takes the write lock); the read operations may run
// concurrently with each other.
type Forest struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	members []*member
	shared  *sampler.Sampler
	seq     uint64
	total   uint64
}

// New builds an empty forest from the configuration. The logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Forest, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seeds := rand.New(rand.NewSource(cfg.RandomSeed))
	members := make([]*member, cfg.NumberOfTrees)
	for i := range members {
		m := &member{tree: tree.New(cfg.Dimensions, seeds.Uint64())}
		if !cfg.SharedPool {
			m.pool = sampler.New(cfg.SampleSize, cfg.TimeDecay, seeds.Uint64())
		}
		members[i] = m
	}

	f := &Forest{cfg: cfg, logger: logger, members: members}
	if cfg.SharedPool {
		f.shared = sampler.New(cfg.SampleSize, cfg.TimeDecay, seeds.Uint64())
	}

	logger.Debug("forest constructed",
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("trees", cfg.NumberOfTrees),
		zap.Int("sample_size", cfg.SampleSize),
		zap.Bool("shared_pool", cfg.SharedPool))
	return f, nil
}

// Dimensions returns the configured point dimensionality.
func (f *Forest) Dimensions() int {
	return f.cfg.Dimensions
}

// TotalUpdates returns the number of points ingested so far.
func (f *Forest) TotalUpdates() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.total
}

// NodeCount returns the total live tree nodes across the ensemble.
func (f *Forest) NodeCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	total := 0
	for _, m := range f.members {
		total += m.tree.NodeCount()
	}
	return total
}

// Update ingests one point: each tree's pool decides residency, evictions
// cascade into deletions, acceptances into insertions. Updates for a stream
// must arrive in order; tree shape depends on it.
func (f *Forest) Update(point []float64) error {
	if err := f.checkPoint(point, false); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	seq := f.seq

	if f.shared != nil {
		accepted, evicted := f.shared.Offer(point, seq)
		if accepted {
			f.forEachMember(func(_ int, m *member) {
				if evicted != nil {
					m.tree.Delete(evicted.Point, evicted.Seq)
				}
				m.tree.Insert(point, seq)
			})
		}
	} else {
		f.forEachMember(func(_ int, m *member) {
			accepted, evicted := m.pool.Offer(point, seq)
			if evicted != nil {
				m.tree.Delete(evicted.Point, evicted.Seq)
			}
			if accepted {
				m.tree.Insert(point, seq)
			}
		})
	}
	f.total++
	return nil
}

// Score returns the aggregate anomaly score of the point without mutating the
// forest. Before OutputAfter points have been ingested it returns 0.
func (f *Forest) Score(point []float64) (float64, error) {
	if err := f.checkPoint(point, false); err != nil {
		return 0, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.warmedUp() {
		return 0, nil
	}

	scores := make([]float64, len(f.members))
	f.forEachMember(func(i int, m *member) {
		scores[i] = m.tree.Score(point)
	})
	return f.aggregate(scores), nil
}

// Attribute decomposes the aggregate anomaly score into per-dimension low and
// high contribution vectors. During warmup both vectors are zero.
func (f *Forest) Attribute(point []float64) (*tree.DiVector, error) {
	if err := f.checkPoint(point, false); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	result := tree.NewDiVector(f.cfg.Dimensions)
	if !f.warmedUp() {
		return result, nil
	}

	parts := make([]*tree.DiVector, len(f.members))
	f.forEachMember(func(i int, m *member) {
		parts[i] = m.tree.Attribute(point)
	})
	for _, p := range parts {
		result.Add(p)
	}
	result.Scale(1.0 / float64(len(f.members)))
	return result, nil
}

func (f *Forest) aggregate(scores []float64) float64 {
	if f.cfg.MedianAggregation {
		sorted := append([]float64(nil), scores...)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	return stat.Mean(scores, nil)
}

// warmedUp is called with at least the read lock held.
func (f *Forest) warmedUp() bool {
	return f.total >= uint64(f.cfg.OutputAfter)
}

// forEachMember runs fn over every tree, in parallel when enabled. Callers
// hold the appropriate forest lock; fn must only touch member i's state and
// its own result slot.
func (f *Forest) forEachMember(fn func(i int, m *member)) {
	if !f.cfg.ParallelExecutionEnabled || len(f.members) == 1 {
		for i, m := range f.members {
			fn(i, m)
		}
		return
	}
	var g errgroup.Group
	if f.cfg.ThreadPoolSize > 0 {
		g.SetLimit(f.cfg.ThreadPoolSize)
	}
	for i, m := range f.members {
		g.Go(func() error {
			fn(i, m)
			return nil
		})
	}
	// fn never returns an error; Wait is the synchronization barrier.
	_ = g.Wait()
}

// checkPoint validates geometry and finiteness before any state changes.
// With allowNaN set, NaN values are interpreted as missing rather than
// rejected.
func (f *Forest) checkPoint(point []float64, allowNaN bool) error {
	if len(point) != f.cfg.Dimensions {
		return fmt.Errorf("forest: point has %d values, want %d: %w", len(point), f.cfg.Dimensions, ErrDimensionMismatch)
	}
	for i, v := range point {
		if math.IsInf(v, 0) {
			return fmt.Errorf("forest: Inf at dimension %d: %w", i, ErrNonFiniteInput)
		}
		if math.IsNaN(v) && !allowNaN {
			return fmt.Errorf("forest: NaN at dimension %d: %w", i, ErrNonFiniteInput)
		}
	}
	return nil
}
