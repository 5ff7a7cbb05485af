// Package detect wraps a random cut forest with the calibration layer:
// input normalization, internal shingling, an adaptive score threshold,
// anomaly grading, and alert suppression for sustained excursions.
package detect

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yairfalse/cutforest/pkg/forest"
	"github.com/yairfalse/cutforest/pkg/shingle"
	"github.com/yairfalse/cutforest/pkg/threshold"
)

// Detector is a thresholded random cut forest. Process is the only entry
// point and is safe for serialized use; calls must arrive in stream order.
type Detector struct {
	logger *zap.Logger
	cfg    Config

	mu          sync.Mutex
	forest      *forest.Forest
	thresholder *threshold.Thresholder
	transform   *threshold.Transform
	buffer      *shingle.Buffer
	state       State
	prevRaw     []float64

	// OTEL instrumentation
	tracer         trace.Tracer
	processedTotal metric.Int64Counter
	anomaliesTotal metric.Int64Counter
	gradeHistogram metric.Float64Histogram
}

// New builds a detector from the configuration. The logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := forest.New(cfg.forestConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("building forest: %w", err)
	}

	baseDim := cfg.Dimensions / cfg.ShingleSize
	buffer, err := shingle.NewBuffer(baseDim, cfg.ShingleSize)
	if err != nil {
		return nil, err
	}

	th := threshold.NewThresholder(cfg.AnomalyRate, cfg.AutoAdjust)
	th.SetZFactor(cfg.ZFactor)
	th.SetScoreDifferencing(cfg.ScoreDifferencing)

	tr := threshold.NewTransform(cfg.Transform, baseDim, cfg.AnomalyRate)
	th.SetContext(cfg.ShingleSize, cfg.Transform != threshold.TransformNone, tr.Differenced())

	tracer := otel.Tracer("cutforest-detector")
	meter := otel.Meter("cutforest-detector")

	processedTotal, _ := meter.Int64Counter(
		"cutforest_points_processed_total",
		metric.WithDescription("Total points processed"),
	)
	anomaliesTotal, _ := meter.Int64Counter(
		"cutforest_anomalies_total",
		metric.WithDescription("Points graded anomalous"),
	)
	gradeHistogram, _ := meter.Float64Histogram(
		"cutforest_anomaly_grade",
		metric.WithDescription("Grade distribution of flagged points"),
	)

	return &Detector{
		logger:         logger,
		cfg:            cfg,
		forest:         f,
		thresholder:    th,
		transform:      tr,
		buffer:         buffer,
		state:          StateWarmup,
		tracer:         tracer,
		processedTotal: processedTotal,
		anomaliesTotal: anomaliesTotal,
		gradeHistogram: gradeHistogram,
	}, nil
}

// Forest exposes the wrapped ensemble for read-only queries.
func (d *Detector) Forest() *forest.Forest {
	return d.forest
}

// State returns the current calibration state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Process ingests one observation block and returns its descriptor. The
// block has Dimensions/ShingleSize values; shingling happens internally.
func (d *Detector) Process(ctx context.Context, block []float64, timestamp int64) (*AnomalyDescriptor, error) {
	ctx, span := d.tracer.Start(ctx, "detector.process")
	defer span.End()

	baseDim := d.cfg.Dimensions / d.cfg.ShingleSize
	if len(block) != baseDim {
		return nil, fmt.Errorf("detect: block has %d values, want %d: %w", len(block), baseDim, forest.ErrDimensionMismatch)
	}
	for i, v := range block {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("detect: non-finite value at dimension %d: %w", i, forest.ErrNonFiniteInput)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.processedTotal != nil {
		d.processedTotal.Add(ctx, 1)
	}

	desc := &AnomalyDescriptor{
		ID:        uuid.New().String(),
		Timestamp: timestamp,
	}

	prevRaw := d.prevRaw
	d.prevRaw = append([]float64(nil), block...)
	transformed := d.transform.Apply(block)
	shingled, ready, err := d.buffer.Push(transformed)
	if !ready || err != nil {
		desc.State = d.state
		return desc, err
	}

	score, err := d.forest.Score(shingled)
	if err != nil {
		return nil, err
	}
	desc.Score = score

	if !d.warmedUp() {
		d.state = StateWarmup
		desc.State = d.state
		return desc, d.forest.Update(shingled)
	}
	if d.state == StateWarmup {
		d.state = StateQuiet
	}

	thresholdValue, grade := d.thresholder.ThresholdAndGrade(score)
	desc.Threshold = thresholdValue

	switch {
	case grade <= 0:
		d.state = StateQuiet
	case d.state == StateAlerted && d.cfg.AlertOnce:
		// Same excursion, already reported.
		grade = 0
	default:
		d.state = StateAlerted
	}
	desc.Grade = grade

	if grade > 0 {
		d.explain(desc, shingled, baseDim, prevRaw)
		if d.anomaliesTotal != nil {
			d.anomaliesTotal.Add(ctx, 1)
		}
		if d.gradeHistogram != nil {
			d.gradeHistogram.Record(ctx, grade)
		}
		span.SetAttributes(
			attribute.Float64("score", score),
			attribute.Float64("grade", grade),
		)
		d.logger.Info("anomaly detected",
			zap.String("id", desc.ID),
			zap.Int64("timestamp", timestamp),
			zap.Float64("score", score),
			zap.Float64("grade", grade),
			zap.Float64("threshold", thresholdValue))
	}

	d.thresholder.Update(score)
	desc.State = d.state
	return desc, d.forest.Update(shingled)
}

// explain attaches the directional attribution and the expected value for
// the newest observation block.
func (d *Detector) explain(desc *AnomalyDescriptor, shingled []float64, baseDim int, prevRaw []float64) {
	if attributed, err := d.forest.Attribute(shingled); err == nil {
		desc.Low = attributed.Low
		desc.High = attributed.High
	}

	// Expect the newest block: mark it missing, let the forest fill it in,
	// and map it back to input space. With a shingle size of 1 there is no
	// context to condition on, so no expectation is produced.
	if d.cfg.ShingleSize <= 1 {
		return
	}
	probe := append([]float64(nil), shingled...)
	for i := len(probe) - baseDim; i < len(probe); i++ {
		probe[i] = math.NaN()
	}
	imputed, err := d.forest.Impute(probe)
	if err != nil {
		return
	}
	desc.ExpectedValue = d.transform.Invert(imputed[len(imputed)-baseDim:], prevRaw)
}

func (d *Detector) warmedUp() bool {
	return d.forest.TotalUpdates() >= uint64(d.cfg.OutputAfter)
}
