package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yairfalse/cutforest/pkg/detect"
	"github.com/yairfalse/cutforest/pkg/threshold"
)

var (
	pointsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cutforest_points_processed_total",
		Help: "Observations read from the input stream",
	})
	anomaliesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cutforest_anomalies_flagged_total",
		Help: "Observations graded anomalous",
	})
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Stream CSV observations through the detector",
	Long: `Reads numeric CSV records from a file (or stdin when no file is
given), feeds them through a thresholded random cut forest, and logs every
graded anomaly. Each record is one observation; columns are dimensions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDetector,
}

func init() {
	runCmd.Flags().Int("shingle-size", 8, "observations per shingle")
	runCmd.Flags().Int("trees", detect.DefaultNumberOfTrees, "number of trees in the ensemble")
	runCmd.Flags().Int("sample-size", 256, "sample pool size per tree")
	runCmd.Flags().Int("output-after", 256, "points ingested before scoring starts")
	runCmd.Flags().Uint64("seed", 0, "random seed (0 for the default stream)")
	runCmd.Flags().Float64("anomaly-rate", detect.DefaultAnomalyRate, "target fraction of flagged points")
	runCmd.Flags().Float64("z-factor", detect.DefaultZFactor, "z-factor over the score deviation")
	runCmd.Flags().Float64("time-decay", 0.0001, "sample decay rate")
	runCmd.Flags().String("transform", "none", "input transform: none, difference or normalize")
	runCmd.Flags().Bool("alert-once", true, "suppress repeat alerts during one excursion")
	runCmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address (empty to disable)")

	viper.BindPFlag("shingle_size", runCmd.Flags().Lookup("shingle-size"))
	viper.BindPFlag("trees", runCmd.Flags().Lookup("trees"))
	viper.BindPFlag("sample_size", runCmd.Flags().Lookup("sample-size"))
	viper.BindPFlag("output_after", runCmd.Flags().Lookup("output-after"))
	viper.BindPFlag("seed", runCmd.Flags().Lookup("seed"))
	viper.BindPFlag("anomaly_rate", runCmd.Flags().Lookup("anomaly-rate"))
	viper.BindPFlag("z_factor", runCmd.Flags().Lookup("z-factor"))
	viper.BindPFlag("time_decay", runCmd.Flags().Lookup("time-decay"))
	viper.BindPFlag("transform", runCmd.Flags().Lookup("transform"))
	viper.BindPFlag("alert_once", runCmd.Flags().Lookup("alert-once"))
	viper.BindPFlag("metrics_listen", runCmd.Flags().Lookup("metrics-listen"))
}

func runDetector(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	input := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		input = f
	}

	if addr := viper.GetString("metrics_listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", addr))
	}

	reader := csv.NewReader(input)
	reader.FieldsPerRecord = -1

	var detector *detect.Detector
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record %d: %w", line, err)
		}
		line++

		block, err := parseRecord(record)
		if err != nil {
			logger.Warn("skipping malformed record", zap.Int("line", line), zap.Error(err))
			continue
		}

		if detector == nil {
			detector, err = buildDetector(len(block), logger)
			if err != nil {
				return err
			}
		}

		desc, err := detector.Process(cmd.Context(), block, int64(line))
		if err != nil {
			return fmt.Errorf("processing record %d: %w", line, err)
		}
		pointsProcessed.Inc()
		if desc.Grade > 0 {
			anomaliesFlagged.Inc()
			logger.Info("anomaly",
				zap.Int("line", line),
				zap.Float64("score", desc.Score),
				zap.Float64("grade", desc.Grade),
				zap.Float64("threshold", desc.Threshold),
				zap.Float64s("expected", desc.ExpectedValue))
		}
	}

	if detector != nil {
		logger.Info("stream finished",
			zap.Int("records", line),
			zap.Uint64("ingested", detector.Forest().TotalUpdates()),
			zap.String("state", string(detector.State())))
	}
	return nil
}

func buildDetector(baseDim int, logger *zap.Logger) (*detect.Detector, error) {
	method, err := threshold.ParseTransformMethod(viper.GetString("transform"))
	if err != nil {
		return nil, err
	}

	shingleSize := viper.GetInt("shingle_size")
	cfg := detect.DefaultConfig(baseDim*shingleSize, shingleSize)
	cfg.NumberOfTrees = viper.GetInt("trees")
	cfg.SampleSize = viper.GetInt("sample_size")
	cfg.OutputAfter = viper.GetInt("output_after")
	cfg.RandomSeed = viper.GetUint64("seed")
	cfg.TimeDecay = viper.GetFloat64("time_decay")
	cfg.AnomalyRate = viper.GetFloat64("anomaly_rate")
	cfg.ZFactor = viper.GetFloat64("z_factor")
	cfg.Transform = method
	cfg.AlertOnce = viper.GetBool("alert_once")

	logger.Info("detector configured",
		zap.Int("base_dimension", baseDim),
		zap.Int("shingle_size", shingleSize),
		zap.Int("trees", cfg.NumberOfTrees),
		zap.String("transform", viper.GetString("transform")))
	return detect.New(cfg, logger)
}

func parseRecord(record []string) ([]float64, error) {
	block := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		block[i] = v
	}
	return block, nil
}
