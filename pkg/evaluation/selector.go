package evaluation

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// setters bind each metric to the Result field it populates.
var setters = map[Metric]func(*Result, *float64){
	MetricAnswerRelevancy:   func(r *Result, v *float64) { r.Relevance = v },
	MetricFaithfulness:      func(r *Result, v *float64) { r.Coherence = v },
	MetricAnswerCorrectness: func(r *Result, v *float64) { r.Correctness = v },
	MetricContextPrecision:  func(r *Result, v *float64) { r.ContextQuality = v },
}

// Selector runs the metrics a given Input supports through an Engine.
type Selector struct {
	engine Engine
	logger *zap.Logger
}

// NewSelector creates a selector over engine.
func NewSelector(engine Engine, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{engine: engine, logger: logger}
}

// Evaluate scores a response. It never fails: engine problems produce the
// error form of Result.
func (s *Selector) Evaluate(ctx context.Context, in Input) Result {
	mode := SelectMode(in)
	metrics := mode.Metrics()

	if s == nil || s.engine == nil {
		return errorResult(fmt.Errorf("evaluation engine not configured"))
	}

	raw, err := s.call(ctx, datasetFor(in, mode), metrics)
	if err != nil {
		s.logger.Error("evaluation failed", zap.Stringer("mode", mode), zap.Error(err))
		return errorResult(err)
	}

	scores, err := normalizeScores(raw)
	if err != nil {
		s.logger.Error("evaluation result unusable", zap.Stringer("mode", mode), zap.Error(err))
		return errorResult(err)
	}

	result, err := assemble(scores, metrics)
	if err != nil {
		s.logger.Error("evaluation result unusable", zap.Stringer("mode", mode), zap.Error(err))
		return errorResult(err)
	}

	s.logger.Info("evaluation complete",
		zap.Stringer("mode", mode),
		zap.Strings("metrics", result.MetricsUsed),
		zap.Float64("overall", *result.OverallScore))
	return result
}

func (s *Selector) call(ctx context.Context, ds Dataset, metrics []Metric) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation engine panicked: %v", r)
		}
	}()
	return s.engine.Evaluate(ctx, ds, metrics)
}

func datasetFor(in Input, mode Mode) Dataset {
	ds := Dataset{
		Question: in.Prompt,
		Answer:   in.Response,
		// Engines require a contexts column even when it is empty.
		Contexts: []string{""},
	}
	if mode == ModeContext || mode == ModeFull {
		ds.Contexts = []string{in.Context}
	}
	if mode == ModeGroundTruth || mode == ModeFull {
		ds.GroundTruth = in.GroundTruth
	}
	return ds
}

// assemble fills a Result from the requested metrics that the engine scored.
// Relevance is mandatory; other metrics missing from the scores stay nil and
// are left out of the overall mean.
func assemble(scores map[string]float64, metrics []Metric) (Result, error) {
	if _, ok := scores[string(MetricAnswerRelevancy)]; !ok {
		return Result{}, fmt.Errorf("%w: missing %s", ErrNoScores, MetricAnswerRelevancy)
	}

	result := Result{MetricsUsed: []string{}}
	var sum float64
	for _, m := range metrics {
		v, ok := scores[string(m)]
		if !ok {
			continue
		}
		sum += v
		rounded := round3(v)
		setters[m](&result, &rounded)
		result.MetricsUsed = append(result.MetricsUsed, string(m))
	}

	overall := round3(sum / float64(len(result.MetricsUsed)))
	result.OverallScore = &overall
	return result, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
