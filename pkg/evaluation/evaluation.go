// Package evaluation scores responses with an external evaluation engine,
// choosing the metrics that the supplied inputs make computable.
package evaluation

import (
	"context"
	"strings"
)

// Metric is an evaluation-engine metric name.
type Metric string

const (
	MetricAnswerRelevancy   Metric = "answer_relevancy"
	MetricFaithfulness      Metric = "faithfulness"
	MetricAnswerCorrectness Metric = "answer_correctness"
	MetricContextPrecision  Metric = "context_precision"
)

// Mode is the combination of optional inputs present for an evaluation.
type Mode int

const (
	// ModeRelevance has neither context nor ground truth.
	ModeRelevance Mode = iota
	// ModeContext has context only.
	ModeContext
	// ModeGroundTruth has ground truth only.
	ModeGroundTruth
	// ModeFull has both context and ground truth.
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeRelevance:
		return "relevance"
	case ModeContext:
		return "context"
	case ModeGroundTruth:
		return "ground_truth"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// Metrics returns the metrics computable in this mode.
func (m Mode) Metrics() []Metric {
	switch m {
	case ModeContext:
		return []Metric{MetricAnswerRelevancy, MetricFaithfulness}
	case ModeGroundTruth:
		return []Metric{MetricAnswerRelevancy, MetricAnswerCorrectness}
	case ModeFull:
		return []Metric{MetricAnswerRelevancy, MetricFaithfulness, MetricAnswerCorrectness, MetricContextPrecision}
	default:
		return []Metric{MetricAnswerRelevancy}
	}
}

// Input is what the caller supplies for one evaluation. Blank Context or
// GroundTruth counts as absent.
type Input struct {
	Prompt      string
	Response    string
	Context     string
	GroundTruth string
}

// SelectMode picks the mode matching the optional inputs present.
func SelectMode(in Input) Mode {
	hasContext := strings.TrimSpace(in.Context) != ""
	hasTruth := strings.TrimSpace(in.GroundTruth) != ""
	switch {
	case hasContext && hasTruth:
		return ModeFull
	case hasContext:
		return ModeContext
	case hasTruth:
		return ModeGroundTruth
	default:
		return ModeRelevance
	}
}

// Dataset is the single-row bundle handed to an Engine.
type Dataset struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth,omitempty"`
}

// Engine computes named metric scores.
//
// The returned value may be a direct mapping of metric name to score, a
// tabular result (a slice of rows, the first row is used), an indexed
// container (metric name to a column of values), or raw JSON holding any of
// those.
type Engine interface {
	Evaluate(ctx context.Context, ds Dataset, metrics []Metric) (any, error)
}

// Result is the normalized score bundle. Metrics that were not computed are nil.
type Result struct {
	Relevance      *float64 `json:"relevance"`
	Coherence      *float64 `json:"coherence"`
	Correctness    *float64 `json:"correctness"`
	ContextQuality *float64 `json:"context_quality"`
	OverallScore   *float64 `json:"overall_score"`
	MetricsUsed    []string `json:"metrics_used"`
	Error          string   `json:"error,omitempty"`
}

// Failed reports whether the result is the error form.
func (r Result) Failed() bool {
	return r.Error != ""
}

func errorResult(err error) Result {
	return Result{MetricsUsed: []string{}, Error: err.Error()}
}
