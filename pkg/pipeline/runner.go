package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/evaluation"
	"github.com/zen-systems/llmrun/pkg/execlog"
	"github.com/zen-systems/llmrun/pkg/pricing"
	"github.com/zen-systems/llmrun/pkg/tokens"
)

// Options configures one instrumented call.
type Options struct {
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int

	// Logging enables usage, cost and record persistence.
	Logging bool
	// Evaluation scores the response and attaches it to the record. It
	// requires Logging and a successfully written record.
	Evaluation      bool
	EvalContext     string
	EvalGroundTruth string
}

// Execution describes an instrumented call after generation succeeded.
type Execution struct {
	Response   string
	LatencyMs  float64
	Usage      adapter.Usage
	Cost       pricing.Breakdown
	LogPath    string
	Evaluation *evaluation.Result
	Stages     []StageOutcome
}

// Failures returns the stages whose errors were swallowed.
func (e *Execution) Failures() []StageOutcome {
	var out []StageOutcome
	for _, s := range e.Stages {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Outcome returns the recorded outcome for a stage.
func (e *Execution) Outcome(stage Stage) (StageOutcome, bool) {
	for _, s := range e.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageOutcome{}, false
}

// Runner wraps provider calls with timing, usage, cost, logging and evaluation.
type Runner struct {
	normalizer *tokens.Normalizer
	calculator *pricing.Calculator
	store      *execlog.Logger
	selector   *evaluation.Selector
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithNormalizer sets the usage normalizer.
func WithNormalizer(n *tokens.Normalizer) RunnerOption {
	return func(r *Runner) { r.normalizer = n }
}

// WithCalculator sets the cost calculator.
func WithCalculator(c *pricing.Calculator) RunnerOption {
	return func(r *Runner) { r.calculator = c }
}

// WithExecutionLog sets the record store.
func WithExecutionLog(l *execlog.Logger) RunnerOption {
	return func(r *Runner) { r.store = l }
}

// WithSelector sets the evaluation selector.
func WithSelector(s *evaluation.Selector) RunnerOption {
	return func(r *Runner) { r.selector = s }
}

// WithMetrics records Prometheus metrics for each call.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock used for latency.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. Unset collaborators default to the built-in
// price table, the tiktoken-backed normalizer and the ./logs directory, which
// is only created once a call is logged.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.normalizer == nil {
		r.normalizer = tokens.NewNormalizer(tokens.CounterFor, r.logger)
	}
	if r.calculator == nil {
		r.calculator = pricing.NewCalculator(pricing.DefaultTable())
	}
	return r
}

// Run calls the provider and returns its text. A generation error is
// returned unchanged; instrumentation failures are logged and never affect
// the result.
func (r *Runner) Run(ctx context.Context, p adapter.Provider, prompt string, opts Options) (string, error) {
	exec, err := r.Execute(ctx, p, prompt, opts)
	if err != nil {
		return "", err
	}
	return exec.Response, nil
}

// Execute is Run that also reports what each instrumentation stage did.
func (r *Runner) Execute(ctx context.Context, p adapter.Provider, prompt string, opts Options) (*Execution, error) {
	start := r.now()
	response, err := p.Generate(ctx, prompt, adapter.GenerateOptions{
		SystemPrompt: opts.SystemPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	latency := r.now().Sub(start)

	exec := &Execution{
		Response:  response,
		LatencyMs: float64(latency) / float64(time.Millisecond),
	}
	r.instrument(ctx, p, prompt, opts, exec, latency)
	return exec, nil
}

func (r *Runner) instrument(ctx context.Context, p adapter.Provider, prompt string, opts Options, exec *Execution, latency time.Duration) {
	meta := r.metadata(p)
	r.metrics.observeCall(meta, latency)

	if !opts.Logging {
		exec.skip(StageUsage, StageCost, StageLog, StageEvaluate, StageAddEvaluation)
		return
	}

	usage, err := attempt(StageUsage, func() (adapter.Usage, error) {
		return r.normalizer.Normalize(tokens.Exchange{
			Model:        meta.Model,
			SystemPrompt: opts.SystemPrompt,
			Prompt:       prompt,
			Response:     exec.Response,
		}, p.Usage), nil
	})
	exec.record(StageUsage, r.warn(StageUsage, err))
	exec.Usage = usage

	cost, err := attempt(StageCost, func() (pricing.Breakdown, error) {
		return r.calculator.Calculate(meta.Model, usage.InputTokens, usage.OutputTokens), nil
	})
	exec.record(StageCost, r.warn(StageCost, err))
	if err != nil {
		cost = pricing.Breakdown{Currency: pricing.Currency}
	}
	exec.Cost = cost
	r.metrics.observeUsage(meta, usage, cost)

	if r.store == nil {
		r.store = execlog.New(execlog.DefaultDir, execlog.WithLogger(r.logger))
	}
	path, err := attempt(StageLog, func() (string, error) {
		return r.store.LogExecution(execlog.Entry{
			Prompt:       prompt,
			SystemPrompt: opts.SystemPrompt,
			Response:     exec.Response,
			Metadata:     meta,
			Tokens:       usage,
			Cost:         cost,
			LatencyMs:    exec.LatencyMs,
		})
	})
	exec.record(StageLog, r.warn(StageLog, err))
	exec.LogPath = path

	if !opts.Evaluation || path == "" {
		exec.skip(StageEvaluate, StageAddEvaluation)
		return
	}

	result, err := attempt(StageEvaluate, func() (evaluation.Result, error) {
		res := r.selector.Evaluate(ctx, evaluation.Input{
			Prompt:      prompt,
			Response:    exec.Response,
			Context:     opts.EvalContext,
			GroundTruth: opts.EvalGroundTruth,
		})
		if res.Failed() {
			return res, fmt.Errorf("evaluation failed: %s", res.Error)
		}
		return res, nil
	})
	exec.record(StageEvaluate, r.warn(StageEvaluate, err))
	if err != nil && !result.Failed() {
		result = evaluation.Result{MetricsUsed: []string{}, Error: err.Error()}
	}
	exec.Evaluation = &result

	_, err = attempt(StageAddEvaluation, func() (struct{}, error) {
		return struct{}{}, r.store.AddEvaluation(path, result)
	})
	exec.record(StageAddEvaluation, r.warn(StageAddEvaluation, err))
}

func (r *Runner) warn(stage Stage, err error) error {
	if err != nil {
		r.logger.Warn("instrumentation stage failed", zap.String("stage", string(stage)), zap.Error(err))
		r.metrics.observeFailure(stage)
	}
	return err
}

func (e *Execution) record(stage Stage, err error) {
	e.Stages = append(e.Stages, StageOutcome{Stage: stage, Err: err})
}

func (e *Execution) skip(stages ...Stage) {
	for _, s := range stages {
		e.Stages = append(e.Stages, StageOutcome{Stage: s, Skipped: true})
	}
}

// metadata reads provider metadata, tolerating a misbehaving provider.
func (r *Runner) metadata(p adapter.Provider) adapter.Metadata {
	meta, err := attempt(StageLog, func() (adapter.Metadata, error) { return p.Metadata(), nil })
	if err != nil {
		r.logger.Warn("provider metadata unavailable", zap.Error(err))
		return adapter.Metadata{}
	}
	return meta
}
