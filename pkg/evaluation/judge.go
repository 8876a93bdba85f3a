package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/zen-systems/llmrun/pkg/adapter"
)

// metricDescriptions explain each metric to a judge model.
var metricDescriptions = map[Metric]string{
	MetricAnswerRelevancy:   "How directly the response addresses the question, without tangents.",
	MetricFaithfulness:      "Fraction of the response's claims that can be inferred from the context alone.",
	MetricAnswerCorrectness: "How factually and semantically close the response is to the expected answer.",
	MetricContextPrecision:  "How much of the supplied context is relevant to producing the expected answer.",
}

const judgePromptTemplate = `You are an expert evaluator scoring an AI assistant's response.

## Question
{{.Question}}
{{if .Context}}
## Context
{{.Context}}
{{end}}{{if .GroundTruth}}
## Expected Answer
{{.GroundTruth}}
{{end}}
## Response
{{.Answer}}

## Metrics
{{range .Metrics}}- {{.Name}}: {{.Description}}
{{end}}
Score every metric from 0.0 to 1.0. Respond with only a JSON object mapping
each metric name to its score, for example {"{{(index .Metrics 0).Name}}": 0.8}.`

var judgeTemplate = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgeMetric struct {
	Name        string
	Description string
}

// JudgeEngine scores responses by asking a model to act as the evaluator.
// The judge provider must not be the provider being evaluated.
type JudgeEngine struct {
	provider adapter.Provider
}

// NewJudgeEngine creates an engine backed by provider.
func NewJudgeEngine(provider adapter.Provider) (*JudgeEngine, error) {
	if provider == nil {
		return nil, fmt.Errorf("judge provider is required")
	}
	return &JudgeEngine{provider: provider}, nil
}

// Evaluate prompts the judge and returns its scores as a mapping.
func (e *JudgeEngine) Evaluate(ctx context.Context, ds Dataset, metrics []Metric) (any, error) {
	prompt, err := buildJudgePrompt(ds, metrics)
	if err != nil {
		return nil, err
	}

	temperature := 0.0
	reply, err := e.provider.Generate(ctx, prompt, adapter.GenerateOptions{
		SystemPrompt: "You grade responses and answer with JSON only.",
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	return parseJudgeReply(reply)
}

func buildJudgePrompt(ds Dataset, metrics []Metric) (string, error) {
	if len(metrics) == 0 {
		return "", fmt.Errorf("no metrics requested")
	}
	data := struct {
		Question    string
		Answer      string
		Context     string
		GroundTruth string
		Metrics     []judgeMetric
	}{
		Question:    ds.Question,
		Answer:      ds.Answer,
		Context:     strings.TrimSpace(strings.Join(ds.Contexts, "\n\n")),
		GroundTruth: ds.GroundTruth,
	}
	for _, m := range metrics {
		data.Metrics = append(data.Metrics, judgeMetric{Name: string(m), Description: metricDescriptions[m]})
	}

	var buf bytes.Buffer
	if err := judgeTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build judge prompt: %w", err)
	}
	return buf.String(), nil
}

// parseJudgeReply extracts the first JSON object in reply, tolerating code
// fences and surrounding prose.
func parseJudgeReply(reply string) (map[string]any, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: judge reply has no JSON object", ErrNoScores)
	}

	var scores map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse judge reply: %w", err)
	}
	return scores, nil
}
