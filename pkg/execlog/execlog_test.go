package execlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/evaluation"
	"github.com/zen-systems/llmrun/pkg/pricing"
)

var fixedTime = time.Date(2025, 1, 10, 14, 3, 7, 123456789, time.UTC)

func fixedClock() time.Time { return fixedTime }

func sampleEntry() Entry {
	return Entry{
		Prompt:       "What is 2+2?",
		SystemPrompt: "Answer <briefly> & clearly",
		Response:     "4",
		Metadata: adapter.Metadata{
			Provider:    "openai",
			Model:       "gpt-4-turbo",
			Temperature: 0.1,
			MaxTokens:   4096,
			Type:        "api",
			Vendor:      "openai",
		},
		Tokens:    adapter.Usage{InputTokens: 12, OutputTokens: 1, TotalTokens: 13},
		Cost:      pricing.NewCalculator(pricing.DefaultTable()).Calculate("gpt-4-turbo", 12, 1),
		LatencyMs: 812.34567,
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"gpt-4-turbo":                    "gpt-4-turbo",
		"deepseek-ai/DeepSeek-R1:novita": "deepseek-ai-deepseek-r1-novita",
		"gemini 1.5.Pro":                 "gemini-1-5-pro",
		"":                               "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), "Slug(%q)", in)
	}
}

func TestLogExecutionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, WithClock(fixedClock))

	path, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gpt-4-turbo-2025-01-10-140307.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Answer <briefly> & clearly")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.ElementsMatch(t,
		[]string{"timestamp", "model", "provider", "prompt", "response", "tokens", "cost", "latency_ms", "metadata"},
		keys(raw))
	assert.Equal(t, 812.35, raw["latency_ms"])
	assert.Equal(t, map[string]any{"user": "What is 2+2?", "system": "Answer <briefly> & clearly"}, raw["prompt"])
	assert.Equal(t, map[string]any{"input_tokens": 12.0, "output_tokens": 1.0, "total_tokens": 13.0}, raw["tokens"])
	assert.Equal(t, map[string]any{"temperature": 0.1, "max_tokens": 4096.0, "vendor": "openai", "type": "api"}, raw["metadata"])

	rec, err := l.Read(path)
	require.NoError(t, err)
	assert.True(t, fixedTime.Equal(rec.Timestamp))
	assert.Equal(t, sampleEntry().Cost, rec.Cost)
	assert.Nil(t, rec.Evaluation)
}

func TestLogExecutionWithoutSystemPrompt(t *testing.T) {
	l := New(t.TempDir(), WithClock(fixedClock))
	e := sampleEntry()
	e.SystemPrompt = ""

	path, err := l.LogExecution(e)
	require.NoError(t, err)

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	prompt := raw["prompt"].(map[string]any)
	assert.Contains(t, prompt, "system")
	assert.Nil(t, prompt["system"])
}

func TestLogExecutionCollision(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, WithClock(fixedClock))

	first, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)
	second, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(dir, "gpt-4-turbo-2025-01-10-140307-123456.json"), second)

	_, err = l.LogExecution(sampleEntry())
	assert.Error(t, err)
}

func TestLogExecutionWriteFailureReturnsEmptyHandle(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	l := New(blocker, WithClock(fixedClock))
	path, err := l.LogExecution(sampleEntry())
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestAddEvaluation(t *testing.T) {
	l := New(t.TempDir(), WithClock(fixedClock))
	path, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)

	relevance := 0.9
	result := evaluation.Result{Relevance: &relevance, OverallScore: &relevance, MetricsUsed: []string{"answer_relevancy"}}
	require.NoError(t, l.AddEvaluation(path, result))

	rec, err := l.Read(path)
	require.NoError(t, err)
	require.NotNil(t, rec.Evaluation)
	assert.Equal(t, 0.9, *rec.Evaluation.Relevance)
	assert.Nil(t, rec.Evaluation.Coherence)
	assert.Equal(t, "4", rec.Response)
	assert.Equal(t, 812.35, rec.LatencyMs)
}

func TestAddEvaluationLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, WithClock(fixedClock))
	path, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)

	require.NoError(t, l.AddEvaluation(path, evaluation.Result{MetricsUsed: []string{}, Error: "offline"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAddEvaluationFailureKeepsRecord(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	l := New(dir, WithClock(fixedClock))
	path, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	err = l.AddEvaluation(path, evaluation.Result{MetricsUsed: []string{}, Error: "offline"})
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReplaceFileFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "record.json")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "keep"), 0755))

	err := replaceFile(target, []byte("{}"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir())
	assert.DirExists(t, filepath.Join(target, "keep"))
}

func TestAddEvaluationMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	err := l.AddEvaluation(filepath.Join(dir, "missing.json"), evaluation.Result{})
	assert.ErrorIs(t, err, ErrRecordNotFound)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	err = l.AddEvaluation(corrupt, evaluation.Result{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestStatsSkipsCorruptAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	clock := fixedTime
	l := New(dir, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	e := sampleEntry()
	e.Cost = pricing.Breakdown{TotalCost: 0.25, Currency: "USD", PricingAvailable: true}
	_, err := l.LogExecution(e)
	require.NoError(t, err)

	e.Metadata.Provider = "claude"
	e.Metadata.Model = "claude-sonnet-4-20250514"
	e.Tokens.TotalTokens = 7
	e.Cost.TotalCost = 0.5
	_, err = l.LogExecution(e)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("]"), 0644))

	first, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalLogs)
	assert.Equal(t, 1, first.Skipped)
	assert.Equal(t, 0.75, first.TotalCost)
	assert.Equal(t, 20, first.TotalTokens)
	assert.Equal(t, []string{"claude", "openai"}, first.ProvidersUsed)

	second, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStatsMissingDirectory(t *testing.T) {
	l := &Logger{dir: filepath.Join(t.TempDir(), "absent")}
	stats, err := l.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalLogs)
	assert.Empty(t, stats.ProvidersUsed)
}

func TestWatchEmitsOnNewRecord(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, WithClock(fixedClock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []Stats
	done := make(chan error, 1)
	go func() {
		done <- l.Watch(ctx, func(s Stats) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err := l.LogExecution(sampleEntry())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 1 && seen[len(seen)-1].TotalLogs == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
