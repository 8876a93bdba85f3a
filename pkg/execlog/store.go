// Package execlog persists one JSON record per model call in a directory.
package execlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/evaluation"
	"github.com/zen-systems/llmrun/pkg/pricing"
)

// DefaultDir is the log directory used when none is configured.
const DefaultDir = "logs"

// ErrRecordNotFound is returned when a handle does not name a stored record.
var ErrRecordNotFound = errors.New("execution record not found")

// Prompt is the text sent to the model.
type Prompt struct {
	User   string  `json:"user"`
	System *string `json:"system"`
}

// RecordMetadata holds the provider parameters of a call.
type RecordMetadata struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Vendor      string  `json:"vendor"`
	Type        string  `json:"type"`
}

// Record is the stored form of one execution. Fields are written once;
// Evaluation may be attached a single time afterwards.
type Record struct {
	Timestamp  time.Time          `json:"timestamp"`
	Model      string             `json:"model"`
	Provider   string             `json:"provider"`
	Prompt     Prompt             `json:"prompt"`
	Response   string             `json:"response"`
	Tokens     adapter.Usage      `json:"tokens"`
	Cost       pricing.Breakdown  `json:"cost"`
	LatencyMs  float64            `json:"latency_ms"`
	Metadata   RecordMetadata     `json:"metadata"`
	Evaluation *evaluation.Result `json:"evaluation,omitempty"`
}

// Entry is the input to LogExecution.
type Entry struct {
	Prompt       string
	SystemPrompt string
	Response     string
	Metadata     adapter.Metadata
	Tokens       adapter.Usage
	Cost         pricing.Breakdown
	LatencyMs    float64
}

// Logger owns a directory of execution records.
type Logger struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the clock used for timestamps and file names.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Logger over dir, creating it if needed. A directory that
// cannot be created is reported but not fatal; writes will fail instead.
func New(dir string, opts ...Option) *Logger {
	if dir == "" {
		dir = DefaultDir
	}
	l := &Logger{dir: dir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		l.logger.Warn("failed to create log directory", zap.String("dir", dir), zap.Error(err))
	}
	return l
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	return l.dir
}

// LogExecution writes a new record and returns its path. On failure it
// returns an empty handle together with the cause; nothing is written.
func (l *Logger) LogExecution(e Entry) (string, error) {
	ts := l.now()
	rec := Record{
		Timestamp: ts,
		Model:     orUnknown(e.Metadata.Model),
		Provider:  orUnknown(e.Metadata.Provider),
		Prompt:    Prompt{User: e.Prompt},
		Response:  e.Response,
		Tokens:    e.Tokens,
		Cost:      e.Cost,
		LatencyMs: math.Round(e.LatencyMs*100) / 100,
		Metadata: RecordMetadata{
			Temperature: e.Metadata.Temperature,
			MaxTokens:   e.Metadata.MaxTokens,
			Vendor:      e.Metadata.Vendor,
			Type:        e.Metadata.Type,
		},
	}
	if e.SystemPrompt != "" {
		system := e.SystemPrompt
		rec.Prompt.System = &system
	}

	data, err := encode(rec)
	if err != nil {
		l.logger.Error("logging failed", zap.Error(err))
		return "", err
	}

	path, err := l.create(Slug(rec.Model), ts, data)
	if err != nil {
		l.logger.Error("logging failed", zap.String("dir", l.dir), zap.Error(err))
		return "", err
	}

	l.logger.Info("logged execution", zap.String("file", path))
	return path, nil
}

// create writes data under a new file name, adding a microsecond suffix when
// the second-precision name is taken.
func (l *Logger) create(slug string, ts time.Time, data []byte) (string, error) {
	stamp := ts.Format("2006-01-02-150405")
	candidates := []string{
		fmt.Sprintf("%s-%s.json", slug, stamp),
		fmt.Sprintf("%s-%s-%06d.json", slug, stamp, ts.Nanosecond()/1000),
	}

	for _, name := range candidates {
		path := filepath.Join(l.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create log file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write log file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close log file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("log file name collision for %s at %s", slug, stamp)
}

// Read loads a record by handle.
func (l *Logger) Read(handle string) (*Record, error) {
	data, err := os.ReadFile(handle)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("read log file %s: %w", handle, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON in log file %s: %w", handle, err)
	}
	return &rec, nil
}

// AddEvaluation attaches an evaluation block to an existing record. Unlike
// LogExecution it surfaces every failure, since a valid handle implies the
// record exists.
func (l *Logger) AddEvaluation(handle string, result evaluation.Result) error {
	rec, err := l.Read(handle)
	if err != nil {
		l.logger.Error("failed to add evaluation", zap.String("file", handle), zap.Error(err))
		return err
	}

	rec.Evaluation = &result
	data, err := encode(*rec)
	if err != nil {
		return err
	}
	if err := replaceFile(handle, data); err != nil {
		l.logger.Error("failed to add evaluation", zap.String("file", handle), zap.Error(err))
		return fmt.Errorf("rewrite log file %s: %w", handle, err)
	}

	l.logger.Info("added evaluation", zap.String("file", handle))
	return nil
}

// replaceFile swaps data into path through a temp file in the same
// directory, so a failed write leaves the old contents intact.
func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Slug turns a model identifier into a file-name-safe lowercase token.
func Slug(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return unicode.ToLower(r)
		}
		return '-'
	}, model)
}

func encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
