package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultHTTPTimeout = 2 * time.Minute

// HTTPEngine calls an evaluation service (typically a RAGAS sidecar) over HTTP.
type HTTPEngine struct {
	endpoint   string
	httpClient *http.Client
}

// httpRequest is the body posted to the evaluation service.
type httpRequest struct {
	Dataset
	Metrics []Metric `json:"metrics"`
}

// NewHTTPEngine creates an engine posting to endpoint.
func NewHTTPEngine(endpoint string, timeout time.Duration) (*HTTPEngine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("evaluation endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPEngine{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Evaluate posts the dataset and returns the decoded JSON response.
func (e *HTTPEngine) Evaluate(ctx context.Context, ds Dataset, metrics []Metric) (any, error) {
	body, err := json.Marshal(httpRequest{Dataset: ds, Metrics: metrics})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evaluation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("evaluation service returned status %d: %s", resp.StatusCode, string(data))
	}

	return json.RawMessage(data), nil
}
