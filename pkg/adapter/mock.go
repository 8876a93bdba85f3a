package adapter

import (
	"context"
	"fmt"
)

const defaultMockModel = "mock-1"

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	cfg             ProviderConfig

	// ReportedUsage is returned by Usage after a successful call. A nil value
	// simulates a vendor that omits usage.
	ReportedUsage *Usage
	// Err, when set, is returned by every Generate call.
	Err error

	Calls    int
	LastOpts GenerateOptions
	called   bool
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		cfg:             ProviderConfig{}.withDefaults(defaultMockModel),
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	m := NewMockAdapter()
	if responses != nil {
		m.responses = responses
	}
	if defaultResponse != "" {
		m.defaultResponse = defaultResponse
	}
	return m
}

// WithModel sets the model name reported in metadata.
func (a *MockAdapter) WithModel(model string) *MockAdapter {
	a.cfg.Model = model
	return a
}

// Metadata returns the provider description.
func (a *MockAdapter) Metadata() Metadata {
	meta := a.cfg.metadata("mock", "mock")
	meta.Type = "local"
	return meta
}

// Usage returns ReportedUsage for the last successful call.
func (a *MockAdapter) Usage() (Usage, error) {
	if !a.called || a.ReportedUsage == nil {
		return Usage{}, ErrUsageUnavailable
	}
	return *a.ReportedUsage, nil
}

// Generate returns a deterministic response for the prompt.
func (a *MockAdapter) Generate(_ context.Context, prompt string, opts GenerateOptions) (string, error) {
	a.Calls++
	a.LastOpts = opts
	a.called = false
	if a.Err != nil {
		return "", a.Err
	}
	a.called = true
	if response, ok := a.responses[prompt]; ok {
		return response, nil
	}
	return fmt.Sprintf("%s\n%s", a.defaultResponse, prompt), nil
}
