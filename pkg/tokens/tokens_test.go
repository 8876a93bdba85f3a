package tokens

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zen-systems/llmrun/pkg/adapter"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abc", 1},
		{"abcdefgh", 2},
		{"héllo wörld!", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.text), "Estimate(%q)", tt.text)
	}
}

func TestEstimateZeroIffEmpty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		n := Estimate(text)
		if text == "" {
			assert.Equal(rt, 0, n)
		} else {
			assert.GreaterOrEqual(rt, n, 1)
		}
	})
}

func TestEncodingFor(t *testing.T) {
	enc, ok := EncodingFor("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "o200k_base", enc)

	enc, ok = EncodingFor("GPT-4-turbo")
	require.True(t, ok)
	assert.Equal(t, "cl100k_base", enc)

	_, ok = EncodingFor("claude-sonnet-4-20250514")
	assert.False(t, ok)
}

type fakeCounter struct {
	perText int
	err     error
}

func (c fakeCounter) Count(text string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if text == "" {
		return 0, nil
	}
	return c.perText, nil
}

func resolverFor(c Counter) Resolver {
	return func(string) (Counter, bool) { return c, true }
}

func TestNormalizePrefersReportedUsage(t *testing.T) {
	n := NewNormalizer(resolverFor(fakeCounter{perText: 99}), nil)
	usage, method := n.NormalizeWithMethod(Exchange{Prompt: "p", Response: "r"}, func() (adapter.Usage, error) {
		return adapter.Usage{InputTokens: 10, OutputTokens: 5}, nil
	})
	assert.Equal(t, MethodReported, method)
	assert.Equal(t, adapter.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, usage)
}

func TestNormalizeFallsBackToTokenizer(t *testing.T) {
	n := NewNormalizer(resolverFor(fakeCounter{perText: 7}), nil)
	usage, method := n.NormalizeWithMethod(Exchange{Prompt: "p", Response: "r"}, func() (adapter.Usage, error) {
		return adapter.Usage{}, adapter.ErrUsageUnavailable
	})
	assert.Equal(t, MethodTokenizer, method)
	assert.Equal(t, adapter.Usage{InputTokens: 7, OutputTokens: 7, TotalTokens: 14}, usage)
}

func TestNormalizeFallsBackToEstimateWhenTokenizerFails(t *testing.T) {
	n := NewNormalizer(resolverFor(fakeCounter{err: errors.New("no bpe data")}), nil)
	usage, method := n.NormalizeWithMethod(Exchange{
		SystemPrompt: "sys",
		Prompt:       "12345678",
		Response:     "abcd",
	}, nil)
	assert.Equal(t, MethodEstimate, method)
	// "sys\n\n12345678" is 13 runes.
	assert.Equal(t, adapter.Usage{InputTokens: 3, OutputTokens: 1, TotalTokens: 4}, usage)
}

func TestNormalizeRecoversFromPanickingSource(t *testing.T) {
	n := NewNormalizer(nil, nil)
	usage, method := n.NormalizeWithMethod(Exchange{Prompt: "abcdefgh", Response: ""}, func() (adapter.Usage, error) {
		panic("nil response")
	})
	assert.Equal(t, MethodEstimate, method)
	assert.Equal(t, adapter.Usage{InputTokens: 2, TotalTokens: 2}, usage)
}

func TestNormalizeFailedExchangeIsZero(t *testing.T) {
	n := NewNormalizer(nil, nil)
	usage := n.Normalize(Exchange{Prompt: "long prompt", Failed: true}, func() (adapter.Usage, error) {
		return adapter.Usage{InputTokens: 100}, nil
	})
	assert.Equal(t, adapter.Usage{}, usage)

	_, method := n.NormalizeWithMethod(Exchange{Prompt: "long prompt", Failed: true}, nil)
	assert.Equal(t, MethodNone, method)
}

func TestSanitizeClampsNegatives(t *testing.T) {
	got := Sanitize(adapter.Usage{InputTokens: -3, OutputTokens: 4, TotalTokens: -1})
	assert.Equal(t, adapter.Usage{InputTokens: 0, OutputTokens: 4, TotalTokens: 4}, got)
}
