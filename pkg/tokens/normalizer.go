package tokens

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zen-systems/llmrun/pkg/adapter"
)

// Source reports usage as the vendor returned it.
type Source func() (adapter.Usage, error)

// Exchange is the text of one provider call.
type Exchange struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Response     string
	// Failed marks a call that produced no response; its usage is zero.
	// Runner never sets it because a failed generation skips usage
	// entirely. Callers that account for failed calls themselves, such as
	// a batch tally, set it so the zero comes from one place.
	Failed bool
}

// Method identifies how a usage figure was obtained.
type Method string

const (
	MethodNone      Method = "none"
	MethodReported  Method = "reported"
	MethodTokenizer Method = "tokenizer"
	MethodEstimate  Method = "estimate"
)

// Normalizer turns vendor usage, or its absence, into adapter.Usage.
type Normalizer struct {
	resolve Resolver
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer. A nil resolver disables the tokenizer
// path; a nil logger discards output.
func NewNormalizer(resolve Resolver, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{resolve: resolve, logger: logger}
}

// Normalize returns non-negative usage for the exchange. It never fails:
// reported usage is preferred, then a model tokenizer, then Estimate.
func (n *Normalizer) Normalize(ex Exchange, source Source) adapter.Usage {
	usage, _ := n.NormalizeWithMethod(ex, source)
	return usage
}

// NormalizeWithMethod is Normalize that also reports which path produced the figure.
func (n *Normalizer) NormalizeWithMethod(ex Exchange, source Source) (adapter.Usage, Method) {
	if ex.Failed {
		return adapter.Usage{}, MethodNone
	}

	if source != nil {
		usage, err := reported(source)
		if err == nil {
			return Sanitize(usage), MethodReported
		}
		n.logger.Debug("vendor usage unavailable, counting locally",
			zap.String("model", ex.Model), zap.Error(err))
	}

	input := ex.Prompt
	if ex.SystemPrompt != "" {
		input = ex.SystemPrompt + "\n\n" + ex.Prompt
	}

	if n.resolve != nil {
		if counter, ok := n.resolve(ex.Model); ok {
			usage, err := countWith(counter, input, ex.Response)
			if err == nil {
				return usage, MethodTokenizer
			}
			n.logger.Warn("tokenizer count failed, using estimation",
				zap.String("model", ex.Model), zap.Error(err))
		}
	}

	in, out := Estimate(input), Estimate(ex.Response)
	return adapter.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}, MethodEstimate
}

// Sanitize clamps negative counts and fills a missing total.
func Sanitize(u adapter.Usage) adapter.Usage {
	u.InputTokens = max(u.InputTokens, 0)
	u.OutputTokens = max(u.OutputTokens, 0)
	u.TotalTokens = max(u.TotalTokens, 0)
	if u.TotalTokens == 0 && (u.InputTokens > 0 || u.OutputTokens > 0) {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

func reported(source Source) (usage adapter.Usage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("usage extraction panicked: %v", r)
		}
	}()
	return source()
}

func countWith(counter Counter, input, output string) (usage adapter.Usage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tokenizer panicked: %v", r)
		}
	}()
	in, err := counter.Count(input)
	if err != nil {
		return adapter.Usage{}, err
	}
	out, err := counter.Count(output)
	if err != nil {
		return adapter.Usage{}, err
	}
	return adapter.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}, nil
}
