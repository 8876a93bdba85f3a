package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens for a specific model family.
type Counter interface {
	Count(text string) (int, error)
}

// modelEncodings maps OpenAI model prefixes to their tiktoken encoding.
// Longer prefixes are listed first so gpt-4o wins over gpt-4.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{prefix: "gpt-4o", encoding: "o200k_base"},
	{prefix: "gpt-4.1", encoding: "o200k_base"},
	{prefix: "o1", encoding: "o200k_base"},
	{prefix: "o3", encoding: "o200k_base"},
	{prefix: "o4", encoding: "o200k_base"},
	{prefix: "gpt-4", encoding: "cl100k_base"},
	{prefix: "gpt-3.5", encoding: "cl100k_base"},
	{prefix: "text-embedding-3", encoding: "cl100k_base"},
	{prefix: "text-embedding-ada", encoding: "cl100k_base"},
}

// EncodingFor returns the tiktoken encoding for a model, if it belongs to a
// known family.
func EncodingFor(model string) (string, bool) {
	model = strings.ToLower(model)
	for _, e := range modelEncodings {
		if strings.HasPrefix(model, e.prefix) {
			return e.encoding, true
		}
	}
	return "", false
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding name.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	return &TiktokenCounter{encoding: encoding}
}

// init lazily loads the encoding (which may download BPE data on first use).
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count returns the exact number of tokens in text.
func (t *TiktokenCounter) Count(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Resolver returns a vendor-accurate counter for a model, if one exists.
type Resolver func(model string) (Counter, bool)

var (
	countersMu sync.Mutex
	counters   = map[string]*TiktokenCounter{}
)

// CounterFor is the default Resolver. Counters are shared per encoding.
func CounterFor(model string) (Counter, bool) {
	encoding, ok := EncodingFor(model)
	if !ok {
		return nil, false
	}
	countersMu.Lock()
	defer countersMu.Unlock()
	c, ok := counters[encoding]
	if !ok {
		c = NewTiktokenCounter(encoding)
		counters[encoding] = c
	}
	return c, true
}
