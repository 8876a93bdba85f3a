package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNoScores is returned when an engine result carries no usable score.
var ErrNoScores = errors.New("evaluation engine returned no parsable scores")

// Scorer is implemented by typed engine results that expose their scores directly.
type Scorer interface {
	Scores() map[string]float64
}

// normalizeScores flattens any supported engine result shape into a
// metric -> score map. NaN, infinite and non-numeric values are dropped.
func normalizeScores(raw any) (map[string]float64, error) {
	scores := make(map[string]float64)

	switch v := raw.(type) {
	case nil:
		return nil, ErrNoScores
	case Scorer:
		for name, s := range v.Scores() {
			addScore(scores, name, s)
		}
	case json.RawMessage:
		return normalizeJSON(v)
	case []byte:
		return normalizeJSON(v)
	case map[string]float64:
		for name, s := range v {
			addScore(scores, name, s)
		}
	case map[string]any:
		// A mapping whose values are scalars or, for indexed containers, columns.
		for name, cell := range v {
			if s, ok := firstNumber(cell); ok {
				addScore(scores, name, s)
			}
		}
	case map[string][]float64:
		for name, col := range v {
			if len(col) > 0 {
				addScore(scores, name, col[0])
			}
		}
	case map[string][]any:
		for name, col := range v {
			if len(col) > 0 {
				if s, ok := toFloat(col[0]); ok {
					addScore(scores, name, s)
				}
			}
		}
	case []map[string]float64:
		if len(v) == 0 {
			return nil, ErrNoScores
		}
		return normalizeScores(v[0])
	case []map[string]any:
		if len(v) == 0 {
			return nil, ErrNoScores
		}
		return normalizeScores(v[0])
	case []any:
		if len(v) == 0 {
			return nil, ErrNoScores
		}
		return normalizeScores(v[0])
	default:
		return nil, fmt.Errorf("unsupported evaluation result type %T", raw)
	}

	if len(scores) == 0 {
		return nil, ErrNoScores
	}
	return scores, nil
}

func normalizeJSON(data []byte) (map[string]float64, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode evaluation result: %w", err)
	}
	return normalizeScores(decoded)
}

func addScore(scores map[string]float64, name string, s float64) {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return
	}
	scores[name] = s
}

func firstNumber(cell any) (float64, bool) {
	switch col := cell.(type) {
	case []any:
		if len(col) == 0 {
			return 0, false
		}
		return toFloat(col[0])
	case []float64:
		if len(col) == 0 {
			return 0, false
		}
		return col[0], true
	default:
		return toFloat(cell)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
