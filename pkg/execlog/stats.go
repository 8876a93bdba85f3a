package execlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Stats aggregates every readable record in the log directory.
type Stats struct {
	TotalLogs     int      `json:"total_logs"`
	Skipped       int      `json:"skipped"`
	TotalCost     float64  `json:"total_cost"`
	TotalTokens   int      `json:"total_tokens"`
	ProvidersUsed []string `json:"providers_used"`
	LogDirectory  string   `json:"log_directory"`
}

// statsRecord is the subset of a record Stats needs.
type statsRecord struct {
	Provider string `json:"provider"`
	Tokens   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"tokens"`
	Cost struct {
		TotalCost float64 `json:"total_cost"`
	} `json:"cost"`
}

// Stats aggregates count, cost, tokens and providers over the stored records.
// Unreadable or corrupt files are skipped and counted in Skipped. A missing
// directory yields empty stats.
func (l *Logger) Stats() (Stats, error) {
	stats := Stats{ProvidersUsed: []string{}, LogDirectory: l.dir}

	paths, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return stats, fmt.Errorf("list log files: %w", err)
	}
	if _, err := os.Stat(l.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return stats, fmt.Errorf("stat log directory: %w", err)
	}

	providers := make(map[string]struct{})
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			stats.Skipped++
			continue
		}
		var rec statsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			stats.Skipped++
			continue
		}
		stats.TotalLogs++
		stats.TotalCost += rec.Cost.TotalCost
		stats.TotalTokens += rec.Tokens.TotalTokens
		provider := rec.Provider
		if provider == "" {
			provider = "unknown"
		}
		providers[provider] = struct{}{}
	}

	for p := range providers {
		stats.ProvidersUsed = append(stats.ProvidersUsed, p)
	}
	sort.Strings(stats.ProvidersUsed)
	stats.TotalCost = math.Round(stats.TotalCost*1e6) / 1e6
	return stats, nil
}
