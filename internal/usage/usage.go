// Package usage tracks per-invocation model usage: tokens, cost, and timing.
package usage

import (
	"context"
	"strings"
	"time"
)

// Record is one model invocation's usage ledger entry. UserID and ChatID of
// 0 mean anonymous; records are written regardless.
type Record struct {
	ID               string
	UserID           int
	ChatID           int
	SessionID        string
	ModelName        string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	QuerySize        int
	ResponseSize     int
	Cost             float64
	RequestTimeMs    int
	IsStreaming      bool
	Timestamp        time.Time
}

// Recorder persists usage records.
type Recorder interface {
	SaveUsage(ctx context.Context, rec Record) error
}

// NopRecorder discards records; used when no database is configured.
type NopRecorder struct{}

// SaveUsage implements Recorder.
func (NopRecorder) SaveUsage(ctx context.Context, rec Record) error { return nil }

// modelRate holds per-1K-token pricing in USD.
type modelRate struct {
	input  float64
	output float64
}

// Pricing per 1K tokens. Unknown models cost zero rather than failing the
// record.
var modelRates = map[string]modelRate{
	"gpt-4o-mini":                {input: 0.00015, output: 0.0006},
	"gpt-4o":                     {input: 0.0025, output: 0.01},
	"o3-mini":                    {input: 0.0011, output: 0.0044},
	"gpt-3.5-turbo":              {input: 0.0005, output: 0.0015},
	"claude-3-7-sonnet-latest":   {input: 0.003, output: 0.015},
	"claude-3-5-sonnet-latest":   {input: 0.003, output: 0.015},
	"claude-3-5-haiku-latest":    {input: 0.0008, output: 0.004},
	"gemini-2.5-pro-preview-03-25": {input: 0.00125, output: 0.01},
	"gemini-2.0-flash":           {input: 0.0001, output: 0.0004},
	"llama-3.3-70b-versatile":    {input: 0.00059, output: 0.00079},
}

// ProviderForModel infers the provider from a model name.
func ProviderForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "openai"
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	case strings.HasPrefix(m, "llama"), strings.HasPrefix(m, "mixtral"):
		return "groq"
	default:
		return "openai"
	}
}

// Cost computes the dollar cost of a call, rounded to 7 decimal places.
func Cost(model string, promptTokens, completionTokens int) float64 {
	rate, ok := modelRates[strings.ToLower(model)]
	if !ok {
		return 0
	}
	cost := float64(promptTokens)/1000*rate.input + float64(completionTokens)/1000*rate.output
	return roundCost(cost)
}

// roundCost rounds to 7 decimal places, the ledger's precision.
func roundCost(c float64) float64 {
	const shift = 1e7
	if c >= 0 {
		return float64(int64(c*shift+0.5)) / shift
	}
	return float64(int64(c*shift-0.5)) / shift
}
