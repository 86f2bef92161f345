package recall

import (
	"gradebook/internal/memory"
	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

// Stats aggregates a set of graded outcomes. WinRate is a percentage in
// [0,100] and is defined as 0 when SampleSize is 0.
type Stats struct {
	SampleSize int     `json:"sample_size"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
	AvgPnLPct  float64 `json:"avg_pnl_pct"`
}

// SymbolHistoryResult is the answer to "how did my calls on this symbol go".
type SymbolHistoryResult struct {
	Symbol   string                 `json:"symbol"`
	Outcomes []outcome.TradeOutcome `json:"outcomes"`
	Stats    Stats                  `json:"stats"`
	Best     *outcome.TradeOutcome  `json:"best,omitempty"`
	Worst    *outcome.TradeOutcome  `json:"worst,omitempty"`
}

// RecentTradesResult covers all symbols over a trailing window.
type RecentTradesResult struct {
	Days          int                    `json:"days"`
	Outcomes      []outcome.TradeOutcome `json:"outcomes"`
	Stats         Stats                  `json:"stats"`
	TopPerformers []outcome.TradeOutcome `json:"top_performers"`
}

// AccuracyResult reports prediction quality within a confidence band.
type AccuracyResult struct {
	ConfidenceMin float64 `json:"confidence_min"`
	ConfidenceMax float64 `json:"confidence_max"`
	Stats         Stats   `json:"stats"`
}

// VolatilityBand buckets the snapshot volatility percentile.
type VolatilityBand string

const (
	VolatilityLow    VolatilityBand = "low"    // rank < 33
	VolatilityMedium VolatilityBand = "medium" // 33 <= rank <= 66
	VolatilityHigh   VolatilityBand = "high"   // rank > 66
	VolatilityAny    VolatilityBand = ""
)

// SimilarQuery describes a historical setup to match against stored
// snapshots. A snapshot matches when ANY of its three RSI timeframe
// readings falls inside [RSIMin, RSIMax] (the 15m/1h/4h overlap question is
// resolved as "any timeframe in range").
type SimilarQuery struct {
	RSIMin         float64
	RSIMax         float64
	Trend          outcome.MarketCondition
	VolatilityBand VolatilityBand
}

// SimilarResult carries the matched outcomes and a win rate computed over
// exactly the matched set.
type SimilarResult struct {
	Matches []store.Scored `json:"matches"`
	Stats   Stats          `json:"stats"`
}

// WhatWorkedResult summarizes what historically paid off under a condition.
type WhatWorkedResult struct {
	Condition         outcome.MarketCondition `json:"condition"`
	SampleSize        int                     `json:"sample_size"`
	DominantDirection outcome.Direction       `json:"dominant_direction,omitempty"`
	OptimalConfidence float64                 `json:"optimal_confidence"`
	FailurePatterns   []string                `json:"failure_patterns"`
	Stats             Stats                   `json:"stats"`
}

// SearchResult is the proxied semantic search answer. Unavailable is set
// instead of an error when the memory service cannot be reached.
type SearchResult struct {
	Query       string           `json:"query"`
	Snippets    []memory.Snippet `json:"snippets"`
	Unavailable bool             `json:"unavailable"`
}
