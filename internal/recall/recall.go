// Package recall answers on-demand queries against historical trade
// outcomes. Every operation returns a well-formed neutral result when no
// rows match or the store is unavailable, so a missing memory feature
// never blocks a trading decision.
package recall

import (
	"context"
	"fmt"
	"time"

	"gradebook/internal/logger"
	"gradebook/internal/memory"
	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

// Engine serves the six recall operations.
type Engine struct {
	store        store.Store
	mem          memory.Service
	queryTimeout time.Duration
	nowFn        func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMemoryService attaches the external semantic search collaborator.
func WithMemoryService(svc memory.Service) Option {
	return func(e *Engine) { e.mem = svc }
}

// WithQueryTimeout bounds the external search call.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.queryTimeout = d
		}
	}
}

// WithClock injects a time source, for tests.
func WithClock(nowFn func() time.Time) Option {
	return func(e *Engine) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

// New builds a recall Engine over the outcome store.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		queryTimeout: 5 * time.Second,
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SymbolHistory returns the most recent graded outcomes for a symbol with
// win rate, average pnl and best/worst by grade.
func (e *Engine) SymbolHistory(ctx context.Context, symbol string, limit int) SymbolHistoryResult {
	if limit <= 0 {
		limit = 10
	}
	res := SymbolHistoryResult{Symbol: symbol, Outcomes: []outcome.TradeOutcome{}}
	rows, err := e.store.ListBySymbol(ctx, symbol, limit, true)
	if err != nil {
		logger.Warnf("recall: symbol history query failed for %s: %v", symbol, err)
		return res
	}
	res.Outcomes = rows
	res.Stats = aggregate(rows)
	res.Best, res.Worst = bestAndWorst(rows)
	return res
}

// RecentTrades returns all outcomes created within the trailing window,
// across symbols, plus aggregate stats and the top performers by pnl.
func (e *Engine) RecentTrades(ctx context.Context, days int) RecentTradesResult {
	if days <= 0 {
		days = 7
	}
	res := RecentTradesResult{Days: days, Outcomes: []outcome.TradeOutcome{}, TopPerformers: []outcome.TradeOutcome{}}
	since := e.nowFn().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := e.store.ListSince(ctx, since, 0)
	if err != nil {
		logger.Warnf("recall: recent trades query failed: %v", err)
		return res
	}
	res.Outcomes = rows
	res.Stats = aggregate(rows)
	res.TopPerformers = topByPnL(rows, 3)
	return res
}

// SignalAccuracy reports win rate and average pnl for graded outcomes whose
// confidence falls inside [confMin, confMax]. Sample size is reported even
// when zero; win rate is 0 in that case.
func (e *Engine) SignalAccuracy(ctx context.Context, confMin, confMax float64) AccuracyResult {
	if confMax <= 0 {
		confMax = 100
	}
	if confMin > confMax {
		confMin, confMax = confMax, confMin
	}
	res := AccuracyResult{ConfidenceMin: confMin, ConfidenceMax: confMax}
	rows, err := e.store.ListGradedByConfidence(ctx, confMin, confMax, 0)
	if err != nil {
		logger.Warnf("recall: signal accuracy query failed: %v", err)
		return res
	}
	res.Stats = aggregate(rows)
	return res
}

// volatilityRange maps a band label to percentile bounds.
func volatilityRange(band VolatilityBand) (min, max float64) {
	switch band {
	case VolatilityLow:
		return 0, 33
	case VolatilityMedium:
		return 33, 66
	case VolatilityHigh:
		return 66, 100
	default:
		return 0, 100
	}
}

// SimilarSetups finds graded outcomes whose snapshot matches the requested
// RSI range (any timeframe), trend and volatility band. The win rate is
// computed over exactly the matched set, never diluted by unrelated rows.
func (e *Engine) SimilarSetups(ctx context.Context, q SimilarQuery) SimilarResult {
	res := SimilarResult{Matches: []store.Scored{}}
	if q.RSIMax <= 0 {
		q.RSIMax = 100
	}
	if q.RSIMin > q.RSIMax {
		q.RSIMin, q.RSIMax = q.RSIMax, q.RSIMin
	}
	volMin, volMax := volatilityRange(q.VolatilityBand)
	matches, err := e.store.ListSimilar(ctx, store.SimilarFilter{
		RSIMin:    q.RSIMin,
		RSIMax:    q.RSIMax,
		Condition: q.Trend,
		VolMin:    volMin,
		VolMax:    volMax,
	}, 50)
	if err != nil {
		logger.Warnf("recall: similar setups query failed: %v", err)
		return res
	}
	res.Matches = matches
	matched := make([]outcome.TradeOutcome, 0, len(matches))
	for _, m := range matches {
		matched = append(matched, m.Outcome)
	}
	res.Stats = aggregate(matched)
	return res
}

// WhatWorked summarizes the dominant profitable direction, the confidence
// threshold above which win rate peaks, and notable failure patterns for a
// market condition.
func (e *Engine) WhatWorked(ctx context.Context, condition outcome.MarketCondition) WhatWorkedResult {
	res := WhatWorkedResult{Condition: condition, FailurePatterns: []string{}}
	scored, err := e.store.ListGradedByCondition(ctx, condition, 200)
	if err != nil {
		logger.Warnf("recall: what-worked query failed for %s: %v", condition, err)
		return res
	}
	rows := make([]outcome.TradeOutcome, 0, len(scored))
	for _, sc := range scored {
		rows = append(rows, sc.Outcome)
	}
	res.SampleSize = len(rows)
	res.Stats = aggregate(rows)
	res.DominantDirection = dominantProfitableDirection(rows)
	res.OptimalConfidence = optimalConfidenceThreshold(rows)
	res.FailurePatterns = failurePatterns(condition, rows)
	return res
}

// SearchMemory proxies a free-text query to the external memory service.
// Failure is reported as Unavailable, never retried and never raised.
func (e *Engine) SearchMemory(ctx context.Context, query string) SearchResult {
	res := SearchResult{Query: query, Snippets: []memory.Snippet{}}
	if e.mem == nil {
		res.Unavailable = true
		return res
	}
	searchCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()
	snippets, err := e.mem.Search(searchCtx, query, 10)
	if err != nil {
		logger.Warnf("recall: memory service unavailable for search %q: %v", query, err)
		res.Unavailable = true
		return res
	}
	if snippets != nil {
		res.Snippets = snippets
	}
	return res
}

// dominantProfitableDirection picks the direction contributing the most
// wins; empty when nothing won.
func dominantProfitableDirection(rows []outcome.TradeOutcome) outcome.Direction {
	wins := map[outcome.Direction]int{}
	for _, o := range rows {
		if isWin(o) {
			wins[o.Direction]++
		}
	}
	switch {
	case wins[outcome.DirectionLong] == 0 && wins[outcome.DirectionShort] == 0:
		return ""
	case wins[outcome.DirectionLong] >= wins[outcome.DirectionShort]:
		return outcome.DirectionLong
	default:
		return outcome.DirectionShort
	}
}

// optimalConfidenceThreshold scans candidate thresholds (50..90 step 5) and
// returns the one maximizing win rate among outcomes at or above it, with
// at least 2 samples. Ties resolve to the lower threshold. Returns 0 when
// no threshold qualifies.
func optimalConfidenceThreshold(rows []outcome.TradeOutcome) float64 {
	best, bestRate := 0.0, -1.0
	for t := 50.0; t <= 90.0; t += 5.0 {
		var n, wins int
		for _, o := range rows {
			if o.Confidence >= t {
				n++
				if isWin(o) {
					wins++
				}
			}
		}
		if n < 2 {
			continue
		}
		rate := float64(wins) / float64(n)
		if rate > bestRate {
			bestRate = rate
			best = t
		}
	}
	return best
}

// failurePatterns tags directions that underperform under the condition
// (win rate below 40% with at least 3 samples).
func failurePatterns(condition outcome.MarketCondition, rows []outcome.TradeOutcome) []string {
	patterns := []string{}
	for _, dir := range []outcome.Direction{outcome.DirectionLong, outcome.DirectionShort} {
		var n, wins int
		for _, o := range rows {
			if o.Direction != dir {
				continue
			}
			n++
			if isWin(o) {
				wins++
			}
		}
		if n < 3 {
			continue
		}
		rate := float64(wins) / float64(n) * 100
		if rate < 40 {
			patterns = append(patterns, fmt.Sprintf("%s signals underperform under %s (win rate %.0f%% over %d trades)",
				dir, condition, rate, n))
		}
	}
	return patterns
}
