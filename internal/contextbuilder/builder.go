// Package contextbuilder composes the bounded textual digest of relevant
// trade history injected before each new analysis request.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gradebook/internal/logger"
	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

// Config bounds the digest.
type Config struct {
	SymbolLimit    int // recent graded outcomes listed per symbol
	ConditionLimit int // recent condition matches aggregated
	WindowDays     int // trailing window for symbol aggregates
	ScanLimit      int // hard cap on rows fetched per fragment
}

func (c Config) withDefaults() Config {
	if c.SymbolLimit <= 0 {
		c.SymbolLimit = 5
	}
	if c.ConditionLimit <= 0 {
		c.ConditionLimit = 10
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 100
	}
	return c
}

// Builder produces the context digest. Read-only; store failures degrade to
// the explicit no-history fragments rather than propagating.
type Builder struct {
	store store.Store
	cfg   Config
	nowFn func() time.Time
}

// New builds a Builder over the outcome store.
func New(st store.Store, cfg Config) *Builder {
	return &Builder{store: st, cfg: cfg.withDefaults(), nowFn: time.Now}
}

// WithClock injects a time source, for tests.
func (b *Builder) WithClock(nowFn func() time.Time) *Builder {
	if nowFn != nil {
		b.nowFn = nowFn
	}
	return b
}

// BuildContext renders the symbol-history and condition-history fragments.
// Both sections always appear; an empty history is stated explicitly, never
// silently omitted.
func (b *Builder) BuildContext(ctx context.Context, symbol string, condition outcome.MarketCondition) string {
	sections := Sections{
		SymbolHistory:    b.symbolFragment(ctx, symbol),
		ConditionHistory: b.conditionFragment(ctx, condition),
	}
	return RenderDigest(sections)
}

func (b *Builder) symbolFragment(ctx context.Context, symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	rows, err := b.store.ListBySymbol(ctx, symbol, b.cfg.ScanLimit, true)
	if err != nil {
		logger.Warnf("context: symbol history unavailable for %s: %v", symbol, err)
		rows = nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Past signals: %s\n", symbol)
	if len(rows) == 0 {
		sb.WriteString("No graded history recorded for this symbol.\n")
		return sb.String()
	}

	listed := rows
	if len(listed) > b.cfg.SymbolLimit {
		listed = listed[:b.cfg.SymbolLimit]
	}
	for _, o := range listed {
		grade := "?"
		if o.Grade != nil {
			grade = string(*o.Grade)
		}
		pnl4h := "n/a"
		if o.PnLPct4h != nil {
			pnl4h = fmt.Sprintf("%+.2f%%", *o.PnLPct4h)
		}
		fmt.Fprintf(&sb, "- %s %s conf=%.0f grade=%s pnl4h=%s\n",
			o.CreatedAt.Format("2006-01-02"), o.Direction, o.Confidence, grade, pnl4h)
	}

	cutoff := b.nowFn().Add(-time.Duration(b.cfg.WindowDays) * 24 * time.Hour)
	var n, wins int
	var pnlSum float64
	for _, o := range rows {
		if o.CreatedAt.Before(cutoff) || o.PnLPct24h == nil {
			continue
		}
		n++
		pnlSum += *o.PnLPct24h
		if *o.PnLPct24h > 0 {
			wins++
		}
	}
	if n > 0 {
		fmt.Fprintf(&sb, "%dd window: win rate %.0f%% (%d/%d), avg pnl %+.2f%%\n",
			b.cfg.WindowDays, float64(wins)/float64(n)*100, wins, n, pnlSum/float64(n))
	} else {
		fmt.Fprintf(&sb, "%dd window: no graded signals\n", b.cfg.WindowDays)
	}
	return sb.String()
}

func (b *Builder) conditionFragment(ctx context.Context, condition outcome.MarketCondition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Current condition: %s\n", condition)
	scored, err := b.store.ListGradedByCondition(ctx, condition, b.cfg.ConditionLimit)
	if err != nil {
		logger.Warnf("context: condition history unavailable for %s: %v", condition, err)
		scored = nil
	}
	if len(scored) == 0 {
		sb.WriteString("No graded history recorded under this condition.\n")
		return sb.String()
	}

	var n, wins int
	var hiN, hiWins, loN, loWins int
	for _, sc := range scored {
		o := sc.Outcome
		if o.PnLPct24h == nil {
			continue
		}
		win := *o.PnLPct24h > 0
		n++
		if win {
			wins++
		}
		if o.Confidence >= 70 {
			hiN++
			if win {
				hiWins++
			}
		} else {
			loN++
			if win {
				loWins++
			}
		}
	}
	if n == 0 {
		sb.WriteString("No graded history recorded under this condition.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Win rate %.0f%% over the last %d matching signals.\n",
		float64(wins)/float64(n)*100, n)

	// Call out confidence-banded divergence only when both bands carry
	// enough samples to mean something.
	if hiN >= 3 && loN >= 3 {
		hiRate := float64(hiWins) / float64(hiN) * 100
		loRate := float64(loWins) / float64(loN) * 100
		if hiRate-loRate > 15 {
			fmt.Fprintf(&sb, "Note: high-confidence (>=70) signals outperform under this condition (%.0f%% vs %.0f%%).\n",
				hiRate, loRate)
		} else if loRate-hiRate > 15 {
			fmt.Fprintf(&sb, "Note: high-confidence (>=70) signals underperform under this condition (%.0f%% vs %.0f%%).\n",
				hiRate, loRate)
		}
	}
	return sb.String()
}
