package contextbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

type digestStore struct {
	bySymbol    []outcome.TradeOutcome
	byCondition []store.Scored
	symbolErr   error
	condErr     error

	lastSymbol string
	lastLimit  int
}

func (s *digestStore) ListBySymbol(_ context.Context, symbol string, limit int, gradedOnly bool) ([]outcome.TradeOutcome, error) {
	s.lastSymbol = symbol
	s.lastLimit = limit
	if !gradedOnly {
		return nil, errors.New("digest must only read graded rows")
	}
	return s.bySymbol, s.symbolErr
}

func (s *digestStore) ListGradedByCondition(_ context.Context, _ outcome.MarketCondition, _ int) ([]store.Scored, error) {
	return s.byCondition, s.condErr
}

func (s *digestStore) CreateOutcome(context.Context, outcome.TradeOutcome, outcome.MarketSnapshot) error {
	return nil
}
func (s *digestStore) SetCheckpoint(context.Context, string, outcome.Checkpoint, float64, float64) (bool, error) {
	return false, nil
}
func (s *digestStore) FinalizeOutcome(context.Context, string, store.Finalization) (bool, error) {
	return false, nil
}
func (s *digestStore) MarkSyncFailed(context.Context, string, bool) error { return nil }
func (s *digestStore) GetOutcome(context.Context, string) (outcome.TradeOutcome, bool, error) {
	return outcome.TradeOutcome{}, false, nil
}
func (s *digestStore) GetOutcomeBySignal(context.Context, string) (outcome.TradeOutcome, bool, error) {
	return outcome.TradeOutcome{}, false, nil
}
func (s *digestStore) GetSnapshot(context.Context, string) (outcome.MarketSnapshot, bool, error) {
	return outcome.MarketSnapshot{}, false, nil
}
func (s *digestStore) ListUngraded(context.Context, int) ([]outcome.TradeOutcome, error) {
	return nil, nil
}
func (s *digestStore) ListSince(context.Context, time.Time, int) ([]outcome.TradeOutcome, error) {
	return nil, nil
}
func (s *digestStore) ListGradedByConfidence(context.Context, float64, float64, int) ([]outcome.TradeOutcome, error) {
	return nil, nil
}
func (s *digestStore) ListSimilar(context.Context, store.SimilarFilter, int) ([]store.Scored, error) {
	return nil, nil
}
func (s *digestStore) ListSyncFailed(context.Context, int) ([]outcome.TradeOutcome, error) {
	return nil, nil
}
func (s *digestStore) AddAnnotation(context.Context, outcome.Annotation) error { return nil }
func (s *digestStore) ListAnnotations(context.Context, string) ([]outcome.Annotation, error) {
	return nil, nil
}
func (s *digestStore) Close() error { return nil }

var digestNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func gradedRow(createdAt time.Time, conf float64, grade outcome.Grade, pnl24h float64) outcome.TradeOutcome {
	g := grade
	pnl4h := pnl24h / 2
	pnl := pnl24h
	scored := createdAt.Add(24 * time.Hour)
	return outcome.TradeOutcome{
		Symbol:     "BTC/USDT",
		Direction:  outcome.DirectionLong,
		Confidence: conf,
		Grade:      &g,
		PnLPct4h:   &pnl4h,
		PnLPct24h:  &pnl,
		CreatedAt:  createdAt,
		ScoredAt:   &scored,
	}
}

func TestBuildContextNoHistory(t *testing.T) {
	st := &digestStore{}
	b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

	out := b.BuildContext(context.Background(), "eth/usdt", outcome.ConditionRanging)

	assert.True(t, strings.HasPrefix(out, "# Trade history digest\n"))
	assert.Contains(t, out, "## Past signals: ETH/USDT")
	assert.Contains(t, out, "No graded history recorded for this symbol.")
	assert.Contains(t, out, "## Current condition: ranging")
	assert.Contains(t, out, "No graded history recorded under this condition.")
	assert.Equal(t, "ETH/USDT", st.lastSymbol)
	assert.Equal(t, 100, st.lastLimit)
}

func TestBuildContextListsRowsAndWindowAggregate(t *testing.T) {
	st := &digestStore{
		bySymbol: []outcome.TradeOutcome{
			gradedRow(digestNow.Add(-24*time.Hour), 80, outcome.GradeA, 4.6),
			gradedRow(digestNow.Add(-48*time.Hour), 60, outcome.GradeD, -1.8),
			// Outside the 30d window, so excluded from the aggregate line.
			gradedRow(digestNow.Add(-40*24*time.Hour), 90, outcome.GradeB, 2.0),
		},
	}
	b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

	out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)

	assert.Contains(t, out, "- 2026-08-30 LONG conf=80 grade=A pnl4h=+2.30%")
	assert.Contains(t, out, "- 2026-08-29 LONG conf=60 grade=D pnl4h=-0.90%")
	// avg over the two in-window rows: (4.6 - 1.8) / 2 = 1.40
	assert.Contains(t, out, "30d window: win rate 50% (1/2), avg pnl +1.40%")
}

func TestBuildContextSymbolLimitCapsListing(t *testing.T) {
	rows := make([]outcome.TradeOutcome, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, gradedRow(digestNow.Add(-time.Duration(i+1)*24*time.Hour), 70, outcome.GradeB, 1.5))
	}
	st := &digestStore{bySymbol: rows}
	b := New(st, Config{SymbolLimit: 3}).WithClock(func() time.Time { return digestNow })

	out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)

	assert.Equal(t, 3, strings.Count(out, "grade=B"))
	// All eight rows still feed the window aggregate.
	assert.Contains(t, out, "(8/8)")
}

func TestBuildContextStoreFailureDegrades(t *testing.T) {
	st := &digestStore{symbolErr: errors.New("db locked"), condErr: errors.New("db locked")}
	b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

	out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionVolatile)

	assert.Contains(t, out, "No graded history recorded for this symbol.")
	assert.Contains(t, out, "No graded history recorded under this condition.")
}

func scoredRow(conf float64, pnl24h float64) store.Scored {
	return store.Scored{Outcome: gradedRow(digestNow.Add(-24*time.Hour), conf, outcome.GradeB, pnl24h)}
}

func TestConditionFragmentWinRate(t *testing.T) {
	st := &digestStore{byCondition: []store.Scored{
		scoredRow(80, 2.0),
		scoredRow(60, -1.0),
		scoredRow(75, 3.0),
	}}
	b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

	out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)

	assert.Contains(t, out, "Win rate 67% over the last 3 matching signals.")
	// Two samples in the low band is below the divergence threshold.
	assert.NotContains(t, out, "Note:")
}

func TestConditionFragmentDivergenceNote(t *testing.T) {
	t.Run("high band outperforms", func(t *testing.T) {
		st := &digestStore{byCondition: []store.Scored{
			scoredRow(80, 2.0), scoredRow(85, 1.0), scoredRow(90, 3.0),
			scoredRow(50, -1.0), scoredRow(55, -2.0), scoredRow(60, 1.0),
		}}
		b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

		out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)
		require.Contains(t, out, "signals outperform under this condition (100% vs 33%).")
	})

	t.Run("high band underperforms", func(t *testing.T) {
		st := &digestStore{byCondition: []store.Scored{
			scoredRow(80, -2.0), scoredRow(85, -1.0), scoredRow(90, 3.0),
			scoredRow(50, 1.0), scoredRow(55, 2.0), scoredRow(60, 1.0),
		}}
		b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

		out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)
		require.Contains(t, out, "signals underperform under this condition (33% vs 100%).")
	})

	t.Run("small gap stays quiet", func(t *testing.T) {
		st := &digestStore{byCondition: []store.Scored{
			scoredRow(80, 2.0), scoredRow(85, 1.0), scoredRow(90, -3.0),
			scoredRow(50, 1.0), scoredRow(55, 2.0), scoredRow(60, -1.0),
		}}
		b := New(st, Config{}).WithClock(func() time.Time { return digestNow })

		out := b.BuildContext(context.Background(), "BTC/USDT", outcome.ConditionTrendingUp)
		assert.NotContains(t, out, "Note:")
	})
}

func TestRenderDigestOmitsNothing(t *testing.T) {
	out := RenderDigest(Sections{SymbolHistory: "sym\n", ConditionHistory: "cond\n"})
	assert.Equal(t, "# Trade history digest\nsym\ncond\n", out)
}
