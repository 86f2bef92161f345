package gormstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	st, err := NewGormStore(filepath.Join(t.TempDir(), "outcomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testOutcome(id, signalID string) outcome.TradeOutcome {
	return outcome.TradeOutcome{
		ID:          id,
		SignalID:    signalID,
		Symbol:      "BTC/USDT",
		Direction:   outcome.DirectionLong,
		Confidence:  75,
		EntryPrice:  100,
		StopPrice:   95,
		TargetPrice: 110,
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testSnapshot(signalID string) outcome.MarketSnapshot {
	return outcome.MarketSnapshot{
		SignalID: signalID,
		Symbol:   "BTC/USDT",
		Readings: outcome.IndicatorReadings{
			RSI15m:         28,
			RSI1h:          45,
			RSI4h:          52,
			MACDBias:       outcome.MACDBullish,
			VolatilityRank: 70,
			VolumeRatio:    1.4,
			TrendStrength:  30,
			BTCCorrelation: 0.9,
			Condition:      outcome.ConditionTrendingUp,
		},
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func seed(t *testing.T, st *GormStore, o outcome.TradeOutcome, snap outcome.MarketSnapshot) {
	t.Helper()
	require.NoError(t, st.CreateOutcome(context.Background(), o, snap))
}

func TestCreateAndGetOutcome(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	got, found, err := st.GetOutcome(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s1", got.SignalID)
	assert.Equal(t, "BTC/USDT", got.Symbol)
	assert.Nil(t, got.Price1h)
	assert.Equal(t, outcome.StatePending, got.State())

	snap, found, err := st.GetSnapshot(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, outcome.ConditionTrendingUp, snap.Readings.Condition)
	assert.InDelta(t, 28, snap.Readings.RSI15m, 1e-9)

	_, found, err = st.GetOutcome(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateOutcomeDuplicateSignalFails(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	err := st.CreateOutcome(context.Background(), testOutcome("o2", "s1"), testSnapshot("s1"))
	var pe *outcome.PersistenceError
	require.ErrorAs(t, err, &pe)

	// The failed transaction must not leave a second outcome behind.
	_, found, getErr := st.GetOutcome(context.Background(), "o2")
	require.NoError(t, getErr)
	assert.False(t, found)
}

func TestSetCheckpointWriteOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	applied, err := st.SetCheckpoint(ctx, "o1", outcome.Checkpoint1H, 102, 2.0)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second write is silently skipped, first value wins.
	applied, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint1H, 999, 899)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _, _ := st.GetOutcome(ctx, "o1")
	require.NotNil(t, got.Price1h)
	assert.InDelta(t, 102, *got.Price1h, 1e-9)
	assert.InDelta(t, 2.0, *got.PnLPct1h, 1e-9)
}

func TestSetCheckpointMonotonicGuard(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	// 4h before 1h is refused.
	applied, err := st.SetCheckpoint(ctx, "o1", outcome.Checkpoint4H, 104, 4.0)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint1H, 102, 2.0)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint4H, 104, 4.0)
	require.NoError(t, err)
	assert.True(t, applied)

	// 24h requires 4h, which is now present.
	applied, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint24H, 108, 8.0)
	require.NoError(t, err)
	assert.True(t, applied)

	got, _, _ := st.GetOutcome(ctx, "o1")
	assert.Equal(t, outcome.StatePartial4H, got.State())
}

func TestFinalizeOutcome(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	fin := store.Finalization{
		HitTarget:    true,
		MaxFavorable: 11.0,
		MaxAdverse:   -1.0,
		Grade:        outcome.GradeA,
		ScoredAt:     time.Date(2026, 8, 2, 12, 0, 5, 0, time.UTC),
	}

	// Refused while the 24h checkpoint is missing.
	applied, err := st.FinalizeOutcome(ctx, "o1", fin)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint1H, 102, 2.0)
	require.NoError(t, err)
	_, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint4H, 104, 4.0)
	require.NoError(t, err)
	_, err = st.SetCheckpoint(ctx, "o1", outcome.Checkpoint24H, 111, 11.0)
	require.NoError(t, err)

	applied, err = st.FinalizeOutcome(ctx, "o1", fin)
	require.NoError(t, err)
	assert.True(t, applied)

	// Grading is immutable: a second finalize is a no-op.
	fin.Grade = outcome.GradeF
	applied, err = st.FinalizeOutcome(ctx, "o1", fin)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _, _ := st.GetOutcome(ctx, "o1")
	require.NotNil(t, got.Grade)
	assert.Equal(t, outcome.GradeA, *got.Grade)
	assert.True(t, got.HitTarget)
	assert.Equal(t, outcome.StateGraded, got.State())
	require.NotNil(t, got.ScoredAt)
	assert.Equal(t, fin.ScoredAt.UnixMilli(), got.ScoredAt.UnixMilli())
}

func gradeFully(t *testing.T, st *GormStore, id string, pnl float64, grade outcome.Grade) {
	t.Helper()
	ctx := context.Background()
	_, err := st.SetCheckpoint(ctx, id, outcome.Checkpoint1H, 100+pnl, pnl)
	require.NoError(t, err)
	_, err = st.SetCheckpoint(ctx, id, outcome.Checkpoint4H, 100+pnl, pnl)
	require.NoError(t, err)
	_, err = st.SetCheckpoint(ctx, id, outcome.Checkpoint24H, 100+pnl, pnl)
	require.NoError(t, err)
	applied, err := st.FinalizeOutcome(ctx, id, store.Finalization{
		Grade:    grade,
		ScoredAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func TestListUngradedExcludesGraded(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))
	seed(t, st, testOutcome("o2", "s2"), testSnapshot("s2"))
	gradeFully(t, st, "o1", 2.0, outcome.GradeB)

	rows, err := st.ListUngraded(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o2", rows[0].ID)
}

func TestListBySymbolGradedOnly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))
	seed(t, st, testOutcome("o2", "s2"), testSnapshot("s2"))
	gradeFully(t, st, "o1", 2.0, outcome.GradeB)

	all, err := st.ListBySymbol(ctx, "btc/usdt", 10, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	gradedRows, err := st.ListBySymbol(ctx, "BTC/USDT", 10, true)
	require.NoError(t, err)
	require.Len(t, gradedRows, 1)
	assert.Equal(t, "o1", gradedRows[0].ID)
}

func TestListGradedByConditionJoinsSnapshot(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	trendingUp := testSnapshot("s1")
	ranging := testSnapshot("s2")
	ranging.Readings.Condition = outcome.ConditionRanging
	seed(t, st, testOutcome("o1", "s1"), trendingUp)
	seed(t, st, testOutcome("o2", "s2"), ranging)
	gradeFully(t, st, "o1", 2.0, outcome.GradeB)
	gradeFully(t, st, "o2", -2.0, outcome.GradeD)

	rows, err := st.ListGradedByCondition(ctx, outcome.ConditionTrendingUp, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o1", rows[0].Outcome.ID)
	assert.Equal(t, outcome.ConditionTrendingUp, rows[0].Snapshot.Readings.Condition)
}

func TestListGradedByConditionSkipsUngradedBacklog(t *testing.T) {
	// A burst of recent ungraded signals must not crowd older graded
	// matches out of a small result window.
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedAt := func(id, signalID string, at time.Time) {
		o := testOutcome(id, signalID)
		o.CreatedAt = at
		snap := testSnapshot(signalID)
		snap.CreatedAt = at
		seed(t, st, o, snap)
	}

	seedAt("g1", "sg1", base)
	seedAt("g2", "sg2", base.Add(time.Hour))
	gradeFully(t, st, "g1", 2.0, outcome.GradeB)
	gradeFully(t, st, "g2", -2.0, outcome.GradeD)
	for i := 0; i < 4; i++ {
		seedAt(fmt.Sprintf("u%d", i), fmt.Sprintf("su%d", i), base.Add(time.Duration(i+2)*time.Hour))
	}

	rows, err := st.ListGradedByCondition(ctx, outcome.ConditionTrendingUp, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "g2", rows[0].Outcome.ID)
	assert.Equal(t, "g1", rows[1].Outcome.ID)
}

func TestListSimilarMatchesAnyRSITimeframe(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Only the 15m RSI (28) falls in the 25-35 window.
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))
	// No timeframe in range.
	far := testSnapshot("s2")
	far.Readings.RSI15m, far.Readings.RSI1h, far.Readings.RSI4h = 60, 65, 70
	seed(t, st, testOutcome("o2", "s2"), far)
	gradeFully(t, st, "o1", 2.0, outcome.GradeB)
	gradeFully(t, st, "o2", 2.0, outcome.GradeB)

	rows, err := st.ListSimilar(ctx, store.SimilarFilter{
		RSIMin: 25, RSIMax: 35,
		Condition: outcome.ConditionTrendingUp,
		VolMin:    0, VolMax: 100,
	}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o1", rows[0].Outcome.ID)
}

func TestListSimilarExcludesUngraded(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	rows, err := st.ListSimilar(context.Background(), store.SimilarFilter{
		RSIMin: 0, RSIMax: 100, VolMin: 0, VolMax: 100,
	}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkAndListSyncFailed(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))
	gradeFully(t, st, "o1", 2.0, outcome.GradeB)

	require.NoError(t, st.MarkSyncFailed(ctx, "o1", true))
	rows, err := st.ListSyncFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].SyncFailed)

	require.NoError(t, st.MarkSyncFailed(ctx, "o1", false))
	rows, err = st.ListSyncFailed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = st.MarkSyncFailed(ctx, "missing", true)
	var pe *outcome.PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestAnnotations(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seed(t, st, testOutcome("o1", "s1"), testSnapshot("s1"))

	require.NoError(t, st.AddAnnotation(ctx, outcome.Annotation{
		SignalID:  "s1",
		Text:      "entry was late, spread widened",
		Tags:      []string{"execution", "slippage"},
		CreatedAt: time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.AddAnnotation(ctx, outcome.Annotation{
		SignalID: "s1",
		Text:     "second note",
	}))

	notes, err := st.ListAnnotations(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "entry was late, spread widened", notes[0].Text)
	assert.Equal(t, []string{"execution", "slippage"}, notes[0].Tags)

	none, err := st.ListAnnotations(ctx, "s-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListSinceWindow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := testOutcome("o1", "s1")
	old.CreatedAt = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	recent := testOutcome("o2", "s2")
	recent.CreatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed(t, st, old, testSnapshot("s1"))
	seed(t, st, recent, testSnapshot("s2"))

	rows, err := st.ListSince(ctx, time.Date(2026, 7, 25, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o2", rows[0].ID)
}
