package store

import (
	"context"
	"time"

	"gradebook/internal/outcome"
)

// Finalization carries everything the 24h checkpoint derives in one write.
type Finalization struct {
	HitTarget    bool
	HitStop      bool
	MaxFavorable float64
	MaxAdverse   float64
	Grade        outcome.Grade
	ScoredAt     time.Time
}

// Scored pairs a trade outcome with its market snapshot for queries that
// filter on snapshot fields.
type Scored struct {
	Outcome  outcome.TradeOutcome
	Snapshot outcome.MarketSnapshot
}

// SimilarFilter selects snapshots whose RSI (any of the three timeframes)
// falls in [RSIMin, RSIMax], whose condition matches, and whose volatility
// percentile falls in [VolMin, VolMax].
type SimilarFilter struct {
	RSIMin    float64
	RSIMax    float64
	Condition outcome.MarketCondition
	VolMin    float64
	VolMax    float64
}

// Store is the durable home of trade outcomes, market snapshots and
// annotations. Write methods wrap failures in *outcome.PersistenceError.
type Store interface {
	// CreateOutcome commits the outcome stub and its snapshot as a single
	// transaction (both-or-neither).
	CreateOutcome(ctx context.Context, o outcome.TradeOutcome, snap outcome.MarketSnapshot) error

	// SetCheckpoint writes one checkpoint price and pnl, guarded so that an
	// already-filled field is never overwritten and checkpoints stay
	// monotonic (4h requires 1h, 24h requires 4h). The bool reports whether
	// the write was applied.
	SetCheckpoint(ctx context.Context, id string, cp outcome.Checkpoint, price, pnlPct float64) (bool, error)

	// FinalizeOutcome writes hit flags, excursions, grade and scored_at,
	// guarded by scored_at being unset. The bool reports application.
	FinalizeOutcome(ctx context.Context, id string, fin Finalization) (bool, error)

	MarkSyncFailed(ctx context.Context, id string, failed bool) error

	GetOutcome(ctx context.Context, id string) (outcome.TradeOutcome, bool, error)
	GetOutcomeBySignal(ctx context.Context, signalID string) (outcome.TradeOutcome, bool, error)
	GetSnapshot(ctx context.Context, signalID string) (outcome.MarketSnapshot, bool, error)

	ListUngraded(ctx context.Context, limit int) ([]outcome.TradeOutcome, error)
	ListBySymbol(ctx context.Context, symbol string, limit int, gradedOnly bool) ([]outcome.TradeOutcome, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]outcome.TradeOutcome, error)
	ListGradedByConfidence(ctx context.Context, min, max float64, limit int) ([]outcome.TradeOutcome, error)
	ListGradedByCondition(ctx context.Context, cond outcome.MarketCondition, limit int) ([]Scored, error)
	ListSimilar(ctx context.Context, filter SimilarFilter, limit int) ([]Scored, error)
	ListSyncFailed(ctx context.Context, limit int) ([]outcome.TradeOutcome, error)

	AddAnnotation(ctx context.Context, a outcome.Annotation) error
	ListAnnotations(ctx context.Context, signalID string) ([]outcome.Annotation, error)

	Close() error
}
