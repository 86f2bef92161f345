// Package scorer advances pending trade outcomes through their 1h/4h/24h
// checkpoints as market prices arrive, and assigns the final grade once the
// 24h horizon completes.
package scorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"gradebook/internal/logger"
	"gradebook/internal/outcome"
	"gradebook/internal/pricing"
	"gradebook/internal/store"

	"golang.org/x/sync/errgroup"
)

// Syncer receives fully-graded outcomes for external memory ingestion.
// Errors are logged, never allowed to affect scoring state.
type Syncer interface {
	SyncGraded(ctx context.Context, o outcome.TradeOutcome, snap outcome.MarketSnapshot) error
}

// Scorer runs the checkpoint state machine over the pending set.
type Scorer struct {
	store       store.Store
	prices      pricing.Source
	syncer      Syncer
	nowFn       func() time.Time
	maxParallel int
	batchLimit  int
	syncWG      sync.WaitGroup
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithSyncer attaches the memory sync adapter invoked on grading.
func WithSyncer(s Syncer) Option {
	return func(sc *Scorer) { sc.syncer = s }
}

// WithClock injects a time source, for deterministic checkpoint tests.
func WithClock(nowFn func() time.Time) Option {
	return func(sc *Scorer) {
		if nowFn != nil {
			sc.nowFn = nowFn
		}
	}
}

// WithMaxParallel bounds per-sweep price-fetch concurrency.
func WithMaxParallel(n int) Option {
	return func(sc *Scorer) {
		if n > 0 {
			sc.maxParallel = n
		}
	}
}

// WithBatchLimit caps how many pending rows one sweep scans.
func WithBatchLimit(n int) Option {
	return func(sc *Scorer) {
		if n > 0 {
			sc.batchLimit = n
		}
	}
}

// New builds a Scorer over the given store and price source.
func New(st store.Store, prices pricing.Source, opts ...Option) *Scorer {
	sc := &Scorer{
		store:       st,
		prices:      prices,
		nowFn:       time.Now,
		maxParallel: 4,
		batchLimit:  500,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// SweepStats summarizes one sweep for logging.
type SweepStats struct {
	Scanned   int
	Advanced  int // checkpoint writes applied
	Graded    int // outcomes that reached GRADED this sweep
	Failures  int // rows skipped on lookup/persistence error, retried next sweep
	Contracts int // rows reported as contract violations, not retried
}

func (s *SweepStats) merge(r SweepStats) {
	s.Advanced += r.Advanced
	s.Graded += r.Graded
	s.Failures += r.Failures
	s.Contracts += r.Contracts
}

// Sweep processes every non-GRADED outcome whose age has crossed a new
// checkpoint boundary. Rows are independent: a failure on one never aborts
// the rest, and the whole sweep can be stopped between rows via ctx.
func (s *Scorer) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	pending, err := s.store.ListUngraded(ctx, s.batchLimit)
	if err != nil {
		logger.Warnf("scorer: listing pending outcomes failed: %v", err)
		return stats
	}
	stats.Scanned = len(pending)
	if len(pending) == 0 {
		return stats
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.maxParallel)
	for _, row := range pending {
		if ctx.Err() != nil {
			break
		}
		row := row
		g.Go(func() error {
			r := s.scoreOne(ctx, row)
			mu.Lock()
			stats.merge(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if stats.Advanced > 0 || stats.Failures > 0 {
		logger.Infof("scorer: sweep scanned=%d advanced=%d graded=%d failures=%d",
			stats.Scanned, stats.Advanced, stats.Graded, stats.Failures)
	}
	return stats
}

// scoreOne advances a single outcome. Each checkpoint write is a single
// atomic conditional update, so a partial failure leaves no inconsistent row.
func (s *Scorer) scoreOne(ctx context.Context, row outcome.TradeOutcome) SweepStats {
	var r SweepStats
	now := s.nowFn()
	age := now.Sub(row.CreatedAt)
	if age < 0 || row.EntryPrice <= 0 {
		logger.Errorf("scorer: outcome %s rejected: %v", row.ID,
			outcome.Violationf("age=%s entry=%.4f", age, row.EntryPrice))
		r.Contracts++
		return r
	}

	var due []outcome.Checkpoint
	for _, cp := range outcome.Checkpoints() {
		if age >= cp.Offset() && row.CheckpointPrice(cp) == nil {
			due = append(due, cp)
		}
	}
	if len(due) == 0 {
		// All checkpoint prices are in but the row is still ungraded: the
		// previous sweep's finalize write failed (or the process died in
		// between). Retry the grading without a fresh price fetch.
		if row.Price24h == nil || row.ScoredAt != nil {
			return r
		}
	} else {
		price, err := s.prices.CurrentPrice(ctx, row.Symbol)
		if err != nil {
			var lookupErr *outcome.LookupError
			if !errors.As(err, &lookupErr) {
				err = &outcome.LookupError{Symbol: row.Symbol, Err: err}
			}
			logger.Warnf("scorer: %v (outcome=%s, retry next sweep)", err, row.ID)
			r.Failures++
			return r
		}

		pnl := PnLPercent(row.Direction, row.EntryPrice, price)
		for _, cp := range due {
			applied, err := s.store.SetCheckpoint(ctx, row.ID, cp, price, pnl)
			if err != nil {
				logger.Warnf("scorer: checkpoint %s write failed for %s: %v (retry next sweep)",
					cp, row.ID, err)
				r.Failures++
				return r
			}
			if applied {
				r.Advanced++
			}
		}
	}

	graded, err := s.finalizeIfComplete(ctx, row.ID)
	if err != nil {
		logger.Warnf("scorer: finalize failed for %s: %v (retry next sweep)", row.ID, err)
		r.Failures++
		return r
	}
	if graded {
		r.Graded++
	}
	return r
}

// finalizeIfComplete grades the outcome once price_24h is set, then hands it
// to the syncer. Returns whether this call performed the grading.
func (s *Scorer) finalizeIfComplete(ctx context.Context, id string) (bool, error) {
	row, found, err := s.store.GetOutcome(ctx, id)
	if err != nil {
		return false, err
	}
	if !found || row.Price24h == nil || row.ScoredAt != nil {
		return false, nil
	}

	observed := make([]float64, 0, 3)
	for _, cp := range outcome.Checkpoints() {
		if p := row.CheckpointPrice(cp); p != nil {
			observed = append(observed, *p)
		}
	}
	hitTarget, hitStop, maxFav, maxAdv := TrajectoryStats(
		row.Direction, row.EntryPrice, row.StopPrice, row.TargetPrice, observed)

	pnl24h := 0.0
	if row.PnLPct24h != nil {
		pnl24h = *row.PnLPct24h
	}
	grade := ComputeGrade(GradeInputs{HitTarget: hitTarget, HitStop: hitStop, PnLPct24h: pnl24h})

	scoredAt := s.nowFn()
	applied, err := s.store.FinalizeOutcome(ctx, id, store.Finalization{
		HitTarget:    hitTarget,
		HitStop:      hitStop,
		MaxFavorable: maxFav,
		MaxAdverse:   maxAdv,
		Grade:        grade,
		ScoredAt:     scoredAt,
	})
	if err != nil || !applied {
		return false, err
	}
	logger.Infof("scorer: outcome %s graded %s (symbol=%s pnl24h=%.2f%% hit_target=%v hit_stop=%v)",
		id, grade, row.Symbol, pnl24h, hitTarget, hitStop)

	if s.syncer != nil {
		graded := row
		graded.HitTarget = hitTarget
		graded.HitStop = hitStop
		graded.MaxFavorable = maxFav
		graded.MaxAdverse = maxAdv
		graded.Grade = &grade
		graded.ScoredAt = &scoredAt
		snap, _, snapErr := s.store.GetSnapshot(ctx, row.SignalID)
		if snapErr != nil {
			logger.Warnf("scorer: snapshot load for sync failed (signal=%s): %v", row.SignalID, snapErr)
		}
		// Sync runs off the sweep path: its retry backoff must never hold a
		// sweep worker, and a cancelled sweep must not abort a push already
		// owed to the memory service.
		s.syncWG.Add(1)
		go func() {
			defer s.syncWG.Done()
			if syncErr := s.syncer.SyncGraded(context.WithoutCancel(ctx), graded, snap); syncErr != nil {
				logger.Warnf("scorer: %v", syncErr)
			}
		}()
	}
	return true, nil
}

// WaitSyncs blocks until every memory sync dispatched by earlier sweeps has
// finished. Called on shutdown.
func (s *Scorer) WaitSyncs() {
	if s == nil {
		return
	}
	s.syncWG.Wait()
}
