package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gradebook/internal/logger"
	"gradebook/internal/outcome"
	"gradebook/internal/store"
)

// SyncConfig bounds the ingestion retry loop.
type SyncConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Syncer pushes graded outcomes to the memory service with bounded retry.
// Scoring correctness never depends on a sync succeeding: after retries are
// exhausted the outcome is flagged sync-failed and left for manual resync.
type Syncer struct {
	svc     Service
	store   store.Store
	cfg     SyncConfig
	sleepFn func(ctx context.Context, d time.Duration)
}

// NewSyncer builds a Syncer over the memory service and outcome store.
func NewSyncer(svc Service, st store.Store, cfg SyncConfig) *Syncer {
	return &Syncer{
		svc:     svc,
		store:   st,
		cfg:     cfg.withDefaults(),
		sleepFn: sleepCtx,
	}
}

// WithSleep overrides the backoff sleeper, for tests.
func (s *Syncer) WithSleep(fn func(ctx context.Context, d time.Duration)) *Syncer {
	if fn != nil {
		s.sleepFn = fn
	}
	return s
}

// SyncGraded ingests one graded outcome. On exhaustion it marks the row
// sync-failed and returns a *outcome.SyncError.
func (s *Syncer) SyncGraded(ctx context.Context, o outcome.TradeOutcome, snap outcome.MarketSnapshot) error {
	if !o.Graded() {
		return outcome.Violationf("sync requested for ungraded outcome %s", o.ID)
	}
	entry := BuildEntry(o, snap)

	var lastErr error
	backoff := s.cfg.InitialBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = s.svc.Ingest(ctx, entry)
		if lastErr == nil {
			if o.SyncFailed {
				if err := s.store.MarkSyncFailed(ctx, o.ID, false); err != nil {
					logger.Warnf("memory: clearing sync-failed flag for %s failed: %v", o.ID, err)
				}
			}
			return nil
		}
		if attempt == s.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		logger.Warnf("memory: ingest attempt %d/%d for %s failed: %v",
			attempt, s.cfg.MaxAttempts, o.ID, lastErr)
		s.sleepFn(ctx, backoff)
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}

	if err := s.store.MarkSyncFailed(ctx, o.ID, true); err != nil {
		logger.Errorf("memory: flagging %s sync-failed also failed: %v", o.ID, err)
	}
	return &outcome.SyncError{Op: "ingest", Attempts: s.cfg.MaxAttempts, Err: lastErr}
}

// Resync retries ingestion for a previously sync-failed outcome and clears
// the flag on success. Triggered manually via the HTTP API.
func (s *Syncer) Resync(ctx context.Context, outcomeID string) error {
	o, found, err := s.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return err
	}
	if !found {
		return outcome.Violationf("outcome %s not found", outcomeID)
	}
	if !o.Graded() {
		return outcome.Violationf("outcome %s not yet graded", outcomeID)
	}
	snap, _, err := s.store.GetSnapshot(ctx, o.SignalID)
	if err != nil {
		return err
	}
	if err := s.SyncGraded(ctx, o, snap); err != nil {
		return err
	}
	return s.store.MarkSyncFailed(ctx, outcomeID, false)
}

// BuildEntry renders the structured narrative for one graded outcome.
func BuildEntry(o outcome.TradeOutcome, snap outcome.MarketSnapshot) Entry {
	grade := "?"
	if o.Grade != nil {
		grade = string(*o.Grade)
	}
	pnl := 0.0
	if o.PnLPct24h != nil {
		pnl = *o.PnLPct24h
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Signal: %s %s, confidence %.0f.\n", o.Symbol, o.Direction, o.Confidence)
	fmt.Fprintf(&b, "Predicted: entry %.4f, target %.4f, stop %.4f.\n",
		o.EntryPrice, o.TargetPrice, o.StopPrice)
	fmt.Fprintf(&b, "Actual: pnl after 24h %.2f%%, hit_target=%v, hit_stop=%v, max_favorable %.2f%%, max_adverse %.2f%%.\n",
		pnl, o.HitTarget, o.HitStop, o.MaxFavorable, o.MaxAdverse)
	fmt.Fprintf(&b, "Grade: %s.\n", grade)
	if snap.Readings.Condition != "" {
		fmt.Fprintf(&b, "Market condition at signal time: %s (volatility rank %.0f, rsi1h %.1f, macd %s).\n",
			snap.Readings.Condition, snap.Readings.VolatilityRank, snap.Readings.RSI1h, snap.Readings.MACDBias)
	}

	tags := []string{"trade-outcome", o.Symbol, strings.ToLower(string(o.Direction)), "grade-" + strings.ToLower(grade)}
	if snap.Readings.Condition != "" {
		tags = append(tags, string(snap.Readings.Condition))
	}
	return Entry{
		Title: fmt.Sprintf("%s %s graded %s (%.2f%% @24h)", o.Symbol, o.Direction, grade, pnl),
		Body:  b.String(),
		Tags:  tags,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
