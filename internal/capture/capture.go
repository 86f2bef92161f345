// Package capture records a market snapshot and outcome stub at the moment
// a trading signal is accepted.
package capture

import (
	"context"
	"strings"
	"time"

	"gradebook/internal/outcome"
	"gradebook/internal/store"

	"github.com/google/uuid"
)

// Recorder performs the single durable write that opens an outcome's
// lifecycle. It never retries; the caller decides.
type Recorder struct {
	store store.Store
	nowFn func() time.Time
}

// NewRecorder builds a Recorder on the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st, nowFn: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *Recorder) WithClock(nowFn func() time.Time) *Recorder {
	if nowFn != nil {
		r.nowFn = nowFn
	}
	return r
}

// RecordSignal validates the signal and indicator readings, then commits the
// TradeOutcome stub and its MarketSnapshot in one transaction. Returns the
// new outcome ID.
func (r *Recorder) RecordSignal(ctx context.Context, sig outcome.Signal, readings outcome.IndicatorReadings) (string, error) {
	if err := validateSignal(sig); err != nil {
		return "", err
	}
	if err := validateReadings(readings); err != nil {
		return "", err
	}
	now := r.nowFn()
	signalID := strings.TrimSpace(sig.SignalID)
	if signalID == "" {
		signalID = uuid.NewString()
	}
	o := outcome.TradeOutcome{
		ID:          uuid.NewString(),
		SignalID:    signalID,
		Symbol:      strings.ToUpper(strings.TrimSpace(sig.Symbol)),
		Direction:   sig.Direction,
		Confidence:  sig.Confidence,
		EntryPrice:  sig.EntryPrice,
		StopPrice:   sig.StopPrice,
		TargetPrice: sig.TargetPrice,
		CreatedAt:   now,
	}
	snap := outcome.MarketSnapshot{
		SignalID:  signalID,
		Symbol:    o.Symbol,
		Readings:  readings,
		CreatedAt: now,
	}
	if err := r.store.CreateOutcome(ctx, o, snap); err != nil {
		return "", err
	}
	return o.ID, nil
}

func validateSignal(sig outcome.Signal) error {
	if strings.TrimSpace(sig.Symbol) == "" {
		return outcome.Violationf("signal missing symbol")
	}
	if !sig.Direction.Valid() {
		return outcome.Violationf("signal direction must be LONG or SHORT, got %q", sig.Direction)
	}
	if sig.Confidence < 0 || sig.Confidence > 100 {
		return outcome.Violationf("signal confidence %.1f outside 0-100", sig.Confidence)
	}
	if sig.EntryPrice <= 0 {
		return outcome.Violationf("signal missing entry price")
	}
	if sig.StopPrice <= 0 || sig.TargetPrice <= 0 {
		return outcome.Violationf("signal missing stop/target price")
	}
	switch sig.Direction {
	case outcome.DirectionLong:
		if sig.StopPrice >= sig.EntryPrice || sig.TargetPrice <= sig.EntryPrice {
			return outcome.Violationf("LONG requires stop < entry < target (stop=%.4f entry=%.4f target=%.4f)",
				sig.StopPrice, sig.EntryPrice, sig.TargetPrice)
		}
	case outcome.DirectionShort:
		if sig.StopPrice <= sig.EntryPrice || sig.TargetPrice >= sig.EntryPrice {
			return outcome.Violationf("SHORT requires target < entry < stop (stop=%.4f entry=%.4f target=%.4f)",
				sig.StopPrice, sig.EntryPrice, sig.TargetPrice)
		}
	}
	return nil
}

func validateReadings(r outcome.IndicatorReadings) error {
	for _, rsi := range []float64{r.RSI15m, r.RSI1h, r.RSI4h} {
		if rsi < 0 || rsi > 100 {
			return outcome.Violationf("rsi reading %.2f outside 0-100", rsi)
		}
	}
	if !r.MACDBias.Valid() {
		return outcome.Violationf("invalid macd bias %q", r.MACDBias)
	}
	if r.VolatilityRank < 0 || r.VolatilityRank > 100 {
		return outcome.Violationf("volatility rank %.2f outside 0-100", r.VolatilityRank)
	}
	if r.VolumeRatio < 0 {
		return outcome.Violationf("volume ratio %.2f negative", r.VolumeRatio)
	}
	if !r.Condition.Valid() {
		return outcome.Violationf("invalid market condition %q", r.Condition)
	}
	return nil
}
