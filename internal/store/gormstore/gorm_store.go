package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gradebook/internal/outcome"
	"gradebook/internal/store"
	storemodel "gradebook/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type tradeOutcomeModel = storemodel.TradeOutcomeModel
type marketSnapshotModel = storemodel.MarketSnapshotModel
type annotationModel = storemodel.AnnotationModel

// GormStore implements outcome storage using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the outcome database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&tradeOutcomeModel{},
		&marketSnapshotModel{},
		&annotationModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: the scorer sweep and recall queries read concurrently
	// while writes stay serialized.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	return nil
}

func wrapPersist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &outcome.PersistenceError{Op: op, Err: err}
}

// --------------------- Writes -------------------------

func (s *GormStore) CreateOutcome(ctx context.Context, o outcome.TradeOutcome, snap outcome.MarketSnapshot) error {
	if err := s.ready(); err != nil {
		return wrapPersist("create outcome", err)
	}
	om := newTradeOutcomeModel(o)
	sm := newMarketSnapshotModel(snap)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&om).Error; err != nil {
			return err
		}
		return tx.Create(&sm).Error
	})
	return wrapPersist("create outcome", err)
}

func checkpointColumns(cp outcome.Checkpoint) (priceCol, pnlCol, guardCol string, ok bool) {
	switch cp {
	case outcome.Checkpoint1H:
		return "price_1h", "pnl_pct_1h", "", true
	case outcome.Checkpoint4H:
		return "price_4h", "pnl_pct_4h", "price_1h", true
	case outcome.Checkpoint24H:
		return "price_24h", "pnl_pct_24h", "price_4h", true
	default:
		return "", "", "", false
	}
}

func (s *GormStore) SetCheckpoint(ctx context.Context, id string, cp outcome.Checkpoint, price, pnlPct float64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, wrapPersist("set checkpoint", err)
	}
	priceCol, pnlCol, guardCol, ok := checkpointColumns(cp)
	if !ok {
		return false, outcome.Violationf("unknown checkpoint %d", int(cp))
	}
	// Write-once conditional update: the WHERE clause is the guard, so
	// concurrent sweeps cannot produce a lost update or an out-of-order fill.
	q := s.db.WithContext(ctx).Model(&tradeOutcomeModel{}).
		Where("id = ?", id).
		Where(priceCol + " IS NULL")
	if guardCol != "" {
		q = q.Where(guardCol + " IS NOT NULL")
	}
	res := q.Updates(map[string]interface{}{
		priceCol: price,
		pnlCol:   pnlPct,
	})
	if res.Error != nil {
		return false, wrapPersist("set checkpoint "+cp.String(), res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) FinalizeOutcome(ctx context.Context, id string, fin store.Finalization) (bool, error) {
	if err := s.ready(); err != nil {
		return false, wrapPersist("finalize outcome", err)
	}
	scoredAt := fin.ScoredAt
	if scoredAt.IsZero() {
		scoredAt = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&tradeOutcomeModel{}).
		Where("id = ? AND scored_at IS NULL AND price_24h IS NOT NULL", id).
		Updates(map[string]interface{}{
			"hit_target":    fin.HitTarget,
			"hit_stop":      fin.HitStop,
			"max_favorable": fin.MaxFavorable,
			"max_adverse":   fin.MaxAdverse,
			"grade":         string(fin.Grade),
			"scored_at":     scoredAt.UnixMilli(),
		})
	if res.Error != nil {
		return false, wrapPersist("finalize outcome", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) MarkSyncFailed(ctx context.Context, id string, failed bool) error {
	if err := s.ready(); err != nil {
		return wrapPersist("mark sync failed", err)
	}
	res := s.db.WithContext(ctx).Model(&tradeOutcomeModel{}).
		Where("id = ?", id).
		Update("sync_failed", failed)
	if res.Error != nil {
		return wrapPersist("mark sync failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrapPersist("mark sync failed", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *GormStore) AddAnnotation(ctx context.Context, a outcome.Annotation) error {
	if err := s.ready(); err != nil {
		return wrapPersist("add annotation", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	tags, _ := json.Marshal(a.Tags)
	m := annotationModel{
		SignalID:      strings.TrimSpace(a.SignalID),
		Text:          a.Text,
		Tags:          datatypes.JSON(tags),
		CreatedAtUnix: a.CreatedAt.UnixMilli(),
	}
	return wrapPersist("add annotation", s.db.WithContext(ctx).Create(&m).Error)
}

// --------------------- Reads -------------------------

func (s *GormStore) GetOutcome(ctx context.Context, id string) (outcome.TradeOutcome, bool, error) {
	if err := s.ready(); err != nil {
		return outcome.TradeOutcome{}, false, wrapPersist("get outcome", err)
	}
	var m tradeOutcomeModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outcome.TradeOutcome{}, false, nil
		}
		return outcome.TradeOutcome{}, false, wrapPersist("get outcome", err)
	}
	return tradeOutcomeModelToRecord(m), true, nil
}

func (s *GormStore) GetOutcomeBySignal(ctx context.Context, signalID string) (outcome.TradeOutcome, bool, error) {
	if err := s.ready(); err != nil {
		return outcome.TradeOutcome{}, false, wrapPersist("get outcome by signal", err)
	}
	var m tradeOutcomeModel
	if err := s.db.WithContext(ctx).Where("signal_id = ?", signalID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outcome.TradeOutcome{}, false, nil
		}
		return outcome.TradeOutcome{}, false, wrapPersist("get outcome by signal", err)
	}
	return tradeOutcomeModelToRecord(m), true, nil
}

func (s *GormStore) GetSnapshot(ctx context.Context, signalID string) (outcome.MarketSnapshot, bool, error) {
	if err := s.ready(); err != nil {
		return outcome.MarketSnapshot{}, false, wrapPersist("get snapshot", err)
	}
	var m marketSnapshotModel
	if err := s.db.WithContext(ctx).Where("signal_id = ?", signalID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outcome.MarketSnapshot{}, false, nil
		}
		return outcome.MarketSnapshot{}, false, wrapPersist("get snapshot", err)
	}
	return marketSnapshotModelToRecord(m), true, nil
}

func (s *GormStore) ListUngraded(ctx context.Context, limit int) ([]outcome.TradeOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list ungraded", err)
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var models []tradeOutcomeModel
	if err := s.db.WithContext(ctx).
		Where("scored_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, wrapPersist("list ungraded", err)
	}
	return outcomeModelsToRecords(models), nil
}

func (s *GormStore) ListBySymbol(ctx context.Context, symbol string, limit int, gradedOnly bool) ([]outcome.TradeOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list by symbol", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("UPPER(symbol) = ?", strings.ToUpper(strings.TrimSpace(symbol)))
	if gradedOnly {
		q = q.Where("scored_at IS NOT NULL")
	}
	var models []tradeOutcomeModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, wrapPersist("list by symbol", err)
	}
	return outcomeModelsToRecords(models), nil
}

func (s *GormStore) ListSince(ctx context.Context, since time.Time, limit int) ([]outcome.TradeOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list since", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var models []tradeOutcomeModel
	if err := s.db.WithContext(ctx).
		Where("created_at >= ?", since.UnixMilli()).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, wrapPersist("list since", err)
	}
	return outcomeModelsToRecords(models), nil
}

func (s *GormStore) ListGradedByConfidence(ctx context.Context, min, max float64, limit int) ([]outcome.TradeOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list graded by confidence", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var models []tradeOutcomeModel
	if err := s.db.WithContext(ctx).
		Where("scored_at IS NOT NULL AND confidence >= ? AND confidence <= ?", min, max).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, wrapPersist("list graded by confidence", err)
	}
	return outcomeModelsToRecords(models), nil
}

func (s *GormStore) ListGradedByCondition(ctx context.Context, cond outcome.MarketCondition, limit int) ([]store.Scored, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list graded by condition", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var snaps []marketSnapshotModel
	if err := s.db.WithContext(ctx).
		Where("market_condition = ?", string(cond)).
		Where("signal_id IN (?)", s.gradedSignalIDs()).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&snaps).Error; err != nil {
		return nil, wrapPersist("list graded by condition", err)
	}
	return s.scoredFromSnapshots(ctx, snaps, limit)
}

func (s *GormStore) ListSimilar(ctx context.Context, filter store.SimilarFilter, limit int) ([]store.Scored, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list similar", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).
		Where("(rsi_15m BETWEEN ? AND ?) OR (rsi_1h BETWEEN ? AND ?) OR (rsi_4h BETWEEN ? AND ?)",
			filter.RSIMin, filter.RSIMax, filter.RSIMin, filter.RSIMax, filter.RSIMin, filter.RSIMax).
		Where("volatility_rank >= ? AND volatility_rank <= ?", filter.VolMin, filter.VolMax)
	if filter.Condition != "" {
		q = q.Where("market_condition = ?", string(filter.Condition))
	}
	q = q.Where("signal_id IN (?)", s.gradedSignalIDs())
	var snaps []marketSnapshotModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&snaps).Error; err != nil {
		return nil, wrapPersist("list similar", err)
	}
	return s.scoredFromSnapshots(ctx, snaps, limit)
}

// gradedSignalIDs builds the subquery restricting snapshot lookups to
// signals whose outcome has been graded, so ungraded rows never crowd
// graded matches out of the result window.
func (s *GormStore) gradedSignalIDs() *gorm.DB {
	return s.db.Model(&tradeOutcomeModel{}).
		Select("signal_id").
		Where("scored_at IS NOT NULL")
}

// scoredFromSnapshots resolves the GRADED outcomes paired with the given
// snapshots, preserving snapshot recency order.
func (s *GormStore) scoredFromSnapshots(ctx context.Context, snaps []marketSnapshotModel, limit int) ([]store.Scored, error) {
	if len(snaps) == 0 {
		return []store.Scored{}, nil
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.SignalID)
	}
	var models []tradeOutcomeModel
	if err := s.db.WithContext(ctx).
		Where("signal_id IN ? AND scored_at IS NOT NULL", ids).
		Find(&models).Error; err != nil {
		return nil, wrapPersist("resolve scored outcomes", err)
	}
	bySignal := make(map[string]tradeOutcomeModel, len(models))
	for _, m := range models {
		bySignal[m.SignalID] = m
	}
	out := make([]store.Scored, 0, len(snaps))
	for _, snap := range snaps {
		m, ok := bySignal[snap.SignalID]
		if !ok {
			continue
		}
		out = append(out, store.Scored{
			Outcome:  tradeOutcomeModelToRecord(m),
			Snapshot: marketSnapshotModelToRecord(snap),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *GormStore) ListSyncFailed(ctx context.Context, limit int) ([]outcome.TradeOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list sync failed", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []tradeOutcomeModel
	if err := s.db.WithContext(ctx).
		Where("sync_failed = ? AND scored_at IS NOT NULL", true).
		Order("scored_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, wrapPersist("list sync failed", err)
	}
	return outcomeModelsToRecords(models), nil
}

func (s *GormStore) ListAnnotations(ctx context.Context, signalID string) ([]outcome.Annotation, error) {
	if err := s.ready(); err != nil {
		return nil, wrapPersist("list annotations", err)
	}
	var models []annotationModel
	if err := s.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, wrapPersist("list annotations", err)
	}
	out := make([]outcome.Annotation, 0, len(models))
	for _, m := range models {
		var tags []string
		if len(m.Tags) > 0 {
			_ = json.Unmarshal(m.Tags, &tags)
		}
		out = append(out, outcome.Annotation{
			SignalID:  m.SignalID,
			Text:      m.Text,
			Tags:      tags,
			CreatedAt: millisToTime(m.CreatedAtUnix),
		})
	}
	return out, nil
}

// --------------------------- Model Conversion ------------------------------

func newTradeOutcomeModel(o outcome.TradeOutcome) tradeOutcomeModel {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	return tradeOutcomeModel{
		ID:            o.ID,
		SignalID:      strings.TrimSpace(o.SignalID),
		Symbol:        strings.ToUpper(strings.TrimSpace(o.Symbol)),
		Direction:     string(o.Direction),
		Confidence:    o.Confidence,
		EntryPrice:    o.EntryPrice,
		StopPrice:     o.StopPrice,
		TargetPrice:   o.TargetPrice,
		CreatedAtUnix: o.CreatedAt.UnixMilli(),
	}
}

func tradeOutcomeModelToRecord(m tradeOutcomeModel) outcome.TradeOutcome {
	rec := outcome.TradeOutcome{
		ID:           m.ID,
		SignalID:     m.SignalID,
		Symbol:       m.Symbol,
		Direction:    outcome.Direction(m.Direction),
		Confidence:   m.Confidence,
		EntryPrice:   m.EntryPrice,
		StopPrice:    m.StopPrice,
		TargetPrice:  m.TargetPrice,
		Price1h:      m.Price1h,
		Price4h:      m.Price4h,
		Price24h:     m.Price24h,
		PnLPct1h:     m.PnLPct1h,
		PnLPct4h:     m.PnLPct4h,
		PnLPct24h:    m.PnLPct24h,
		HitTarget:    m.HitTarget,
		HitStop:      m.HitStop,
		MaxFavorable: m.MaxFavorable,
		MaxAdverse:   m.MaxAdverse,
		SyncFailed:   m.SyncFailed,
		CreatedAt:    millisToTime(m.CreatedAtUnix),
	}
	if m.Grade != nil && *m.Grade != "" {
		g := outcome.Grade(*m.Grade)
		rec.Grade = &g
	}
	if m.ScoredAtUnix != nil && *m.ScoredAtUnix > 0 {
		ts := millisToTime(*m.ScoredAtUnix)
		rec.ScoredAt = &ts
	}
	return rec
}

func outcomeModelsToRecords(models []tradeOutcomeModel) []outcome.TradeOutcome {
	out := make([]outcome.TradeOutcome, 0, len(models))
	for _, m := range models {
		out = append(out, tradeOutcomeModelToRecord(m))
	}
	return out
}

func newMarketSnapshotModel(snap outcome.MarketSnapshot) marketSnapshotModel {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	raw, _ := json.Marshal(snap.Readings)
	return marketSnapshotModel{
		SignalID:        strings.TrimSpace(snap.SignalID),
		Symbol:          strings.ToUpper(strings.TrimSpace(snap.Symbol)),
		RSI15m:          snap.Readings.RSI15m,
		RSI1h:           snap.Readings.RSI1h,
		RSI4h:           snap.Readings.RSI4h,
		MACDBias:        string(snap.Readings.MACDBias),
		VolatilityRank:  snap.Readings.VolatilityRank,
		VolumeRatio:     snap.Readings.VolumeRatio,
		TrendStrength:   snap.Readings.TrendStrength,
		BTCCorrelation:  snap.Readings.BTCCorrelation,
		MarketCondition: string(snap.Readings.Condition),
		Raw:             datatypes.JSON(raw),
		CreatedAtUnix:   snap.CreatedAt.UnixMilli(),
	}
}

func marketSnapshotModelToRecord(m marketSnapshotModel) outcome.MarketSnapshot {
	return outcome.MarketSnapshot{
		SignalID: m.SignalID,
		Symbol:   m.Symbol,
		Readings: outcome.IndicatorReadings{
			RSI15m:         m.RSI15m,
			RSI1h:          m.RSI1h,
			RSI4h:          m.RSI4h,
			MACDBias:       outcome.MACDBias(m.MACDBias),
			VolatilityRank: m.VolatilityRank,
			VolumeRatio:    m.VolumeRatio,
			TrendStrength:  m.TrendStrength,
			BTCCorrelation: m.BTCCorrelation,
			Condition:      outcome.MarketCondition(m.MarketCondition),
		},
		CreatedAt: millisToTime(m.CreatedAtUnix),
	}
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
