package model

import (
	"gorm.io/datatypes"
)

// TradeOutcomeModel is the persisted form of an outcome row. Checkpoint
// columns are nullable and written at most once each by the scorer.
type TradeOutcomeModel struct {
	ID          string  `gorm:"column:id;primaryKey"`
	SignalID    string  `gorm:"column:signal_id;uniqueIndex"`
	Symbol      string  `gorm:"column:symbol;index"`
	Direction   string  `gorm:"column:direction"`
	Confidence  float64 `gorm:"column:confidence"`
	EntryPrice  float64 `gorm:"column:entry_price"`
	StopPrice   float64 `gorm:"column:stop_price"`
	TargetPrice float64 `gorm:"column:target_price"`

	Price1h  *float64 `gorm:"column:price_1h"`
	Price4h  *float64 `gorm:"column:price_4h"`
	Price24h *float64 `gorm:"column:price_24h"`

	PnLPct1h  *float64 `gorm:"column:pnl_pct_1h"`
	PnLPct4h  *float64 `gorm:"column:pnl_pct_4h"`
	PnLPct24h *float64 `gorm:"column:pnl_pct_24h"`

	HitTarget    bool    `gorm:"column:hit_target"`
	HitStop      bool    `gorm:"column:hit_stop"`
	MaxFavorable float64 `gorm:"column:max_favorable"`
	MaxAdverse   float64 `gorm:"column:max_adverse"`

	Grade      *string `gorm:"column:grade"`
	SyncFailed bool    `gorm:"column:sync_failed;index"`

	CreatedAtUnix int64  `gorm:"column:created_at;index"`
	ScoredAtUnix  *int64 `gorm:"column:scored_at;index"`
}

func (TradeOutcomeModel) TableName() string { return "trade_outcomes" }

// MarketSnapshotModel is written once with its outcome stub and never
// mutated afterwards.
type MarketSnapshotModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	SignalID        string         `gorm:"column:signal_id;uniqueIndex"`
	Symbol          string         `gorm:"column:symbol;index"`
	RSI15m          float64        `gorm:"column:rsi_15m"`
	RSI1h           float64        `gorm:"column:rsi_1h"`
	RSI4h           float64        `gorm:"column:rsi_4h"`
	MACDBias        string         `gorm:"column:macd_bias"`
	VolatilityRank  float64        `gorm:"column:volatility_rank"`
	VolumeRatio     float64        `gorm:"column:volume_ratio"`
	TrendStrength   float64        `gorm:"column:trend_strength"`
	BTCCorrelation  float64        `gorm:"column:btc_correlation"`
	MarketCondition string         `gorm:"column:market_condition;index"`
	Raw             datatypes.JSON `gorm:"column:raw;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
}

func (MarketSnapshotModel) TableName() string { return "market_snapshots" }

// AnnotationModel stores free-text operator notes, purely additive.
type AnnotationModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SignalID      string         `gorm:"column:signal_id;index"`
	Text          string         `gorm:"column:text"`
	Tags          datatypes.JSON `gorm:"column:tags;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (AnnotationModel) TableName() string { return "annotations" }
