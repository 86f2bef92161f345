package outcome

import "time"

// Direction is the predicted side of a signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Grade is the A..F quality score assigned once the 24h checkpoint completes.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// State describes how far an outcome has advanced through its checkpoints.
type State string

const (
	StatePending   State = "PENDING"
	StatePartial1H State = "PARTIAL_1H"
	StatePartial4H State = "PARTIAL_4H"
	StateGraded    State = "GRADED"
)

// Checkpoint is a fixed offset after signal creation at which price is sampled.
type Checkpoint int

const (
	Checkpoint1H Checkpoint = iota
	Checkpoint4H
	Checkpoint24H
)

// Offset returns the wall-clock age at which the checkpoint becomes due.
func (c Checkpoint) Offset() time.Duration {
	switch c {
	case Checkpoint1H:
		return time.Hour
	case Checkpoint4H:
		return 4 * time.Hour
	case Checkpoint24H:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (c Checkpoint) String() string {
	switch c {
	case Checkpoint1H:
		return "1h"
	case Checkpoint4H:
		return "4h"
	case Checkpoint24H:
		return "24h"
	default:
		return "unknown"
	}
}

// Checkpoints lists all checkpoints in scoring order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{Checkpoint1H, Checkpoint4H, Checkpoint24H}
}

// MACDBias is the categorical MACD read at signal time.
type MACDBias string

const (
	MACDBullish MACDBias = "bullish"
	MACDBearish MACDBias = "bearish"
	MACDNeutral MACDBias = "neutral"
)

func (b MACDBias) Valid() bool {
	return b == MACDBullish || b == MACDBearish || b == MACDNeutral
}

// MarketCondition labels the regime captured with the snapshot.
type MarketCondition string

const (
	ConditionTrendingUp   MarketCondition = "trending_up"
	ConditionTrendingDown MarketCondition = "trending_down"
	ConditionRanging      MarketCondition = "ranging"
	ConditionVolatile     MarketCondition = "volatile"
)

func (c MarketCondition) Valid() bool {
	switch c {
	case ConditionTrendingUp, ConditionTrendingDown, ConditionRanging, ConditionVolatile:
		return true
	}
	return false
}

// Signal carries the prediction parameters of an accepted trading signal.
type Signal struct {
	SignalID    string
	Symbol      string
	Direction   Direction
	Confidence  float64 // 0-100
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
}

// IndicatorReadings are the six snapshot fields plus the condition label,
// captured at the moment a signal is accepted.
type IndicatorReadings struct {
	RSI15m         float64
	RSI1h          float64
	RSI4h          float64
	MACDBias       MACDBias
	VolatilityRank float64 // 0-100 percentile vs trailing window
	VolumeRatio    float64 // vs trailing average
	TrendStrength  float64
	BTCCorrelation float64
	Condition      MarketCondition
}

// TradeOutcome is the full lifecycle record of one signal, from prediction
// to graded result. Checkpoint fields stay nil until the scorer fills them;
// each is written at most once.
type TradeOutcome struct {
	ID          string
	SignalID    string
	Symbol      string
	Direction   Direction
	Confidence  float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64

	Price1h  *float64
	Price4h  *float64
	Price24h *float64

	PnLPct1h  *float64
	PnLPct4h  *float64
	PnLPct24h *float64

	HitTarget bool
	HitStop   bool
	// MaxFavorable is the best direction-signed excursion in percent over the
	// observed trajectory (>= 0); MaxAdverse the worst (<= 0).
	MaxFavorable float64
	MaxAdverse   float64

	Grade      *Grade
	SyncFailed bool

	CreatedAt time.Time
	ScoredAt  *time.Time
}

// State derives the scoring state from which checkpoint fields are set.
func (o TradeOutcome) State() State {
	switch {
	case o.Grade != nil && o.ScoredAt != nil:
		return StateGraded
	case o.Price4h != nil:
		return StatePartial4H
	case o.Price1h != nil:
		return StatePartial1H
	default:
		return StatePending
	}
}

// Graded reports whether the outcome has completed the 24h checkpoint.
func (o TradeOutcome) Graded() bool { return o.State() == StateGraded }

// CheckpointPrice returns the stored price for cp, nil if unset.
func (o TradeOutcome) CheckpointPrice(cp Checkpoint) *float64 {
	switch cp {
	case Checkpoint1H:
		return o.Price1h
	case Checkpoint4H:
		return o.Price4h
	case Checkpoint24H:
		return o.Price24h
	default:
		return nil
	}
}

// MarketSnapshot is the immutable indicator record paired 1:1 with a
// TradeOutcome by signal ID.
type MarketSnapshot struct {
	SignalID  string
	Symbol    string
	Readings  IndicatorReadings
	CreatedAt time.Time
}

// Annotation is a free-text operator note attached to a signal.
type Annotation struct {
	SignalID  string
	Text      string
	Tags      []string
	CreatedAt time.Time
}
