// Package indicator derives the market readings captured alongside each
// signal from raw candle series.
package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"gradebook/internal/outcome"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Series groups the candle history needed to compute a full reading set.
// BTC is optional; correlation falls back to zero without it.
type Series struct {
	M15 []Candle
	H1  []Candle
	H4  []Candle
	BTC []Candle // same interval as H1, used for correlation
}

const (
	rsiPeriod      = 14
	adxPeriod      = 14
	atrPeriod      = 14
	volumeSMALen   = 20
	correlPeriod   = 30
	atrRankWindow  = 100
	minCandleCount = 35 // longest talib warm-up among the indicators above
)

// Compute derives a reading set from the candle series. It fails when any
// required series is too short for the indicator warm-up.
func Compute(s Series) (outcome.IndicatorReadings, error) {
	var r outcome.IndicatorReadings
	for name, candles := range map[string][]Candle{"15m": s.M15, "1h": s.H1, "4h": s.H4} {
		if len(candles) < minCandleCount {
			return r, fmt.Errorf("indicator: %s series too short (%d candles, need %d)", name, len(candles), minCandleCount)
		}
	}

	r.RSI15m = lastValid(talib.Rsi(closesOf(s.M15), rsiPeriod))
	r.RSI1h = lastValid(talib.Rsi(closesOf(s.H1), rsiPeriod))
	r.RSI4h = lastValid(talib.Rsi(closesOf(s.H4), rsiPeriod))

	closes1h := closesOf(s.H1)
	_, _, hist := talib.Macd(closes1h, 12, 26, 9)
	r.MACDBias = macdBias(lastValid(hist))

	highs, lows := highsOf(s.H1), lowsOf(s.H1)
	r.TrendStrength = lastValid(talib.Adx(highs, lows, closes1h, adxPeriod))
	r.VolatilityRank = atrPercentile(highs, lows, closes1h)
	r.VolumeRatio = volumeRatio(volumesOf(s.H1))
	r.BTCCorrelation = btcCorrelation(closes1h, closesOf(s.BTC))
	r.Condition = classify(r)
	return r, nil
}

func macdBias(hist float64) outcome.MACDBias {
	switch {
	case hist > 0:
		return outcome.MACDBullish
	case hist < 0:
		return outcome.MACDBearish
	default:
		return outcome.MACDNeutral
	}
}

// atrPercentile ranks the latest ATR against its own trailing window,
// yielding the 0-100 volatility rank.
func atrPercentile(highs, lows, closes []float64) float64 {
	series := validOnly(talib.Atr(highs, lows, closes, atrPeriod))
	if len(series) == 0 {
		return 0
	}
	if len(series) > atrRankWindow {
		series = series[len(series)-atrRankWindow:]
	}
	latest := series[len(series)-1]
	below := 0
	for _, v := range series {
		if v <= latest {
			below++
		}
	}
	return float64(below) / float64(len(series)) * 100
}

func volumeRatio(volumes []float64) float64 {
	if len(volumes) < volumeSMALen+1 {
		return 1
	}
	avg := lastValid(talib.Sma(volumes[:len(volumes)-1], volumeSMALen))
	if avg <= 0 {
		return 1
	}
	return volumes[len(volumes)-1] / avg
}

func btcCorrelation(closes, btcCloses []float64) float64 {
	n := len(closes)
	if len(btcCloses) < n {
		n = len(btcCloses)
	}
	if n < correlPeriod+1 {
		return 0
	}
	a := closes[len(closes)-n:]
	b := btcCloses[len(btcCloses)-n:]
	return clamp(lastValid(talib.Correl(a, b, correlPeriod)), -1, 1)
}

// classify maps the raw readings onto the coarse market condition label.
// ADX above 25 counts as trending; a volatility rank above 80 overrides
// everything because checkpoint pnl is dominated by swings in that regime.
func classify(r outcome.IndicatorReadings) outcome.MarketCondition {
	if r.VolatilityRank > 80 {
		return outcome.ConditionVolatile
	}
	if r.TrendStrength >= 25 {
		if r.MACDBias == outcome.MACDBearish {
			return outcome.ConditionTrendingDown
		}
		return outcome.ConditionTrendingUp
	}
	return outcome.ConditionRanging
}

func closesOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowsOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func volumesOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func validOnly(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) && series[i] != 0 {
			return series[i]
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
