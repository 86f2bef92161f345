package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradebook/internal/outcome"
)

// trendCandles builds n bars walking from start by step per bar, with a
// fixed high/low band and volume around base.
func trendCandles(n int, start, step, volBase float64) []Candle {
	out := make([]Candle, n)
	price := start
	for i := range out {
		out[i] = Candle{
			OpenTime: int64(i) * 3_600_000,
			Open:     price,
			High:     price + step + 0.5,
			Low:      price - 0.5,
			Close:    price + step,
			Volume:   volBase,
		}
		price += step
	}
	return out
}

func TestComputeRejectsShortSeries(t *testing.T) {
	s := Series{
		M15: trendCandles(10, 100, 0.2, 1000),
		H1:  trendCandles(60, 100, 0.2, 1000),
		H4:  trendCandles(60, 100, 0.2, 1000),
	}
	_, err := Compute(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "15m series too short")
}

func TestComputeUptrend(t *testing.T) {
	up := trendCandles(120, 100, 0.5, 1000)
	s := Series{
		M15: up,
		H1:  up,
		H4:  up,
		BTC: up,
	}
	r, err := Compute(s)
	require.NoError(t, err)

	// A monotonic uptrend pins RSI high and MACD bullish.
	assert.Greater(t, r.RSI1h, 70.0)
	assert.Equal(t, outcome.MACDBullish, r.MACDBias)
	assert.GreaterOrEqual(t, r.TrendStrength, 25.0)
	// Identical series correlate perfectly.
	assert.InDelta(t, 1.0, r.BTCCorrelation, 1e-6)
	assert.GreaterOrEqual(t, r.VolatilityRank, 0.0)
	assert.LessOrEqual(t, r.VolatilityRank, 100.0)
	assert.InDelta(t, 1.0, r.VolumeRatio, 0.01)
}

func TestComputeWithoutBTCSeries(t *testing.T) {
	up := trendCandles(120, 100, 0.5, 1000)
	r, err := Compute(Series{M15: up, H1: up, H4: up})
	require.NoError(t, err)
	assert.Zero(t, r.BTCCorrelation)
}

func TestVolumeRatioSpikes(t *testing.T) {
	vols := make([]float64, 40)
	for i := range vols {
		vols[i] = 1000
	}
	vols[len(vols)-1] = 3000
	assert.InDelta(t, 3.0, volumeRatio(vols), 1e-9)

	// Too little history defaults to neutral.
	assert.Equal(t, 1.0, volumeRatio(vols[:10]))
}

func TestAtrPercentileRanksLatest(t *testing.T) {
	// Expanding ranges make the latest ATR the largest in its window.
	candles := make([]Candle, 80)
	price := 100.0
	for i := range candles {
		spread := 0.5 + float64(i)*0.05
		candles[i] = Candle{High: price + spread, Low: price - spread, Close: price}
	}
	rank := atrPercentile(highsOf(candles), lowsOf(candles), closesOf(candles))
	assert.Equal(t, 100.0, rank)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		r    outcome.IndicatorReadings
		want outcome.MarketCondition
	}{
		{"volatility overrides trend", outcome.IndicatorReadings{VolatilityRank: 85, TrendStrength: 40, MACDBias: outcome.MACDBullish}, outcome.ConditionVolatile},
		{"strong adx bullish macd", outcome.IndicatorReadings{VolatilityRank: 50, TrendStrength: 30, MACDBias: outcome.MACDBullish}, outcome.ConditionTrendingUp},
		{"strong adx bearish macd", outcome.IndicatorReadings{VolatilityRank: 50, TrendStrength: 30, MACDBias: outcome.MACDBearish}, outcome.ConditionTrendingDown},
		{"weak adx", outcome.IndicatorReadings{VolatilityRank: 50, TrendStrength: 15, MACDBias: outcome.MACDBullish}, outcome.ConditionRanging},
		{"neutral macd still counts as up", outcome.IndicatorReadings{VolatilityRank: 50, TrendStrength: 30, MACDBias: outcome.MACDNeutral}, outcome.ConditionTrendingUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.r))
		})
	}
}

func TestLastValidSkipsNaN(t *testing.T) {
	assert.Equal(t, 42.0, lastValid([]float64{1, 42, math.NaN(), 0}))
	assert.Zero(t, lastValid([]float64{math.NaN(), 0}))
	assert.Zero(t, lastValid(nil))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, -1.0, clamp(-3, -1, 1))
	assert.Equal(t, 1.0, clamp(7, -1, 1))
	assert.Equal(t, 0.5, clamp(0.5, -1, 1))
}
