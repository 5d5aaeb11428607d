package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vokmon/trade-signal/internal/domain"
)

func candle(ts int64, open, high, low, close float64) domain.Candle {
	return domain.Candle{OpenTime: ts, Open: open, High: high, Low: low, Close: close}
}

func closesOnly(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle(int64(i*60), c, c, c, c)
	}
	return out
}

func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = candle(int64(i*60), price, price, price, price)
	}
	return out
}

func TestBollinger(t *testing.T) {
	bands := Bollinger(closesOnly(1, 2, 3, 4, 5, 6), 5, 2)
	require.Len(t, bands, 2)

	// closes 1..5: mean 3, population variance 2
	assert.InDelta(t, 3.0, bands[0].Middle, 1e-9)
	assert.InDelta(t, 3+2*math.Sqrt2, bands[0].Upper, 1e-9)
	assert.InDelta(t, 3-2*math.Sqrt2, bands[0].Lower, 1e-9)
	assert.Equal(t, int64(4*60), bands[0].OpenTime)
	assert.InDelta(t, 4.0, bands[1].Middle, 1e-9)
	assert.Equal(t, int64(5*60), bands[1].OpenTime)
}

func TestBollingerInsufficientData(t *testing.T) {
	assert.Nil(t, Bollinger(closesOnly(1, 2), 5, 2))
	assert.Nil(t, Bollinger(closesOnly(1, 2), 0, 2))
}

func TestDonchian(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 1, 2, 1, 1),
		candle(60, 1, 4, 0.5, 1),
		candle(120, 1, 3, 2, 1),
	}
	ch := Donchian(candles, 2)
	require.Len(t, ch, 2)
	assert.Equal(t, 4.0, ch[0].Upper)
	assert.Equal(t, 0.5, ch[0].Lower)
	assert.InDelta(t, 2.25, ch[0].Middle, 1e-9)
	assert.Equal(t, 4.0, ch[1].Upper)
	assert.Equal(t, 0.5, ch[1].Lower)
	assert.Equal(t, int64(120), ch[1].OpenTime)
}

func TestStochasticRawAndD(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 5, 10, 0, 5),
		candle(60, 5, 10, 0, 10),
		candle(120, 5, 10, 0, 0),
		candle(180, 5, 20, 0, 20),
	}

	osc := Stochastic(candles, 3, 2, 1)
	require.Len(t, osc, 1)
	assert.InDelta(t, 100.0, osc[0].K, 1e-9)
	assert.InDelta(t, 50.0, osc[0].D, 1e-9)
	assert.Equal(t, int64(180), osc[0].OpenTime)

	smoothed := Stochastic(candles, 3, 2, 3)
	require.Len(t, smoothed, 1)
	assert.InDelta(t, 50.0, smoothed[0].K, 1e-9)
	assert.InDelta(t, 25.0, smoothed[0].D, 1e-9)
}

func TestStochasticFlatRangeIsNeutral(t *testing.T) {
	osc := Stochastic(flatCandles(30, 1.5), 13, 3, 3)
	require.Len(t, osc, 30-13-3+2)
	for _, o := range osc {
		assert.False(t, math.IsNaN(o.K) || math.IsInf(o.K, 0))
		assert.Equal(t, FlatRangeK, o.K)
		assert.Equal(t, FlatRangeK, o.D)
	}
}

func TestRSIAllGains(t *testing.T) {
	points := RSI(closesOnly(1, 2, 3), 2)
	require.Len(t, points, 1)
	assert.Equal(t, 100.0, points[0].Value)
	assert.Equal(t, int64(120), points[0].OpenTime)
}

func TestRSIFirstValueSeeding(t *testing.T) {
	// gains [2,0,2], losses [0,1,0], alpha 0.5:
	// avgGain 2 -> 1 -> 1.5, avgLoss 0 -> 0.5 -> 0.25
	points := RSI(closesOnly(10, 12, 11, 13), 3)
	require.Len(t, points, 1)
	assert.InDelta(t, 100-100/7.0, points[0].Value, 1e-9)

	// alpha 2/3: avgGain 1 -> 1/3, avgLoss 0 -> 2/3
	points = RSI(closesOnly(10, 11, 10), 2)
	require.Len(t, points, 1)
	assert.InDelta(t, 100-100/1.5, points[0].Value, 1e-9)
}

func TestRSIInsufficientData(t *testing.T) {
	assert.Nil(t, RSI(closesOnly(1, 2, 3), 3))
}

func TestSupportResistance(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 3, 5, 1, 3),
		candle(60, 3, 4, 2, 3),
		candle(120, 3, 3, 3, 3),
		candle(180, 3, 6, 0, 3),
		candle(240, 3, 2, 4, 3),
	}
	levels := SupportResistance(candles, 3)
	require.Len(t, levels, len(candles))

	assert.Nil(t, levels[0].Resistance)
	assert.Nil(t, levels[0].Support)
	assert.Nil(t, levels[1].Resistance)
	assert.Nil(t, levels[1].Support)

	require.NotNil(t, levels[2].Resistance)
	require.NotNil(t, levels[2].Support)
	assert.Equal(t, 5.0, *levels[2].Resistance)
	assert.Equal(t, 1.0, *levels[2].Support)

	assert.Equal(t, 6.0, *levels[3].Resistance)
	assert.Equal(t, 0.0, *levels[3].Support)

	assert.Equal(t, 6.0, *levels[4].Resistance)
	assert.Equal(t, 0.0, *levels[4].Support)
}

func TestSupportResistanceNeverRevertsToNil(t *testing.T) {
	candles := make([]domain.Candle, 60)
	for i := range candles {
		p := 100 - float64(i)*0.5
		candles[i] = candle(int64(i*60), p, p+1, p-1, p)
	}
	levels := SupportResistance(candles, 25)
	for i, l := range levels {
		if i < 24 {
			assert.Nil(t, l.Resistance, "index %d", i)
			assert.Nil(t, l.Support, "index %d", i)
			continue
		}
		assert.NotNil(t, l.Resistance, "index %d", i)
		assert.NotNil(t, l.Support, "index %d", i)
	}
}

func TestSupportResistanceShortWindow(t *testing.T) {
	levels := SupportResistance(flatCandles(10, 1), 25)
	require.Len(t, levels, 10)
	for _, l := range levels {
		assert.Nil(t, l.Resistance)
		assert.Nil(t, l.Support)
	}
}

func TestConsecutiveColors(t *testing.T) {
	g := func(ts int64) domain.Candle { return candle(ts, 1, 2, 0.5, 1.5) }
	r := func(ts int64) domain.Candle { return candle(ts, 1.5, 2, 0.5, 1) }
	d := func(ts int64) domain.Candle { return candle(ts, 1, 2, 0.5, 1) }

	runs := ConsecutiveColors([]domain.Candle{g(0), g(1), g(2), r(3), r(4), d(5), g(6), g(7), r(8)})
	want := []int{1, 2, 3, -1, -2, 0, 1, 2, -1}
	require.Len(t, runs, len(want))
	for i, w := range want {
		assert.Equal(t, w, runs[i].Run, "index %d", i)
		assert.Equal(t, int64(i), runs[i].OpenTime)
	}
}

func TestConsecutiveColorsDojiBreaksRun(t *testing.T) {
	g := func(ts int64) domain.Candle { return candle(ts, 1, 2, 0.5, 1.5) }
	d := func(ts int64) domain.Candle { return candle(ts, 1, 2, 0.5, 1) }

	runs := ConsecutiveColors([]domain.Candle{g(0), g(1), d(2), g(3)})
	assert.Equal(t, []int{1, 2, 0, 1}, []int{runs[0].Run, runs[1].Run, runs[2].Run, runs[3].Run})

	runs = ConsecutiveColors([]domain.Candle{d(0), g(1)})
	assert.Equal(t, 0, runs[0].Run)
	assert.Equal(t, 1, runs[1].Run)
}

func TestIndicatorsAreDeterministic(t *testing.T) {
	candles := make([]domain.Candle, 40)
	for i := range candles {
		p := 10 + math.Sin(float64(i)/3)
		candles[i] = candle(int64(i*60), p, p+0.3, p-0.2, p+0.1)
	}
	assert.Equal(t, Bollinger(candles, 14, 2), Bollinger(candles, 14, 2))
	assert.Equal(t, Stochastic(candles, 13, 3, 3), Stochastic(candles, 13, 3, 3))
	assert.Equal(t, RSI(candles, 14), RSI(candles, 14))
	assert.Equal(t, Donchian(candles, 20), Donchian(candles, 20))
	assert.Equal(t, ConsecutiveColors(candles), ConsecutiveColors(candles))
}
