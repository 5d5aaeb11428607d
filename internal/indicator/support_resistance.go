package indicator

import "github.com/vokmon/trade-signal/internal/domain"

// Level holds forward-filled support and resistance. Nil means unavailable.
type Level struct {
	OpenTime   int64
	Resistance *float64
	Support    *float64
}

// SupportResistance returns one Level per candle. Both sides are nil for the
// first boxPeriod-1 candles. The first complete window seeds the levels with
// its rolling extremes; afterwards a candle whose high reaches the rolling
// max (or whose low reaches the rolling min) moves the level, and gaps are
// forward-filled.
func SupportResistance(candles []domain.Candle, boxPeriod int) []Level {
	out := make([]Level, len(candles))
	for i := range candles {
		out[i].OpenTime = candles[i].OpenTime
	}
	if boxPeriod <= 0 || len(candles) < boxPeriod {
		return out
	}

	highs := extractHighs(candles)
	lows := extractLows(candles)

	var resistance, support *float64
	for i := boxPeriod - 1; i < len(candles); i++ {
		hh := maxOf(highs[i-boxPeriod+1 : i+1])
		ll := minOf(lows[i-boxPeriod+1 : i+1])

		switch {
		case candles[i].High >= hh:
			resistance = floatPtr(candles[i].High)
		case resistance == nil:
			resistance = floatPtr(hh)
		}
		switch {
		case candles[i].Low <= ll:
			support = floatPtr(candles[i].Low)
		case support == nil:
			support = floatPtr(ll)
		}

		out[i].Resistance = resistance
		out[i].Support = support
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}
