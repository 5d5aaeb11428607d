package indicator

import "github.com/vokmon/trade-signal/internal/domain"

type Channel struct {
	OpenTime int64
	Upper    float64
	Lower    float64
	Middle   float64
}

// Donchian tracks the highest high and lowest low over the trailing period.
func Donchian(candles []domain.Candle, period int) []Channel {
	if period <= 0 || len(candles) < period {
		return nil
	}
	highs := extractHighs(candles)
	lows := extractLows(candles)
	out := make([]Channel, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		upper := maxOf(highs[i-period+1 : i+1])
		lower := minOf(lows[i-period+1 : i+1])
		out = append(out, Channel{
			OpenTime: candles[i].OpenTime,
			Upper:    upper,
			Lower:    lower,
			Middle:   (upper + lower) / 2,
		})
	}
	return out
}
