package indicator

import "github.com/vokmon/trade-signal/internal/domain"

type Band struct {
	OpenTime int64
	Middle   float64
	Upper    float64
	Lower    float64
}

// Bollinger computes SMA ± multiplier·σ (population σ) of closes. The first
// point belongs to candle period-1.
func Bollinger(candles []domain.Candle, period int, multiplier float64) []Band {
	if period <= 0 || len(candles) < period {
		return nil
	}
	closes := extractCloses(candles)
	out := make([]Band, 0, len(candles)-period+1)
	for i := period - 1; i < len(closes); i++ {
		sma, std := meanStd(closes[i-period+1 : i+1])
		out = append(out, Band{
			OpenTime: candles[i].OpenTime,
			Middle:   sma,
			Upper:    sma + multiplier*std,
			Lower:    sma - multiplier*std,
		})
	}
	return out
}
