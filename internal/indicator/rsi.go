package indicator

import "github.com/vokmon/trade-signal/internal/domain"

type Point struct {
	OpenTime int64
	Value    float64
}

// RSI smooths gains and losses with an EMA (α = 2/(period+1)) seeded with
// the first raw delta. The seeding is part of the decision contract and must
// not be replaced with an SMA warm-up.
func RSI(candles []domain.Candle, period int) []Point {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	closes := extractCloses(candles)

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else if delta < 0 {
			losses[i-1] = -delta
		}
	}

	avgGains := emaSeries(gains, period)
	avgLosses := emaSeries(losses, period)

	out := make([]Point, 0, len(gains)-period+1)
	for i := period - 1; i < len(gains); i++ {
		out = append(out, Point{
			OpenTime: candles[i+1].OpenTime,
			Value:    rsiFromAvg(avgGains[i], avgLosses[i]),
		})
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
