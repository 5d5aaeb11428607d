package indicator

import "github.com/vokmon/trade-signal/internal/domain"

// FlatRangeK is the raw %K used when the high/low range of the window is zero.
const FlatRangeK = 50.0

type Oscillator struct {
	OpenTime int64
	K        float64
	D        float64
}

// Stochastic computes smoothed %K and its %D. Smoothing uses a trailing
// average that is partial over the first smoothing-1 points.
func Stochastic(candles []domain.Candle, kPeriod, dPeriod, smoothing int) []Oscillator {
	if kPeriod <= 0 || dPeriod <= 0 || len(candles) < kPeriod {
		return nil
	}
	highs := extractHighs(candles)
	lows := extractLows(candles)

	raw := make([]float64, 0, len(candles)-kPeriod+1)
	for i := kPeriod - 1; i < len(candles); i++ {
		hh := maxOf(highs[i-kPeriod+1 : i+1])
		ll := minOf(lows[i-kPeriod+1 : i+1])
		if hh == ll {
			raw = append(raw, FlatRangeK)
			continue
		}
		raw = append(raw, (candles[i].Close-ll)/(hh-ll)*100)
	}

	smoothed := raw
	if smoothing > 1 {
		smoothed = make([]float64, len(raw))
		for i := range raw {
			start := i - smoothing + 1
			if start < 0 {
				start = 0
			}
			smoothed[i] = mean(raw[start : i+1])
		}
	}

	if len(smoothed) < dPeriod {
		return nil
	}
	out := make([]Oscillator, 0, len(smoothed)-dPeriod+1)
	for i := dPeriod - 1; i < len(smoothed); i++ {
		out = append(out, Oscillator{
			OpenTime: candles[i+kPeriod-1].OpenTime,
			K:        smoothed[i],
			D:        mean(smoothed[i-dPeriod+1 : i+1]),
		})
	}
	return out
}
