// Package indicator holds pure indicator functions over an ordered candle
// window. Every series is aligned to a trailing sub-range of the input and
// tags each point with the OpenTime of the candle it belongs to.
package indicator

import (
	"math"

	"github.com/vokmon/trade-signal/internal/domain"
)

func extractCloses(candles []domain.Candle) []float64 {
	values := make([]float64, len(candles))
	for i := range candles {
		values[i] = candles[i].Close
	}
	return values
}

func extractHighs(candles []domain.Candle) []float64 {
	values := make([]float64, len(candles))
	for i := range candles {
		values[i] = candles[i].High
	}
	return values
}

func extractLows(candles []domain.Candle) []float64 {
	values := make([]float64, len(candles))
	for i := range candles {
		values[i] = candles[i].Low
	}
	return values
}

func maxOf(values []float64) float64 {
	out := math.Inf(-1)
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}

func minOf(values []float64) float64 {
	out := math.Inf(1)
	for _, v := range values {
		if v < out {
			out = v
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (avg, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	avg = mean(values)
	if len(values) == 1 {
		return avg, 0
	}
	for _, v := range values {
		d := v - avg
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return avg, std
}

// emaSeries is seeded with the first raw value, not an SMA warm-up.
func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
