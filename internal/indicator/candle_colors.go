package indicator

import "github.com/vokmon/trade-signal/internal/domain"

type ColorRun struct {
	OpenTime int64
	Run      int
}

// ConsecutiveColors returns a signed run length per candle: +n for the n-th
// green candle in a row, -n for red. A doji scores 0 and the candle after a
// doji always starts a fresh run of ±1, even when it matches the color of
// the run before the doji.
func ConsecutiveColors(candles []domain.Candle) []ColorRun {
	out := make([]ColorRun, len(candles))
	count := 0
	for i, c := range candles {
		sameAsPrev := false
		if i > 0 && !c.IsDoji() {
			prev := candles[i-1]
			sameAsPrev = !prev.IsDoji() &&
				((c.IsGreen() && prev.IsGreen()) || (c.IsRed() && prev.IsRed()))
		}

		switch {
		case sameAsPrev && c.IsGreen():
			count = abs(count) + 1
		case sameAsPrev:
			count = -(abs(count) + 1)
		case c.IsGreen():
			count = 1
		case c.IsRed():
			count = -1
		default:
			count = 0
		}
		out[i] = ColorRun{OpenTime: c.OpenTime, Run: count}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
