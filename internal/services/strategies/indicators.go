package strategies

import "AnimaRex/internal/domain/models"

// colorCount counts green and red bars in the last n bars.
func colorCount(bars []models.Candle, n int) (bulls, bears int) {
	for _, c := range bars[len(bars)-n:] {
		switch {
		case c.Bullish():
			bulls++
		case c.Bearish():
			bears++
		}
	}
	return bulls, bears
}

// EMA computes an exponential moving average of closes with alpha = 2/(span+1),
// seeded with the first close. It returns nil if span < 1 or there are no bars.
func EMA(bars []models.Candle, span int) []float64 {
	if span < 1 || len(bars) == 0 {
		return nil
	}
	alpha := 2 / float64(span+1)
	out := make([]float64, len(bars))
	out[0] = bars[0].Close
	for i := 1; i < len(bars); i++ {
		out[i] = alpha*bars[i].Close + (1-alpha)*out[i-1]
	}
	return out
}
