package strategies

import (
	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/service"
)

// Padrao23 matches GGRRR (PUT) or RRGGG (CALL) on the last five bars.
// Dojis count as red.
func Padrao23(bars []models.Candle, p service.Params) (models.Signal, bool) {
	const n = 5
	if len(bars) < n {
		return models.Signal{}, false
	}
	var green [n]bool
	for i, c := range bars[len(bars)-n:] {
		green[i] = c.Bullish()
	}
	switch green {
	case [n]bool{true, true, false, false, false}:
		return emit(bars, p, NamePadrao23, models.DirectionPut)
	case [n]bool{false, false, true, true, true}:
		return emit(bars, p, NamePadrao23, models.DirectionCall)
	}
	return models.Signal{}, false
}

// TorresGemeas fires when the two bars before the latest share open and
// close, following their direction.
func TorresGemeas(bars []models.Candle, p service.Params) (models.Signal, bool) {
	if len(bars) < 3 {
		return models.Signal{}, false
	}
	a, b := bars[len(bars)-3], bars[len(bars)-2]
	if a.Open != b.Open || a.Close != b.Close {
		return models.Signal{}, false
	}
	switch {
	case b.Bullish():
		return emit(bars, p, NameTorresGemeas, models.DirectionCall)
	case b.Bearish():
		return emit(bars, p, NameTorresGemeas, models.DirectionPut)
	}
	return models.Signal{}, false
}

// Reversao expects a reversal after an opening gap or a bar whose body
// dominates its range.
func Reversao(bars []models.Candle, p service.Params) (models.Signal, bool) {
	if len(bars) < 2 {
		return models.Signal{}, false
	}
	gap := p.Float("gap_threshold", 0.001)
	body := p.Float("body_threshold", 0.8)
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]

	if cur.Open > prev.Close*(1+gap) {
		return emit(bars, p, NameReversao, models.DirectionPut)
	}
	if cur.Open < prev.Close*(1-gap) {
		return emit(bars, p, NameReversao, models.DirectionCall)
	}

	rng := prev.Range()
	if rng <= 0 || prev.Body() < body*rng {
		return models.Signal{}, false
	}
	if prev.Bullish() {
		return emit(bars, p, NameReversao, models.DirectionPut)
	}
	return emit(bars, p, NameReversao, models.DirectionCall)
}

// EMACrossover fires on the bar where the fast EMA crosses the slow one.
func EMACrossover(bars []models.Candle, p service.Params) (models.Signal, bool) {
	fast := p.Int("fast_period", 9)
	slow := p.Int("slow_period", 21)
	if fast < 1 || slow < 1 || len(bars) < slow || len(bars) < 2 {
		return models.Signal{}, false
	}
	f, s := EMA(bars, fast), EMA(bars, slow)
	i := len(bars) - 1

	switch {
	case f[i-1] <= s[i-1] && f[i] > s[i]:
		return emit(bars, p, NameEMACrossover, models.DirectionCall)
	case f[i-1] >= s[i-1] && f[i] < s[i]:
		return emit(bars, p, NameEMACrossover, models.DirectionPut)
	}
	return models.Signal{}, false
}
