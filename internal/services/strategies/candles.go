package strategies

import (
	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/service"
)

// MHI1Minoria bets on the minority color of the last window bars.
func MHI1Minoria(bars []models.Candle, p service.Params) (models.Signal, bool) {
	n := p.Int("window", 3)
	if n < 1 || len(bars) < n {
		return models.Signal{}, false
	}
	bulls, bears := colorCount(bars, n)
	switch {
	case bears > bulls:
		return emit(bars, p, NameMHI1Minoria, models.DirectionCall)
	case bulls > bears:
		return emit(bars, p, NameMHI1Minoria, models.DirectionPut)
	}
	return models.Signal{}, false
}

// MelhorDe3 follows the majority color of the last window bars.
func MelhorDe3(bars []models.Candle, p service.Params) (models.Signal, bool) {
	n := p.Int("window", 3)
	if n < 1 || len(bars) < n {
		return models.Signal{}, false
	}
	bulls, bears := colorCount(bars, n)
	switch {
	case bulls > bears:
		return emit(bars, p, NameMelhorDe3, models.DirectionCall)
	case bears > bulls:
		return emit(bars, p, NameMelhorDe3, models.DirectionPut)
	}
	return models.Signal{}, false
}

// FiveFlip trades against a run of five same-colored bars.
func FiveFlip(bars []models.Candle, p service.Params) (models.Signal, bool) {
	return flip(bars, p.Int("window", 5), p, NameFiveFlip)
}

// SevenFlip trades against a run of seven same-colored bars.
func SevenFlip(bars []models.Candle, p service.Params) (models.Signal, bool) {
	return flip(bars, p.Int("window", 7), p, NameSevenFlip)
}

func flip(bars []models.Candle, n int, p service.Params, name string) (models.Signal, bool) {
	if n < 1 || len(bars) < n {
		return models.Signal{}, false
	}
	bulls, bears := colorCount(bars, n)
	switch n {
	case bulls:
		return emit(bars, p, name, models.DirectionPut)
	case bears:
		return emit(bars, p, name, models.DirectionCall)
	}
	return models.Signal{}, false
}
