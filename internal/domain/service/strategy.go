package service

import "AnimaRex/internal/domain/models"

// Params is the parameter map bound to a strategy at worker creation.
type Params map[string]any

// StrategyFunc inspects a price-bar window and optionally returns a signal.
// Implementations must be pure: no I/O, no mutation of bars.
type StrategyFunc func(bars []models.Candle, params Params) (models.Signal, bool)

// Int returns the integer param key or def.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Float returns the float param key or def.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// String returns the string param key or def.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// With returns a shallow copy with key set to value.
func (p Params) With(key string, value any) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}
