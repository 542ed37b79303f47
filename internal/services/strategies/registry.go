// Package strategies holds the built-in candle recognizers and the registry
// that binds them to configured parameters.
package strategies

import (
	"fmt"
	"sort"
	"sync"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/service"
)

const (
	NameMHI1Minoria  = "mhi1_minoria"
	NameMelhorDe3    = "melhor_de_3"
	NameFiveFlip     = "five_flip"
	NameSevenFlip    = "seven_flip"
	NamePadrao23     = "padrao_23"
	NameTorresGemeas = "torres_gemeas"
	NameReversao     = "reversao"
	NameEMACrossover = "ema_crossover"

	// ParamMarket is injected by the worker so recognizers can stamp signals.
	ParamMarket = "market"
)

// Bound is a strategy with its parameters already applied.
type Bound struct {
	Name string
	fn   service.StrategyFunc
	p    service.Params
}

// Evaluate runs the strategy against bars for market.
func (b Bound) Evaluate(market string, bars []models.Candle) (models.Signal, bool) {
	sig, ok := b.fn(bars, b.p.With(ParamMarket, market))
	if !ok {
		return models.Signal{}, false
	}
	return sig.WithStrategy(b.Name), true
}

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]service.StrategyFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]service.StrategyFunc)}
}

// Default returns a registry holding every built-in recognizer.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(NameMHI1Minoria, MHI1Minoria)
	r.MustRegister(NameMelhorDe3, MelhorDe3)
	r.MustRegister(NameFiveFlip, FiveFlip)
	r.MustRegister(NameSevenFlip, SevenFlip)
	r.MustRegister(NamePadrao23, Padrao23)
	r.MustRegister(NameTorresGemeas, TorresGemeas)
	r.MustRegister(NameReversao, Reversao)
	r.MustRegister(NameEMACrossover, EMACrossover)
	return r
}

func (r *Registry) Register(name string, fn service.StrategyFunc) error {
	if name == "" || fn == nil {
		return models.NewValidationError("strategy", "name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return models.NewValidationError("strategy", fmt.Sprintf("%q already registered", name))
	}
	r.funcs[name] = fn
	return nil
}

func (r *Registry) MustRegister(name string, fn service.StrategyFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (service.StrategyFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Bind resolves name and attaches params. Unknown names are a validation error.
func (r *Registry) Bind(name string, params map[string]any) (Bound, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return Bound{}, models.NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", name))
	}
	p := make(service.Params, len(params))
	for k, v := range params {
		p[k] = v
	}
	return Bound{Name: name, fn: fn, p: p}, nil
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// emit builds the signal for the bar after the window.
func emit(bars []models.Candle, p service.Params, name string, d models.Direction) (models.Signal, bool) {
	last := bars[len(bars)-1]
	market := p.String(ParamMarket, last.Symbol)
	sig, err := models.NewSignal(market, string(d), name, last.Bucket)
	if err != nil {
		return models.Signal{}, false
	}
	return sig, true
}
