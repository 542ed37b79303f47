package models

// EnsembleDecision is the fused view over a batch of strategy outcomes.
// Weights is aligned index-by-index with Strategies and sums to 1.
type EnsembleDecision struct {
	Direction  Direction `json:"direction"`
	Strategies []string  `json:"strategies"`
	Weights    []float64 `json:"weights"`
}

// Weight returns the weight of the named strategy, or 0 when unknown.
func (d EnsembleDecision) Weight(name string) float64 {
	for i, s := range d.Strategies {
		if s == name && i < len(d.Weights) {
			return d.Weights[i]
		}
	}
	return 0
}

// MeanWeight is the arithmetic mean of the weight vector.
func (d EnsembleDecision) MeanWeight() float64 {
	if len(d.Weights) == 0 {
		return 0
	}
	var sum float64
	for _, w := range d.Weights {
		sum += w
	}
	return sum / float64(len(d.Weights))
}

// WeightMap returns the weights keyed by strategy name.
func (d EnsembleDecision) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(d.Strategies))
	for i, s := range d.Strategies {
		if i < len(d.Weights) {
			m[s] = d.Weights[i]
		}
	}
	return m
}
