package risk

import "fmt"

// RiskCategory buckets a governance risk score for reviewers.
type RiskCategory string

const (
	CategoryLow    RiskCategory = "Low"
	CategoryMedium RiskCategory = "Medium"
	CategoryHigh   RiskCategory = "High"
)

// Ensemble deterministically combines component scores into a single
// governance risk score in [0,100]. It is monotonic in every component:
// raising one component, holding the rest fixed, never lowers the result.
type Ensemble struct {
	cfg *Config
}

func NewEnsemble(cfg *Config) *Ensemble { return &Ensemble{cfg: cfg} }

// Combine aggregates the available component scores. A component absent
// from scores is excluded and the remaining weights are renormalized so
// the effective weights still sum to 1. Fallback (low-confidence) scores
// are present and therefore included; the flag travels with the record.
func (e *Ensemble) Combine(scores map[Component]ComponentScore) (float64, RiskCategory, error) {
	totalWeight := 0.0
	for _, comp := range Components {
		if _, ok := scores[comp]; ok {
			totalWeight += e.cfg.Weights.Of(comp)
		}
	}
	if totalWeight <= 0 {
		return 0, "", fmt.Errorf("ensemble: no scored components with positive weight")
	}

	sum := 0.0
	for _, comp := range Components {
		cs, ok := scores[comp]
		if !ok {
			continue
		}
		sum += (e.cfg.Weights.Of(comp) / totalWeight) * clamp01(cs.Value)
	}

	score := sum * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, e.Categorize(score), nil
}

// Categorize maps a score onto the fixed threshold table. Boundaries are
// closed on the lower bound: exactly Low is Low, exactly Medium is Medium.
func (e *Ensemble) Categorize(score float64) RiskCategory {
	switch {
	case score <= e.cfg.Thresholds.Low:
		return CategoryLow
	case score <= e.cfg.Thresholds.Medium:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
