package risk

import "math"

// AnomalyScorer scores how isolated each row is relative to its fitted
// role population using an isolation forest. Cohorts too small to fit a
// model fall back to a mean-absolute-z proxy and are flagged
// low-confidence.
type AnomalyScorer struct {
	cfg *Config
}

func NewAnomalyScorer(cfg *Config) *AnomalyScorer { return &AnomalyScorer{cfg: cfg} }

func (s *AnomalyScorer) Component() Component { return ComponentAnomaly }

func (s *AnomalyScorer) Score(c *Cohort) ([]ComponentScore, error) {
	if c.Size() < s.cfg.MinCohortFit {
		return s.fallback(c), nil
	}

	forest := newIsolationForest(s.cfg.ForestTrees, s.cfg.ForestSampleSize)
	forest.Fit(c.Z, c.rng("anomaly"))

	raw := make([]float64, c.Size())
	for i, z := range c.Z {
		raw[i] = forest.Score(z)
	}
	norm := minMaxNormalize(raw)

	out := make([]ComponentScore, c.Size())
	for i, v := range norm {
		out[i] = ComponentScore{Value: v}
	}
	return out, nil
}

// fallback scores by mean absolute z-score, which needs no fitted model.
func (s *AnomalyScorer) fallback(c *Cohort) []ComponentScore {
	raw := make([]float64, c.Size())
	for i, z := range c.Z {
		sum := 0.0
		for _, v := range z {
			sum += math.Abs(v)
		}
		if len(z) > 0 {
			raw[i] = sum / float64(len(z))
		}
	}
	norm := minMaxNormalize(raw)
	out := make([]ComponentScore, c.Size())
	for i, v := range norm {
		out[i] = ComponentScore{Value: v, LowConfidence: true}
	}
	cohortFallbacks.WithLabelValues(string(ComponentAnomaly), "small_cohort").Add(float64(c.Size()))
	return out
}
