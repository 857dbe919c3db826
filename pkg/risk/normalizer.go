package risk

import (
	"math"

	"privsight/pkg/featureset"
)

// FeatureStats holds a cohort's fitted mean and population standard
// deviation for a single feature.
type FeatureStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Normalizer converts raw feature values into peer-relative z-scores for
// one role cohort. It is a pure function of the cohort snapshot and must be
// refitted whenever membership changes.
type Normalizer struct {
	stats    map[string]FeatureStats
	n        int
	minStats int
}

// FitNormalizer computes per-feature statistics over a cohort's rows.
// minStats is the cohort size below which z-scores degrade to 0.
func FitNormalizer(rows []featureset.Row, minStats int) *Normalizer {
	stats := make(map[string]FeatureStats, featureset.NumFeatures())
	n := len(rows)

	for _, name := range featureset.Names() {
		var sum float64
		for _, r := range rows {
			sum += r.Features[name]
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}

		var sq float64
		for _, r := range rows {
			d := r.Features[name] - mean
			sq += d * d
		}
		std := 0.0
		if n > 0 {
			std = math.Sqrt(sq / float64(n))
		}
		stats[name] = FeatureStats{Mean: mean, Std: std}
	}

	return &Normalizer{stats: stats, n: n, minStats: minStats}
}

// Stats returns the fitted statistics for a feature.
func (nz *Normalizer) Stats(name string) FeatureStats { return nz.stats[name] }

// ZScore converts one raw value to standard deviations from the cohort
// mean. A constant feature or a cohort below the stats threshold observes
// no deviation: z is defined as 0 rather than dividing by zero.
func (nz *Normalizer) ZScore(name string, x float64) float64 {
	s, ok := nz.stats[name]
	if !ok || nz.n < nz.minStats || s.Std == 0 {
		return 0
	}
	return (x - s.Mean) / s.Std
}

// Transform returns the z-score of every feature in a row, keyed by
// feature name.
func (nz *Normalizer) Transform(row featureset.Row) map[string]float64 {
	out := make(map[string]float64, featureset.NumFeatures())
	for _, name := range featureset.Names() {
		out[name] = nz.ZScore(name, row.Features[name])
	}
	return out
}

// Matrix returns the z-score matrix of a row set in canonical feature
// order, one row per input row.
func (nz *Normalizer) Matrix(rows []featureset.Row) [][]float64 {
	names := featureset.Names()
	out := make([][]float64, len(rows))
	for i, r := range rows {
		v := make([]float64, len(names))
		for j, name := range names {
			v[j] = nz.ZScore(name, r.Features[name])
		}
		out[i] = v
	}
	return out
}

// Degenerate reports whether the cohort was too small for variance-based
// normalization.
func (nz *Normalizer) Degenerate() bool { return nz.n < nz.minStats }
