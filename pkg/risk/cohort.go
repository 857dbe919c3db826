package risk

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"privsight/pkg/featureset"
)

// Cohort is a role's peer group within one scoring window. It owns the
// fitted normalization statistics and is the unit of parallelism: scoring
// different cohorts shares no mutable state.
type Cohort struct {
	Role string
	Rows []featureset.Row
	Norm *Normalizer
	// Z is the peer-relative z-score matrix, one row per Row, columns in
	// canonical feature order.
	Z [][]float64

	cfg *Config
}

func newCohort(role string, rows []featureset.Row, cfg *Config) *Cohort {
	norm := FitNormalizer(rows, cfg.MinCohortStats)
	return &Cohort{
		Role: role,
		Rows: rows,
		Norm: norm,
		Z:    norm.Matrix(rows),
		cfg:  cfg,
	}
}

// Size returns the number of (user, period) rows in the cohort.
func (c *Cohort) Size() int { return len(c.Rows) }

// rng derives a deterministic random source for one model of this cohort.
// The seed folds in the role and component name so scoring cohorts in any
// goroutine order cannot perturb results.
func (c *Cohort) rng(component string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(c.Role))
	h.Write([]byte{0})
	h.Write([]byte(component))
	return rand.New(rand.NewSource(c.cfg.Seed ^ int64(h.Sum64())))
}

// ComponentScore is one model's verdict for one row: a value in [0,1] plus
// a flag marking scores produced by a degenerate-input fallback.
type ComponentScore struct {
	Value         float64 `json:"value"`
	LowConfidence bool    `json:"low_confidence"`
}

// ScoreProducer is the capability every component model implements. The
// ensemble depends only on this interface, so scoring techniques can be
// added without touching aggregation.
type ScoreProducer interface {
	Component() Component
	// Score returns one ComponentScore per cohort row, normalized to [0,1]
	// within the cohort.
	Score(c *Cohort) ([]ComponentScore, error)
}

// minMaxNormalize rescales values to [0,1] across the cohort. A constant
// vector carries no ordering information and maps to all zeros.
func minMaxNormalize(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	for i, v := range vals {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2
	}
	return cp[mid]
}
