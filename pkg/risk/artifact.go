package risk

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CohortArtifact is a versioned snapshot of a cohort's fitted state:
// normalization statistics and model parameters. Callers may persist it and
// reuse it to score new periods; it must be retrained when the underlying
// population materially shifts (operator policy, not engine mechanism).
type CohortArtifact struct {
	ArtifactID string    `json:"artifact_id"`
	Role       string    `json:"role"`
	FittedAt   time.Time `json:"fitted_at"`
	RowCount   int       `json:"row_count"`
	Seed       int64     `json:"seed"`

	Stats  map[string]FeatureStats `json:"stats"`
	Forest *IsolationForest        `json:"forest,omitempty"` // nil below the fit threshold
	Axes   [][]float64             `json:"axes,omitempty"`
}

// newCohortArtifact refits the deterministic models for persistence. With
// the same rows and seed this reproduces exactly the parameters the scoring
// pass used.
func newCohortArtifact(c *Cohort, fittedAt time.Time) CohortArtifact {
	stats := make(map[string]FeatureStats, len(c.Norm.stats))
	for name, s := range c.Norm.stats {
		stats[name] = s
	}

	a := CohortArtifact{
		ArtifactID: artifactID(c, stats),
		Role:       c.Role,
		FittedAt:   fittedAt,
		RowCount:   c.Size(),
		Seed:       c.cfg.Seed,
		Stats:      stats,
	}
	if c.Size() >= c.cfg.MinCohortFit {
		forest := newIsolationForest(c.cfg.ForestTrees, c.cfg.ForestSampleSize)
		forest.Fit(c.Z, c.rng("anomaly"))
		a.Forest = forest
		a.Axes = fitReducer(c.Z, c.cfg.EmbeddingDims).Axes
	}
	return a
}

// artifactID derives a stable version id from the fitted statistics, so
// identical cohorts under identical configuration always version the same.
func artifactID(c *Cohort, stats map[string]FeatureStats) string {
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)

	payload := fmt.Sprintf("%s|%d|%d", c.Role, c.cfg.Seed, c.Size())
	for _, n := range names {
		payload += fmt.Sprintf("|%s=%.12g,%.12g", n, stats[n].Mean, stats[n].Std)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(payload)).String()
}

// MarshalArtifact serializes an artifact for storage.
func MarshalArtifact(a CohortArtifact) ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalArtifact restores a stored artifact.
func UnmarshalArtifact(b []byte) (CohortArtifact, error) {
	var a CohortArtifact
	if err := json.Unmarshal(b, &a); err != nil {
		return CohortArtifact{}, fmt.Errorf("decode cohort artifact: %w", err)
	}
	return a, nil
}
