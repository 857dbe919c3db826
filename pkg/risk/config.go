// Package risk implements the role-normalized behavioral risk scoring
// engine: peer-relative z-score normalization, per-role unsupervised
// component models, a deterministic weighted ensemble, and ranked
// explanations for human review.
package risk

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"privsight/pkg/featureset"
)

// Component identifies one of the ensemble's score producers.
type Component string

const (
	ComponentAnomaly             Component = "anomaly"
	ComponentMisalignment        Component = "misalignment"
	ComponentClusterRarity       Component = "cluster_rarity"
	ComponentTemporalInstability Component = "temporal_instability"
)

// Components lists every ensemble component in canonical order.
var Components = []Component{
	ComponentAnomaly,
	ComponentMisalignment,
	ComponentClusterRarity,
	ComponentTemporalInstability,
}

// ComponentWeights holds the ensemble weighting scheme. Weights must be
// non-negative and sum to 1.
type ComponentWeights struct {
	Anomaly             float64 `toml:"anomaly"`
	Misalignment        float64 `toml:"misalignment"`
	ClusterRarity       float64 `toml:"cluster_rarity"`
	TemporalInstability float64 `toml:"temporal_instability"`
}

// Of returns the weight assigned to a component.
func (w ComponentWeights) Of(c Component) float64 {
	switch c {
	case ComponentAnomaly:
		return w.Anomaly
	case ComponentMisalignment:
		return w.Misalignment
	case ComponentClusterRarity:
		return w.ClusterRarity
	case ComponentTemporalInstability:
		return w.TemporalInstability
	}
	return 0
}

// Thresholds are the risk category boundaries. A score of exactly Low is
// Low, exactly Medium is Medium.
type Thresholds struct {
	Low    float64 `toml:"low"`
	Medium float64 `toml:"medium"`
}

// Config drives all engine behavior. There are no hidden constants: every
// threshold, weight, and seed the scoring path consults lives here.
type Config struct {
	// Seed makes the stochastic models (isolation forest, k-means init)
	// reproducible. Identical input plus identical config must produce
	// bit-identical records.
	Seed int64 `toml:"seed"`

	Weights    ComponentWeights `toml:"weights"`
	Thresholds Thresholds       `toml:"thresholds"`

	// FeatureWeights rank per-feature contributions in explanations. The
	// default table follows a 30/55/15 privilege/behavioral/stability
	// policy split; it is policy, not a derived optimum, and is fully
	// overridable.
	FeatureWeights map[string]float64 `toml:"feature_weights"`

	// MinCohortStats is the cohort size below which variance-based
	// normalization degrades to z=0.
	MinCohortStats int `toml:"min_cohort_stats"`
	// MinCohortFit is the cohort size below which model fitting is skipped
	// in favor of the documented proxy fallbacks.
	MinCohortFit int `toml:"min_cohort_fit"`

	// TopK is the explanation depth.
	TopK int `toml:"top_k"`

	// Lookback bounds how many trailing periods the temporal analyzer
	// considers per user. Zero means unlimited.
	Lookback int `toml:"lookback"`
	// SpikeSigma is the number of rolling-baseline standard deviations a
	// value must exceed to count as a spike.
	SpikeSigma float64 `toml:"spike_sigma"`
	// TemporalFeatures are the columns the temporal analyzer tracks.
	TemporalFeatures []string `toml:"temporal_features"`

	// Isolation forest shape.
	ForestTrees      int `toml:"forest_trees"`
	ForestSampleSize int `toml:"forest_sample_size"`

	// Representation reduction and clustering shape.
	EmbeddingDims int `toml:"embedding_dims"`
	Clusters      int `toml:"clusters"`
}

// DefaultConfig returns the production defaults. The feature weight table
// mirrors the 30/55/15 governance policy split.
func DefaultConfig() Config {
	return Config{
		Seed: 1,
		Weights: ComponentWeights{
			Anomaly:             0.30,
			Misalignment:        0.30,
			ClusterRarity:       0.20,
			TemporalInstability: 0.20,
		},
		Thresholds: Thresholds{Low: 30, Medium: 60},
		FeatureWeights: map[string]float64{
			featureset.PrivilegeUsageGap:           0.15,
			featureset.PrivilegeUsageRatio:         0.10,
			featureset.ResourceAccessConcentration: 0.05,
			featureset.ExportRatio:                 0.15,
			featureset.AvgDailyAccess:              0.12,
			featureset.UniqueResources:             0.10,
			featureset.NightAccessPct:              0.08,
			featureset.AvgSessionDuration:          0.06,
			featureset.WeekendActivityRatio:        0.04,
			featureset.AccessTimeVariance:          0.05,
			featureset.WeeklyAccessChange:          0.05,
			featureset.AccessSpikeScore:            0.05,
		},
		MinCohortStats:   2,
		MinCohortFit:     5,
		TopK:             5,
		Lookback:         12,
		SpikeSigma:       2.0,
		TemporalFeatures: []string{featureset.AvgDailyAccess, featureset.ExportRatio},
		ForestTrees:      100,
		ForestSampleSize: 256,
		EmbeddingDims:    4,
		Clusters:         4,
	}
}

// ConfigError reports an invalid configuration. It is fatal at load time,
// before any scoring begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

const weightTolerance = 1e-9

// Validate checks the configuration and returns a *ConfigError on the first
// violation.
func (c Config) Validate() error {
	sum := 0.0
	for _, comp := range Components {
		w := c.Weights.Of(comp)
		if w < 0 {
			return &ConfigError{Field: "weights." + string(comp), Reason: "negative weight"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &ConfigError{Field: "weights", Reason: fmt.Sprintf("component weights sum to %g, want 1", sum)}
	}

	if c.Thresholds.Low <= 0 || c.Thresholds.Low >= c.Thresholds.Medium {
		return &ConfigError{Field: "thresholds", Reason: fmt.Sprintf("boundaries must satisfy 0 < low < medium, got low=%g medium=%g", c.Thresholds.Low, c.Thresholds.Medium)}
	}
	if c.Thresholds.Medium >= 100 {
		return &ConfigError{Field: "thresholds.medium", Reason: "medium boundary must be below 100"}
	}

	for name, w := range c.FeatureWeights {
		if featureset.Index(name) < 0 {
			return &ConfigError{Field: "feature_weights." + name, Reason: "unknown feature column"}
		}
		if w < 0 {
			return &ConfigError{Field: "feature_weights." + name, Reason: "negative weight"}
		}
	}

	if c.MinCohortStats < 2 {
		return &ConfigError{Field: "min_cohort_stats", Reason: "must be at least 2"}
	}
	if c.MinCohortFit < c.MinCohortStats {
		return &ConfigError{Field: "min_cohort_fit", Reason: "must be >= min_cohort_stats"}
	}
	if c.TopK < 1 {
		return &ConfigError{Field: "top_k", Reason: "must be at least 1"}
	}
	if c.Lookback < 0 {
		return &ConfigError{Field: "lookback", Reason: "must not be negative"}
	}
	if c.SpikeSigma <= 0 {
		return &ConfigError{Field: "spike_sigma", Reason: "must be positive"}
	}
	for _, name := range c.TemporalFeatures {
		if featureset.Index(name) < 0 {
			return &ConfigError{Field: "temporal_features", Reason: "unknown feature column " + name}
		}
	}
	if len(c.TemporalFeatures) == 0 {
		return &ConfigError{Field: "temporal_features", Reason: "at least one tracked feature required"}
	}
	if c.ForestTrees < 1 {
		return &ConfigError{Field: "forest_trees", Reason: "must be at least 1"}
	}
	if c.ForestSampleSize < 2 {
		return &ConfigError{Field: "forest_sample_size", Reason: "must be at least 2"}
	}
	if c.EmbeddingDims < 1 {
		return &ConfigError{Field: "embedding_dims", Reason: "must be at least 1"}
	}
	if c.Clusters < 1 {
		return &ConfigError{Field: "clusters", Reason: "must be at least 1"}
	}
	return nil
}

// LoadConfig reads a TOML file over the defaults, applies environment
// overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PRIVSIGHT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v := os.Getenv("PRIVSIGHT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TopK = n
		}
	}
	if v := os.Getenv("PRIVSIGHT_LOOKBACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lookback = n
		}
	}
}
