package risk

import (
	"fmt"
	"sort"
	"strings"

	"privsight/pkg/featureset"
)

// Direction labels which side of the peer population a factor sits on.
const (
	DirectionAbovePeers = "above peers"
	DirectionBelowPeers = "below peers"
)

// Factor is one ranked contributor to a user's risk score.
type Factor struct {
	Name      string  `json:"name"`
	Magnitude float64 `json:"magnitude"`
	Direction string  `json:"direction"`
}

func (f Factor) String() string {
	return fmt.Sprintf("%s|%.4f|%s", f.Name, f.Magnitude, f.Direction)
}

// SerializeFactors renders a factor list for tabular output.
func SerializeFactors(fs []Factor) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, ";")
}

// Explainer ranks the contributors behind a risk score. It consumes the
// same weights the ensemble used, so re-deriving the ranking from the same
// inputs reproduces it exactly.
type Explainer struct {
	cfg *Config
}

func NewExplainer(cfg *Config) *Explainer { return &Explainer{cfg: cfg} }

// Build ranks features (weight x |z|) and components (weight x value,
// compared to the cohort median for direction) and returns the top-k.
// Ties break lexicographically by name so output is deterministic.
func (ex *Explainer) Build(z map[string]float64, comps map[Component]ComponentScore, cohortMedians map[Component]float64) []Factor {
	factors := make([]Factor, 0, featureset.NumFeatures()+len(comps))

	for _, name := range featureset.Names() {
		w := ex.cfg.FeatureWeights[name]
		zv := z[name]
		dir := DirectionAbovePeers
		if zv < 0 {
			dir = DirectionBelowPeers
		}
		factors = append(factors, Factor{
			Name:      name,
			Magnitude: w * abs(zv),
			Direction: dir,
		})
	}

	for _, comp := range Components {
		cs, ok := comps[comp]
		if !ok {
			continue
		}
		dir := DirectionAbovePeers
		if cs.Value < cohortMedians[comp] {
			dir = DirectionBelowPeers
		}
		factors = append(factors, Factor{
			Name:      string(comp),
			Magnitude: ex.cfg.Weights.Of(comp) * cs.Value,
			Direction: dir,
		})
	}

	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Magnitude != factors[j].Magnitude {
			return factors[i].Magnitude > factors[j].Magnitude
		}
		return factors[i].Name < factors[j].Name
	})

	k := ex.cfg.TopK
	if k > len(factors) {
		k = len(factors)
	}
	return factors[:k]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
