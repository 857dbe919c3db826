package risk

import (
	"math"
	"sort"

	"privsight/pkg/featureset"
)

// TemporalScorer measures behavioral drift per user across successive
// periods: week-over-week volatility of the tracked features plus a spike
// indicator against each user's own rolling baseline. A user observed in a
// single period has no drift evidence; their score is defined as 0 and
// flagged low-confidence rather than failing.
type TemporalScorer struct {
	cfg *Config
}

func NewTemporalScorer(cfg *Config) *TemporalScorer { return &TemporalScorer{cfg: cfg} }

func (s *TemporalScorer) Component() Component { return ComponentTemporalInstability }

func (s *TemporalScorer) Score(c *Cohort) ([]ComponentScore, error) {
	n := c.Size()
	out := make([]ComponentScore, n)
	if n == 0 {
		return out, nil
	}

	// Group row indices by user; rows within a cohort are already ordered
	// by (user, period_start).
	byUser := make(map[string][]int)
	for i, r := range c.Rows {
		byUser[r.UserID] = append(byUser[r.UserID], i)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	raw := make([]float64, n)
	lowConf := make([]bool, n)
	for _, u := range users {
		idxs := byUser[u]
		score, ok := s.instability(c, idxs)
		if !ok {
			cohortFallbacks.WithLabelValues(string(ComponentTemporalInstability), "single_period").Inc()
		}
		for _, i := range idxs {
			raw[i] = score
			lowConf[i] = !ok
		}
	}

	norm := minMaxNormalize(raw)
	for i := range out {
		if lowConf[i] {
			out[i] = ComponentScore{Value: 0, LowConfidence: true}
		} else {
			out[i] = ComponentScore{Value: norm[i]}
		}
	}
	return out, nil
}

// instability combines delta volatility and spike frequency over one
// user's period sequence. ok is false when the user has fewer than two
// periods in the window.
func (s *TemporalScorer) instability(c *Cohort, idxs []int) (float64, bool) {
	if s.cfg.Lookback > 0 && len(idxs) > s.cfg.Lookback {
		idxs = idxs[len(idxs)-s.cfg.Lookback:]
	}
	if len(idxs) < 2 {
		return 0, false
	}

	var volSum, spikeRatioSum float64
	for _, name := range s.cfg.TemporalFeatures {
		series := make([]float64, len(idxs))
		j := featureset.Index(name)
		for k, i := range idxs {
			series[k] = c.Z[i][j]
		}
		volSum += deltaVolatility(series)
		spikeRatioSum += s.spikeRatio(series)
	}
	nf := float64(len(s.cfg.TemporalFeatures))
	return 0.7*(volSum/nf) + 0.3*(spikeRatioSum/nf), true
}

// deltaVolatility is the standard deviation of successive period-to-period
// deltas.
func deltaVolatility(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	deltas := make([]float64, len(series)-1)
	mean := 0.0
	for i := 1; i < len(series); i++ {
		deltas[i-1] = series[i] - series[i-1]
		mean += deltas[i-1]
	}
	mean /= float64(len(deltas))
	var sq float64
	for _, d := range deltas {
		sq += (d - mean) * (d - mean)
	}
	return math.Sqrt(sq / float64(len(deltas)))
}

// spikeRatio counts periods whose value exceeds the rolling baseline of all
// prior periods by more than SpikeSigma standard deviations.
func (s *TemporalScorer) spikeRatio(series []float64) float64 {
	if len(series) < 3 {
		return 0
	}
	spikes := 0
	for i := 2; i < len(series); i++ {
		prior := series[:i]
		var mean float64
		for _, v := range prior {
			mean += v
		}
		mean /= float64(len(prior))
		var sq float64
		for _, v := range prior {
			sq += (v - mean) * (v - mean)
		}
		std := math.Sqrt(sq / float64(len(prior)))
		if std == 0 {
			continue
		}
		if series[i] > mean+s.cfg.SpikeSigma*std {
			spikes++
		}
	}
	return float64(spikes) / float64(len(series))
}
