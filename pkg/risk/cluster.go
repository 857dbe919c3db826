package risk

import (
	"math"
	"math/rand"
)

// RarityScorer discovers behavioral archetypes within a role by clustering
// the latent embedding, then scores each row by how uncommon its archetype
// is. Rows that sit far outside every dense cluster are treated as noise
// and receive the maximum rarity.
type RarityScorer struct {
	cfg *Config
}

func NewRarityScorer(cfg *Config) *RarityScorer { return &RarityScorer{cfg: cfg} }

func (s *RarityScorer) Component() Component { return ComponentClusterRarity }

func (s *RarityScorer) Score(c *Cohort) ([]ComponentScore, error) {
	n := c.Size()
	if n < s.cfg.MinCohortFit {
		out := make([]ComponentScore, n)
		for i := range out {
			out[i] = ComponentScore{Value: 0, LowConfidence: true}
		}
		cohortFallbacks.WithLabelValues(string(ComponentClusterRarity), "small_cohort").Add(float64(n))
		return out, nil
	}

	reducer := fitReducer(c.Z, s.cfg.EmbeddingDims)
	embedding := reducer.Project(c.Z)

	k := s.cfg.Clusters
	if k > n {
		k = n
	}
	centroids := kmeans(embedding, k, c.rng("cluster"))

	assign := make([]int, n)
	dist := make([]float64, n)
	sizes := make([]int, len(centroids))
	for i, p := range embedding {
		assign[i], dist[i] = nearestCentroid(p, centroids)
		sizes[assign[i]]++
	}

	// Noise boundary: mean + 2*std of distances to the assigned centroid.
	var mean, sq float64
	for _, d := range dist {
		mean += d
	}
	mean /= float64(n)
	for _, d := range dist {
		sq += (d - mean) * (d - mean)
	}
	noiseCut := mean + 2*math.Sqrt(sq/float64(n))

	// Per-cluster max distance for relative centroid-distance scaling.
	maxDist := make([]float64, len(centroids))
	for i, d := range dist {
		if d > maxDist[assign[i]] {
			maxDist[assign[i]] = d
		}
	}

	raw := make([]float64, n)
	noisy := false
	for i := range embedding {
		if dist[i] > noiseCut {
			raw[i] = math.Inf(1) // forced to 1 after normalization
			noisy = true
			continue
		}
		rarity := 1 - float64(sizes[assign[i]])/float64(n)
		if maxDist[assign[i]] > 0 {
			rarity *= 0.5 + 0.5*dist[i]/maxDist[assign[i]]
		}
		raw[i] = rarity
	}
	if noisy {
		// Replace infinities with a value above the finite maximum so
		// min-max normalization lands them at exactly 1.
		finiteMax := 0.0
		for _, v := range raw {
			if !math.IsInf(v, 1) && v > finiteMax {
				finiteMax = v
			}
		}
		for i, v := range raw {
			if math.IsInf(v, 1) {
				raw[i] = finiteMax + 1
			}
		}
	}

	norm := minMaxNormalize(raw)
	out := make([]ComponentScore, n)
	for i, v := range norm {
		out[i] = ComponentScore{Value: v}
	}
	return out, nil
}

// kmeans runs seeded kmeans++ initialization followed by Lloyd iterations
// until assignments stabilize.
func kmeans(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	if n == 0 || k == 0 {
		return nil
	}

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneVec(points[rng.Intn(n)]))
	for len(centroids) < k {
		// kmeans++: pick the next centroid with probability proportional
		// to squared distance from the nearest existing centroid.
		d2 := make([]float64, n)
		total := 0.0
		for i, p := range points {
			_, d := nearestCentroid(p, centroids)
			d2[i] = d * d
			total += d2[i]
		}
		if total == 0 {
			centroids = append(centroids, cloneVec(points[rng.Intn(n)]))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		chosen := n - 1
		for i, v := range d2 {
			acc += v
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneVec(points[chosen]))
	}

	assign := make([]int, n)
	for iter := 0; iter < 100; iter++ {
		changed := false
		for i, p := range points {
			best, _ := nearestCentroid(p, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assign[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		d := euclidean(p, c)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cloneVec(v []float64) []float64 {
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp
}
