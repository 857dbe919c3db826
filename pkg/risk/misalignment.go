package risk

import "math"

// MisalignmentScorer measures how far each user's normalized usage sits
// from the role centroid (the zero vector, by construction of z-scores)
// using a covariance-aware Mahalanobis distance. When the cohort is too
// small to estimate covariance, or the matrix is singular, it falls back to
// plain Euclidean distance and flags the scores low-confidence.
type MisalignmentScorer struct {
	cfg *Config
}

func NewMisalignmentScorer(cfg *Config) *MisalignmentScorer {
	return &MisalignmentScorer{cfg: cfg}
}

func (s *MisalignmentScorer) Component() Component { return ComponentMisalignment }

func (s *MisalignmentScorer) Score(c *Cohort) ([]ComponentScore, error) {
	n := c.Size()
	if n == 0 {
		return nil, nil
	}
	d := len(c.Z[0])

	var raw []float64
	lowConfidence := false

	if n <= d || n < s.cfg.MinCohortFit {
		raw = euclideanDistances(c.Z)
		lowConfidence = true
		cohortFallbacks.WithLabelValues(string(ComponentMisalignment), "small_cohort").Add(float64(n))
	} else {
		inv, ok := invertMatrix(covarianceMatrix(c.Z))
		if !ok {
			raw = euclideanDistances(c.Z)
			lowConfidence = true
			cohortFallbacks.WithLabelValues(string(ComponentMisalignment), "singular_covariance").Add(float64(n))
		} else {
			raw = make([]float64, n)
			for i, z := range c.Z {
				raw[i] = mahalanobis(z, inv)
			}
		}
	}

	norm := minMaxNormalize(raw)
	out := make([]ComponentScore, n)
	for i, v := range norm {
		out[i] = ComponentScore{Value: v, LowConfidence: lowConfidence}
	}
	return out, nil
}

func euclideanDistances(Z [][]float64) []float64 {
	out := make([]float64, len(Z))
	for i, z := range Z {
		sum := 0.0
		for _, v := range z {
			sum += v * v
		}
		out[i] = math.Sqrt(sum)
	}
	return out
}

// covarianceMatrix is the empirical covariance of the z-matrix; the mean is
// zero by construction.
func covarianceMatrix(Z [][]float64) [][]float64 {
	n := len(Z)
	d := len(Z[0])
	cov := make([][]float64, d)
	for i := range cov {
		cov[i] = make([]float64, d)
	}
	for _, row := range Z {
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				cov[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			cov[i][j] /= float64(n)
		}
	}
	return cov
}

const pivotEpsilon = 1e-12

// invertMatrix performs Gauss-Jordan elimination with partial pivoting.
// The second return is false when the matrix is numerically singular.
func invertMatrix(m [][]float64) ([][]float64, bool) {
	d := len(m)
	aug := make([][]float64, d)
	for i := range aug {
		aug[i] = make([]float64, 2*d)
		copy(aug[i], m[i])
		aug[i][d+i] = 1
	}

	for col := 0; col < d; col++ {
		pivot := col
		for r := col + 1; r < d; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < pivotEpsilon {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := 0; j < 2*d; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < d; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*d; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, d)
	for i := range inv {
		inv[i] = aug[i][d:]
	}
	return inv, true
}

func mahalanobis(z []float64, inv [][]float64) float64 {
	d := len(z)
	sum := 0.0
	for i := 0; i < d; i++ {
		dot := 0.0
		for j := 0; j < d; j++ {
			dot += inv[i][j] * z[j]
		}
		sum += z[i] * dot
	}
	if sum < 0 {
		sum = 0 // numeric noise on near-singular matrices
	}
	return math.Sqrt(sum)
}
