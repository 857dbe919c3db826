package risk

import "math"

// Reducer projects a cohort's z-matrix onto the directions of largest
// behavioral variance. It is a plain power-iteration PCA with deflation:
// deterministic by construction (fixed start vector, fixed sign
// convention), which the clustering stage requires for auditability.
type Reducer struct {
	// Axes holds the principal directions, one row per retained dimension.
	Axes [][]float64 `json:"axes"`
}

const (
	powerIterations = 200
	eigenEpsilon    = 1e-10
)

// fitReducer extracts up to dims principal axes from the rows of Z.
func fitReducer(Z [][]float64, dims int) *Reducer {
	n := len(Z)
	if n == 0 {
		return &Reducer{}
	}
	d := len(Z[0])
	if dims > d {
		dims = d
	}
	if dims > n {
		dims = n
	}

	// Covariance of z-scores; the mean is zero by construction.
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

	axes := make([][]float64, 0, dims)
	for k := 0; k < dims; k++ {
		v, lambda := dominantEigenvector(cov)
		if lambda < eigenEpsilon {
			break // remaining variance is numerically zero
		}
		axes = append(axes, v)
		// Deflate: cov -= lambda * v v^T
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				cov[i][j] -= lambda * v[i] * v[j]
			}
		}
	}
	return &Reducer{Axes: axes}
}

// dominantEigenvector runs power iteration from a fixed start vector. The
// returned vector's largest-magnitude entry is made positive so repeated
// fits agree bit-for-bit.
func dominantEigenvector(m [][]float64) ([]float64, float64) {
	d := len(m)
	v := make([]float64, d)
	for i := range v {
		v[i] = 1 + 0.001*float64(i) // deterministic, not orthogonal to any axis in practice
	}
	normalizeVec(v)

	tmp := make([]float64, d)
	for iter := 0; iter < powerIterations; iter++ {
		for i := 0; i < d; i++ {
			sum := 0.0
			for j := 0; j < d; j++ {
				sum += m[i][j] * v[j]
			}
			tmp[i] = sum
		}
		if normalizeVec(tmp) < eigenEpsilon {
			return v, 0
		}
		copy(v, tmp)
	}

	// Rayleigh quotient for the eigenvalue.
	lambda := 0.0
	for i := 0; i < d; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			sum += m[i][j] * v[j]
		}
		lambda += v[i] * sum
	}

	// Sign convention.
	maxIdx := 0
	for i := 1; i < d; i++ {
		if math.Abs(v[i]) > math.Abs(v[maxIdx]) {
			maxIdx = i
		}
	}
	if v[maxIdx] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
	return v, lambda
}

func normalizeVec(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return norm
}

// Project maps each row of Z into the latent space.
func (r *Reducer) Project(Z [][]float64) [][]float64 {
	out := make([][]float64, len(Z))
	for i, row := range Z {
		p := make([]float64, len(r.Axes))
		for k, axis := range r.Axes {
			sum := 0.0
			for j, x := range row {
				sum += x * axis[j]
			}
			p[k] = sum
		}
		out[i] = p
	}
	return out
}
