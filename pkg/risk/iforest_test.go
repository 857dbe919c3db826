package risk

import (
	"math/rand"
	"testing"
)

func forestTrainingData(rng *rand.Rand) [][]float64 {
	X := make([][]float64, 0, 41)
	for i := 0; i < 40; i++ {
		X = append(X, []float64{rng.NormFloat64() * 0.5, rng.NormFloat64() * 0.5})
	}
	X = append(X, []float64{8, 8}) // isolated point
	return X
}

func TestIsolationForest_OutlierScoresHigher(t *testing.T) {
	X := forestTrainingData(rand.New(rand.NewSource(3)))

	forest := newIsolationForest(100, 64)
	forest.Fit(X, rand.New(rand.NewSource(42)))

	outlier := forest.Score([]float64{8, 8})
	inlier := forest.Score([]float64{0, 0})
	if outlier <= inlier {
		t.Errorf("outlier score %g not greater than inlier score %g", outlier, inlier)
	}
	if outlier < 0 || outlier > 1 || inlier < 0 || inlier > 1 {
		t.Errorf("scores out of [0,1]: outlier=%g inlier=%g", outlier, inlier)
	}
}

func TestIsolationForest_SeededDeterminism(t *testing.T) {
	X := forestTrainingData(rand.New(rand.NewSource(3)))

	a := newIsolationForest(50, 32)
	a.Fit(X, rand.New(rand.NewSource(99)))
	b := newIsolationForest(50, 32)
	b.Fit(X, rand.New(rand.NewSource(99)))

	for _, p := range X {
		if a.Score(p) != b.Score(p) {
			t.Fatalf("same seed produced different scores for %v", p)
		}
	}
}

func TestIsolationForest_EmptyForest(t *testing.T) {
	f := newIsolationForest(10, 16)
	if s := f.Score([]float64{1, 2}); s != 0 {
		t.Errorf("unfitted forest score = %g, want 0", s)
	}
}
