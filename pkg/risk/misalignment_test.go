package risk

import (
	"math"
	"testing"

	"privsight/pkg/featureset"
)

func TestMisalignmentScorer_FarUserScoresHighest(t *testing.T) {
	cfg := DefaultConfig()
	rows := randomRows(40, "DB_Admin", 31)
	for _, name := range featureset.Names() {
		rows[7].Features[name] += 30 // far from the role centroid on every axis
	}

	cohort := newCohort("DB_Admin", rows, &cfg)
	scores, err := NewMisalignmentScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if scores[7].Value != 1 {
		t.Errorf("far user misalignment = %g, want 1", scores[7].Value)
	}
	for i, s := range scores {
		if s.Value < 0 || s.Value > 1 {
			t.Errorf("row %d: score %g out of [0,1]", i, s.Value)
		}
		if s.LowConfidence {
			t.Errorf("row %d: unexpected low-confidence with full-rank cohort", i)
		}
	}
}

func TestMisalignmentScorer_RowsLEQFeaturesFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCohortFit = 2
	rows := randomRows(6, "HR_Admin", 19) // 6 rows, 12 features: covariance unusable

	cohort := newCohort("HR_Admin", rows, &cfg)
	scores, err := NewMisalignmentScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i, s := range scores {
		if !s.LowConfidence {
			t.Errorf("row %d: expected Euclidean fallback to be flagged low-confidence", i)
		}
	}
}

func TestMisalignmentScorer_SingularCovarianceFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	// Plenty of rows, but only one feature varies: covariance is rank 1.
	rows := make([]featureset.Row, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, testRow(userID(i), "DB_Admin", 0, map[string]float64{
			featureset.ExportRatio: float64(i),
		}))
	}

	cohort := newCohort("DB_Admin", rows, &cfg)
	scores, err := NewMisalignmentScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i, s := range scores {
		if !s.LowConfidence {
			t.Errorf("row %d: singular covariance must fall back low-confidence", i)
		}
	}
	// Extremes of the varying feature remain the farthest rows.
	if scores[0].Value < scores[10].Value || scores[19].Value < scores[10].Value {
		t.Error("distance ordering lost in Euclidean fallback")
	}
}

func TestInvertMatrix(t *testing.T) {
	m := [][]float64{{4, 2}, {2, 3}}
	inv, ok := invertMatrix(m)
	if !ok {
		t.Fatal("expected invertible matrix")
	}
	// m * inv == identity
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				sum += m[i][k] * inv[k][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(sum-want) > 1e-9 {
				t.Errorf("(m*inv)[%d][%d] = %g, want %g", i, j, sum, want)
			}
		}
	}

	if _, ok := invertMatrix([][]float64{{1, 2}, {2, 4}}); ok {
		t.Error("expected singular matrix to be rejected")
	}
}
