package risk

import (
	"testing"

	"privsight/pkg/featureset"
)

func TestAnomalyScorer_OutlierRanksTop(t *testing.T) {
	cfg := DefaultConfig()
	rows := randomRows(20, "DB_Admin", 5)
	// Push one user far above peers on a single feature.
	rows[3].Features[featureset.ExportRatio] += 40

	cohort := newCohort("DB_Admin", rows, &cfg)
	scores, err := NewAnomalyScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	top := 0
	for i, s := range scores {
		if s.LowConfidence {
			t.Errorf("row %d: unexpected low-confidence flag on fitted cohort", i)
		}
		if s.Value < 0 || s.Value > 1 {
			t.Errorf("row %d: score %g out of [0,1]", i, s.Value)
		}
		if s.Value > scores[top].Value {
			top = i
		}
	}
	if top != 3 {
		t.Errorf("expected row 3 to rank most anomalous, got row %d", top)
	}
}

func TestAnomalyScorer_SmallCohortFallback(t *testing.T) {
	cfg := DefaultConfig()
	rows := randomRows(3, "HR_Admin", 5) // below MinCohortFit
	rows[1].Features[featureset.AvgDailyAccess] += 25

	cohort := newCohort("HR_Admin", rows, &cfg)
	scores, err := NewAnomalyScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	for i, s := range scores {
		if !s.LowConfidence {
			t.Errorf("row %d: expected low-confidence fallback score", i)
		}
	}
	// The deviating user still ranks above peers under the z-proxy.
	if scores[1].Value != 1 {
		t.Errorf("expected deviating row to min-max to 1, got %g", scores[1].Value)
	}
}

func TestAnomalyScorer_SingleRowCohort(t *testing.T) {
	cfg := DefaultConfig()
	rows := []featureset.Row{testRow("solo", "Cloud_Admin", 0, nil)}

	cohort := newCohort("Cloud_Admin", rows, &cfg)
	scores, err := NewAnomalyScorer(&cfg).Score(cohort)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].Value != 0 || !scores[0].LowConfidence {
		t.Errorf("single-member cohort: got %+v, want value 0 low-confidence", scores[0])
	}
}
