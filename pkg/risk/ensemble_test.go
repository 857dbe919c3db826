package risk

import (
	"math"
	"testing"
)

func allComponents(v float64) map[Component]ComponentScore {
	m := make(map[Component]ComponentScore, len(Components))
	for _, c := range Components {
		m[c] = ComponentScore{Value: v}
	}
	return m
}

func TestEnsemble_Combine(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEnsemble(&cfg)

	score, cat, err := e.Combine(allComponents(0.5))
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if math.Abs(score-50) > 1e-9 {
		t.Errorf("uniform 0.5 inputs: score %g, want 50", score)
	}
	if cat != CategoryMedium {
		t.Errorf("category %q, want Medium", cat)
	}

	if score, _, _ := e.Combine(allComponents(0)); score != 0 {
		t.Errorf("all-zero inputs: score %g, want 0", score)
	}
	if score, _, _ := e.Combine(allComponents(1)); score != 100 {
		t.Errorf("all-one inputs: score %g, want 100", score)
	}
}

func TestEnsemble_ClampsOutOfRangeInputs(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEnsemble(&cfg)

	score, _, err := e.Combine(allComponents(1.7))
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if score != 100 {
		t.Errorf("over-range inputs: score %g, want 100", score)
	}
	score, _, err = e.Combine(allComponents(-0.3))
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if score != 0 {
		t.Errorf("under-range inputs: score %g, want 0", score)
	}
}

func TestEnsemble_RenormalizesMissingComponents(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEnsemble(&cfg)

	scores := allComponents(0.5)
	delete(scores, ComponentTemporalInstability)

	// Remaining inputs are all 0.5, so renormalized weights must still
	// average to exactly 50.
	score, _, err := e.Combine(scores)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if math.Abs(score-50) > 1e-9 {
		t.Errorf("renormalized score %g, want 50", score)
	}

	// A single surviving component carries full weight.
	only := map[Component]ComponentScore{
		ComponentAnomaly: {Value: 0.8},
	}
	score, _, err = e.Combine(only)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if math.Abs(score-80) > 1e-9 {
		t.Errorf("single-component score %g, want 80", score)
	}
}

func TestEnsemble_ErrorsWithNoComponents(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEnsemble(&cfg)
	if _, _, err := e.Combine(nil); err == nil {
		t.Fatal("expected error when no components are present")
	}
}

func TestEnsemble_LowConfidenceScoresStayIncluded(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEnsemble(&cfg)

	scores := allComponents(0)
	scores[ComponentAnomaly] = ComponentScore{Value: 1, LowConfidence: true}

	score, _, err := e.Combine(scores)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	want := cfg.Weights.Anomaly * 100
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score %g, want %g: fallback values must contribute", score, want)
	}
}

func TestCategorize_Boundaries(t *testing.T) {
	cfg := DefaultConfig() // Low=30, Medium=60
	e := NewEnsemble(&cfg)

	cases := []struct {
		score float64
		want  RiskCategory
	}{
		{0, CategoryLow},
		{30, CategoryLow},
		{30.0001, CategoryMedium},
		{60, CategoryMedium},
		{60.0001, CategoryHigh},
		{100, CategoryHigh},
	}
	for _, tc := range cases {
		if got := e.Categorize(tc.score); got != tc.want {
			t.Errorf("Categorize(%g) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
