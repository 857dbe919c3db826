package risk

import (
	"math/rand"
	"time"

	"privsight/pkg/featureset"
)

// testRow builds a complete feature row; overrides replace individual
// feature values.
func testRow(user, role string, period int, overrides map[string]float64) featureset.Row {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*period)
	features := make(map[string]float64, featureset.NumFeatures())
	for i, name := range featureset.Names() {
		features[name] = float64(10 + i)
	}
	for name, v := range overrides {
		features[name] = v
	}
	return featureset.Row{
		UserID:      user,
		Role:        role,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 0, 7),
		Features:    features,
	}
}

// randomRows builds n single-period rows with jitter on every feature so
// covariance estimation has full rank.
func randomRows(n int, role string, seed int64) []featureset.Row {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]featureset.Row, 0, n)
	for i := 0; i < n; i++ {
		overrides := make(map[string]float64, featureset.NumFeatures())
		for j, name := range featureset.Names() {
			overrides[name] = float64(10+j) + rng.NormFloat64()
		}
		rows = append(rows, testRow(userID(i), role, 0, overrides))
	}
	return rows
}

func userID(i int) string {
	return string(rune('a'+i/26)) + string(rune('a'+i%26))
}
