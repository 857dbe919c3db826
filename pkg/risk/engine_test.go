package risk

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privsight/pkg/featureset"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func mustTable(t *testing.T, rows []featureset.Row) *featureset.Table {
	t.Helper()
	table, err := featureset.NewTable(rows, featureset.DefaultRoles)
	require.NoError(t, err)
	return table
}

// A heavy exporter inside an otherwise homogeneous DB_Admin cohort must
// surface with an elevated score explained first by export_ratio.
func TestEngine_ExportOutlierSurfaces(t *testing.T) {
	cfg := DefaultConfig()
	rows := randomRows(20, "DB_Admin", 7)
	rows[3].Features[featureset.ExportRatio] += 40

	e := newTestEngine(t, cfg)
	res, err := e.Run(mustTable(t, rows))
	require.NoError(t, err)
	require.Len(t, res.Records, 20)

	var outlier *Record
	scores := make([]float64, 0, len(res.Records))
	for i := range res.Records {
		r := &res.Records[i]
		assert.GreaterOrEqual(t, r.Score, 0.0, "user %s", r.UserID)
		assert.LessOrEqual(t, r.Score, 100.0, "user %s", r.UserID)
		assert.Equal(t, res.RunID, r.RunID, "user %s", r.UserID)
		scores = append(scores, r.Score)
		if r.UserID == rows[3].UserID {
			outlier = r
		}
	}
	require.NotNil(t, outlier, "outlier record missing")

	sort.Float64s(scores)
	cohortMedian := scores[len(scores)/2]
	assert.Greater(t, outlier.Score, cohortMedian, "outlier must sit above the cohort median")

	require.NotEmpty(t, outlier.Explanation)
	top := outlier.Explanation[0]
	assert.Equal(t, featureset.ExportRatio, top.Name)
	assert.Equal(t, DirectionAbovePeers, top.Direction)
}

func TestEngine_DeterministicReruns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 12345

	rows := randomRows(15, "Cloud_Admin", 3)
	for p := 1; p < 4; p++ {
		rows = append(rows, testRow(rows[0].UserID, "Cloud_Admin", p, nil))
	}

	run := func() *Result {
		e := newTestEngine(t, cfg)
		res, err := e.Run(mustTable(t, rows))
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.RunID, b.RunID)
	assert.Equal(t, a.Records, b.Records, "records must be bit-identical across reruns")
	assert.Equal(t, a.Artifacts, b.Artifacts)
}

func TestEngine_SeedChangesRunID(t *testing.T) {
	rows := randomRows(10, "DB_Admin", 5)

	cfgA := DefaultConfig()
	cfgB := DefaultConfig()
	cfgB.Seed = 2

	resA, err := newTestEngine(t, cfgA).Run(mustTable(t, rows))
	require.NoError(t, err)
	resB, err := newTestEngine(t, cfgB).Run(mustTable(t, rows))
	require.NoError(t, err)
	assert.NotEqual(t, resA.RunID, resB.RunID)
}

func TestEngine_MultipleCohortsSortedOutput(t *testing.T) {
	cfg := DefaultConfig()
	rows := append(randomRows(8, "HR_Admin", 11), randomRows(8, "DB_Admin", 13)...)

	res, err := newTestEngine(t, cfg).Run(mustTable(t, rows))
	require.NoError(t, err)
	require.Len(t, res.Records, 16)

	for i := 1; i < len(res.Records); i++ {
		a, b := res.Records[i-1], res.Records[i]
		less := a.Role < b.Role || (a.Role == b.Role && a.UserID <= b.UserID)
		require.True(t, less, "records out of order at %d: %s/%s before %s/%s", i, a.Role, a.UserID, b.Role, b.UserID)
	}

	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "DB_Admin", res.Artifacts[0].Role)
	assert.Equal(t, "HR_Admin", res.Artifacts[1].Role)
}

func TestEngine_SingleUserCohort(t *testing.T) {
	cfg := DefaultConfig()
	rows := []featureset.Row{testRow("solo", "Security_Admin", 0, nil)}

	res, err := newTestEngine(t, cfg).Run(mustTable(t, rows))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, CategoryLow, r.Category)
	assert.Len(t, r.LowConfidence, len(Components), "every component degrades for a singleton cohort")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Anomaly = 0.5 // sum now 1.2

	_, err := New(cfg)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "got %v, want *ConfigError", err)
}

func TestEngine_ArtifactsCarryFittedModels(t *testing.T) {
	cfg := DefaultConfig()
	rows := randomRows(20, "DevOps_Engineer", 17)

	res, err := newTestEngine(t, cfg).Run(mustTable(t, rows))
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)

	a := res.Artifacts[0]
	assert.Equal(t, 20, a.RowCount)
	assert.Equal(t, cfg.Seed, a.Seed)
	assert.NotNil(t, a.Forest, "cohort above fit threshold must carry a fitted forest")
	assert.Len(t, a.Stats, featureset.NumFeatures())

	blob, err := MarshalArtifact(a)
	require.NoError(t, err)
	back, err := UnmarshalArtifact(blob)
	require.NoError(t, err)
	assert.Equal(t, a.ArtifactID, back.ArtifactID)
	assert.Equal(t, a.Role, back.Role)
}
