package risk

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"privsight/pkg/featureset"
)

// Record is the engine's sole externally-visible output: one immutable,
// append-only scoring verdict per (user, period). A later run supersedes a
// record, never mutates it.
type Record struct {
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	Score    float64      `json:"governance_risk_score"`
	Category RiskCategory `json:"risk_category"`

	Components    map[Component]ComponentScore `json:"components"`
	LowConfidence []Component                  `json:"low_confidence,omitempty"`
	Explanation   []Factor                     `json:"explanation"`

	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one completed scoring run: the records plus the fitted cohort
// artifacts for callers that persist models for reuse on new periods.
type Result struct {
	RunID     string
	Records   []Record
	Artifacts []CohortArtifact
}

// Engine runs the scoring pipeline over a validated feature table. It is
// stateless across runs; all tunables come from the injected Config.
type Engine struct {
	cfg       Config
	ensemble  *Ensemble
	explainer *Explainer
	producers []ScoreProducer

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New validates the configuration and builds an engine. Configuration
// problems are fatal here, before any scoring begins.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		ensemble:  NewEnsemble(&cfg),
		explainer: NewExplainer(&cfg),
		producers: []ScoreProducer{
			NewAnomalyScorer(&cfg),
			NewMisalignmentScorer(&cfg),
			NewRarityScorer(&cfg),
			NewTemporalScorer(&cfg),
		},
		now: time.Now,
	}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

type cohortResult struct {
	role     string
	records  []Record
	artifact CohortArtifact
	err      error
}

// Run scores every row of the table and returns the complete result, or an
// error and no records: partial results are never exposed as final.
func (e *Engine) Run(table *featureset.Table) (*Result, error) {
	start := e.now()
	runID := runFingerprint(e.cfg.Seed, table)
	createdAt := start.UTC()

	cohorts := table.Cohorts()
	results := make(chan cohortResult, len(cohorts))

	var wg sync.WaitGroup
	for role, rows := range cohorts {
		wg.Add(1)
		go func(role string, rows []featureset.Row) {
			defer wg.Done()
			results <- e.scoreCohort(role, rows, runID, createdAt)
		}(role, rows)
	}
	wg.Wait()
	close(results)

	res := &Result{RunID: runID}
	for cr := range results {
		if cr.err != nil {
			return nil, fmt.Errorf("cohort %s: %w", cr.role, cr.err)
		}
		res.Records = append(res.Records, cr.records...)
		res.Artifacts = append(res.Artifacts, cr.artifact)
	}

	// Cohorts complete in goroutine order; impose a stable output order.
	sort.Slice(res.Records, func(i, j int) bool {
		a, b := res.Records[i], res.Records[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.PeriodStart.Before(b.PeriodStart)
	})
	sort.Slice(res.Artifacts, func(i, j int) bool {
		return res.Artifacts[i].Role < res.Artifacts[j].Role
	})

	for _, r := range res.Records {
		riskScores.Observe(r.Score)
		if r.Category == CategoryHigh {
			highRiskRecords.Inc()
		}
	}
	runDuration.Observe(e.now().Sub(start).Seconds())
	return res, nil
}

func (e *Engine) scoreCohort(role string, rows []featureset.Row, runID string, createdAt time.Time) cohortResult {
	cohort := newCohort(role, rows, &e.cfg)

	scores := make(map[Component][]ComponentScore, len(e.producers))
	for _, p := range e.producers {
		cs, err := p.Score(cohort)
		if err != nil {
			return cohortResult{role: role, err: fmt.Errorf("%s scorer: %w", p.Component(), err)}
		}
		if cs != nil {
			scores[p.Component()] = cs
		}
	}

	medians := make(map[Component]float64, len(scores))
	for comp, cs := range scores {
		vals := make([]float64, len(cs))
		for i, s := range cs {
			vals[i] = s.Value
		}
		medians[comp] = median(vals)
	}

	records := make([]Record, 0, cohort.Size())
	for i, row := range cohort.Rows {
		rowScores := make(map[Component]ComponentScore, len(scores))
		var lowConf []Component
		for _, comp := range Components {
			cs, ok := scores[comp]
			if !ok {
				continue
			}
			rowScores[comp] = cs[i]
			if cs[i].LowConfidence {
				lowConf = append(lowConf, comp)
			}
		}

		score, category, err := e.ensemble.Combine(rowScores)
		if err != nil {
			return cohortResult{role: role, err: err}
		}

		records = append(records, Record{
			UserID:        row.UserID,
			Role:          role,
			PeriodStart:   row.PeriodStart,
			PeriodEnd:     row.PeriodEnd,
			Score:         score,
			Category:      category,
			Components:    rowScores,
			LowConfidence: lowConf,
			Explanation:   e.explainer.Build(cohort.Norm.Transform(row), rowScores, medians),
			RunID:         runID,
			CreatedAt:     createdAt,
		})
	}

	rowsScored.WithLabelValues(role).Add(float64(len(records)))
	return cohortResult{
		role:     role,
		records:  records,
		artifact: newCohortArtifact(cohort, createdAt),
	}
}

// runFingerprint derives the run id from the seed and the input batch, so
// re-running on identical input and configuration reproduces identical
// records, run id included.
func runFingerprint(seed int64, table *featureset.Table) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d", seed)
	for _, r := range table.Rows() {
		fmt.Fprintf(h, "|%s|%s|%d|%d", r.UserID, r.Role, r.PeriodStart.UnixNano(), r.PeriodEnd.UnixNano())
		for _, v := range r.Vector() {
			fmt.Fprintf(h, ",%.12g", v)
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil)).String()
}
