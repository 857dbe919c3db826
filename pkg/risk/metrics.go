package risk

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	rowsScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "privsight", Subsystem: "engine", Name: "rows_scored_total", Help: "Rows scored per role cohort."},
		[]string{"role"},
	)
	cohortFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "privsight", Subsystem: "engine", Name: "fallbacks_total", Help: "Degenerate-cohort fallback activations by component and reason."},
		[]string{"component", "reason"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "privsight", Subsystem: "engine", Name: "run_seconds", Help: "Wall time of full scoring runs.", Buckets: prometheus.DefBuckets},
	)
	riskScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "privsight", Subsystem: "engine", Name: "risk_score", Help: "Distribution of governance risk scores.", Buckets: prometheus.LinearBuckets(0, 10, 11)},
	)
	highRiskRecords = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "privsight", Subsystem: "engine", Name: "high_risk_records_total", Help: "Records categorized High."},
	)
)

func init() {
	_ = prometheus.Register(rowsScored)
	_ = prometheus.Register(cohortFallbacks)
	_ = prometheus.Register(runDuration)
	_ = prometheus.Register(riskScores)
	_ = prometheus.Register(highRiskRecords)
}
