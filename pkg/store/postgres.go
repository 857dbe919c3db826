package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"privsight/pkg/featureset"
	"privsight/pkg/risk"
)

// Postgres reads feature tables from and appends risk records to a
// Postgres database.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with sane pool limits for a batch job.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// EnsureSchema creates the engine's tables if absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	featureCols := make([]string, 0, featureset.NumFeatures())
	for _, name := range featureset.Names() {
		featureCols = append(featureCols, name+" DOUBLE PRECISION NOT NULL")
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_period_features (
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			period_start TIMESTAMPTZ NOT NULL,
			period_end TIMESTAMPTZ NOT NULL,
			%s,
			PRIMARY KEY (user_id, period_start)
		)`, strings.Join(featureCols, ",\n\t\t\t")),
		`CREATE TABLE IF NOT EXISTS risk_records (
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			period_start TIMESTAMPTZ NOT NULL,
			period_end TIMESTAMPTZ NOT NULL,
			governance_risk_score DOUBLE PRECISION NOT NULL,
			risk_category TEXT NOT NULL,
			low_confidence TEXT NOT NULL DEFAULT '',
			explanation TEXT NOT NULL,
			run_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, period_start, run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_records_role ON risk_records (role, governance_risk_score DESC)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadFeatureTable reads all feature rows for a scoring window and
// validates them against the schema.
func (p *Postgres) LoadFeatureTable(ctx context.Context, from, to time.Time, roles []string) (*featureset.Table, error) {
	cols := append(append([]string{}, identityColumns...), featureset.Names()...)
	q := fmt.Sprintf(
		`SELECT %s FROM user_period_features WHERE period_start >= $1 AND period_end <= $2 ORDER BY user_id, period_start`,
		strings.Join(cols, ", "),
	)
	qr, err := p.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query feature table: %w", err)
	}
	defer qr.Close()

	var rows []featureset.Row
	names := featureset.Names()
	for qr.Next() {
		var (
			userID, role string
			start, end   time.Time
		)
		vals := make([]float64, len(names))
		dest := []any{&userID, &role, &start, &end}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := qr.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		features := make(map[string]float64, len(names))
		for i, name := range names {
			features[name] = vals[i]
		}
		rows = append(rows, featureset.Row{
			UserID:      userID,
			Role:        role,
			PeriodStart: start,
			PeriodEnd:   end,
			Features:    features,
		})
	}
	if err := qr.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return featureset.NewTable(rows, roles)
}

// SaveRecords appends a run's records in one transaction. Records are
// append-only: a rerun inserts under its own run_id, never updates.
func (p *Postgres) SaveRecords(ctx context.Context, records []risk.Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save records: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO risk_records
		(user_id, role, period_start, period_end, governance_risk_score, risk_category, low_confidence, explanation, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		lc := make([]string, len(r.LowConfidence))
		for i, c := range r.LowConfidence {
			lc[i] = string(c)
		}
		if _, err := stmt.ExecContext(ctx,
			r.UserID, r.Role, r.PeriodStart, r.PeriodEnd,
			r.Score, string(r.Category), strings.Join(lc, ","),
			risk.SerializeFactors(r.Explanation), r.RunID, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert record %s/%s: %w", r.UserID, r.PeriodStart, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save records: %w", err)
	}
	return nil
}
