package featureset

import (
	"math"
	"sort"
	"time"
)

// Row is one (user, period) observation. Rows are produced by the upstream
// cleaning stage and are read-only to the engine.
type Row struct {
	UserID      string             `json:"user_id"`
	Role        string             `json:"role"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Features    map[string]float64 `json:"features"`
}

// Vector returns the row's feature values in canonical schema order.
func (r Row) Vector() []float64 {
	v := make([]float64, len(schema))
	for i, f := range schema {
		v[i] = r.Features[f.Name]
	}
	return v
}

// Table is a validated, immutable batch of feature rows.
type Table struct {
	rows  []Row
	roles map[string]struct{}
}

// NewTable validates rows against the fixed schema and the given role
// enumeration (DefaultRoles when nil). Any structural problem yields a
// *SchemaError and no table; the engine never silently patches input.
func NewTable(rows []Row, roles []string) (*Table, error) {
	if roles == nil {
		roles = DefaultRoles
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	for i, row := range rows {
		if row.UserID == "" {
			return nil, &SchemaError{Column: "user_id", Row: i, Reason: "empty value"}
		}
		if _, ok := roleSet[row.Role]; !ok {
			return nil, &SchemaError{Column: "role", Row: i, Reason: "unknown role label " + row.Role}
		}
		if !row.PeriodEnd.After(row.PeriodStart) {
			return nil, &SchemaError{Column: "period_end", Row: i, Reason: "period_end not after period_start"}
		}
		for _, f := range schema {
			v, ok := row.Features[f.Name]
			if !ok {
				return nil, &SchemaError{Column: f.Name, Row: i, Reason: "missing feature value"}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &SchemaError{Column: f.Name, Row: i, Reason: "non-numeric feature value"}
			}
		}
	}

	cp := make([]Row, len(rows))
	copy(cp, rows)
	return &Table{rows: cp, roles: roleSet}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the validated rows.
func (t *Table) Rows() []Row { return t.rows }

// Roles returns the role labels present in the batch, sorted.
func (t *Table) Roles() []string {
	seen := make(map[string]struct{})
	for _, r := range t.rows {
		seen[r.Role] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Cohorts partitions the batch into per-role peer groups. Row order within a
// cohort is stable: sorted by (user_id, period_start) so repeated runs see
// identical matrices.
func (t *Table) Cohorts() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range t.rows {
		out[r.Role] = append(out[r.Role], r)
	}
	for role := range out {
		rows := out[role]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].UserID != rows[j].UserID {
				return rows[i].UserID < rows[j].UserID
			}
			return rows[i].PeriodStart.Before(rows[j].PeriodStart)
		})
	}
	return out
}
