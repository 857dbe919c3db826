// Package featureset defines the tabular data contract handed to the risk
// engine by the upstream cleaning stage: one row per (user, period) with a
// fixed, named set of behavioral features and a role label.
package featureset

import "fmt"

// Group classifies a feature by the kind of behavior it measures.
type Group string

const (
	GroupBehavioral Group = "behavioral"
	GroupTemporal   Group = "temporal"
	GroupStability  Group = "stability"
	GroupPrivilege  Group = "privilege"
)

// Behavioral feature columns.
const (
	AvgDailyAccess     = "avg_daily_access"
	ExportRatio        = "export_ratio"
	UniqueResources    = "unique_resources"
	AvgSessionDuration = "avg_session_duration"
)

// Temporal feature columns.
const (
	NightAccessPct       = "night_access_pct"
	WeekendActivityRatio = "weekend_activity_ratio"
	AccessTimeVariance   = "access_time_variance"
)

// Stability feature columns.
const (
	WeeklyAccessChange = "weekly_access_change"
	AccessSpikeScore   = "access_spike_score"
)

// Privilege-usage intelligence feature columns.
const (
	PrivilegeUsageGap           = "privilege_usage_gap"
	PrivilegeUsageRatio         = "privilege_usage_ratio"
	ResourceAccessConcentration = "resource_access_concentration"
)

// schema lists every feature column in canonical order. Vectorized forms of
// a row (z-matrices, embeddings) always use this ordering.
var schema = []struct {
	Name  string
	Group Group
}{
	{AvgDailyAccess, GroupBehavioral},
	{ExportRatio, GroupBehavioral},
	{UniqueResources, GroupBehavioral},
	{AvgSessionDuration, GroupBehavioral},
	{NightAccessPct, GroupTemporal},
	{WeekendActivityRatio, GroupTemporal},
	{AccessTimeVariance, GroupTemporal},
	{WeeklyAccessChange, GroupStability},
	{AccessSpikeScore, GroupStability},
	{PrivilegeUsageGap, GroupPrivilege},
	{PrivilegeUsageRatio, GroupPrivilege},
	{ResourceAccessConcentration, GroupPrivilege},
}

var groupByName = func() map[string]Group {
	m := make(map[string]Group, len(schema))
	for _, f := range schema {
		m[f.Name] = f.Group
	}
	return m
}()

// Names returns the feature column names in canonical order.
func Names() []string {
	out := make([]string, len(schema))
	for i, f := range schema {
		out[i] = f.Name
	}
	return out
}

// NumFeatures is the width of a feature vector.
func NumFeatures() int { return len(schema) }

// GroupOf returns the group a feature belongs to.
func GroupOf(name string) (Group, bool) {
	g, ok := groupByName[name]
	return g, ok
}

// Index returns the canonical position of a feature column, or -1.
func Index(name string) int {
	for i, f := range schema {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// DefaultRoles is the privileged-role population the engine was built
// against. Callers may pass their own enumeration to NewTable.
var DefaultRoles = []string{
	"DB_Admin",
	"HR_Admin",
	"Cloud_Admin",
	"Security_Admin",
	"DevOps_Engineer",
}

// SchemaError reports a structural problem in the input table. It is fatal:
// the batch is rejected and nothing is scored.
type SchemaError struct {
	Column string
	Row    int // -1 when the problem is table-level (missing column)
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("feature table schema: column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("feature table schema: row %d column %q: %s", e.Row, e.Column, e.Reason)
}
