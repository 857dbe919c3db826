// Package store handles the engine's tabular handoff: feature tables in,
// risk records out, over CSV files or Postgres.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"privsight/pkg/featureset"
	"privsight/pkg/risk"
)

const (
	colUserID      = "user_id"
	colRole        = "role"
	colPeriodStart = "period_start"
	colPeriodEnd   = "period_end"
)

var identityColumns = []string{colUserID, colRole, colPeriodStart, colPeriodEnd}

// ReadFeatureCSV parses a feature table from CSV. The header must contain
// every identity and feature column; missing columns or unparsable feature
// values reject the whole batch with a *featureset.SchemaError. Extra
// columns are ignored (the cleaning stage may carry metadata).
func ReadFeatureCSV(r io.Reader, roles []string) (*featureset.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read feature csv header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, c := range identityColumns {
		if _, ok := colIdx[c]; !ok {
			return nil, &featureset.SchemaError{Column: c, Row: -1, Reason: "required column absent"}
		}
	}
	for _, c := range featureset.Names() {
		if _, ok := colIdx[c]; !ok {
			return nil, &featureset.SchemaError{Column: c, Row: -1, Reason: "required column absent"}
		}
	}

	var rows []featureset.Row
	for rowNum := 0; ; rowNum++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read feature csv row %d: %w", rowNum, err)
		}

		start, err := parseTime(rec[colIdx[colPeriodStart]])
		if err != nil {
			return nil, &featureset.SchemaError{Column: colPeriodStart, Row: rowNum, Reason: err.Error()}
		}
		end, err := parseTime(rec[colIdx[colPeriodEnd]])
		if err != nil {
			return nil, &featureset.SchemaError{Column: colPeriodEnd, Row: rowNum, Reason: err.Error()}
		}

		features := make(map[string]float64, featureset.NumFeatures())
		for _, name := range featureset.Names() {
			raw := strings.TrimSpace(rec[colIdx[name]])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &featureset.SchemaError{Column: name, Row: rowNum, Reason: "non-numeric value " + strconv.Quote(raw)}
			}
			features[name] = v
		}

		rows = append(rows, featureset.Row{
			UserID:      strings.TrimSpace(rec[colIdx[colUserID]]),
			Role:        strings.TrimSpace(rec[colIdx[colRole]]),
			PeriodStart: start,
			PeriodEnd:   end,
			Features:    features,
		})
	}

	return featureset.NewTable(rows, roles)
}

// ReadFeatureCSVFile reads a feature table from a file on disk.
func ReadFeatureCSVFile(path string, roles []string) (*featureset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature csv: %w", err)
	}
	defer f.Close()
	return ReadFeatureCSV(f, roles)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// WriteRecordsCSV writes risk records with a serialized top-k explanation
// column, one row per (user, period).
func WriteRecordsCSV(w io.Writer, records []risk.Record) error {
	cw := csv.NewWriter(w)
	header := []string{
		colUserID, colRole, colPeriodStart, colPeriodEnd,
		"governance_risk_score", "risk_category", "low_confidence", "explanation",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write records csv header: %w", err)
	}

	for _, r := range records {
		lc := make([]string, len(r.LowConfidence))
		for i, c := range r.LowConfidence {
			lc[i] = string(c)
		}
		row := []string{
			r.UserID,
			r.Role,
			r.PeriodStart.UTC().Format(time.RFC3339),
			r.PeriodEnd.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			string(r.Category),
			strings.Join(lc, ","),
			risk.SerializeFactors(r.Explanation),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write records csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsCSVFile writes records to a file on disk.
func WriteRecordsCSVFile(path string, records []risk.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create records csv: %w", err)
	}
	defer f.Close()
	return WriteRecordsCSV(f, records)
}
