// Command riskengine scores one closed batch of per-user per-period
// behavioral features and emits governance risk records with ranked
// explanations.
//
// Usage:
//
//	riskengine -input features.csv -output records.csv [-config engine.toml]
//	riskengine -pg-dsn "postgres://..." -from 2024-01-01 -to 2024-12-31
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"privsight/pkg/featureset"
	"privsight/pkg/risk"
	"privsight/pkg/store"
	"privsight/shared/logging"
)

func main() {
	var (
		configPath  = flag.String("config", "", "engine configuration file (TOML); defaults apply when empty")
		inputPath   = flag.String("input", "", "feature table CSV path")
		outputPath  = flag.String("output", "", "risk records CSV path (stdout when empty)")
		pgDSN       = flag.String("pg-dsn", os.Getenv("PRIVSIGHT_PG_DSN"), "Postgres DSN; replaces CSV input/output when set")
		fromStr     = flag.String("from", "", "scoring window start (YYYY-MM-DD, Postgres mode)")
		toStr       = flag.String("to", "", "scoring window end (YYYY-MM-DD, Postgres mode)")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address for the run's duration")
		artifactDir = flag.String("artifact-dir", "", "persist fitted cohort artifacts to this directory")
	)
	flag.Parse()

	if err := run(*configPath, *inputPath, *outputPath, *pgDSN, *fromStr, *toStr, *metricsAddr, *artifactDir); err != nil {
		var schemaErr *featureset.SchemaError
		var cfgErr *risk.ConfigError
		switch {
		case errors.As(err, &schemaErr):
			logging.Errorf("batch rejected: %v", err)
		case errors.As(err, &cfgErr):
			logging.Errorf("invalid configuration: %v", err)
		default:
			logging.Errorf("run failed: %v", err)
		}
		os.Exit(1)
	}
}

func run(configPath, inputPath, outputPath, pgDSN, fromStr, toStr, metricsAddr, artifactDir string) error {
	cfg, err := risk.LoadConfig(configPath)
	if err != nil {
		return err
	}
	engine, err := risk.New(cfg)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logging.Warnf("metrics listener: %v", err)
			}
		}()
	}

	var table *featureset.Table
	var pg *store.Postgres
	if pgDSN != "" {
		from, to, err := parseWindow(fromStr, toStr)
		if err != nil {
			return err
		}
		pg, err = store.OpenPostgres(pgDSN)
		if err != nil {
			return err
		}
		defer pg.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		table, err = pg.LoadFeatureTable(ctx, from, to, nil)
		if err != nil {
			return err
		}
	} else {
		if inputPath == "" {
			return fmt.Errorf("either -input or -pg-dsn is required")
		}
		table, err = store.ReadFeatureCSVFile(inputPath, nil)
		if err != nil {
			return err
		}
	}

	logging.Infof("scoring %d rows across %d roles (seed=%d)", table.Len(), len(table.Roles()), cfg.Seed)
	result, err := engine.Run(table)
	if err != nil {
		return err
	}
	logging.Infof("run %s produced %d records", result.RunID, len(result.Records))

	if artifactDir != "" {
		if err := writeArtifacts(artifactDir, result.Artifacts); err != nil {
			return err
		}
	}

	if pg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		return pg.SaveRecords(ctx, result.Records)
	}
	if outputPath != "" {
		return store.WriteRecordsCSVFile(outputPath, result.Records)
	}
	return store.WriteRecordsCSV(os.Stdout, result.Records)
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-from and -to are required with -pg-dsn")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -from: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -to: %w", err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to must be after -from")
	}
	return from, to, nil
}

func writeArtifacts(dir string, artifacts []risk.CohortArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	for _, a := range artifacts {
		b, err := risk.MarshalArtifact(a)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("%s/%s-%s.json", dir, a.Role, a.ArtifactID)
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", path, err)
		}
		logging.Infof("persisted cohort artifact %s (role=%s rows=%d)", a.ArtifactID, a.Role, a.RowCount)
	}
	return nil
}
