package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS baseline_runs (
		id CHAR(36) NOT NULL PRIMARY KEY,
		engine VARCHAR(64) NOT NULL,
		split VARCHAR(32) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX baseline_runs_engine_split (engine, split, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS baseline_results (
		run_id CHAR(36) NOT NULL,
		label VARCHAR(64) NOT NULL,
		queries INT NOT NULL,
		mrr10 DOUBLE NOT NULL,
		mrr10_low DOUBLE NOT NULL,
		mrr10_high DOUBLE NOT NULL,
		recall10 DOUBLE NOT NULL,
		recall1000 DOUBLE NOT NULL,
		ndcg10 DOUBLE NOT NULL,
		PRIMARY KEY (run_id, label)
	)`,
}

func ensureSchema(ctx context.Context, dbc *sql.DB) error {
	for _, stmt := range schema {
		if _, err := dbc.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const lastRunQuery = `
SELECT r.label, r.queries, r.mrr10, r.recall10, r.recall1000, r.ndcg10
FROM baseline_results r
WHERE r.run_id = (
	SELECT id FROM baseline_runs
	WHERE engine = ? AND split = ?
	ORDER BY created_at DESC
	LIMIT 1
)`

// lastRunResults loads the most recently recorded results for the engine and
// split of br, keyed by run label. Returns an empty map if there are none.
func lastRunResults(ctx context.Context, dbc *sql.DB, br *BaselineResults) (map[string]*RunResult, error) {
	rows, err := dbc.QueryContext(ctx, lastRunQuery, br.EngineLabel, string(br.Split))
	if err != nil {
		return nil, fmt.Errorf("querying last run: %w", err)
	}
	defer rows.Close()

	prev := make(map[string]*RunResult)
	for rows.Next() {
		rr := &RunResult{}
		if err := rows.Scan(&rr.Label, &rr.Queries, &rr.MRR10, &rr.Recall10, &rr.Recall1000, &rr.NDCG10); err != nil {
			return nil, fmt.Errorf("scanning last run: %w", err)
		}
		prev[rr.Label] = rr
	}
	return prev, rows.Err()
}

// Computes the metrics diff of this run against the last run of the same
// engine and split that was stored in MySQL.
func metricsDiffAgainstLastRun(ctx context.Context, dbc *sql.DB, br *BaselineResults) (*metricsDiff, error) {
	prev, err := lastRunResults(ctx, dbc, br)
	if err != nil {
		return nil, err
	}
	return newMetricsDiff(br, prev), nil
}

func recordResultsToMySQL(ctx context.Context, dbc *sql.DB, br *BaselineResults) error {
	tx, err := dbc.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning MySQL transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO baseline_runs (id, engine, split, created_at) VALUES (?, ?, ?, ?)",
		br.RunID.String(),
		br.EngineLabel,
		string(br.Split),
		br.Timestamp,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", br.RunID, err)
	}

	for _, rr := range br.Runs {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO baseline_results
				(run_id, label, queries, mrr10, mrr10_low, mrr10_high, recall10, recall1000, ndcg10)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			br.RunID.String(),
			rr.Label,
			rr.Queries,
			rr.MRR10,
			rr.MRR10Low,
			rr.MRR10High,
			rr.Recall10,
			rr.Recall1000,
			rr.NDCG10,
		); err != nil {
			return fmt.Errorf("inserting result for run %q: %w", rr.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing MySQL transaction: %w", err)
	}

	return nil
}
