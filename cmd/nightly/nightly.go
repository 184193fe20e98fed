package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
)

var (
	outputPath = flag.String(
		"output-path",
		".",
		"The output path of a completed baseline run, holding qrels/ and runs/",
	)
	flagSplit = flag.String(
		"split",
		string(benchmark.SplitValidation),
		"The split whose runs are evaluated",
	)
	engineLabel = flag.String(
		"engine-label",
		"anserini",
		"The engine the runs were produced with, used to group recorded results",
	)
	mysqlDsn = flag.String(
		"mysql-dsn",
		"",
		"The MySQL DSN to connect to and store results in (optional)",
	)
	bootstrapIterations = flag.Int(
		"bootstrap",
		1000,
		"The number of bootstrap resamples for MRR@10 confidence intervals, 0 to disable",
	)
	bootstrapSeed = flag.Uint64(
		"seed",
		42,
		"The seed for bootstrap resampling",
	)
	flagSlackToken = flag.String(
		"slack-token",
		"",
		"The Slack token to use for sending notifications (optional)",
	)
	flagSlackChannelId = flag.String(
		"slack-channel-id",
		"",
		"The Slack channel ID to send notifications to (optional)",
	)
)

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("top-level error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	split, err := benchmark.ParseSplit(*flagSplit)
	if err != nil {
		flag.Usage()
		return err
	}
	if *engineLabel == "" {
		flag.Usage()
		return errors.New("missing required flag: -engine-label")
	}
	root, err := filepath.Abs(*outputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}

	results, err := evaluateRuns(benchmark.Layout{Root: root}, split, *engineLabel, *bootstrapIterations, *bootstrapSeed)
	if err != nil {
		return fmt.Errorf("evaluating runs: %w", err)
	}
	for _, rr := range results.Runs {
		logger.Info(
			"evaluated run",
			slog.String("run", rr.Label),
			slog.Int("queries", rr.Queries),
			slog.Float64("mrr@10", rr.MRR10),
			slog.Float64("mrr@10_low", rr.MRR10Low),
			slog.Float64("mrr@10_high", rr.MRR10High),
			slog.Float64("recall@1000", rr.Recall1000),
		)
	}

	dbc, err := maybeConnectToMySQL(ctx)
	if err != nil {
		return fmt.Errorf("connecting to MySQL: %w", err)
	}
	if dbc == nil {
		logger.Info("no -mysql-dsn given, results were not recorded")
		return nil
	}
	defer dbc.Close()
	logger.Info("connected to mysql db, will write baseline results there")

	if err := ensureSchema(ctx, dbc); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	if *flagSlackToken != "" && *flagSlackChannelId != "" {
		diff, err := metricsDiffAgainstLastRun(ctx, dbc, results)
		if err != nil {
			return fmt.Errorf("computing metrics diff against last run: %w", err)
		}
		if err := diff.printToSlack(ctx, *flagSlackToken, *flagSlackChannelId); err != nil {
			return fmt.Errorf("sending metrics diff to slack: %w", err)
		}
		logger.Info("sent metrics diff to slack", slog.String("engine", results.EngineLabel))
	}

	start := time.Now()
	if err := recordResultsToMySQL(ctx, dbc, results); err != nil {
		return fmt.Errorf("recording results to MySQL: %w", err)
	}
	logger.Info(
		"recorded results to MySQL",
		slog.String("run_id", results.RunID.String()),
		slog.Duration("took", time.Since(start)),
	)

	return nil
}

func maybeConnectToMySQL(ctx context.Context) (*sql.DB, error) {
	if *mysqlDsn == "" {
		return nil, nil
	}

	// For parsing timestamps into Go time.Time objects
	dsn := *mysqlDsn
	if !strings.Contains(dsn, "parseTime") {
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mysql database: %w", err)
	}

	return db, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger() *slog.Logger {
	var leveler slog.Leveler
	if l, ok := logLevels[strings.ToLower(os.Getenv("LOG_LEVEL"))]; ok {
		leveler = l
	}
	var handler slog.Handler
	if localDev() {
		if leveler == nil {
			leveler = slog.LevelDebug
		}
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	}
	return slog.New(handler)
}

func localDev() bool {
	return runtime.GOOS == "darwin" || os.Getenv("NIGHTLY_LOCAL") != ""
}
