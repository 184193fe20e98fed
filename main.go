package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/atomic-ir/bm25-baseline/engine"
	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/collection"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset"
)

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage error")

func main() {
	flag.Parse()

	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var exitCode int
	if err := run(ctx, logger); err != nil {
		logger.Error("encountered top-level error", slog.String("error", err.Error()))
		if errors.Is(err, errUsage) || errors.Is(err, collection.ErrSplitRequired) {
			flag.Usage()
		}
		exitCode = 1
	}

	os.Exit(exitCode)
}

func run(ctx context.Context, logger *slog.Logger) error {
	if *topicWorkers <= 0 {
		return fmt.Errorf("%w: -topic-workers must be positive", errUsage)
	}

	root, err := filepath.Abs(*outputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	eng, err := newEngine(*engineName, env, logger)
	if err != nil {
		return err
	}
	logger.Debug("initialized engine", slog.String("engine", eng.Name()))

	reporter, err := StartReporter(*reportDir)
	if err != nil {
		return fmt.Errorf("starting reporter: %w", err)
	}
	if *reportDir == "" {
		logger.Debug("no -report-dir specified, step reports will not be written to disk")
	}

	p := &pipeline{
		layout: benchmark.Layout{Root: root},
		repos: collection.Repos{
			Images: *imagesRepo,
			Texts:  *textsRepo,
			Qrels:  *qrelsRepo,
		},
		source:       newSource(*datasetDir, env, logger),
		engine:       eng,
		resume:       *resume,
		evaluate:     *evaluate,
		topicWorkers: *topicWorkers,
		reporter:     reporter,
	}
	return p.run(ctx, logger)
}

// pipeline runs the baseline stages in order against one output root.
type pipeline struct {
	layout       benchmark.Layout
	repos        collection.Repos
	source       dataset.Source
	engine       engine.Engine
	resume       bool
	evaluate     bool
	topicWorkers int
	reporter     *Reporter
}

func (p *pipeline) run(ctx context.Context, logger *slog.Logger) error {
	steps := p.plan()
	for i, step := range steps {
		fmt.Printf("\nRunning pipeline step %d/%d: %s\n\n", i+1, len(steps), step.desc())

		start := time.Now()
		err := step.run(ctx, logger.With(slog.String(stageAttrKey, step.stage())))
		took := time.Since(start)

		var details Report
		if ds, ok := step.(detailedStep); ok && err == nil {
			details = ds.details()
		}
		if rerr := p.reporter.ReportStep(step.stage(), step.desc(), took, err, details); rerr != nil {
			logger.Warn("failed to record step", slog.String("error", rerr.Error()))
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.desc(), err)
		}
	}
	return p.reporter.Stop()
}

// plan lists every step of a full baseline run:
//
//  1. qrels for every split except other
//  2. both fields of every split encoded
//  3. small indexes for validation and test, then base and large
//  4. topics for the settings searched below, plus small/test
//  5. validation searched in both directions for every setting
//  6. optionally, the validation runs evaluated
func (p *pipeline) plan() []pipelineStep {
	var steps []pipelineStep

	for _, split := range benchmark.Splits {
		if split == benchmark.SplitOther {
			continue
		}
		steps = append(steps, &stepPrepareQrels{p: p, split: split})
	}

	for _, split := range benchmark.Splits {
		for _, field := range benchmark.Fields {
			steps = append(steps, &stepEncode{p: p, split: split, field: field})
		}
	}

	steps = append(steps,
		&stepIndex{p: p, setting: benchmark.SettingSmall, split: benchmark.SplitValidation},
		&stepIndex{p: p, setting: benchmark.SettingSmall, split: benchmark.SplitTest},
		&stepIndex{p: p, setting: benchmark.SettingBase},
		&stepIndex{p: p, setting: benchmark.SettingLarge},
	)

	steps = append(steps,
		&stepTopics{p: p, setting: benchmark.SettingSmall, split: benchmark.SplitValidation},
		&stepTopics{p: p, setting: benchmark.SettingSmall, split: benchmark.SplitTest},
		&stepTopics{p: p, setting: benchmark.SettingBase, split: benchmark.SplitValidation},
		&stepTopics{p: p, setting: benchmark.SettingLarge, split: benchmark.SplitValidation},
	)

	for _, setting := range benchmark.Settings {
		steps = append(steps, &stepSearch{p: p, split: benchmark.SplitValidation, setting: setting})
	}

	if p.evaluate {
		steps = append(steps, &stepEvaluate{p: p, split: benchmark.SplitValidation})
	}

	return steps
}
