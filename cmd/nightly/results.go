package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/eval"
)

// RunResult is the evaluation of one run file.
type RunResult struct {
	Label      string
	Queries    int
	MRR10      float64
	MRR10Low   float64
	MRR10High  float64
	Recall10   float64
	Recall1000 float64
	NDCG10     float64
}

// BaselineResults are the scores of every run of a baseline, recorded together.
type BaselineResults struct {
	RunID       uuid.UUID
	EngineLabel string
	Split       benchmark.Split
	Timestamp   time.Time
	Runs        []*RunResult
}

func runLabel(setting benchmark.Setting, d benchmark.Direction) string {
	return fmt.Sprintf("%s.%s", setting, d)
}

// evaluateRuns scores the run of every setting and direction of a split.
// With iterations > 0, a 95% bootstrap interval is attached to MRR@10.
func evaluateRuns(layout benchmark.Layout, split benchmark.Split, engine string, iterations int, seed uint64) (*BaselineResults, error) {
	results := &BaselineResults{
		RunID:       uuid.New(),
		EngineLabel: engine,
		Split:       split,
		Timestamp:   time.Now().UTC(),
	}
	for _, setting := range benchmark.Settings {
		for _, d := range benchmark.Directions {
			summary, err := eval.EvaluateFiles(layout.RunPath(split, d, setting), layout.QrelsPath(split, d))
			if err != nil {
				return nil, err
			}
			rr := &RunResult{
				Label:      runLabel(setting, d),
				Queries:    summary.Queries,
				MRR10:      summary.MRR10,
				MRR10Low:   summary.MRR10,
				MRR10High:  summary.MRR10,
				Recall10:   summary.Recall10,
				Recall1000: summary.Recall1000,
				NDCG10:     summary.NDCG10,
			}
			if iterations > 0 {
				rr.MRR10Low, rr.MRR10High = eval.BootstrapCI(
					summary.Column(func(q eval.QueryMetrics) float64 { return q.MRR10 }),
					iterations,
					0.05,
					seed,
				)
			}
			results.Runs = append(results.Runs, rr)
		}
	}
	return results, nil
}
