package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/atomic-ir/bm25-baseline/engine"
	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/collection"
	"github.com/atomic-ir/bm25-baseline/pkg/eval"
	"github.com/atomic-ir/bm25-baseline/pkg/qrels"
)

const (
	stageQrels    = "qrels"
	stageEncode   = "encode"
	stageIndex    = "index"
	stageTopics   = "topics"
	stageSearch   = "search"
	stageEvaluate = "evaluate"
)

type pipelineStep interface {
	stage() string
	desc() string
	run(ctx context.Context, logger *slog.Logger) error
}

// detailedStep is a step that has something to add to the run report.
type detailedStep interface {
	details() Report
}

func settingLabel(setting benchmark.Setting, split benchmark.Split) string {
	return string(setting) + benchmark.Postfix(setting, split)
}

// stepPrepareQrels writes both qrels projections of a split.
type stepPrepareQrels struct {
	p      *pipeline
	split  benchmark.Split
	result *qrels.Result
}

func (s *stepPrepareQrels) stage() string { return stageQrels }

func (s *stepPrepareQrels) desc() string {
	return fmt.Sprintf("prepare %s qrels", s.split)
}

func (s *stepPrepareQrels) run(ctx context.Context, logger *slog.Logger) error {
	result, err := qrels.Prepare(ctx, logger, s.p.source, s.p.repos.Qrels, s.split, s.p.layout)
	if err != nil {
		return fmt.Errorf("preparing qrels: %w", err)
	}
	s.result = result
	return nil
}

func (s *stepPrepareQrels) details() Report {
	return Report{"records": s.result.Records}
}

// stepEncode writes the JSONL shard of one field of a split.
type stepEncode struct {
	p      *pipeline
	split  benchmark.Split
	field  benchmark.Field
	result *collection.EncodeResult
}

func (s *stepEncode) stage() string { return stageEncode }

func (s *stepEncode) desc() string {
	return fmt.Sprintf("encode %s %s", s.split, s.field)
}

func (s *stepEncode) run(ctx context.Context, logger *slog.Logger) error {
	result, err := collection.Encode(ctx, logger, s.p.source, s.split, s.field, s.p.repos, s.p.layout)
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}
	s.result = result
	return nil
}

func (s *stepEncode) details() Report {
	return Report{"documents": s.result.Documents}
}

// stepIndex stages the text and image collections of a setting and builds an
// index over each.
type stepIndex struct {
	p       *pipeline
	setting benchmark.Setting
	split   benchmark.Split
	built   int
	skipped int
}

func (s *stepIndex) stage() string { return stageIndex }

func (s *stepIndex) desc() string {
	return fmt.Sprintf("index %s collections", settingLabel(s.setting, s.split))
}

func (s *stepIndex) run(ctx context.Context, logger *slog.Logger) error {
	staged := make(map[benchmark.Modality]*collection.StagedCollection, len(benchmark.Modalities))
	for _, m := range benchmark.Modalities {
		sc, err := collection.Stage(s.p.layout, m, s.setting, s.split, s.p.resume)
		if err != nil {
			return fmt.Errorf("staging %s collection: %w", m, err)
		}
		logger.Debug("staged collection", slog.String("dir", sc.Dir), slog.Int("shards", len(sc.Shards)))
		staged[m] = sc
	}

	if err := os.MkdirAll(s.p.layout.IndexesDir(), 0755); err != nil {
		return fmt.Errorf("creating indexes directory: %w", err)
	}

	for _, m := range benchmark.Modalities {
		req := engine.DefaultIndexRequest(staged[m].Dir, s.p.layout.IndexDir(m, s.setting, s.split))
		fmt.Printf("Indexing %s: %s\n", m, settingLabel(s.setting, s.split))

		if s.p.resume {
			ok, _, err := engine.UpToDate(s.p.engine.Name(), req)
			if err != nil {
				return fmt.Errorf("checking manifest of %s: %w", req.Index, err)
			}
			if ok {
				logger.Info("index is up to date, skipping", slog.String("index", req.Index))
				s.skipped++
				continue
			}
		}

		if err := s.p.engine.Index(ctx, req); err != nil {
			return fmt.Errorf("indexing %s collection: %w", m, err)
		}
		manifest, err := engine.BuildManifest(s.p.engine.Name(), req)
		if err != nil {
			return fmt.Errorf("fingerprinting %s collection: %w", m, err)
		}
		if err := engine.WriteManifest(req.Index, manifest); err != nil {
			return err
		}
		s.built++
	}
	return nil
}

func (s *stepIndex) details() Report {
	return Report{"built": s.built, "skipped": s.skipped}
}

// stepTopics reformats the staged text and image shards of a split into topics.
type stepTopics struct {
	p       *pipeline
	setting benchmark.Setting
	split   benchmark.Split
	topics  int
}

func (s *stepTopics) stage() string { return stageTopics }

func (s *stepTopics) desc() string {
	return fmt.Sprintf("prepare %s topics for %s", s.split, settingLabel(s.setting, s.split))
}

func (s *stepTopics) run(ctx context.Context, logger *slog.Logger) error {
	for _, m := range benchmark.Modalities {
		in := s.p.layout.StagedShardPath(m, s.setting, s.split)
		out := s.p.layout.TopicsPath(m, s.setting, s.split)
		n, err := collection.ReformatTopics(ctx, in, out, s.p.topicWorkers)
		if err != nil {
			return fmt.Errorf("reformatting %s topics: %w", m, err)
		}
		logger.Info("wrote topics", slog.String("path", out), slog.Int("topics", n))
		s.topics += n
	}
	return nil
}

func (s *stepTopics) details() Report {
	return Report{"topics": s.topics}
}

// stepSearch runs both search directions for a split and setting.
type stepSearch struct {
	p       *pipeline
	split   benchmark.Split
	setting benchmark.Setting
}

func (s *stepSearch) stage() string { return stageSearch }

func (s *stepSearch) desc() string {
	return fmt.Sprintf("search %s %s", s.split, s.setting)
}

func (s *stepSearch) run(ctx context.Context, logger *slog.Logger) error {
	if err := os.MkdirAll(s.p.layout.RunsDir(), 0755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}
	for _, d := range benchmark.Directions {
		req := engine.DefaultSearchRequest(
			s.p.layout.IndexDir(d.IndexModality(), s.setting, s.split),
			s.p.layout.TopicsPath(d.TopicModality(), s.setting, s.split),
			s.p.layout.RunPath(s.split, d, s.setting),
		)
		fmt.Printf("Searching %s: %s %s\n", d, s.split, s.setting)
		if err := s.p.engine.Search(ctx, req); err != nil {
			return fmt.Errorf("searching %s: %w", d, err)
		}
		logger.Info("wrote run", slog.String("path", req.Output))
	}
	return nil
}

// stepEvaluate scores every run of a split against its qrels.
type stepEvaluate struct {
	p       *pipeline
	split   benchmark.Split
	results Report
}

func (s *stepEvaluate) stage() string { return stageEvaluate }

func (s *stepEvaluate) desc() string {
	return fmt.Sprintf("evaluate %s runs", s.split)
}

func (s *stepEvaluate) run(ctx context.Context, logger *slog.Logger) error {
	var (
		results   = make(Report)
		summaries = make(map[string]*eval.Summary)
	)
	for _, setting := range benchmark.Settings {
		for _, d := range benchmark.Directions {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := eval.EvaluateFiles(
				s.p.layout.RunPath(s.split, d, setting),
				s.p.layout.QrelsPath(s.split, d),
			)
			if err != nil {
				return fmt.Errorf("evaluating %s %s: %w", setting, d, err)
			}
			label := fmt.Sprintf("%s.%s", setting, d)
			logger.Info(
				"evaluated run",
				slog.String("run", label),
				slog.Int("queries", summary.Queries),
				slog.Float64("mrr@10", summary.MRR10),
				slog.Float64("recall@10", summary.Recall10),
				slog.Float64("recall@1000", summary.Recall1000),
				slog.Float64("ndcg@10", summary.NDCG10),
			)
			results[label] = Report{
				"queries":     summary.Queries,
				"mrr@10":      summary.MRR10,
				"recall@10":   summary.Recall10,
				"recall@1000": summary.Recall1000,
				"ndcg@10":     summary.NDCG10,
			}
			summaries[label] = summary
		}
	}
	s.results = results

	path := s.p.layout.EvalPath(s.split)
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding evaluation: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *stepEvaluate) details() Report {
	return s.results
}
