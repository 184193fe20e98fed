package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/hscells/trecresults"
	"golang.org/x/sync/errgroup"
)

const (
	blugeContentsField = "contents"
	blugeRawField      = "raw"
	blugeIDField       = "_id"
)

// Bluge builds and searches an embedded bluge index inside the index directory.
// Scoring is bluge's default BM25.
type Bluge struct {
	logger    *slog.Logger
	batchSize int
}

var _ Engine = (*Bluge)(nil)

func NewBluge(logger *slog.Logger) *Bluge {
	return &Bluge{logger: logger, batchSize: 1000}
}

func (b *Bluge) Name() string {
	return "bluge"
}

func (b *Bluge) Index(ctx context.Context, req IndexRequest) error {
	shards, err := stagedShards(req.Input)
	if err != nil {
		return err
	}
	// A rebuild replaces whatever was there before.
	if err := os.RemoveAll(req.Index); err != nil {
		return fmt.Errorf("clearing %s: %w", req.Index, err)
	}

	start := time.Now()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(req.Index))
	if err != nil {
		return fmt.Errorf("opening bluge writer at %s: %w", req.Index, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, req.Threads))
	counts := make([]int, len(shards))
	for i, shard := range shards {
		eg.Go(func() error {
			n, err := b.indexShard(ctx, writer, shard, req)
			counts[i] = n
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing bluge writer: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	b.logger.Info(
		"built bluge index",
		slog.String("index", req.Index),
		slog.Int("shards", len(shards)),
		slog.Int("documents", total),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (b *Bluge) indexShard(ctx context.Context, writer *bluge.Writer, shard string, req IndexRequest) (int, error) {
	var (
		batch = bluge.NewBatch()
		size  int
		total int
	)
	for doc, err := range readDocuments(shard) {
		if err != nil {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		contents := bluge.NewTextField(blugeContentsField, doc.Contents)
		if req.StorePositions {
			contents = contents.SearchTermPositions()
		}
		bdoc := bluge.NewDocument(doc.ID).AddField(contents)
		if req.StoreRaw {
			bdoc.AddField(bluge.NewStoredOnlyField(blugeRawField, doc.Raw))
		}
		batch.Update(bdoc.ID(), bdoc)
		size++
		total++

		if size >= b.batchSize {
			if err := writer.Batch(batch); err != nil {
				return total, fmt.Errorf("indexing %s: %w", shard, err)
			}
			batch.Reset()
			size = 0
		}
	}
	if size > 0 {
		if err := writer.Batch(batch); err != nil {
			return total, fmt.Errorf("indexing %s: %w", shard, err)
		}
	}
	return total, nil
}

func (b *Bluge) Search(ctx context.Context, req SearchRequest) error {
	topics, err := readTopics(req.Topics, req.TopicField)
	if err != nil {
		return err
	}

	reader, err := bluge.OpenReader(bluge.DefaultConfig(req.Index))
	if err != nil {
		return fmt.Errorf("opening bluge reader at %s: %w", req.Index, err)
	}
	defer reader.Close()

	var (
		start = time.Now()
		tag   = req.runTag(b.Name())
		lists = make([]trecresults.ResultList, len(topics))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, req.Parallelism))
	for i, t := range topics {
		eg.Go(func() error {
			ids, scores, err := b.searchTopic(ctx, reader, t.Text, req.Hits)
			if err != nil {
				return fmt.Errorf("searching topic %s: %w", t.ID, err)
			}
			lists[i] = rankedList(t.ID, tag, ids, scores)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := writeRun(req.Output, lists); err != nil {
		return err
	}
	b.logger.Info(
		"searched bluge index",
		slog.String("index", req.Index),
		slog.Int("topics", len(topics)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (b *Bluge) searchTopic(ctx context.Context, reader *bluge.Reader, text string, hits int) ([]string, []float64, error) {
	query := bluge.NewMatchQuery(text).SetField(blugeContentsField)
	it, err := reader.Search(ctx, bluge.NewTopNSearch(hits, query))
	if err != nil {
		return nil, nil, err
	}

	var (
		ids    []string
		scores []float64
	)
	for {
		match, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		if match == nil {
			break
		}
		var id string
		if err := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == blugeIDField {
				id = string(value)
				return false
			}
			return true
		}); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		scores = append(scores, match.Score)
	}
	return ids, scores, nil
}
