package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/hscells/trecresults"
	"golang.org/x/sync/errgroup"
)

// Elasticsearch indexes into and searches an Elasticsearch cluster. Each index
// directory maps to one Elasticsearch index; the directory itself only holds
// the build manifest.
type Elasticsearch struct {
	client    *elasticsearch.Client
	logger    *slog.Logger
	batchSize int
}

var _ Engine = (*Elasticsearch)(nil)

func NewElasticsearch(logger *slog.Logger, addresses []string) (*Elasticsearch, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Elasticsearch{client: client, logger: logger, batchSize: 1000}, nil
}

func (e *Elasticsearch) Name() string {
	return "elasticsearch"
}

var indexNameInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// IndexName derives the Elasticsearch index name from an index directory.
func IndexName(indexDir string) string {
	name := strings.ToLower(filepath.Base(indexDir))
	return "atomic-" + strings.Trim(indexNameInvalid.ReplaceAllString(name, "-"), "-")
}

// indexSettings matches Anserini's BM25 defaults (k1=0.9, b=0.4).
var indexSettings = map[string]any{
	"settings": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 0,
		"index": map[string]any{
			"similarity": map[string]any{
				"default": map[string]any{"type": "BM25", "k1": 0.9, "b": 0.4},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"contents": map[string]any{"type": "text", "analyzer": "english"},
			"raw":      map[string]any{"type": "keyword", "index": false, "doc_values": false},
		},
	},
}

func checkResponse(res *esapi.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if res.IsError() {
		defer res.Body.Close()
		return fmt.Errorf("%s: %s", action, res.String())
	}
	return nil
}

func (e *Elasticsearch) Index(ctx context.Context, req IndexRequest) error {
	shards, err := stagedShards(req.Input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(req.Index, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", req.Index, err)
	}

	name := IndexName(req.Index)
	start := time.Now()

	res, err := e.client.Indices.Delete([]string{name},
		e.client.Indices.Delete.WithContext(ctx),
		e.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err := checkResponse(res, err, "deleting index "+name); err != nil {
		return err
	}
	res.Body.Close()

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(indexSettings); err != nil {
		return fmt.Errorf("encoding index settings: %w", err)
	}
	res, err = e.client.Indices.Create(name,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(&body),
	)
	if err := checkResponse(res, err, "creating index "+name); err != nil {
		return err
	}
	res.Body.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, req.Threads))
	for _, shard := range shards {
		eg.Go(func() error {
			return e.bulkShard(ctx, name, shard, req.StoreRaw)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	res, err = e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithContext(ctx),
		e.client.Indices.Refresh.WithIndex(name),
	)
	if err := checkResponse(res, err, "refreshing index "+name); err != nil {
		return err
	}
	res.Body.Close()

	e.logger.Info(
		"built elasticsearch index",
		slog.String("index", name),
		slog.Int("shards", len(shards)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (e *Elasticsearch) bulkShard(ctx context.Context, name, shard string, storeRaw bool) error {
	var (
		buf   bytes.Buffer
		count int
	)
	flush := func() error {
		if count == 0 {
			return nil
		}
		res, err := e.client.Bulk(&buf,
			e.client.Bulk.WithContext(ctx),
			e.client.Bulk.WithIndex(name),
		)
		if err := checkResponse(res, err, "bulk indexing "+shard); err != nil {
			return err
		}
		defer res.Body.Close()

		var result struct {
			Errors bool `json:"errors"`
			Items  []map[string]struct {
				Error json.RawMessage `json:"error"`
			} `json:"items"`
		}
		if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding bulk response: %w", err)
		}
		if result.Errors {
			for _, item := range result.Items {
				for _, op := range item {
					if op.Error != nil {
						return fmt.Errorf("bulk indexing %s: %s", shard, op.Error)
					}
				}
			}
		}
		buf.Reset()
		count = 0
		return nil
	}

	enc := json.NewEncoder(&buf)
	for doc, err := range readDocuments(shard) {
		if err != nil {
			return err
		}
		source := map[string]any{"contents": doc.Contents}
		if storeRaw {
			source["raw"] = string(doc.Raw)
		}
		enc.Encode(map[string]any{"index": map[string]any{"_id": doc.ID}})
		if err := enc.Encode(source); err != nil {
			return fmt.Errorf("encoding %s: %w", doc.ID, err)
		}
		count++
		if count >= e.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (e *Elasticsearch) Search(ctx context.Context, req SearchRequest) error {
	topics, err := readTopics(req.Topics, req.TopicField)
	if err != nil {
		return err
	}

	var (
		name  = IndexName(req.Index)
		start = time.Now()
		tag   = req.runTag(e.Name())
		lists = make([]trecresults.ResultList, len(topics))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, req.Parallelism))
	for i, t := range topics {
		eg.Go(func() error {
			ids, scores, err := e.searchTopic(ctx, name, t.Text, req.Hits)
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
	e.logger.Info(
		"searched elasticsearch index",
		slog.String("index", name),
		slog.Int("topics", len(topics)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (e *Elasticsearch) searchTopic(ctx context.Context, name, text string, hits int) ([]string, []float64, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(map[string]any{
		"_source": false,
		"query": map[string]any{
			"match": map[string]any{"contents": text},
		},
	}); err != nil {
		return nil, nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(name),
		e.client.Search.WithBody(&body),
		e.client.Search.WithSize(hits),
	)
	if err := checkResponse(res, err, "searching "+name); err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	var result struct {
		Hits struct {
			Hits []struct {
				ID    string  `json:"_id"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, nil, fmt.Errorf("decoding search response: %w", err)
	}

	ids := make([]string, len(result.Hits.Hits))
	scores := make([]float64, len(result.Hits.Hits))
	for i, hit := range result.Hits.Hits {
		ids[i] = hit.ID
		scores[i] = hit.Score
	}
	return ids, scores, nil
}
