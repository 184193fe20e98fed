package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/hscells/trecresults"
	"github.com/turbopuffer/turbopuffer-go"
	"github.com/turbopuffer/turbopuffer-go/option"
	"github.com/turbopuffer/turbopuffer-go/packages/param"
	"golang.org/x/sync/errgroup"
)

// Turbopuffer indexes each collection into a turbopuffer namespace with a BM25
// full-text schema on the contents attribute.
type Turbopuffer struct {
	client    *turbopuffer.Client
	logger    *slog.Logger
	prefix    string
	batchSize int
}

var _ Engine = (*Turbopuffer)(nil)

// NewTurbopuffer returns an engine writing to namespaces named prefix plus
// the index directory name. An empty baseURL keeps the SDK default.
func NewTurbopuffer(logger *slog.Logger, apiKey, baseURL, prefix string) *Turbopuffer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := turbopuffer.NewClient(opts...)
	return &Turbopuffer{client: &client, logger: logger, prefix: prefix, batchSize: 10_000}
}

func (tp *Turbopuffer) Name() string {
	return "turbopuffer"
}

var namespaceInvalid = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// NamespaceName derives the namespace of an index directory.
func (tp *Turbopuffer) NamespaceName(indexDir string) string {
	return tp.prefix + namespaceInvalid.ReplaceAllString(filepath.Base(indexDir), "_")
}

var contentsSchema = map[string]turbopuffer.AttributeSchemaConfigParam{
	"contents": {
		Type: param.NewOpt(turbopuffer.AttributeType("string")),
		FullTextSearch: &turbopuffer.FullTextSearchConfigParam{
			Language:        turbopuffer.Language("english"),
			Stemming:        param.NewOpt(true),
			RemoveStopwords: param.NewOpt(true),
			CaseSensitive:   param.NewOpt(false),
		},
	},
}

// Deletes all the documents of a namespace. If the namespace doesn't exist, no-op.
func clearNamespace(ctx context.Context, ns turbopuffer.Namespace) error {
	if _, err := ns.DeleteAll(ctx, turbopuffer.NamespaceDeleteAllParams{}); err != nil {
		var apiErr *turbopuffer.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (tp *Turbopuffer) Index(ctx context.Context, req IndexRequest) error {
	shards, err := stagedShards(req.Input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(req.Index, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", req.Index, err)
	}

	name := tp.NamespaceName(req.Index)
	ns := tp.client.Namespace(name)
	if err := clearNamespace(ctx, ns); err != nil {
		return fmt.Errorf("clearing namespace %q: %w", name, err)
	}

	var (
		start = time.Now()
		rows  []turbopuffer.RowParam
		total int
		eg    = new(errgroup.Group)
	)
	eg.SetLimit(max(1, req.Threads))
	writeRows := func() {
		if len(rows) == 0 {
			return
		}
		params := turbopuffer.NamespaceWriteParams{
			UpsertRows: rows,
			Schema:     contentsSchema,
		}
		rows = nil
		eg.Go(func() error {
			if _, err := ns.Write(ctx, params); err != nil {
				return fmt.Errorf("upserting rows to namespace %q: %w", name, err)
			}
			return nil
		})
	}

	for _, shard := range shards {
		for doc, err := range readDocuments(shard) {
			if err != nil {
				eg.Wait()
				return err
			}
			row := turbopuffer.RowParam{"id": doc.ID, "contents": doc.Contents}
			if req.StoreRaw {
				row["raw"] = string(doc.Raw)
			}
			rows = append(rows, row)
			total++
			if len(rows) >= tp.batchSize {
				writeRows()
			}
		}
	}
	writeRows()
	if err := eg.Wait(); err != nil {
		return err
	}

	tp.logger.Info(
		"upserted namespace",
		slog.String("namespace", name),
		slog.Int("documents", total),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// rowHits reads the document ids and BM25 scores of query result rows.
func rowHits(rows []turbopuffer.Row) ([]string, []float64, error) {
	ids := make([]string, len(rows))
	scores := make([]float64, len(rows))
	for i, row := range rows {
		switch id := row["id"].(type) {
		case string:
			ids[i] = id
		case float64:
			ids[i] = strconv.FormatFloat(id, 'f', -1, 64)
		case nil:
			return nil, nil, fmt.Errorf("row %d has no id", i)
		default:
			ids[i] = fmt.Sprint(id)
		}
		dist, ok := row["$dist"].(float64)
		if !ok {
			return nil, nil, fmt.Errorf("row %d (id %s) has no $dist score", i, ids[i])
		}
		scores[i] = dist
	}
	return ids, scores, nil
}

func (tp *Turbopuffer) Search(ctx context.Context, req SearchRequest) error {
	topics, err := readTopics(req.Topics, req.TopicField)
	if err != nil {
		return err
	}

	var (
		name  = tp.NamespaceName(req.Index)
		ns    = tp.client.Namespace(name)
		start = time.Now()
		tag   = req.runTag(tp.Name())
		lists = make([]trecresults.ResultList, len(topics))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, req.Parallelism))
	for i, t := range topics {
		eg.Go(func() error {
			resp, err := ns.Query(ctx, turbopuffer.NamespaceQueryParams{
				RankBy: turbopuffer.NewRankByTextBM25("contents", t.Text),
				TopK:   param.NewOpt(int64(req.Hits)),
			})
			if err != nil {
				return fmt.Errorf("querying namespace %s for topic %s: %w", name, t.ID, err)
			}
			ids, scores, err := rowHits(resp.Rows)
			if err != nil {
				return fmt.Errorf("reading results of topic %s: %w", t.ID, err)
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
	tp.logger.Info(
		"queried namespace",
		slog.String("namespace", name),
		slog.Int("topics", len(topics)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
