// Package collection turns AToMiC dataset splits into Anserini JsonCollection
// shards, stages them per setting, and reformats staged shards into topics.
package collection

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset"
)

// Repos names the three AToMiC dataset repositories.
type Repos struct {
	Images string
	Texts  string
	Qrels  string
}

// Document is one JsonCollection record.
type Document struct {
	ID       string `json:"id"`
	Contents string `json:"contents"`
}

type fieldLayout struct {
	repo     func(Repos) string
	id       string
	contents []string
}

var fieldColumns = map[benchmark.Field]fieldLayout{
	benchmark.FieldText: {
		repo:     func(r Repos) string { return r.Texts },
		id:       "text_id",
		contents: []string{"page_title", "section_title", "context_section_description"},
	},
	benchmark.FieldImageCaption: {
		repo: func(r Repos) string { return r.Images },
		id:   "image_id",
		contents: []string{
			"caption_reference_description",
			"caption_alt_text_description",
			"caption_attribution_description",
		},
	},
}

// EncodeResult describes a written shard.
type EncodeResult struct {
	Path      string
	Documents int
}

// Encode writes one split of a field as a JSONL shard in the modality's
// collection directory. The qrels repository plays no part in encoding.
func Encode(ctx context.Context, logger *slog.Logger, src dataset.Source, split benchmark.Split, field benchmark.Field, repos Repos, layout benchmark.Layout) (*EncodeResult, error) {
	fl, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}

	start := time.Now()
	repo := fl.repo(repos)
	columns := append([]string{fl.id}, fl.contents...)
	table, err := src.Read(ctx, repo, string(split), columns)
	if err != nil {
		return nil, fmt.Errorf("loading %s split %s: %w", repo, split, err)
	}

	if err := os.MkdirAll(layout.CollectionDir(field.Modality()), 0755); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	path := layout.ShardPath(split, field)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	var (
		bw  = bufio.NewWriter(f)
		enc = json.NewEncoder(bw)
		bar = progressbar.Default(int64(table.Len()), fmt.Sprintf("encoding %s %s", split, field))
	)
	enc.SetEscapeHTML(false)
	for _, row := range table.Rows {
		doc := Document{ID: row[0], Contents: joinContents(row[1:])}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		bar.Add(1)
	}
	bar.Finish()

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}

	logger.Info(
		"encoded shard",
		slog.String("path", path),
		slog.Int("documents", table.Len()),
		slog.Duration("took", time.Since(start)),
	)
	return &EncodeResult{Path: path, Documents: table.Len()}, nil
}

func joinContents(parts []string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
