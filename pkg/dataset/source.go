// Package dataset reads splits of Hugging Face parquet datasets into string
// tables, either through the hub or from a local mirror.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atomic-ir/bm25-baseline/hub"
)

// Table is a decoded dataset split. Every row holds one string per column.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, matched case-insensitively,
// or -1 if the table has no such column.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// appendTable concatenates the rows of other onto t. Both tables must share
// their columns.
func (t *Table) appendTable(other *Table) error {
	if t.Columns == nil {
		t.Columns = other.Columns
	} else if len(t.Columns) != len(other.Columns) {
		return fmt.Errorf("column mismatch: %v vs %v", t.Columns, other.Columns)
	} else {
		for i := range t.Columns {
			if !strings.EqualFold(t.Columns[i], other.Columns[i]) {
				return fmt.Errorf("column mismatch: %v vs %v", t.Columns, other.Columns)
			}
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}

// Source loads one split of a dataset repository. A nil columns slice loads
// every top-level column.
type Source interface {
	Read(ctx context.Context, repo, split string, columns []string) (*Table, error)
}

// HubSource reads parquet exports listed by the Hugging Face datasets server,
// caching downloads under a local directory.
type HubSource struct {
	client   *hub.Client
	cacheDir string
	logger   *slog.Logger
}

var _ Source = (*HubSource)(nil)

func NewHubSource(client *hub.Client, cacheDir string, logger *slog.Logger) *HubSource {
	return &HubSource{client: client, cacheDir: cacheDir, logger: logger}
}

func (s *HubSource) Read(ctx context.Context, repo, split string, columns []string) (*Table, error) {
	files, err := s.client.ListParquetFiles(ctx, repo)
	if err != nil {
		return nil, err
	}
	files = hub.SplitFiles(files, split)
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset %s has no parquet files for split %q", repo, split)
	}

	table := &Table{}
	for _, f := range files {
		path := filepath.Join(s.cacheDir, "atomic-bm25", filepath.FromSlash(repo), f.Config, f.Split, f.Filename)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := s.client.Download(ctx, s.logger, f.URL, path); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("checking cached file %s: %w", path, err)
		}

		t, err := readParquetFile(path, columns)
		if err != nil {
			return nil, err
		}
		if err := table.appendTable(t); err != nil {
			return nil, fmt.Errorf("%s split %s: %w", repo, split, err)
		}
	}

	s.logger.Debug(
		"loaded dataset split",
		slog.String("repo", repo),
		slog.String("split", split),
		slog.Int("files", len(files)),
		slog.Int("rows", table.Len()),
	)
	return table, nil
}

// DirSource reads datasets mirrored on disk as <dir>/<repo>/<split>/*.parquet.
type DirSource struct {
	dir string
}

var _ Source = (*DirSource)(nil)

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Read(ctx context.Context, repo, split string, columns []string) (*Table, error) {
	pattern := filepath.Join(s.dir, filepath.FromSlash(repo), split, "*.parquet")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("dataset %s has no parquet files for split %q under %s", repo, split, s.dir)
	}

	table := &Table{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := readParquetFile(path, columns)
		if err != nil {
			return nil, err
		}
		if err := table.appendTable(t); err != nil {
			return nil, fmt.Errorf("%s split %s: %w", repo, split, err)
		}
	}
	return table, nil
}
