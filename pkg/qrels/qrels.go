// Package qrels projects the AToMiC relevance judgments into TREC qrels files
// for both search directions.
package qrels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset"
)

// I2TColumns is the column order of image-to-text qrels: the image is the topic
// and the text is the judged document.
var I2TColumns = []string{"image_id", "Q0", "text_id", "rel"}

// Result describes the qrels written for one split.
type Result struct {
	T2IPath string
	I2TPath string
	Records int
}

// Prepare loads one split of the qrels dataset and writes it twice: in the
// dataset's own column order as the text-to-image qrels, and reordered as
// I2TColumns for image-to-text.
func Prepare(ctx context.Context, logger *slog.Logger, src dataset.Source, repo string, split benchmark.Split, layout benchmark.Layout) (*Result, error) {
	if err := os.MkdirAll(layout.QrelsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating qrels directory: %w", err)
	}

	table, err := src.Read(ctx, repo, string(split), nil)
	if err != nil {
		return nil, fmt.Errorf("loading %s split %s: %w", repo, split, err)
	}

	result := &Result{
		T2IPath: layout.QrelsPath(split, benchmark.DirectionT2I),
		I2TPath: layout.QrelsPath(split, benchmark.DirectionI2T),
		Records: table.Len(),
	}
	if err := writeFile(result.T2IPath, table, table.Columns); err != nil {
		return nil, err
	}
	if err := writeFile(result.I2TPath, table, I2TColumns); err != nil {
		return nil, err
	}

	logger.Info(
		"wrote qrels",
		slog.String("split", string(split)),
		slog.Int("records", result.Records),
	)
	return result, nil
}

func writeFile(path string, table *dataset.Table, columns []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteProjection(f, table, columns); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// WriteProjection writes the given columns of every row, space-separated with
// no header and no quoting.
func WriteProjection(w io.Writer, table *dataset.Table, columns []string) error {
	indexes := make([]int, len(columns))
	for i, col := range columns {
		idx := table.ColumnIndex(col)
		if idx < 0 {
			return fmt.Errorf("qrels have no column %q (have %v)", col, table.Columns)
		}
		indexes[i] = idx
	}

	bw := bufio.NewWriter(w)
	fields := make([]string, len(indexes))
	for _, row := range table.Rows {
		for i, idx := range indexes {
			fields[i] = row[idx]
		}
		bw.WriteString(strings.Join(fields, " "))
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
