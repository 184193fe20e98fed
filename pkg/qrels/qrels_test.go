package qrels

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset/datasettest"
)

const repo = "TREC-AToMiC/AToMiC-Qrels-v0.2"

func TestPrepareWritesBothDirections(t *testing.T) {
	datasets := t.TempDir()
	require.NoError(t, datasettest.WriteSplit(datasets, repo, "validation", []datasettest.QrelRow{
		{TextID: "t1", Q0: "Q0", ImageID: "i1", Rel: 1},
		{TextID: "t2", Q0: "Q0", ImageID: "i9", Rel: 1},
	}))

	layout := benchmark.Layout{Root: t.TempDir()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := Prepare(context.Background(), logger, dataset.NewDirSource(datasets), repo, benchmark.SplitValidation, layout)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Records)

	t2i, err := os.ReadFile(layout.QrelsPath(benchmark.SplitValidation, benchmark.DirectionT2I))
	require.NoError(t, err)
	assert.Equal(t, "t1 Q0 i1 1\nt2 Q0 i9 1\n", string(t2i))

	i2t, err := os.ReadFile(layout.QrelsPath(benchmark.SplitValidation, benchmark.DirectionI2T))
	require.NoError(t, err)
	assert.Equal(t, "i1 Q0 t1 1\ni9 Q0 t2 1\n", string(i2t))
}

func TestPrepareIsIdempotent(t *testing.T) {
	datasets := t.TempDir()
	require.NoError(t, datasettest.WriteSplit(datasets, repo, "test", []datasettest.QrelRow{
		{TextID: "t1", Q0: "Q0", ImageID: "i1", Rel: 1},
	}))

	layout := benchmark.Layout{Root: t.TempDir()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := dataset.NewDirSource(datasets)
	for range 2 {
		_, err := Prepare(context.Background(), logger, src, repo, benchmark.SplitTest, layout)
		require.NoError(t, err)
	}

	i2t, err := os.ReadFile(layout.QrelsPath(benchmark.SplitTest, benchmark.DirectionI2T))
	require.NoError(t, err)
	assert.Equal(t, "i1 Q0 t1 1\n", string(i2t))
}

func TestPrepareEmptySplit(t *testing.T) {
	datasets := t.TempDir()
	require.NoError(t, datasettest.WriteSplit(datasets, repo, "other", []datasettest.QrelRow{}))

	layout := benchmark.Layout{Root: t.TempDir()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := Prepare(context.Background(), logger, dataset.NewDirSource(datasets), repo, benchmark.SplitOther, layout)
	require.NoError(t, err)
	assert.Zero(t, result.Records)

	for _, path := range []string{result.T2IPath, result.I2TPath} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Empty(t, data)
	}
}

func TestWriteProjectionMissingColumn(t *testing.T) {
	table := &dataset.Table{Columns: []string{"text_id", "image_id"}, Rows: [][]string{{"t1", "i1"}}}
	var buf bytes.Buffer
	err := WriteProjection(&buf, table, I2TColumns)
	assert.ErrorContains(t, err, `no column "Q0"`)
}
