package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-ir/bm25-baseline/hub"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset/datasettest"
)

var qrelRows = []datasettest.QrelRow{
	{TextID: "t1", Q0: "Q0", ImageID: "i1", Rel: 1},
	{TextID: "t2", Q0: "Q0", ImageID: "i2", Rel: 1},
}

func TestDirSourceReadsAllColumns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, datasettest.WriteSplit(dir, "org/qrels", "validation", qrelRows))

	table, err := NewDirSource(dir).Read(context.Background(), "org/qrels", "validation", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"text_id", "Q0", "image_id", "rel"}, table.Columns)
	assert.Equal(t, [][]string{
		{"t1", "Q0", "i1", "1"},
		{"t2", "Q0", "i2", "1"},
	}, table.Rows)
	assert.Equal(t, 2, table.ColumnIndex("IMAGE_ID"))
	assert.Equal(t, -1, table.ColumnIndex("missing"))
}

func TestDirSourceProjectsColumns(t *testing.T) {
	dir := t.TempDir()
	rows := []datasettest.TextRow{
		{TextID: "t1", PageTitle: "Apple", SectionTitle: "Fruit", ContextSectionDescription: "A red apple."},
	}
	require.NoError(t, datasettest.WriteSplit(dir, "org/texts", "train", rows))

	table, err := NewDirSource(dir).Read(context.Background(), "org/texts", "train", []string{"section_title", "text_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"section_title", "text_id"}, table.Columns)
	assert.Equal(t, [][]string{{"Fruit", "t1"}}, table.Rows)

	_, err = NewDirSource(dir).Read(context.Background(), "org/texts", "train", []string{"nope"})
	assert.ErrorContains(t, err, `column "nope" not found`)
}

func TestDirSourceConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	splitDir := filepath.Join(dir, "org", "qrels", "test")
	require.NoError(t, datasettest.WriteParquet(filepath.Join(splitDir, "0000.parquet"), qrelRows[:1]))
	require.NoError(t, datasettest.WriteParquet(filepath.Join(splitDir, "0001.parquet"), qrelRows[1:]))

	table, err := NewDirSource(dir).Read(context.Background(), "org/qrels", "test", nil)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "t1", table.Rows[0][0])
	assert.Equal(t, "t2", table.Rows[1][0])
}

func TestDirSourceMissingSplit(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Read(context.Background(), "org/qrels", "other", nil)
	assert.ErrorContains(t, err, `no parquet files for split "other"`)
}

func TestHubSourceDownloadsOnce(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.parquet")
	require.NoError(t, datasettest.WriteParquet(fixture, qrelRows))
	payload, err := os.ReadFile(fixture)
	require.NoError(t, err)

	var downloads atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/parquet", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"parquet_files":[
			{"dataset":"org/qrels","config":"default","split":"validation","url":"%[1]s/files/0000.parquet","filename":"0000.parquet","size":%[2]d},
			{"dataset":"org/qrels","config":"default","split":"train","url":"%[1]s/files/other.parquet","filename":"0000.parquet","size":%[2]d}
		]}`, srv.URL, len(payload))
	})
	mux.HandleFunc("/files/0000.parquet", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		w.Write(payload)
	})

	client := hub.NewClient(hub.WithBaseURL(srv.URL), hub.WithRateLimit(0))
	src := NewHubSource(client, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	for range 2 {
		table, err := src.Read(context.Background(), "org/qrels", "validation", []string{"image_id", "text_id"})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"i1", "t1"}, {"i2", "t2"}}, table.Rows)
	}
	assert.EqualValues(t, 1, downloads.Load())

	_, err = src.Read(context.Background(), "org/qrels", "other", nil)
	assert.Error(t, err)
}
