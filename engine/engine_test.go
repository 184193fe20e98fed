package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hscells/trecresults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbopuffer/turbopuffer-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIndexRequestArgs(t *testing.T) {
	req := DefaultIndexRequest("/out/text-collection.small.validation", "/out/indexes/lucene-index.atomic.text.flat.small.validation")
	assert.Equal(t, []string{
		"-input", "/out/text-collection.small.validation",
		"-collection", "JsonCollection",
		"-index", "/out/indexes/lucene-index.atomic.text.flat.small.validation",
		"-generator", "DefaultLuceneDocumentGenerator",
		"-threads", "8",
		"-storePositions", "-storeDocvectors", "-storeRaw",
	}, req.Args())

	req.StoreDocvectors = false
	assert.NotContains(t, req.Args(), "-storeDocvectors")
}

func TestSearchRequestArgs(t *testing.T) {
	req := DefaultSearchRequest("/idx", "/topics.jsonl", "/runs/run.trec")
	assert.Equal(t, []string{
		"-index", "/idx",
		"-topics", "/topics.jsonl",
		"-topicreader", "JsonString",
		"-topicfield", "title",
		"-output", "/runs/run.trec",
		"-bm25",
		"-hits", "1000",
		"-parallelism", "64",
		"-threads", "64",
	}, req.Args())
	assert.Equal(t, "bluge", req.runTag("bluge"))
}

// fakeJava writes a script standing in for the JVM that records its argv.
func fakeJava(t *testing.T, exitCode string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	argsOut := filepath.Join(dir, "args")
	script := filepath.Join(dir, "java")
	body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"" + argsOut + "\"\nexit " + exitCode + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script, argsOut
}

func TestAnseriniInvokesIndexCollection(t *testing.T) {
	java, argsOut := fakeJava(t, "0")
	a := NewAnserini(discardLogger(), java, "/opt/anserini-fatjar.jar", []string{"-Xmx4g"})

	req := DefaultIndexRequest("/in", "/idx")
	require.NoError(t, a.Index(context.Background(), req))

	data, err := os.ReadFile(argsOut)
	require.NoError(t, err)
	argv := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	want := append([]string{"-Xmx4g", "-cp", "/opt/anserini-fatjar.jar", "io.anserini.index.IndexCollection"}, req.Args()...)
	assert.Equal(t, want, argv)
}

func TestAnseriniExitError(t *testing.T) {
	java, _ := fakeJava(t, "3")
	a := NewAnserini(discardLogger(), java, "/opt/anserini-fatjar.jar", nil)

	err := a.Search(context.Background(), DefaultSearchRequest("/idx", "/topics", "/run"))
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "io.anserini.search.SearchCollection", exitErr.Class)
}

func TestAnseriniRequiresJar(t *testing.T) {
	a := NewAnserini(discardLogger(), "", "", nil)
	assert.ErrorContains(t, a.Index(context.Background(), DefaultIndexRequest("/in", "/idx")), "ATOMIC_ANSERINI_JAR")
}

func writeCorpus(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validation.text.jsonl"), []byte(
		`{"id":"t1","contents":"a red apple on a wooden table"}`+"\n"+
			`{"id":"t2","contents":"a yellow banana in a bowl"}`+"\n"+
			`{"id":"t3","contents":"the history of the roman empire"}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.text.jsonl"), []byte(
		`{"id":"t4","contents":"green apple orchard in autumn"}`+"\n"), 0644))
	// Topics kept alongside the shards must not be indexed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validation.text.search.jsonl"), []byte(
		`{"id":"t1","title":"a red apple on a wooden table"}`+"\n"), 0644))
}

func TestBlugeIndexAndSearch(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "text-collection.base")
	writeCorpus(t, input)
	index := filepath.Join(root, "indexes", "lucene-index.atomic.text.flat.base")

	b := NewBluge(discardLogger())
	require.NoError(t, b.Index(context.Background(), DefaultIndexRequest(input, index)))

	topics := filepath.Join(root, "topics.jsonl")
	require.NoError(t, os.WriteFile(topics, []byte(
		`{"id":"i1","title":"red apple"}`+"\n"+
			`{"id":"i2","title":"banana bowl"}`+"\n"+
			`{"id":"i3","title":"quantum chromodynamics"}`+"\n"), 0644))

	out := filepath.Join(root, "runs", "run.trec")
	req := DefaultSearchRequest(index, topics, out)
	req.Hits = 10
	require.NoError(t, b.Search(context.Background(), req))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	run, err := trecresults.ResultsFromReader(f)
	require.NoError(t, err)

	red := run.Results["i1"]
	require.NotEmpty(t, red)
	assert.Equal(t, "t1", red[0].DocId)
	assert.EqualValues(t, 1, red[0].Rank)
	assert.Equal(t, "bluge", red[0].RunName)
	for _, r := range red {
		assert.NotEqual(t, "t3", r.DocId)
	}

	banana := run.Results["i2"]
	require.NotEmpty(t, banana)
	assert.Equal(t, "t2", banana[0].DocId)

	assert.Empty(t, run.Results["i3"])
}

func TestManifestResume(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "staged")
	writeCorpus(t, input)
	index := filepath.Join(root, "index")
	req := DefaultIndexRequest(input, index)

	ok, current, err := UpToDate("bluge", req)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, current.Inputs, 2)
	assert.Equal(t, "test.text.jsonl", current.Inputs[0].Name)
	assert.Len(t, current.Inputs[0].BLAKE3, 64)

	require.NoError(t, WriteManifest(index, current))
	ok, _, err = UpToDate("bluge", req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = UpToDate("anserini", req)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(input, "test.text.jsonl"), []byte(`{"id":"t9","contents":"changed"}`+"\n"), 0644))
	ok, _, err = UpToDate("bluge", req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadTopicsNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":42,"title":"x"}`+"\n\n"+`{"id":"b","title":"y"}`+"\n"), 0644))

	topics, err := readTopics(path, "title")
	require.NoError(t, err)
	assert.Equal(t, []topic{{ID: "42", Text: "x"}, {ID: "b", Text: "y"}}, topics)

	_, err = readTopics(path, "contents")
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "atomic-lucene-index-atomic-text-flat-small-validation",
		IndexName("/out/indexes/lucene-index.atomic.text.flat.small.validation"))

	tp := &Turbopuffer{prefix: "atomic_"}
	assert.Equal(t, "atomic_lucene-index.atomic.image.flat.base",
		tp.NamespaceName("/out/indexes/lucene-index.atomic.image.flat.base"))
}

func TestTurbopufferSearchRanksByBM25(t *testing.T) {
	t.Setenv("TURBOPUFFER_REGION", "")
	var queries []map[string]any
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/namespaces/atomic_lucene-index.atomic.text.flat.base/query", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		queries = append(queries, body)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"billing":{},"performance":{},"rows":[`+
			`{"id":"t1","$dist":3.5},{"id":7,"$dist":1.25}]}`)
	}))
	defer srv.Close()

	root := t.TempDir()
	topics := filepath.Join(root, "topics.jsonl")
	require.NoError(t, os.WriteFile(topics, []byte(`{"id":"i1","title":"red apple"}`+"\n"), 0644))

	out := filepath.Join(root, "runs", "run.trec")
	req := DefaultSearchRequest(filepath.Join(root, "indexes", "lucene-index.atomic.text.flat.base"), topics, out)
	req.Hits = 5

	tp := NewTurbopuffer(discardLogger(), "tpuf-test", srv.URL, "atomic_")
	require.NoError(t, tp.Search(context.Background(), req))

	require.Len(t, queries, 1)
	assert.Equal(t, []any{"contents", "BM25", "red apple"}, queries[0]["rank_by"])
	assert.EqualValues(t, 5, queries[0]["top_k"])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	run, err := trecresults.ResultsFromReader(f)
	require.NoError(t, err)
	hits := run.Results["i1"]
	require.Len(t, hits, 2)
	assert.Equal(t, "t1", hits[0].DocId)
	assert.InDelta(t, 3.5, hits[0].Score, 1e-9)
	assert.Equal(t, "7", hits[1].DocId)
	assert.Equal(t, "turbopuffer", hits[1].RunName)
}

func TestRowHitsRequiresScores(t *testing.T) {
	ids, scores, err := rowHits([]turbopuffer.Row{{"id": "a", "$dist": 2.0}, {"id": 1e6, "$dist": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "1000000"}, ids)
	assert.Equal(t, []float64{2, 1}, scores)

	_, _, err = rowHits([]turbopuffer.Row{{"id": "a"}})
	assert.ErrorContains(t, err, "$dist")

	_, _, err = rowHits([]turbopuffer.Row{{"$dist": 1.0}})
	assert.ErrorContains(t, err, "no id")
}
