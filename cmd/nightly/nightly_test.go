package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
)

// writeRuns writes qrels and a run for every setting and direction of split.
// Topic q1 finds its relevant document first; q2 finds it second.
func writeRuns(t *testing.T, layout benchmark.Layout, split benchmark.Split) {
	t.Helper()
	require.NoError(t, os.MkdirAll(layout.QrelsDir(), 0755))
	require.NoError(t, os.MkdirAll(layout.RunsDir(), 0755))
	for _, d := range benchmark.Directions {
		qrels := "q1 Q0 d1 1\nq2 Q0 d2 1\n"
		require.NoError(t, os.WriteFile(layout.QrelsPath(split, d), []byte(qrels), 0644))
		for _, setting := range benchmark.Settings {
			tag := fmt.Sprintf("%s-%s", setting, d)
			run := strings.Join([]string{
				"q1 Q0 d1 1 2.0 " + tag,
				"q1 Q0 d9 2 1.0 " + tag,
				"q2 Q0 d9 1 2.0 " + tag,
				"q2 Q0 d2 2 1.0 " + tag,
			}, "\n") + "\n"
			require.NoError(t, os.WriteFile(layout.RunPath(split, d, setting), []byte(run), 0644))
		}
	}
}

func TestEvaluateRuns(t *testing.T) {
	layout := benchmark.Layout{Root: t.TempDir()}
	writeRuns(t, layout, benchmark.SplitValidation)

	results, err := evaluateRuns(layout, benchmark.SplitValidation, "bluge", 200, 7)
	require.NoError(t, err)
	assert.Equal(t, "bluge", results.EngineLabel)
	require.Len(t, results.Runs, len(benchmark.Settings)*len(benchmark.Directions))

	first := results.Runs[0]
	assert.Equal(t, "small.i2t", first.Label)
	assert.Equal(t, 2, first.Queries)
	assert.InDelta(t, 0.75, first.MRR10, 1e-9)
	assert.InDelta(t, 1.0, first.Recall1000, 1e-9)
	assert.LessOrEqual(t, first.MRR10Low, first.MRR10)
	assert.GreaterOrEqual(t, first.MRR10High, first.MRR10)
	assert.GreaterOrEqual(t, first.MRR10Low, 0.5)
	assert.LessOrEqual(t, first.MRR10High, 1.0)
}

func TestEvaluateRunsMissingRun(t *testing.T) {
	layout := benchmark.Layout{Root: t.TempDir()}
	_, err := evaluateRuns(layout, benchmark.SplitValidation, "bluge", 0, 0)
	assert.Error(t, err)
}

func TestMetricsDiffMessage(t *testing.T) {
	br := &BaselineResults{
		EngineLabel: "anserini",
		Split:       benchmark.SplitValidation,
		Runs: []*RunResult{
			{Label: "small.t2i", MRR10: 0.5, MRR10Low: 0.4, MRR10High: 0.6, Recall1000: 0.9, NDCG10: 0.55},
			{Label: "base.t2i", MRR10: 0.3, MRR10Low: 0.2, MRR10High: 0.4, Recall1000: 0.7, NDCG10: 0.35},
		},
	}
	prev := map[string]*RunResult{
		"small.t2i": {Label: "small.t2i", MRR10: 0.45, Recall1000: 0.9, NDCG10: 0.6},
	}

	msg := newMetricsDiff(br, prev).message()
	lines := strings.Split(strings.TrimSpace(msg), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Nightly BM25 baseline results (anserini, validation):", lines[0])
	assert.Equal(t,
		"• *small.t2i*: MRR@10=0.500 [0.400, 0.600], R@1000=0.900, nDCG@10=0.550 (vs prev: MRR@10+5.0pt, R@1000+0.0pt, nDCG@10-5.0pt)",
		lines[1],
	)
	assert.NotContains(t, lines[2], "vs prev")
}

func TestPrintToSlack(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	orig := slackPostMessageURL
	slackPostMessageURL = srv.URL
	defer func() { slackPostMessageURL = orig }()

	br := &BaselineResults{
		EngineLabel: "bluge",
		Split:       benchmark.SplitValidation,
		Runs:        []*RunResult{{Label: "large.i2t", MRR10: 0.1}},
	}
	require.NoError(t, newMetricsDiff(br, nil).printToSlack(context.Background(), "xoxb-test", "C123"))
	assert.Equal(t, "C123", got["channel"])
	assert.Contains(t, got["text"], "*large.i2t*")
}

func TestPrintToSlackNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	orig := slackPostMessageURL
	slackPostMessageURL = srv.URL
	defer func() { slackPostMessageURL = orig }()

	br := &BaselineResults{Runs: []*RunResult{{Label: "small.t2i"}}}
	err := newMetricsDiff(br, nil).printToSlack(context.Background(), "t", "c")
	assert.ErrorContains(t, err, "403")
}

func TestRunLabel(t *testing.T) {
	assert.Equal(t, "base.i2t", runLabel(benchmark.SettingBase, benchmark.DirectionI2T))
}
