package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterWritesStepsAndReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	r, err := StartReporter(dir)
	require.NoError(t, err)

	require.NoError(t, r.ReportStep(stageQrels, "prepare train qrels", 20*time.Millisecond, nil, Report{"records": 4}))
	require.NoError(t, r.ReportStep(stageQrels, "prepare test qrels", 10*time.Millisecond, nil, Report{"records": 2}))
	require.NoError(t, r.ReportStep(stageIndex, "index base collections", time.Second, errors.New("boom"), nil))
	require.NoError(t, r.Stop())

	f, err := os.Open(filepath.Join(dir, "steps.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"1", "qrels", "prepare train qrels", "20", "ok"}, records[1])
	assert.Equal(t, []string{"3", "index", "index base collections", "1000", "failed"}, records[3])

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.EqualValues(t, 3, report["steps"])

	stages := report["stages"].(map[string]any)
	qrels := stages["qrels"].(map[string]any)
	assert.EqualValues(t, 2, qrels["steps"])
	assert.Equal(t, "30ms", qrels["duration"])

	details := report["details"].(map[string]any)
	assert.Contains(t, details, "prepare train qrels")
	assert.NotContains(t, details, "index base collections")
}

func TestReporterWithoutOutputDir(t *testing.T) {
	r, err := StartReporter("")
	require.NoError(t, err)
	require.NoError(t, r.ReportStep(stageSearch, "search validation small", time.Millisecond, nil, nil))
	require.NoError(t, r.Stop())
}

func TestReportMergeOtherPanicsOnDuplicate(t *testing.T) {
	r := Report{"a": 1}
	r.MergeOther(Report{"b": 2})
	assert.Equal(t, Report{"a": 1, "b": 2}, r)
	assert.Panics(t, func() { r.MergeOther(Report{"a": 3}) })
}
