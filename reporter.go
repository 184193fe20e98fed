package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Reporter records the outcome of every pipeline step, prints a cumulative
// report at the end of a run, and optionally writes it to disk.
type Reporter struct {
	sync.Mutex
	outputDir string
	started   time.Time
	steps     []stepRecord

	csvFile *os.File
	csv     *csv.Writer
}

type stepRecord struct {
	stage   string
	desc    string
	took    time.Duration
	failed  bool
	details Report
}

// Report is a JSON-serializable report of a pipeline run.
type Report map[string]any

// MergeOther merges another report into this one.
func (r Report) MergeOther(other Report) {
	for k, v := range other {
		if _, ok := r[k]; ok {
			panic(fmt.Sprintf("duplicate key in report: %s", k))
		}
		r[k] = v
	}
}

// PrintWithDepth prints a report with the given depth.
// Recursively prints sub-reports.
func (r Report) PrintWithDepth(depth int) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := r[k]
		if sub, ok := v.(Report); ok {
			fmt.Printf("%s%s:\n", strings.Repeat("  ", depth), k)
			sub.PrintWithDepth(depth + 1)
		} else {
			fmt.Printf("%s%s: %v\n", strings.Repeat("  ", depth), k, v)
		}
	}
}

// StartReporter starts a new reporter. With an empty outputDir nothing is
// written to disk.
func StartReporter(outputDir string) (*Reporter, error) {
	r := &Reporter{
		outputDir: outputDir,
		started:   time.Now(),
	}
	if outputDir == "" {
		return r, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(filepath.Join(outputDir, "steps.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create steps.csv: %w", err)
	}
	r.csvFile = f
	r.csv = csv.NewWriter(f)
	if err := r.csv.Write([]string{"step", "stage", "description", "duration_ms", "status"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to steps.csv: %w", err)
	}
	return r, nil
}

// ReportStep records a finished step.
func (r *Reporter) ReportStep(stage, desc string, took time.Duration, stepErr error, details Report) error {
	r.Lock()
	defer r.Unlock()

	r.steps = append(r.steps, stepRecord{
		stage:   stage,
		desc:    desc,
		took:    took,
		failed:  stepErr != nil,
		details: details,
	})

	if r.csv != nil {
		status := "ok"
		if stepErr != nil {
			status = "failed"
		}
		if err := r.csv.Write([]string{
			strconv.Itoa(len(r.steps)),
			stage,
			desc,
			strconv.FormatInt(took.Milliseconds(), 10),
			status,
		}); err != nil {
			return fmt.Errorf("failed to write step to steps.csv: %w", err)
		}
		r.csv.Flush()
		return r.csv.Error()
	}
	return nil
}

func (r *Reporter) generateReport() Report {
	stages := make(Report)
	details := make(Report)
	for _, step := range r.steps {
		sub, ok := stages[step.stage].(Report)
		if !ok {
			sub = Report{"steps": 0, "duration": time.Duration(0)}
			stages[step.stage] = sub
		}
		sub["steps"] = sub["steps"].(int) + 1
		sub["duration"] = sub["duration"].(time.Duration) + step.took.Round(time.Millisecond)
		if len(step.details) > 0 {
			details[step.desc] = step.details
		}
	}

	report := Report{
		"steps":    len(r.steps),
		"duration": time.Since(r.started).Round(time.Millisecond).String(),
	}
	for stage, sub := range stages {
		s := sub.(Report)
		s["duration"] = s["duration"].(time.Duration).String()
	}
	report.MergeOther(Report{"stages": stages})
	if len(details) > 0 {
		report.MergeOther(Report{"details": details})
	}
	return report
}

// Stop prints the cumulative report and flushes it to disk.
// Should be called at the end of a pipeline run.
func (r *Reporter) Stop() error {
	r.Lock()
	defer r.Unlock()

	finalReport := r.generateReport()
	fmt.Println("")
	fmt.Printf("Cumulative report for the entire pipeline:\n")
	finalReport.PrintWithDepth(0)

	if r.outputDir == "" {
		return nil
	}

	if r.csv != nil {
		r.csv.Flush()
		if err := r.csv.Error(); err != nil {
			return fmt.Errorf("failed to flush steps.csv: %w", err)
		}
		if err := r.csvFile.Close(); err != nil {
			return fmt.Errorf("failed to close steps.csv: %w", err)
		}
		r.csv = nil
	}

	f, err := os.Create(filepath.Join(r.outputDir, "report.json"))
	if err != nil {
		return fmt.Errorf("failed to create report.json: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(finalReport); err != nil {
		return fmt.Errorf("failed to write report.json: %w", err)
	}
	fmt.Printf("report written to: %s\n", r.outputDir)
	return nil
}
