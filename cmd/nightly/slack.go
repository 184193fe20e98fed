package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
)

var slackPostMessageURL = "https://slack.com/api/chat.postMessage"

type runMetricsDiff struct {
	result *RunResult
	prev   *RunResult
}

type metricsDiff struct {
	engine string
	split  string
	runs   []runMetricsDiff
}

func newMetricsDiff(br *BaselineResults, prev map[string]*RunResult) *metricsDiff {
	diff := &metricsDiff{engine: br.EngineLabel, split: string(br.Split)}
	for _, rr := range br.Runs {
		diff.runs = append(diff.runs, runMetricsDiff{result: rr, prev: prev[rr.Label]})
	}
	return diff
}

func pointChange(cur, prev float64) float64 {
	return math.Round((cur-prev)*1000) / 10
}

func (md *metricsDiff) message() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Nightly BM25 baseline results (%s, %s):\n", md.engine, md.split))

	for _, rd := range md.runs {
		r := rd.result
		line := fmt.Sprintf("• *%s*: MRR@10=%.3f [%.3f, %.3f], R@1000=%.3f, nDCG@10=%.3f",
			r.Label, r.MRR10, r.MRR10Low, r.MRR10High, r.Recall1000, r.NDCG10)

		if p := rd.prev; p != nil {
			line += fmt.Sprintf(" (vs prev: MRR@10%+.1fpt, R@1000%+.1fpt, nDCG@10%+.1fpt)",
				pointChange(r.MRR10, p.MRR10),
				pointChange(r.Recall1000, p.Recall1000),
				pointChange(r.NDCG10, p.NDCG10),
			)
		}

		builder.WriteString(line + "\n")
	}
	return builder.String()
}

func (md *metricsDiff) printToSlack(ctx context.Context, slackToken string, slackChannelId string) error {
	if len(md.runs) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"channel": slackChannelId,
		"text":    md.message(),
	})
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", slackPostMessageURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+slackToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("non-200 response from slack: %d", resp.StatusCode)
	}

	return nil
}
