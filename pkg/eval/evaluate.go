package eval

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/hscells/trecresults"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// QueryMetrics are the scores of a single topic.
type QueryMetrics struct {
	QueryID    string  `json:"query_id"`
	MRR10      float64 `json:"mrr@10"`
	Recall10   float64 `json:"recall@10"`
	Recall1000 float64 `json:"recall@1000"`
	NDCG10     float64 `json:"ndcg@10"`
}

// Summary holds per-topic scores and their means.
type Summary struct {
	Queries    int            `json:"queries"`
	MRR10      float64        `json:"mrr@10"`
	Recall10   float64        `json:"recall@10"`
	Recall1000 float64        `json:"recall@1000"`
	NDCG10     float64        `json:"ndcg@10"`
	PerQuery   []QueryMetrics `json:"per_query,omitempty"`
}

// Column extracts one metric from every topic, in topic order.
func (s *Summary) Column(metric func(QueryMetrics) float64) []float64 {
	values := make([]float64, len(s.PerQuery))
	for i, q := range s.PerQuery {
		values[i] = metric(q)
	}
	return values
}

// EvaluateRun scores a run against qrels. Topics without any relevant
// judgment are skipped; judged topics missing from the run score zero.
func EvaluateRun(run trecresults.ResultFile, qrels trecresults.QrelsFile) *Summary {
	summary := &Summary{}
	for topic, judgments := range qrels.Qrels {
		relevant := make(map[string]int, len(judgments))
		for docID, q := range judgments {
			relevant[docID] = int(q.Score)
		}
		if countRelevant(relevant) == 0 {
			continue
		}

		results := slices.Clone(run.Results[topic])
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Rank != results[j].Rank {
				return results[i].Rank < results[j].Rank
			}
			return results[i].Score > results[j].Score
		})
		ranked := make([]string, len(results))
		for i, r := range results {
			ranked[i] = r.DocId
		}

		summary.PerQuery = append(summary.PerQuery, QueryMetrics{
			QueryID:    topic,
			MRR10:      MRRAtK(ranked, relevant, 10),
			Recall10:   RecallAtK(ranked, relevant, 10),
			Recall1000: RecallAtK(ranked, relevant, 1000),
			NDCG10:     NDCGAtK(ranked, relevant, 10),
		})
	}
	slices.SortFunc(summary.PerQuery, func(a, b QueryMetrics) int {
		return cmp.Compare(a.QueryID, b.QueryID)
	})

	summary.Queries = len(summary.PerQuery)
	if summary.Queries > 0 {
		summary.MRR10 = stat.Mean(summary.Column(func(q QueryMetrics) float64 { return q.MRR10 }), nil)
		summary.Recall10 = stat.Mean(summary.Column(func(q QueryMetrics) float64 { return q.Recall10 }), nil)
		summary.Recall1000 = stat.Mean(summary.Column(func(q QueryMetrics) float64 { return q.Recall1000 }), nil)
		summary.NDCG10 = stat.Mean(summary.Column(func(q QueryMetrics) float64 { return q.NDCG10 }), nil)
	}
	return summary
}

// EvaluateFiles parses a TREC run file and a qrels file and scores them.
func EvaluateFiles(runPath, qrelsPath string) (*Summary, error) {
	rf, err := os.Open(runPath)
	if err != nil {
		return nil, fmt.Errorf("opening run %s: %w", runPath, err)
	}
	defer rf.Close()
	run, err := trecresults.ResultsFromReader(rf)
	if err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runPath, err)
	}

	qf, err := os.Open(qrelsPath)
	if err != nil {
		return nil, fmt.Errorf("opening qrels %s: %w", qrelsPath, err)
	}
	defer qf.Close()
	qrels, err := trecresults.QrelsFromReader(qf)
	if err != nil {
		return nil, fmt.Errorf("parsing qrels %s: %w", qrelsPath, err)
	}

	return EvaluateRun(run, qrels), nil
}

// BootstrapCI returns a percentile bootstrap confidence interval on the mean of
// values at level 1-alpha, resampling with a fixed seed.
func BootstrapCI(values []float64, iterations int, alpha float64, seed uint64) (lo, hi float64) {
	if len(values) == 0 || iterations <= 0 {
		return 0, 0
	}

	rng := rand.New(rand.NewSource(seed))
	means := make([]float64, iterations)
	sample := make([]float64, len(values))
	for i := range means {
		for j := range sample {
			sample[j] = values[rng.Intn(len(values))]
		}
		means[i] = stat.Mean(sample, nil)
	}
	sort.Float64s(means)

	lo = stat.Quantile(alpha/2, stat.Empirical, means, nil)
	hi = stat.Quantile(1-alpha/2, stat.Empirical, means, nil)
	return lo, hi
}
