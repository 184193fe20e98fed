// Package eval scores TREC run files against qrels.
package eval

import (
	"math"
	"slices"
)

// RecallAtK is the share of relevant documents retrieved in the top k.
// Judgments of zero or below do not count as relevant.
func RecallAtK(ranked []string, relevant map[string]int, k int) float64 {
	total := countRelevant(relevant)
	if total == 0 {
		return 0
	}
	found := 0
	for _, id := range ranked[:min(k, len(ranked))] {
		if relevant[id] > 0 {
			found++
		}
	}
	return float64(found) / float64(total)
}

// PrecisionAtK is the share of the top k that is relevant. Short rankings are
// not padded: the denominator stays k.
func PrecisionAtK(ranked []string, relevant map[string]int, k int) float64 {
	if k <= 0 {
		return 0
	}
	found := 0
	for _, id := range ranked[:min(k, len(ranked))] {
		if relevant[id] > 0 {
			found++
		}
	}
	return float64(found) / float64(k)
}

// MRRAtK is the reciprocal rank of the first relevant document in the top k.
func MRRAtK(ranked []string, relevant map[string]int, k int) float64 {
	for i, id := range ranked[:min(k, len(ranked))] {
		if relevant[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK is normalized discounted cumulative gain over the top k with
// linear gains, as trec_eval's ndcg_cut computes it.
func NDCGAtK(ranked []string, relevant map[string]int, k int) float64 {
	var dcg float64
	for i, id := range ranked[:min(k, len(ranked))] {
		if rel := relevant[id]; rel > 0 {
			dcg += float64(rel) / math.Log2(float64(i+2))
		}
	}

	var ideal []int
	for _, rel := range relevant {
		if rel > 0 {
			ideal = append(ideal, rel)
		}
	}
	slices.Sort(ideal)
	slices.Reverse(ideal)

	var idcg float64
	for i, rel := range ideal[:min(k, len(ideal))] {
		idcg += float64(rel) / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func countRelevant(relevant map[string]int) int {
	n := 0
	for _, rel := range relevant {
		if rel > 0 {
			n++
		}
	}
	return n
}
