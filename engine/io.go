package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/hscells/trecresults"
)

// document is a JsonCollection record as read back from a staged shard.
type document struct {
	ID       string
	Contents string
	Raw      []byte
}

// topic is a JsonString topic.
type topic struct {
	ID   string
	Text string
}

// stagedShards lists the JsonCollection shards of a staging directory,
// skipping reformatted topic files kept alongside them.
func stagedShards(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing shards of %s: %w", dir, err)
	}
	var shards []string
	for _, p := range paths {
		if !strings.HasSuffix(p, ".search.jsonl") {
			shards = append(shards, p)
		}
	}
	return shards, nil
}

// jsonString decodes a JSON string or number into its textual form.
func jsonString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("missing value")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

func scanLines(path string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("opening %s: %w", path, err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("reading %s: %w", path, err))
		}
	}
}

// readDocuments yields the records of one shard.
func readDocuments(path string) iter.Seq2[document, error] {
	return func(yield func(document, error) bool) {
		n := 0
		for line, err := range scanLines(path) {
			if err != nil {
				yield(document{}, err)
				return
			}
			n++
			var rec struct {
				ID       json.RawMessage `json:"id"`
				Contents string          `json:"contents"`
			}
			if err := json.Unmarshal(line, &rec); err != nil {
				yield(document{}, fmt.Errorf("%s line %d: %w", path, n, err))
				return
			}
			id, err := jsonString(rec.ID)
			if err != nil {
				yield(document{}, fmt.Errorf("%s line %d: id: %w", path, n, err))
				return
			}
			if !yield(document{ID: id, Contents: rec.Contents, Raw: bytes.Clone(line)}, nil) {
				return
			}
		}
	}
}

// readTopics loads a JsonString topics file, taking the query text from field.
func readTopics(path, field string) ([]topic, error) {
	var topics []topic
	for line, err := range scanLines(path) {
		if err != nil {
			return nil, err
		}
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%s topic %d: %w", path, len(topics)+1, err)
		}
		id, err := jsonString(rec["id"])
		if err != nil {
			return nil, fmt.Errorf("%s topic %d: id: %w", path, len(topics)+1, err)
		}
		text, err := jsonString(rec[field])
		if err != nil {
			return nil, fmt.Errorf("%s topic %s: %s: %w", path, id, field, err)
		}
		topics = append(topics, topic{ID: id, Text: text})
	}
	return topics, nil
}

// writeRun writes ranked lists as a TREC run file, one list per topic, in the
// order given.
func writeRun(path string, lists []trecresults.ResultList) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, list := range lists {
		for _, r := range list {
			fmt.Fprintf(bw, "%s %s %s %d %f %s\n", r.Topic, r.Iteration, r.DocId, r.Rank, r.Score, r.RunName)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// rankedList builds the result list of one topic from hits already sorted by
// descending score.
func rankedList(topicID, runTag string, ids []string, scores []float64) trecresults.ResultList {
	list := make(trecresults.ResultList, len(ids))
	for i := range ids {
		list[i] = &trecresults.Result{
			Topic:     topicID,
			Iteration: "Q0",
			DocId:     ids[i],
			Rank:      int64(i + 1),
			Score:     scores[i],
			RunName:   runTag,
		}
	}
	return list
}
