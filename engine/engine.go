// Package engine builds BM25 indexes over staged JsonCollection shards and
// searches them with JsonString topics, writing TREC run files.
package engine

import (
	"context"
	"fmt"
	"strconv"
)

// Engine indexes staged collections and runs topic files against them.
type Engine interface {
	Name() string
	Index(ctx context.Context, req IndexRequest) error
	Search(ctx context.Context, req SearchRequest) error
}

// IndexRequest mirrors the arguments of Anserini's IndexCollection.
type IndexRequest struct {
	Input           string // staging directory holding the shards
	Collection      string
	Index           string // index directory
	Generator       string
	Threads         int
	StorePositions  bool
	StoreDocvectors bool
	StoreRaw        bool
}

// DefaultIndexRequest is the baseline's flat BM25 index configuration.
func DefaultIndexRequest(input, index string) IndexRequest {
	return IndexRequest{
		Input:           input,
		Collection:      "JsonCollection",
		Index:           index,
		Generator:       "DefaultLuceneDocumentGenerator",
		Threads:         8,
		StorePositions:  true,
		StoreDocvectors: true,
		StoreRaw:        true,
	}
}

// Args renders the request as IndexCollection command line arguments.
func (r IndexRequest) Args() []string {
	args := []string{
		"-input", r.Input,
		"-collection", r.Collection,
		"-index", r.Index,
		"-generator", r.Generator,
		"-threads", strconv.Itoa(r.Threads),
	}
	if r.StorePositions {
		args = append(args, "-storePositions")
	}
	if r.StoreDocvectors {
		args = append(args, "-storeDocvectors")
	}
	if r.StoreRaw {
		args = append(args, "-storeRaw")
	}
	return args
}

// SearchRequest mirrors the arguments of Anserini's SearchCollection.
type SearchRequest struct {
	Index       string
	Topics      string
	TopicReader string
	TopicField  string
	Output      string
	BM25        bool
	Hits        int
	Parallelism int
	Threads     int
	// RunTag is the last column of run lines written by in-process engines.
	// Defaults to the engine name.
	RunTag string
}

// DefaultSearchRequest is the baseline's BM25 retrieval configuration.
func DefaultSearchRequest(index, topics, output string) SearchRequest {
	return SearchRequest{
		Index:       index,
		Topics:      topics,
		TopicReader: "JsonString",
		TopicField:  "title",
		Output:      output,
		BM25:        true,
		Hits:        1000,
		Parallelism: 64,
		Threads:     64,
	}
}

// Args renders the request as SearchCollection command line arguments.
func (r SearchRequest) Args() []string {
	args := []string{
		"-index", r.Index,
		"-topics", r.Topics,
		"-topicreader", r.TopicReader,
		"-topicfield", r.TopicField,
		"-output", r.Output,
	}
	if r.BM25 {
		args = append(args, "-bm25")
	}
	return append(args,
		"-hits", strconv.Itoa(r.Hits),
		"-parallelism", strconv.Itoa(r.Parallelism),
		"-threads", strconv.Itoa(r.Threads),
	)
}

func (r SearchRequest) runTag(engine string) string {
	if r.RunTag != "" {
		return r.RunTag
	}
	return engine
}

// ExitError is returned when an external engine process exits unsuccessfully.
type ExitError struct {
	Class string
	Code  int
	Err   error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Class, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
