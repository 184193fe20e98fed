package main

import (
	"flag"
	"os"

	"github.com/atomic-ir/bm25-baseline/pkg/collection"
)

var outputPath = flag.String(
	"output_path",
	workingDir(),
	"path under which output files will be saved",
)

var imagesRepo = flag.String(
	"images",
	"TREC-AToMiC/AToMiC-Images-v0.2",
	"the images dataset repository",
)

var textsRepo = flag.String(
	"texts",
	"TREC-AToMiC/AToMiC-Texts-v0.2.1",
	"the texts dataset repository",
)

var qrelsRepo = flag.String(
	"qrels",
	"TREC-AToMiC/AToMiC-Qrels-v0.2",
	"the qrels dataset repository",
)

var engineName = flag.String(
	"engine",
	"anserini",
	"the BM25 engine to index and search with. one of anserini, bluge, elasticsearch, turbopuffer",
)

var datasetDir = flag.String(
	"dataset-dir",
	"",
	"read datasets from <dir>/<repo>/<split>/*.parquet instead of the hugging face hub",
)

var resume = flag.Bool(
	"resume",
	false,
	"skip rebuilding indexes whose manifest matches the staged shards",
)

var evaluate = flag.Bool(
	"evaluate",
	false,
	"score the validation runs against the projected qrels once searching is done",
)

var reportDir = flag.String(
	"report-dir",
	"",
	"directory to write report.json and steps.csv to. nothing is written if empty",
)

var topicWorkers = flag.Int(
	"topic-workers",
	collection.DefaultTopicWorkers,
	"the number of workers reformatting topics",
)

func workingDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
