package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/atomic-ir/bm25-baseline/engine"
	"github.com/atomic-ir/bm25-baseline/hub"
	"github.com/atomic-ir/bm25-baseline/pkg/dataset"
)

// environment holds engine and hub settings read from ATOMIC_* variables.
type environment struct {
	AnseriniJar string `envconfig:"ANSERINI_JAR"`
	Java        string `envconfig:"JAVA" default:"java"`
	JavaOpts    string `envconfig:"JAVA_OPTS"`

	ElasticsearchURLs []string `envconfig:"ELASTICSEARCH_URLS" default:"http://localhost:9200"`

	TurbopufferAPIKey  string `envconfig:"TURBOPUFFER_API_KEY"`
	TurbopufferBaseURL string `envconfig:"TURBOPUFFER_BASE_URL"`
	TurbopufferPrefix  string `envconfig:"TURBOPUFFER_NAMESPACE_PREFIX" default:"atomic_"`

	HFToken          string  `envconfig:"HF_TOKEN"`
	HFEndpoint       string  `envconfig:"HF_ENDPOINT" default:"https://huggingface.co"`
	HFDatasetsServer string  `envconfig:"HF_DATASETS_SERVER" default:"https://datasets-server.huggingface.co"`
	HubRPS           float64 `envconfig:"HUB_RPS" default:"5"`
}

func loadEnvironment() (*environment, error) {
	var env environment
	if err := envconfig.Process("atomic", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

func datasetCacheDir() string {
	dir := os.Getenv("DATASET_CACHE_DIR")
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

func newEngine(name string, env *environment, logger *slog.Logger) (engine.Engine, error) {
	switch name {
	case "anserini":
		return engine.NewAnserini(logger, env.Java, env.AnseriniJar, strings.Fields(env.JavaOpts)), nil
	case "bluge":
		return engine.NewBluge(logger), nil
	case "elasticsearch":
		return engine.NewElasticsearch(logger, env.ElasticsearchURLs)
	case "turbopuffer":
		if env.TurbopufferAPIKey == "" {
			return nil, fmt.Errorf("%w: engine turbopuffer needs ATOMIC_TURBOPUFFER_API_KEY", errUsage)
		}
		return engine.NewTurbopuffer(logger, env.TurbopufferAPIKey, env.TurbopufferBaseURL, env.TurbopufferPrefix), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", errUsage, name)
	}
}

func newSource(dir string, env *environment, logger *slog.Logger) dataset.Source {
	if dir != "" {
		return dataset.NewDirSource(dir)
	}
	client := hub.NewClient(
		hub.WithBaseURL(env.HFDatasetsServer),
		hub.WithEndpoint(env.HFEndpoint),
		hub.WithToken(env.HFToken),
		hub.WithRateLimit(env.HubRPS),
	)
	return dataset.NewHubSource(client, datasetCacheDir(), logger)
}
