package benchmark

import (
	"fmt"
	"path/filepath"
)

// Layout resolves artifact paths under an output root:
//
//	qrels/{split}.qrels.{t2i|i2t}.projected.trec
//	text-collection/{split}.text.jsonl
//	image-collection/{split}.image-caption.jsonl
//	{text|image}-collection.{setting}{postfix}/  (symlinks + topics)
//	indexes/lucene-index.atomic.{text|image}.flat.{setting}{postfix}/
//	runs/run.{split}.bm25-anserini-default.{t2i|i2t}.{setting}.trec
type Layout struct {
	Root string
}

// Postfix is ".{split}" for the small setting and empty otherwise.
func Postfix(setting Setting, split Split) string {
	if setting == SettingSmall && split != "" {
		return "." + string(split)
	}
	return ""
}

func (l Layout) QrelsDir() string {
	return filepath.Join(l.Root, "qrels")
}

func (l Layout) QrelsPath(split Split, direction Direction) string {
	return filepath.Join(l.QrelsDir(), fmt.Sprintf("%s.qrels.%s.projected.trec", split, direction))
}

// CollectionDir holds the encoded shards of a modality.
func (l Layout) CollectionDir(m Modality) string {
	return filepath.Join(l.Root, string(m)+"-collection")
}

// ShardPath is the encoded JSONL shard of one split of a field.
func (l Layout) ShardPath(split Split, field Field) string {
	m := field.Modality()
	return filepath.Join(l.CollectionDir(m), fmt.Sprintf("%s.%s.jsonl", split, m.shardSuffix()))
}

// StagingDir is the symlink directory an index is built from.
func (l Layout) StagingDir(m Modality, setting Setting, split Split) string {
	return fmt.Sprintf("%s.%s%s", l.CollectionDir(m), setting, Postfix(setting, split))
}

// TopicsPath is the reformatted topics file for a modality, kept next to the
// staged shards it was derived from.
func (l Layout) TopicsPath(m Modality, setting Setting, split Split) string {
	return filepath.Join(l.StagingDir(m, setting, split), fmt.Sprintf("%s.%s.search.jsonl", split, m.shardSuffix()))
}

// StagedShardPath is the staged link to the shard a topics file is built from.
func (l Layout) StagedShardPath(m Modality, setting Setting, split Split) string {
	return filepath.Join(l.StagingDir(m, setting, split), fmt.Sprintf("%s.%s.jsonl", split, m.shardSuffix()))
}

func (l Layout) IndexesDir() string {
	return filepath.Join(l.Root, "indexes")
}

func (l Layout) IndexDir(m Modality, setting Setting, split Split) string {
	return filepath.Join(l.IndexesDir(), fmt.Sprintf("lucene-index.atomic.%s.flat.%s%s", m, setting, Postfix(setting, split)))
}

func (l Layout) RunsDir() string {
	return filepath.Join(l.Root, "runs")
}

func (l Layout) RunPath(split Split, direction Direction, setting Setting) string {
	return filepath.Join(l.RunsDir(), fmt.Sprintf("run.%s.bm25-anserini-default.%s.%s.trec", split, direction, setting))
}

// EvalPath is where the evaluation summary of one split is written.
func (l Layout) EvalPath(split Split) string {
	return filepath.Join(l.RunsDir(), fmt.Sprintf("eval.%s.json", split))
}
