package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atomic-ir/bm25-baseline/pkg/benchmark"
)

// ErrSplitRequired is returned when the small setting is requested without a split.
var ErrSplitRequired = errors.New("setting small requires a split")

// baseSplits are the shards making up the base setting, in link order.
var baseSplits = []benchmark.Split{benchmark.SplitTrain, benchmark.SplitValidation, benchmark.SplitTest}

// SelectShards lists the shards of collectionDir that belong to a setting.
// Topic files are never selected.
func SelectShards(collectionDir string, setting benchmark.Setting, split benchmark.Split) ([]string, error) {
	var patterns []string
	switch setting {
	case benchmark.SettingSmall:
		if split == "" {
			return nil, ErrSplitRequired
		}
		patterns = []string{string(split) + "*.jsonl"}
	case benchmark.SettingBase:
		for _, s := range baseSplits {
			patterns = append(patterns, string(s)+"*.jsonl")
		}
	case benchmark.SettingLarge:
		patterns = []string{"*.jsonl"}
	default:
		return nil, fmt.Errorf("unknown setting %q", setting)
	}

	var shards []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(collectionDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("globbing %s: %w", pattern, err)
		}
		for _, m := range matches {
			if IsTopicsFile(m) {
				continue
			}
			shards = append(shards, m)
		}
	}
	return shards, nil
}

// IsTopicsFile reports whether path names a reformatted topics file rather
// than a collection shard.
func IsTopicsFile(path string) bool {
	return strings.HasSuffix(path, ".search.jsonl")
}

// StagedCollection is a staging directory and the shards linked into it.
type StagedCollection struct {
	Dir    string
	Shards []string
}

// Stage links the shards of a setting into its staging directory, which
// becomes the input of an index build. Any existing path at a link location
// is an error, except that a resumed run reuses a link to the same shard.
func Stage(layout benchmark.Layout, m benchmark.Modality, setting benchmark.Setting, split benchmark.Split, resume bool) (*StagedCollection, error) {
	if setting == benchmark.SettingSmall && split == "" {
		return nil, ErrSplitRequired
	}

	shards, err := SelectShards(layout.CollectionDir(m), setting, split)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(layout.StagingDir(m, setting, split))
	if err != nil {
		return nil, fmt.Errorf("resolving staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory %s: %w", dir, err)
	}

	staged := &StagedCollection{Dir: dir}
	for _, shard := range shards {
		target, err := filepath.Abs(shard)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", shard, err)
		}
		link := filepath.Join(dir, filepath.Base(shard))
		if err := os.Symlink(target, link); err != nil {
			if !resume || !errors.Is(err, fs.ErrExist) {
				return nil, fmt.Errorf("linking %s: %w", link, err)
			}
			if existing, rerr := os.Readlink(link); rerr != nil || existing != target {
				return nil, fmt.Errorf("linking %s: %w", link, err)
			}
		}
		staged.Shards = append(staged.Shards, target)
	}
	return staged, nil
}
