package engine

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/zeebo/blake3"
)

// ManifestFile is written into every index directory after a successful build.
const ManifestFile = "manifest.json"

// Manifest records what an index was built from.
type Manifest struct {
	Engine    string          `json:"engine"`
	Args      []string        `json:"args"`
	Inputs    []ManifestInput `json:"inputs"`
	CreatedAt time.Time       `json:"created_at"`
}

// ManifestInput fingerprints one staged shard.
type ManifestInput struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// BuildManifest fingerprints the shards an index request would read.
func BuildManifest(engine string, req IndexRequest) (*Manifest, error) {
	shards, err := stagedShards(req.Input)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Engine:    engine,
		Args:      req.Args(),
		Inputs:    make([]ManifestInput, 0, len(shards)),
		CreatedAt: time.Now().UTC(),
	}
	for _, shard := range shards {
		input, err := fingerprint(shard)
		if err != nil {
			return nil, err
		}
		m.Inputs = append(m.Inputs, input)
	}
	return m, nil
}

func fingerprint(path string) (ManifestInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return ManifestInput{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return ManifestInput{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return ManifestInput{
		Name:   filepath.Base(path),
		Size:   n,
		BLAKE3: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// WriteManifest stores m in indexDir.
func WriteManifest(indexDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", indexDir, err)
	}
	path := filepath.Join(indexDir, ManifestFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads the manifest of indexDir. A missing manifest yields
// (nil, nil).
func ReadManifest(indexDir string) (*Manifest, error) {
	path := filepath.Join(indexDir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &m, nil
}

// Matches reports whether two manifests describe the same build, ignoring
// when it happened.
func (m *Manifest) Matches(other *Manifest) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Engine == other.Engine &&
		slices.Equal(m.Args, other.Args) &&
		slices.Equal(m.Inputs, other.Inputs)
}

// UpToDate reports whether the index req targets was already built by engine
// from the same shards, and returns the manifest of the current inputs.
func UpToDate(engine string, req IndexRequest) (bool, *Manifest, error) {
	current, err := BuildManifest(engine, req)
	if err != nil {
		return false, nil, err
	}
	existing, err := ReadManifest(req.Index)
	if err != nil {
		return false, current, err
	}
	return existing.Matches(current), current, nil
}
