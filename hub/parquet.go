package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ParquetFile is one parquet export of a dataset split, as listed by the
// datasets server.
type ParquetFile struct {
	Dataset  string `json:"dataset"`
	Config   string `json:"config"`
	Split    string `json:"split"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ErrPartialExport is returned when the datasets server only converted part of
// a dataset to parquet, so the listed files do not hold every row.
var ErrPartialExport = errors.New("parquet export is partial")

// DefaultConfig is the config read from repositories that list several.
const DefaultConfig = "default"

type parquetListing struct {
	ParquetFiles []ParquetFile `json:"parquet_files"`
	Partial      bool          `json:"partial"`
}

// ListParquetFiles returns the parquet exports of every config and split of a
// dataset repository, ordered by config, split and filename.
func (c *Client) ListParquetFiles(ctx context.Context, repo string) ([]ParquetFile, error) {
	endpoint := fmt.Sprintf("%s/parquet?dataset=%s", c.baseUrl, url.QueryEscape(repo))
	listing, err := getJSON[parquetListing](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("listing parquet files of %s: %w", repo, err)
	}
	if listing.Partial {
		return nil, fmt.Errorf("listing parquet files of %s: %w", repo, ErrPartialExport)
	}
	files := listing.ParquetFiles
	slices.SortFunc(files, func(a, b ParquetFile) int {
		return cmp.Or(
			cmp.Compare(a.Config, b.Config),
			cmp.Compare(a.Split, b.Split),
			cmp.Compare(a.Filename, b.Filename),
		)
	})
	return files, nil
}

// SplitFiles filters files down to the ones belonging to split of a single
// config: DefaultConfig when listed, otherwise the first config in files.
func SplitFiles(files []ParquetFile, split string) []ParquetFile {
	if len(files) == 0 {
		return nil
	}
	config := files[0].Config
	if slices.ContainsFunc(files, func(f ParquetFile) bool { return f.Config == DefaultConfig }) {
		config = DefaultConfig
	}

	var matched []ParquetFile
	for _, f := range files {
		if f.Config == config && f.Split == split {
			matched = append(matched, f)
		}
	}
	return matched
}

// Download fetches fileURL into dst. Concurrent downloads of the same
// destination are collapsed into one; every caller sees its result.
func (c *Client) Download(ctx context.Context, logger *slog.Logger, fileURL, dst string) error {
	var wait chan error
	c.lock.Lock()
	if _, exists := c.downloads[dst]; !exists {
		c.downloads[dst] = []chan error{} // We're responsible for downloading
	} else {
		wait = make(chan error, 1) // We're waiting for an existing download
		c.downloads[dst] = append(c.downloads[dst], wait)
	}
	c.lock.Unlock()

	if wait != nil {
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := c.download(ctx, logger, fileURL, dst)

	c.lock.Lock()
	chans := c.downloads[dst]
	delete(c.downloads, dst)
	for _, ch := range chans {
		ch <- err
	}
	c.lock.Unlock()

	return err
}

const defaultEndpoint = "https://huggingface.co"

// resolve rewrites hub file URLs onto the configured endpoint.
func (c *Client) resolve(fileURL string) string {
	if c.endpoint == "" || c.endpoint == defaultEndpoint {
		return fileURL
	}
	if rest, ok := strings.CutPrefix(fileURL, defaultEndpoint); ok {
		return c.endpoint + rest
	}
	return fileURL
}

func (c *Client) download(ctx context.Context, logger *slog.Logger, fileURL, dst string) error {
	start := time.Now()
	logger.Info("downloading file", slog.String("url", fileURL))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dst, err)
	}

	resp, err := c.do(ctx, c.resolve(fileURL))
	if err != nil {
		return fmt.Errorf("downloading %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", tmp, err)
	}
	if _, err := f.ReadFrom(resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing to file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("moving %s into place: %w", dst, err)
	}

	logger.Info(
		"download complete",
		slog.String("file", dst),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
