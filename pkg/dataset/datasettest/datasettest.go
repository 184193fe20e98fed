// Package datasettest writes small AToMiC-shaped parquet fixtures for tests.
package datasettest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// QrelRow mirrors a row of the AToMiC qrels dataset.
type QrelRow struct {
	TextID  string `parquet:"name=text_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Q0      string `parquet:"name=Q0, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImageID string `parquet:"name=image_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rel     int64  `parquet:"name=rel, type=INT64"`
}

// TextRow mirrors the columns of the AToMiC texts dataset the encoder reads.
type TextRow struct {
	TextID                    string `parquet:"name=text_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PageTitle                 string `parquet:"name=page_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	SectionTitle              string `parquet:"name=section_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContextSectionDescription string `parquet:"name=context_section_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Language                  string `parquet:"name=language, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ImageRow mirrors the columns of the AToMiC images dataset the encoder reads.
type ImageRow struct {
	ImageID                     string `parquet:"name=image_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaptionReferenceDescription string `parquet:"name=caption_reference_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaptionAlt                  string `parquet:"name=caption_alt_text_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaptionAttribution          string `parquet:"name=caption_attribution_description, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteParquet writes rows to path, creating parent directories.
func WriteParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			fw.Close()
			return fmt.Errorf("writing row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finishing parquet file: %w", err)
	}
	return fw.Close()
}

// WriteSplit writes rows as the single parquet file of a split in a mirror
// laid out as <dir>/<repo>/<split>/0000.parquet.
func WriteSplit[T any](dir, repo, split string, rows []T) error {
	return WriteParquet(filepath.Join(dir, filepath.FromSlash(repo), split, "0000.parquet"), rows)
}
