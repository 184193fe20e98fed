package dataset

import (
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"
)

// parquetColumn is a top-level field of a parquet schema and the index of the
// first leaf column beneath it.
type parquetColumn struct {
	name  string
	index int64
}

// topLevelColumns lists the top-level fields of a parquet file, in schema order,
// under their external (on-disk) names.
func topLevelColumns(pr *reader.ParquetReader) []parquetColumn {
	var (
		columns []parquetColumn
		seen    = make(map[string]bool)
	)
	for i, inPath := range pr.SchemaHandler.ValueColumns {
		path := inPath
		if exPath, ok := pr.SchemaHandler.InPathToExPath[inPath]; ok {
			path = exPath
		}
		segments := strings.Split(path, common.PAR_GO_PATH_DELIMITER)
		if len(segments) < 2 {
			continue
		}
		name := segments[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		columns = append(columns, parquetColumn{name: name, index: int64(i)})
	}
	return columns
}

// readParquet decodes the requested columns of an in-memory parquet file. A nil
// columns slice reads every top-level column. Repeated fields are joined with a
// single space; nulls become empty strings.
func readParquet(data []byte, columns []string) (*Table, error) {
	bf := buffer.NewBufferFileFromBytesNoAlloc(data)
	pr, err := reader.NewParquetColumnReader(bf, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet column reader: %w", err)
	}
	defer pr.ReadStop()

	available := topLevelColumns(pr)
	var selected []parquetColumn
	if columns == nil {
		selected = available
	} else {
		for _, want := range columns {
			idx := -1
			for i, col := range available {
				if strings.EqualFold(col.name, want) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("column %q not found in parquet schema", want)
			}
			selected = append(selected, parquetColumn{name: want, index: available[idx].index})
		}
	}

	n := pr.GetNumRows()
	table := &Table{
		Columns: make([]string, len(selected)),
		Rows:    make([][]string, n),
	}
	for i := range table.Rows {
		table.Rows[i] = make([]string, len(selected))
	}

	for c, col := range selected {
		table.Columns[c] = col.name
		values, rls, _, err := pr.ReadColumnByIndex(col.index, n)
		if err != nil {
			return nil, fmt.Errorf("failed to read column %q: %w", col.name, err)
		}
		if err := fillColumn(table.Rows, c, values, rls); err != nil {
			return nil, fmt.Errorf("column %q: %w", col.name, err)
		}
	}
	return table, nil
}

// fillColumn spreads leaf values over rows. A repetition level of zero starts
// a new row.
func fillColumn(rows [][]string, c int, values []any, rls []int32) error {
	row := -1
	for i, v := range values {
		if i >= len(rls) || rls[i] == 0 {
			row++
		}
		if row >= len(rows) {
			return fmt.Errorf("read more values than the %d rows in the file", len(rows))
		}
		s := formatValue(v)
		if s == "" {
			continue
		}
		if rows[row][c] == "" {
			rows[row][c] = s
		} else {
			rows[row][c] += " " + s
		}
	}
	if row != len(rows)-1 {
		return fmt.Errorf("read values for %d of %d rows", row+1, len(rows))
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// readParquetFile memory-maps a parquet file and decodes the requested columns.
func readParquetFile(path string, columns []string) (*Table, error) {
	mmf, err := memoryMapFile(path)
	if err != nil {
		return nil, err
	}
	defer mmf.unmap()

	table, err := readParquet(mmf.data, columns)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return table, nil
}
