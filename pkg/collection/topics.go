package collection

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf16"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// DefaultTopicWorkers is the size of the reformatting worker pool.
const DefaultTopicWorkers = 16

// ReformatLine turns a JsonCollection record into a JsonString topic:
// {"id": <id>, "title": <contents>}. Other keys are dropped. The output uses
// spaced separators and escapes every rune outside printable ASCII.
func ReformatLine(line []byte) ([]byte, error) {
	var doc struct {
		ID       json.RawMessage `json:"id"`
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, err
	}
	if doc.ID == nil {
		return nil, fmt.Errorf(`missing "id"`)
	}
	if doc.Contents == nil {
		return nil, fmt.Errorf(`missing "contents"`)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"id": `)
	if err := writeASCIIJSON(&buf, doc.ID); err != nil {
		return nil, err
	}
	buf.WriteString(`, "title": `)
	if err := writeASCIIJSON(&buf, doc.Contents); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeASCIIJSON re-encodes a JSON value with ", " and ": " separators,
// keeping object key order and number literals as they were.
func writeASCIIJSON(buf *bytes.Buffer, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	type level struct {
		object bool
		n      int
	}
	var stack []level
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			buf.WriteByte(byte(d))
			continue
		}
		if len(stack) > 0 {
			top := &stack[len(stack)-1]
			switch {
			case top.object && top.n%2 == 1:
				buf.WriteString(": ")
			case top.n > 0:
				buf.WriteString(", ")
			}
			top.n++
		}
		switch v := tok.(type) {
		case json.Delim:
			buf.WriteByte(byte(v))
			stack = append(stack, level{object: v == '{'})
		case string:
			writeASCIIString(buf, v)
		case json.Number:
			buf.WriteString(v.String())
		case bool:
			buf.WriteString(strconv.FormatBool(v))
		case nil:
			buf.WriteString("null")
		}
	}
}

func writeASCIIString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x10000:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			case r < 0x20 || r > 0x7e:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// ReformatTopics rewrites every line of in as a topic line in out, spreading
// the work over a pool of workers. Output lines keep the input order.
func ReformatTopics(ctx context.Context, in, out string, workers int) (int, error) {
	if workers <= 0 {
		return 0, fmt.Errorf("topic workers must be positive, got %d", workers)
	}

	lines, err := readLines(in)
	if err != nil {
		return 0, err
	}

	var (
		formatted = make([][]byte, len(lines))
		bar       = progressbar.Default(int64(len(lines)), "reformatting topics")
		chunk     = max(1, (len(lines)+workers*4-1)/(workers*4))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := 0; lo < len(lines); lo += chunk {
		hi := min(lo+chunk, len(lines))
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				line, err := ReformatLine(lines[i])
				if err != nil {
					return fmt.Errorf("%s line %d: %w", in, i+1, err)
				}
				formatted[i] = line
			}
			bar.Add(hi - lo)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	bar.Finish()

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", out, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, line := range formatted {
		bw.Write(line)
		if err := bw.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("writing %s: %w", out, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("writing %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", out, err)
	}
	return len(formatted), nil
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		lines   [][]byte
		scanner = bufio.NewScanner(f)
	)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for scanner.Scan() {
		lines = append(lines, bytes.Clone(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
