// Package csvio exports and imports collections as CSV. Columns are
// positional: the header row is written for people and skipped on import.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column maps one CSV column to an attribute of T.
type Column[T any] struct {
	Header string
	// Quote wraps the value in double quotes on export. Text columns set it;
	// numeric columns are written bare.
	Quote bool
	Get   func(T) string
	// Set parses a cell into the item. A returned error skips the row.
	Set func(*T, string) error
}

// Write emits a header row followed by one row per item.
func Write[T any](w io.Writer, cols []Column[T], items []T) error {
	bw := bufio.NewWriter(w)

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = quote(c.Header)
	}
	if _, err := bw.WriteString(strings.Join(headers, ",") + "\n"); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	cells := make([]string, len(cols))
	for _, item := range items {
		for i, c := range cols {
			v := c.Get(item)
			if c.Quote || strings.ContainsAny(v, ",\"\r\n") {
				v = quote(v)
			}
			cells[i] = v
		}
		if _, err := bw.WriteString(strings.Join(cells, ",") + "\n"); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// maxRecordLines bounds how many physical lines one quoted record may span.
const maxRecordLines = 64

// Read parses rows into items built by newItem. The first record is the
// header. Rows with fewer cells than columns, rows that are not valid CSV
// and rows a column cannot parse are skipped and counted. A malformed row
// costs only its own line: parsing resumes on the line after it.
func Read[T any](r io.Reader, cols []Column[T], newItem func() T) (items []T, skipped int, err error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading csv: %w", err)
	}

	header := true
	for i := 0; i < len(lines); {
		if lines[i] == "" {
			i++
			continue
		}

		// A field opened by an odd number of quotes continues on the next line.
		end := i
		buf := lines[i]
		for strings.Count(buf, `"`)%2 == 1 && end+1 < len(lines) && end-i+1 < maxRecordLines {
			end++
			buf += "\n" + lines[end]
		}

		rec, perr := parseRecord(buf)
		if perr != nil {
			if header {
				header = false
			} else {
				skipped++
			}
			i++
			continue
		}
		i = end + 1

		if header {
			header = false
			continue
		}
		if len(rec) < len(cols) {
			skipped++
			continue
		}

		item := newItem()
		ok := true
		for j, c := range cols {
			if err := c.Set(&item, strings.TrimSpace(rec[j])); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

// parseRecord parses s as exactly one CSV record.
func parseRecord(s string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(s))
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		return nil, err
	}
	if _, err := cr.Read(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after record")
	}
	return rec, nil
}

func readLines(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" || err == nil {
			line = strings.TrimSuffix(line, "\n")
			lines = append(lines, strings.TrimSuffix(line, "\r"))
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
