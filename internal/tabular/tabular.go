// Package tabular parses delimited numeric text files into column-major tables.
package tabular

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const maxLineBytes = 64 << 20

// Delimiter is the field separator detected for a file.
type Delimiter string

// Supported delimiters.
const (
	Tab        Delimiter = "tab"
	Comma      Delimiter = "comma"
	Whitespace Delimiter = "whitespace"
)

// Table holds the numeric columns of a file. Rows are samples and columns are signals.
type Table struct {
	Header    []string // nil when the file has no header row
	Columns   [][]float64
	Rows      int
	Dropped   int // columns removed for holding a non-numeric or empty cell
	Delimiter Delimiter
}

// NumCols returns the number of numeric columns kept.
func (t *Table) NumCols() int {
	return len(t.Columns)
}

// Column returns the column with the given header name.
func (t *Table) Column(name string) ([]float64, bool) {
	for i, h := range t.Header {
		if h == name {
			return t.Columns[i], true
		}
	}
	return nil, false
}

// ReadFile parses the file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads a delimited table. Lines starting with '#' and blank lines are skipped.
// The delimiter is sniffed from the first data line, and that line is a header
// when any of its fields is not a number. A column with any non-numeric or
// missing cell is dropped.
func Parse(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		delim  Delimiter
		header []string
		rows   [][]string
		width  int
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if delim == "" {
			delim = sniff(line)
		}
		fields := split(line, delim)
		if header == nil && len(rows) == 0 && !allNumeric(fields) {
			header = fields
			width = max(width, len(fields))
			continue
		}
		rows = append(rows, fields)
		width = max(width, len(fields))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no numeric rows")
	}

	t := &Table{Rows: len(rows), Delimiter: delim}
	for c := range width {
		col, ok := numericColumn(rows, c)
		if !ok {
			t.Dropped++
			continue
		}
		t.Columns = append(t.Columns, col)
		if header != nil {
			name := ""
			if c < len(header) {
				name = header[c]
			}
			t.Header = append(t.Header, name)
		}
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("no numeric columns among %d", width)
	}
	return t, nil
}

func sniff(line string) Delimiter {
	switch {
	case strings.Contains(line, "\t"):
		return Tab
	case strings.Contains(line, ","):
		return Comma
	default:
		return Whitespace
	}
}

func split(line string, delim Delimiter) []string {
	var fields []string
	switch delim {
	case Tab:
		fields = strings.Split(line, "\t")
	case Comma:
		fields = strings.Split(line, ",")
	default:
		return strings.Fields(line)
	}
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"`)
	}
	return fields
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func allNumeric(fields []string) bool {
	for _, f := range fields {
		if _, ok := parseNumber(f); !ok {
			return false
		}
	}
	return true
}

func numericColumn(rows [][]string, c int) ([]float64, bool) {
	col := make([]float64, len(rows))
	for i, row := range rows {
		if c >= len(row) {
			return nil, false
		}
		v, ok := parseNumber(row[c])
		if !ok {
			return nil, false
		}
		col[i] = v
	}
	return col, true
}
