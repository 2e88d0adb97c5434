package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a row-per-subject metadata table with named columns.
type Table struct {
	kind    Kind
	key     string
	columns []string
	// cells[c][r] is the value of column c on row r.
	cells [][]string
	// rowIndex maps subject id -> row.
	rowIndex map[string]int
}

// ReadTable loads the CSV metadata file at path, keeping only the column
// indices listed in columns (all columns when nil). The header row names the
// columns and key must be one of the retained columns. Subject ids in the key
// column must be unique.
func ReadTable(kind Kind, path string, columns []int, key string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, LoadError.Wrap(fmt.Errorf("failed to open metadata %s: %w", path, err))
	}
	defer file.Close()

	t, err := parseTable(kind, csv.NewReader(file), columns, key)
	if err != nil {
		return nil, LoadError.Wrap(fmt.Errorf("%s: %w", path, err))
	}
	return t, nil
}

func parseTable(kind Kind, reader *csv.Reader, columns []int, key string) (*Table, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if columns == nil {
		columns = make([]int, len(header))
		for i := range header {
			columns[i] = i
		}
	}

	t := &Table{
		kind:     kind,
		key:      key,
		columns:  make([]string, len(columns)),
		cells:    make([][]string, len(columns)),
		rowIndex: make(map[string]int),
	}

	seen := make(map[string]bool, len(columns))
	keyCol := -1
	for i, idx := range columns {
		if idx < 0 || idx >= len(header) {
			return nil, fmt.Errorf("column index %d out of range [0, %d)", idx, len(header))
		}
		name := strings.TrimSpace(header[idx])
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		t.columns[i] = name
		if name == key {
			keyCol = i
		}
	}
	if keyCol == -1 {
		return nil, fmt.Errorf("key column %q not found in retained columns %v", key, t.columns)
	}

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}

		for i, idx := range columns {
			t.cells[i] = append(t.cells[i], strings.TrimSpace(record[idx]))
		}

		id := t.cells[keyCol][row]
		if id == "" {
			return nil, fmt.Errorf("row %d has an empty %q", row, key)
		}
		if prev, ok := t.rowIndex[id]; ok {
			return nil, fmt.Errorf("subject %q repeated on rows %d and %d", id, prev, row)
		}
		t.rowIndex[id] = row
		row++
	}

	return t, nil
}

// Kind implements Collection.
func (t *Table) Kind() Kind { return t.kind }

// KeyColumn returns the name of the subject identifier column.
func (t *Table) KeyColumn() string { return t.key }

// Keys returns the retained column names in file order.
func (t *Table) Keys() []string {
	return append([]string(nil), t.columns...)
}

// Column returns the named column's values in file order.
func (t *Table) Column(name string) ([]string, bool) {
	for i, col := range t.columns {
		if col == name {
			return append([]string(nil), t.cells[i]...), true
		}
	}
	return nil, false
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rowIndex) }

// Row returns the cells of the subject's row keyed by column name.
func (t *Table) Row(subject string) (map[string]string, bool) {
	r, ok := t.rowIndex[subject]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(t.columns))
	for i, col := range t.columns {
		out[col] = t.cells[i][r]
	}
	return out, true
}
