// Package dataset provides tabular dataset loading and description.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Column types inferred from CSV values.
const (
	TypeInt    = "int64"
	TypeFloat  = "float64"
	TypeString = "object"
)

// Column describes a single dataset column.
type Column struct {
	Name    string
	Type    string
	Nulls   int
	Samples []string // First two non-null values, floats rounded
}

// Descriptor describes a loaded dataset. It is the unit of state a session
// holds instead of the raw frame; generated code re-reads the file itself.
type Descriptor struct {
	Name        string
	Description string
	Path        string
	Rows        int
	Columns     []Column
}

// Load reads a CSV file and infers a descriptor from it.
func Load(path, name, description string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	header := records[0]
	rows := records[1:]

	cols := make([]Column, len(header))
	for i, colName := range header {
		cols[i] = inferColumn(colName, columnValues(rows, i))
	}

	return &Descriptor{
		Name:        name,
		Description: description,
		Path:        path,
		Rows:        len(rows),
		Columns:     cols,
	}, nil
}

// columnValues extracts the i-th field of every row, "" when the row is short.
func columnValues(rows [][]string, i int) []string {
	values := make([]string, len(rows))
	for j, row := range rows {
		if i < len(row) {
			values[j] = strings.TrimSpace(row[i])
		}
	}
	return values
}

// inferColumn determines type, null count, and sample values for one column.
func inferColumn(name string, values []string) Column {
	col := Column{Name: name, Type: TypeInt}

	allInt, allFloat := true, true
	for _, v := range values {
		if isNull(v) {
			col.Nulls++
			continue
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
		}
	}

	switch {
	case allInt:
		col.Type = TypeInt
	case allFloat:
		col.Type = TypeFloat
	default:
		col.Type = TypeString
	}

	for _, v := range values {
		if isNull(v) {
			continue
		}
		col.Samples = append(col.Samples, formatSample(v, col.Type))
		if len(col.Samples) == 2 {
			break
		}
	}

	return col
}

// isNull reports whether a CSV cell counts as missing.
func isNull(v string) bool {
	switch strings.ToLower(v) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}

// formatSample renders one sample value, rounding floats to one decimal.
func formatSample(v, colType string) string {
	if colType == TypeFloat {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return strconv.FormatFloat(roundTo(f, 1), 'f', -1, 64)
		}
	}
	return v
}

func roundTo(f float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	if f >= 0 {
		return float64(int64(f*shift+0.5)) / shift
	}
	return float64(int64(f*shift-0.5)) / shift
}

// Context renders the dataset summary that code-generating capabilities consume:
// shape, column types with null counts, and two sample values per column.
func (d *Descriptor) Context() string {
	if d == nil {
		return "No dataset is currently loaded."
	}

	var b strings.Builder
	b.WriteString("Dataset context:\n")
	fmt.Fprintf(&b, "- Shape: %d rows, %d columns\n", d.Rows, len(d.Columns))
	b.WriteString("- Columns and types:\n")
	for _, col := range d.Columns {
		fmt.Fprintf(&b, "  * %s (%s): %d null values\n", col.Name, col.Type, col.Nulls)
	}
	b.WriteString("- Sample values:\n")
	for _, col := range d.Columns {
		fmt.Fprintf(&b, "  * %s: %s\n", col.Name, strings.Join(col.Samples, ", "))
	}
	return b.String()
}

// Document renders the descriptor as a retrieval document for the per-session
// dataset index: dataset name, free-text description, then the column summary.
func (d *Descriptor) Document() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	b.WriteString(d.Context())
	return b.String()
}

// ColumnNames returns the column names in order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the dataset has the named column (case-insensitive).
func (d *Descriptor) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
