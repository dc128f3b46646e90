package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// OutputFormat names a rendering for command results.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// Formatter renders command results.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter returns the Formatter for format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter writes data as indented JSON, using its json tags.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TableFormatter writes a struct, or a slice of structs, as aligned columns.
// Only fields with a header tag are shown.
type TableFormatter struct {
	// Empty is written instead of the header when there are no rows.
	Empty string
}

func (f *TableFormatter) Format(data any, writer io.Writer) error {
	header, rows, err := columns(data)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if f.Empty == "" {
			return nil
		}
		_, err := fmt.Fprintln(writer, f.Empty)
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	for _, line := range append([][]string{header}, rows...) {
		if _, err := fmt.Fprintln(w, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter writes the same columns as TableFormatter as CSV. A header row is
// written even when there are no rows.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	header, rows, err := columns(data)
	if err != nil {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

// columns flattens data into a header and rendered cells.
func columns(data any) ([]string, [][]string, error) {
	v := reflect.Indirect(reflect.ValueOf(data))

	var elem reflect.Type
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		elem = v.Type().Elem()
	case reflect.Struct:
		elem = v.Type()
	default:
		return nil, nil, fmt.Errorf("cannot format %T as rows", data)
	}
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("cannot format %T as rows", data)
	}

	var (
		header []string
		fields []int
	)
	for i := 0; i < elem.NumField(); i++ {
		if tag := elem.Field(i).Tag.Get("header"); tag != "" {
			header = append(header, tag)
			fields = append(fields, i)
		}
	}

	row := func(rv reflect.Value) []string {
		rv = reflect.Indirect(rv)
		cells := make([]string, len(fields))
		for i, idx := range fields {
			cells[i] = formatCell(rv.Field(idx).Interface())
		}
		return cells
	}

	if v.Kind() == reflect.Struct {
		return header, [][]string{row(v)}, nil
	}
	rows := make([][]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		rows = append(rows, row(v.Index(i)))
	}
	return header, rows, nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Local().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case string:
		if x == "" {
			return "-"
		}
		return x
	default:
		return fmt.Sprintf("%v", v)
	}
}
