package export

import "fmt"

// Column describes one exported field. Weight sizes the column in PDF output.
type Column struct {
	Key    string
	Label  string
	Weight float64
}

// Table is tabular export content keyed by Column.Key.
type Table struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

func (t Table) validate(format string) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("%s export requires at least one column", format)
	}
	return nil
}

func (t Table) labels() []string {
	labels := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Key
		}
	}
	return labels
}

func (t Table) record(row map[string]string) []string {
	record := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		record[i] = row[col.Key]
	}
	return record
}
