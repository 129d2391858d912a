// Package report turns normalized results into tables for the API, the CLI and XLSX export.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/caseextract/internal/model"
)

// fieldLabels name the fields requested by the default prompt
var fieldLabels = map[string]string{
	"0":  "Article Name",
	"1":  "DOI",
	"2":  "First Author",
	"3":  "Year",
	"3A": "Case Number",
	"3B": "Presentation Date",
	"4":  "Age",
	"5":  "Gender",
	"6":  "Symptom Duration (months)",
	"7":  "Location",
	"8":  "Simpson Grade",
	"9":  "WHO Grade",
	"10": "Subtype",
	"11": "Adjuvant Therapy",
	"12": "Symptom Assessment",
	"13": "Recurrence",
	"14": "Status",
	"15": "Invasion",
	"16": "Original",
}

// Label returns the human-readable header for a field key
func Label(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	return key
}

// Column is one field column of a table
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Row is one case; Cells line up with Table.Columns
type Row struct {
	DocumentID string             `json:"document_id"`
	Filename   string             `json:"filename"`
	Case       int                `json:"case"` // 1-based within the document
	Cells      []model.FieldValue `json:"cells"`
}

// Table is the tabular view of a job's results
type Table struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// BuildTable lays out one row per case. Columns are fieldKeys in order followed by any
// other keys the model emitted, in natural order. Absent cells are empty with confidence 1.
func BuildTable(results []model.Result, fieldKeys []string) *Table {
	if len(fieldKeys) == 0 {
		fieldKeys = model.DefaultFieldKeys()
	}

	known := make(map[string]bool, len(fieldKeys))
	for _, k := range fieldKeys {
		known[k] = true
	}
	var extra []string
	for _, res := range results {
		for _, c := range res.Data.Cases {
			for k := range c {
				if !known[k] {
					known[k] = true
					extra = append(extra, k)
				}
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool { return naturalLess(extra[i], extra[j]) })

	keys := append(append([]string{}, fieldKeys...), extra...)
	t := &Table{
		Columns: make([]Column, len(keys)),
		Rows:    []Row{},
	}
	for i, k := range keys {
		t.Columns[i] = Column{Key: k, Label: Label(k)}
	}

	for _, res := range results {
		for i, c := range res.Data.Cases {
			row := Row{
				DocumentID: res.DocumentID,
				Filename:   res.Filename,
				Case:       i + 1,
				Cells:      make([]model.FieldValue, len(keys)),
			}
			for j, k := range keys {
				if v, ok := c[k]; ok {
					row.Cells[j] = v
				} else {
					row.Cells[j] = model.EmptyField()
				}
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// Keys returns the column keys in order
func (t *Table) Keys() []string {
	keys := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		keys[i] = c.Key
	}
	return keys
}

// naturalLess orders keys by leading number, then by suffix: "3" < "3A" < "3B" < "16" < "Notes"
func naturalLess(a, b string) bool {
	na, sa, oka := splitKey(a)
	nb, sb, okb := splitKey(b)
	switch {
	case oka && okb:
		if na != nb {
			return na < nb
		}
		return sa < sb
	case oka != okb:
		return oka
	default:
		return strings.ToLower(a) < strings.ToLower(b)
	}
}

func splitKey(k string) (int, string, bool) {
	i := 0
	for i < len(k) && k[i] >= '0' && k[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, k, false
	}
	n, err := strconv.Atoi(k[:i])
	if err != nil {
		return 0, k, false
	}
	return n, k[i:], true
}
