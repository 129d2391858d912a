package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const maxCellWidth = 40

// WriteText renders t as an aligned plain-text table. Cells show "value [confidence]";
// empty cells show "-".
func WriteText(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"DOCUMENT", "CASE"}
	for _, c := range t.Columns {
		header = append(header, strings.ToUpper(c.Label))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range t.Rows {
		cells := []string{clip(r.Filename), fmt.Sprint(r.Case)}
		for _, fv := range r.Cells {
			if fv.IsEmpty() {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, fmt.Sprintf("%s [%d]", clip(fv.Value), fv.Confidence))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// clip shortens s to maxCellWidth runes and folds it onto one line
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-1]) + "…"
}
