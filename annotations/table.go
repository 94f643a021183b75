package annotations

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// ResultTable formats a solution sequence as a markdown table for CLI
// display. Grounded on datalog/executor/table_formatter.go's TableFormatter,
// adapted from Relation/Tuple/query.Symbol to this engine's named-variable
// row-map shape — the teacher's own formatter is outside the relation
// algebra proper (ambient output plumbing), so it transplants directly.
type ResultTable struct{}

// NewResultTable creates a ResultTable formatter.
func NewResultTable() *ResultTable { return &ResultTable{} }

// Format renders vars (the projected column order) and rows (each a map
// from variable name to its already-decoded display string) as a markdown
// table, or a placeholder for an empty result.
func (t *ResultTable) Format(vars []string, rows []map[string]string) string {
	if len(rows) == 0 {
		return "_No rows_"
	}

	var b strings.Builder
	alignment := make([]tw.Align, len(vars))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(&b,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(vars)

	for _, row := range rows {
		rendered := make([]string, len(vars))
		for i, v := range vars {
			if val, ok := row[v]; ok {
				rendered[i] = val
			} else {
				rendered[i] = ""
			}
		}
		table.Append(rendered)
	}
	table.Render()

	return b.String()
}
