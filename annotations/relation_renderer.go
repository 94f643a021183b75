package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// RowSetRenderer pretty-prints a scan/pipeline stage's in-flight row shape —
// its bound variable names and a running row count — the SPARQL-domain
// analogue of the teacher's RelationRenderer over (attrs, tuple count)
// pairs. Grounded wholesale on
// datalog/annotations/relation_renderer.go, substituting this engine's
// named-variable rows for the teacher's query.Symbol-keyed relations.
type RowSetRenderer struct {
	useColor bool
}

// NewRowSetRenderer creates a renderer with the given color setting.
func NewRowSetRenderer(useColor bool) *RowSetRenderer {
	return &RowSetRenderer{useColor: useColor}
}

// Render formats a row set as "Rows([?s ?p ?o], N rows)". count<0 omits the
// count (used when a stage hasn't finished counting yet).
func (r *RowSetRenderer) Render(vars []string, count int) string {
	varList := strings.Join(vars, " ")

	if r.useColor {
		result := fmt.Sprintf("%s%s%s",
			color.BlueString("Rows(["),
			color.CyanString(varList),
			color.BlueString("]"))
		if count >= 0 {
			result += fmt.Sprintf("%s%s%s", color.BlueString(", "), r.colorizeCount(count), color.BlueString(")"))
		} else {
			result += color.BlueString(")")
		}
		return result
	}
	if count >= 0 {
		return fmt.Sprintf("Rows([%s], %d rows)", varList, count)
	}
	return fmt.Sprintf("Rows([%s])", varList)
}

// RenderJoin formats a nested-loop join step as left × right → result.
func (r *RowSetRenderer) RenderJoin(leftVars []string, leftCount int, rightVars []string, rightCount int, resultVars []string, resultCount int) string {
	left := r.Render(leftVars, leftCount)
	right := r.Render(rightVars, rightCount)
	result := r.Render(resultVars, resultCount)

	joinOp := " × "
	if r.useColor {
		joinOp = color.YellowString(" × ")
	}
	return fmt.Sprintf("%s%s%s → %s", left, joinOp, right, result)
}

func (r *RowSetRenderer) colorizeCount(count int) string {
	text := fmt.Sprintf("%d rows", count)
	if !r.useColor {
		return text
	}
	switch {
	case count == 0:
		return color.RedString(text)
	case count < 100:
		return color.GreenString(text)
	case count < 10000:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}
