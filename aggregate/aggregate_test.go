package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/term"
)

// fixedRowsScan replays a fixed set of (name -> value) rows into tbl,
// standing in for a real scan.Scan in these unit tests.
type fixedRowsScan struct {
	tbl  *bindings.Table
	rows []map[string]string
	pos  int
	mark int
}

func newFixedRowsScan(tbl *bindings.Table, rows []map[string]string) *fixedRowsScan {
	return &fixedRowsScan{tbl: tbl, rows: rows, mark: tbl.Count()}
}

func (f *fixedRowsScan) Next(ctx context.Context) (bool, error) {
	if f.pos >= len(f.rows) {
		f.tbl.TruncateTo(f.mark)
		return false, nil
	}
	f.tbl.TruncateTo(f.mark)
	for name, val := range f.rows[f.pos] {
		if err := f.tbl.Bind(name, val); err != nil {
			return false, err
		}
	}
	f.pos++
	return true, nil
}

func (f *fixedRowsScan) Close() error { return nil }

func TestCountSumGroupedByVariable(t *testing.T) {
	tbl := bindings.New(8, 1024)
	ev := eval.NewEvaluator(func() string { return "" }, func() float64 { return 0 })
	rows := []map[string]string{
		{"?g": "a", "?n": `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"?g": "a", "?n": `"2"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"?g": "b", "?n": `"10"^^<http://www.w3.org/2001/XMLSchema#integer>`},
	}
	sc := newFixedRowsScan(tbl, rows)

	specs := []Spec{
		{Function: Count, Arg: eval.VarExpr{Name: "?n"}, ResultVar: "?c"},
		{Function: Sum, Arg: eval.VarExpr{Name: "?n"}, ResultVar: "?s"},
	}
	out, err := Compute(context.Background(), sc, ev, tbl, []eval.Expr{eval.VarExpr{Name: "?g"}}, []string{"?g"}, specs)
	require.NoError(t, err)
	require.Len(t, out, 2)

	byGroup := map[string]Row{}
	for _, r := range out {
		byGroup[term.ParseFromBinding(r["?g"]).Lex()] = r
	}
	require.Equal(t, "2", term.ParseFromBinding(byGroup["a"]["?c"]).Lex())
	require.Equal(t, "3", term.ParseFromBinding(byGroup["a"]["?s"]).Lex())
	require.Equal(t, "1", term.ParseFromBinding(byGroup["b"]["?c"]).Lex())
	require.Equal(t, "10", term.ParseFromBinding(byGroup["b"]["?s"]).Lex())
}

func TestImplicitAggregationOverEmptyInput(t *testing.T) {
	tbl := bindings.New(8, 1024)
	ev := eval.NewEvaluator(func() string { return "" }, func() float64 { return 0 })
	sc := newFixedRowsScan(tbl, nil)

	specs := []Spec{
		{Function: Count, ResultVar: "?c"},
		{Function: Sum, Arg: eval.VarExpr{Name: "?n"}, ResultVar: "?s"},
		{Function: Avg, Arg: eval.VarExpr{Name: "?n"}, ResultVar: "?a"},
	}
	out, err := Compute(context.Background(), sc, ev, tbl, nil, nil, specs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "0", term.ParseFromBinding(out[0]["?c"]).Lex())
	require.Equal(t, "0", term.ParseFromBinding(out[0]["?s"]).Lex())
	require.Equal(t, term.UnboundValue.Lex(), out[0]["?a"])
}

func TestDistinctCount(t *testing.T) {
	tbl := bindings.New(8, 1024)
	ev := eval.NewEvaluator(func() string { return "" }, func() float64 { return 0 })
	rows := []map[string]string{
		{"?n": "1"}, {"?n": "1"}, {"?n": "2"},
	}
	sc := newFixedRowsScan(tbl, rows)

	specs := []Spec{{Function: Count, Arg: eval.VarExpr{Name: "?n"}, Distinct: true, ResultVar: "?c"}}
	out, err := Compute(context.Background(), sc, ev, tbl, nil, nil, specs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "2", term.ParseFromBinding(out[0]["?c"]).Lex())
}

func TestGroupConcatWithSeparator(t *testing.T) {
	tbl := bindings.New(8, 1024)
	ev := eval.NewEvaluator(func() string { return "" }, func() float64 { return 0 })
	rows := []map[string]string{{"?n": "x"}, {"?n": "y"}}
	sc := newFixedRowsScan(tbl, rows)

	specs := []Spec{{Function: GroupConcat, Arg: eval.VarExpr{Name: "?n"}, Separator: ",", ResultVar: "?joined"}}
	out, err := Compute(context.Background(), sc, ev, tbl, nil, nil, specs)
	require.NoError(t, err)
	require.Equal(t, "x,y", term.ParseFromBinding(out[0]["?joined"]).Lex())
}

func TestHavingFiltersGroups(t *testing.T) {
	rows := []Row{
		{"?g": term.PlainString("a").BindingForm(), "?c": term.Int(2).BindingForm()},
		{"?g": term.PlainString("b").BindingForm(), "?c": term.Int(1).BindingForm()},
	}
	ev := eval.NewEvaluator(func() string { return "" }, func() float64 { return 0 })
	filtered := Having(rows, ev, eval.BinaryExpr{Op: eval.OpGt, Left: eval.VarExpr{Name: "?c"}, Right: eval.LiteralExpr{Value: term.Int(1)}})
	require.Len(t, filtered, 1)
	require.Equal(t, "a", term.ParseFromBinding(filtered[0]["?g"]).Lex())
}
