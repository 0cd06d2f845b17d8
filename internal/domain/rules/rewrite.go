package rules

import (
	"github.com/xwb1989/sqlparser"
)

// WarnWeightSubstitution is attached to every response whose query was
// rewritten by the weighting rule. The substitution is never silent.
const WarnWeightSubstitution = "COUNT over " + ColUserID + " was rewritten to SUM(" + ColWeight + "): user counts come from survey weights, not row counts"

// WarnClassMerge is attached when the class column was relabeled to
// canonical buckets inside the statement.
const WarnClassMerge = "socioeconomic classes merged to canonical buckets (A/A1 -> A, C/D/E -> C/D/E)"

// RewriteSelect applies the weighting substitution and the class merge
// to a parsed SELECT in place and returns a warning for every
// substitution made. Only projections and groupings of the outer
// statement are touched; the rule stays narrow so arbitrary
// expressions are never rewritten behind the caller's back.
func RewriteSelect(sel *sqlparser.Select) []string {
	var warnings []string
	if rewriteUserCounts(sel) {
		warnings = append(warnings, WarnWeightSubstitution)
	}
	if mergeClassColumn(sel) {
		warnings = append(warnings, WarnClassMerge)
	}
	return warnings
}

// RewriteStatement dispatches RewriteSelect over plain selects and both
// arms of a union.
func RewriteStatement(stmt sqlparser.Statement) []string {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return RewriteSelect(s)
	case *sqlparser.Union:
		warnings := rewriteUnionSide(s.Left)
		return dedupeWarnings(append(warnings, rewriteUnionSide(s.Right)...))
	}
	return nil
}

func rewriteUnionSide(stmt sqlparser.SelectStatement) []string {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return RewriteSelect(s)
	case *sqlparser.Union:
		return RewriteStatement(s)
	case *sqlparser.ParenSelect:
		return rewriteUnionSide(s.Select)
	}
	return nil
}

// rewriteUserCounts replaces COUNT(user_id) and COUNT(DISTINCT user_id)
// projections with SUM(weights). Duration and event-count aggregates
// pass through untouched; weighting applies to users only.
func rewriteUserCounts(sel *sqlparser.Select) bool {
	rewritten := false
	for _, se := range sel.SelectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		fn, ok := ae.Expr.(*sqlparser.FuncExpr)
		if !ok || !fn.Name.EqualString("count") {
			continue
		}
		if !funcTargetsColumn(fn, ColUserID) {
			continue
		}
		ae.Expr = &sqlparser.FuncExpr{
			Name: sqlparser.NewColIdent("sum"),
			Exprs: sqlparser.SelectExprs{&sqlparser.AliasedExpr{
				Expr: &sqlparser.ColName{Name: sqlparser.NewColIdent(ColWeight)},
			}},
		}
		if ae.As.IsEmpty() {
			ae.As = sqlparser.NewColIdent("weighted_users")
		}
		rewritten = true
	}
	return rewritten
}

// funcTargetsColumn reports whether fn has exactly one argument that is
// the named column.
func funcTargetsColumn(fn *sqlparser.FuncExpr, column string) bool {
	if len(fn.Exprs) != 1 {
		return false
	}
	ae, ok := fn.Exprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return false
	}
	col, ok := ae.Expr.(*sqlparser.ColName)
	return ok && col.Name.EqualString(column)
}

// mergeClassColumn relabels bare projections and groupings of the class
// column with the canonical CASE expression so counts are summed across
// the merged raw codes.
func mergeClassColumn(sel *sqlparser.Select) bool {
	merged := false
	for _, se := range sel.SelectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		col, ok := ae.Expr.(*sqlparser.ColName)
		if !ok || !col.Name.EqualString(ColClass) {
			continue
		}
		ae.Expr = classCaseAST(col)
		if ae.As.IsEmpty() {
			ae.As = sqlparser.NewColIdent(ColClass)
		}
		merged = true
	}
	for i, expr := range sel.GroupBy {
		col, ok := expr.(*sqlparser.ColName)
		if !ok || !col.Name.EqualString(ColClass) {
			continue
		}
		sel.GroupBy[i] = classCaseAST(col)
		merged = true
	}
	return merged
}

// classCaseAST builds the merge CASE as an AST node over col.
func classCaseAST(col *sqlparser.ColName) *sqlparser.CaseExpr {
	return &sqlparser.CaseExpr{
		Whens: []*sqlparser.When{
			{Cond: inTuple(col, "A", "A1"), Val: strVal("A")},
			{Cond: &sqlparser.ComparisonExpr{Operator: sqlparser.EqualStr, Left: col, Right: strVal("B")}, Val: strVal("B")},
			{Cond: inTuple(col, "C", "D", "E"), Val: strVal("C/D/E")},
		},
		Else: col,
	}
}

func inTuple(col *sqlparser.ColName, vals ...string) sqlparser.Expr {
	tuple := make(sqlparser.ValTuple, 0, len(vals))
	for _, v := range vals {
		tuple = append(tuple, strVal(v))
	}
	return &sqlparser.ComparisonExpr{Operator: sqlparser.InStr, Left: col, Right: tuple}
}

func strVal(s string) *sqlparser.SQLVal {
	return sqlparser.NewStrVal([]byte(s))
}

func dedupeWarnings(ws []string) []string {
	seen := make(map[string]struct{}, len(ws))
	out := ws[:0]
	for _, w := range ws {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeRows relabels a class column in already-fetched rows and sums
// the metric across rows that collapse into the same canonical bucket.
// Used when a statement could not be parsed and the merge had to happen
// post-query.
func MergeRows(labels []string, values []float64) ([]string, []float64) {
	order := make([]string, 0, len(labels))
	sums := make(map[string]float64, len(labels))
	for i, l := range labels {
		bucket, ok := MergeClass(l)
		if !ok {
			bucket = l
		}
		if _, seen := sums[bucket]; !seen {
			order = append(order, bucket)
		}
		sums[bucket] += values[i]
	}
	merged := make([]float64, len(order))
	for i, b := range order {
		merged[i] = sums[b]
	}
	return order, merged
}

// String renders a rewritten statement back to SQL text.
func String(stmt sqlparser.Statement) string {
	return sqlparser.String(stmt)
}
