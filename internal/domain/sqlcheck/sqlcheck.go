// Package sqlcheck validates caller-supplied SQL before execution: one
// read-only statement, a whitelisted shape, and an enforced row bound.
// Parseable statements are checked on the AST; statements the parser
// cannot handle (Postgres-only syntax, CTE bodies) fall through to a
// stricter lexical check, never a looser one.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/consumerlens/consumerlens/internal/domain/rules"
	"github.com/xwb1989/sqlparser"
)

// Row bounds enforced on every executed statement.
const (
	// RawRowLimit caps statements without GROUP BY; raw rows are for
	// inspection only.
	RawRowLimit = 5
	// AggregatedRowLimit caps statements with GROUP BY.
	AggregatedRowLimit = 1000
)

// Shape classifies a statement by its aggregation form.
type Shape int

const (
	// ShapeRaw is a statement without GROUP BY.
	ShapeRaw Shape = iota
	// ShapeAggregated is a statement with GROUP BY.
	ShapeAggregated
)

// String returns the human name of the shape.
func (s Shape) String() string {
	if s == ShapeAggregated {
		return "aggregated"
	}
	return "raw"
}

// Bound returns the row limit enforced for the shape.
func (s Shape) Bound() int {
	if s == ShapeAggregated {
		return AggregatedRowLimit
	}
	return RawRowLimit
}

// Result carries the sanitized statement ready for execution.
type Result struct {
	// SQL is the statement to execute, with the row bound applied and,
	// when requested, the business rules rewritten in.
	SQL string
	// Shape is the detected aggregation form.
	Shape Shape
	// Limit is the row bound in effect.
	Limit int
	// Warnings lists every rewrite applied; substitutions are never
	// silent.
	Warnings []string
	// Parsed reports whether the AST path was used.
	Parsed bool
}

// forbidden lists write and DDL keywords that end validation
// immediately. The set covers the DML/DDL/DCL families.
var forbidden = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "CREATE", "MERGE", "REPLACE",
}

const correctiveExample = "SELECT app_name, SUM(weights) AS reach FROM digital_insights GROUP BY app_name"

// Check validates sql and returns the execution-ready form. applyRules
// controls whether the weighting and class-merge rewrites run on
// parseable statements.
func Check(sql string, applyRules bool) (Result, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if trimmed == "" {
		return Result{}, fmt.Errorf("%w: empty statement (try: %s)", ErrValidation, correctiveExample)
	}

	if pieces, err := sqlparser.SplitStatementToPieces(trimmed); err == nil {
		count := 0
		for _, p := range pieces {
			if strings.TrimSpace(p) != "" {
				count++
			}
		}
		if count > 1 {
			return Result{}, fmt.Errorf("%w: multiple statements in one request (offending clause: %q)", ErrValidation, ";")
		}
	}

	stmt, err := sqlparser.Parse(trimmed)
	if err != nil {
		return checkLexical(trimmed)
	}
	return checkParsed(stmt, trimmed, applyRules)
}

// checkParsed validates a successfully parsed statement on the AST.
func checkParsed(stmt sqlparser.Statement, original string, applyRules bool) (Result, error) {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
	default:
		return Result{}, fmt.Errorf("%w: only read-only SELECT statements are allowed (offending clause: %q; try: %s)",
			ErrValidation, firstToken(original), correctiveExample)
	}

	shape := ShapeRaw
	if hasGroupBy(stmt) {
		shape = ShapeAggregated
	}
	limit := applyBound(stmt, shape.Bound())

	var warnings []string
	if applyRules {
		warnings = rules.RewriteStatement(stmt)
	}

	return Result{
		SQL:      sqlparser.String(stmt),
		Shape:    shape,
		Limit:    limit,
		Warnings: warnings,
		Parsed:   true,
	}, nil
}

// hasGroupBy walks the statement tree looking for any GROUP BY clause.
func hasGroupBy(stmt sqlparser.Statement) bool {
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if sel, ok := node.(*sqlparser.Select); ok && len(sel.GroupBy) > 0 {
			found = true
			return false, nil
		}
		return true, nil
	}, stmt)
	return found
}

// applyBound injects or clamps the LIMIT clause and returns the bound
// in effect. A caller limit below the ceiling is preserved; above it,
// clamped down, never relaxed.
func applyBound(stmt sqlparser.Statement, bound int) int {
	var limit **sqlparser.Limit
	switch s := stmt.(type) {
	case *sqlparser.Select:
		limit = &s.Limit
	case *sqlparser.Union:
		limit = &s.Limit
	default:
		return bound
	}

	if *limit == nil {
		*limit = &sqlparser.Limit{Rowcount: sqlparser.NewIntVal([]byte(strconv.Itoa(bound)))}
		return bound
	}
	if v, ok := (*limit).Rowcount.(*sqlparser.SQLVal); ok && v.Type == sqlparser.IntVal {
		if n, err := strconv.Atoi(string(v.Val)); err == nil {
			if n <= bound {
				return n
			}
		}
	}
	(*limit).Rowcount = sqlparser.NewIntVal([]byte(strconv.Itoa(bound)))
	return bound
}

// --- lexical fallback ---

// trailingLimitPattern matches a LIMIT clause only at the end of the
// statement. An inner LIMIT (a CTE body, a subquery) does not bound
// the outer statement and must not be mistaken for one.
var trailingLimitPattern = regexp.MustCompile(`(?i)\blimit\s+(\d+)\s*;?\s*$`)

// checkLexical is the conservative path for statements the parser does
// not understand. Comments and literals are stripped before keyword
// scanning so a keyword hidden inside a string cannot trip or bypass
// the check.
func checkLexical(sql string) (Result, error) {
	scrubbed := stripLiterals(stripComments(sql))

	if strings.ContainsRune(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(scrubbed), ";")), ';') {
		return Result{}, fmt.Errorf("%w: multiple statements in one request (offending clause: %q)", ErrValidation, ";")
	}

	first := firstToken(scrubbed)
	if first != "SELECT" && first != "WITH" {
		return Result{}, fmt.Errorf("%w: statement must begin with SELECT or WITH (offending clause: %q; try: %s)",
			ErrValidation, first, correctiveExample)
	}

	upperTokens := tokenize(scrubbed)
	for _, tok := range upperTokens {
		for _, kw := range forbidden {
			if tok == kw {
				return Result{}, fmt.Errorf("%w: forbidden keyword %s (try: %s)", ErrValidation, kw, correctiveExample)
			}
		}
	}

	shape := ShapeRaw
	if containsSequence(upperTokens, "GROUP", "BY") {
		shape = ShapeAggregated
	}

	out := sql
	limit := shape.Bound()
	if m := trailingLimitPattern.FindStringSubmatchIndex(scrubbed); m != nil {
		n, err := strconv.Atoi(scrubbed[m[2]:m[3]])
		if err == nil && n <= limit {
			limit = n
		} else {
			// Clamp in the original text; scrubbing blanks in place
			// so offsets line up.
			out = out[:m[2]] + strconv.Itoa(limit) + out[m[3]:]
		}
	} else {
		// No trailing bound. Appending LIMIT would vanish inside a
		// trailing line comment, so wrap the whole statement instead.
		out = fmt.Sprintf("SELECT * FROM (%s) AS bounded LIMIT %d", statementBody(sql, scrubbed), limit)
	}

	return Result{SQL: out, Shape: shape, Limit: limit, Parsed: false}, nil
}

// statementBody cuts sql at its last code character, using the
// blanked copy so trailing comments and semicolons stay out of the
// wrapping subquery.
func statementBody(sql, scrubbed string) string {
	end := len(scrubbed)
	for end > 0 {
		switch scrubbed[end-1] {
		case ' ', '\t', '\n', '\r', ';':
			end--
			continue
		}
		break
	}
	return sql[:end]
}

// stripComments blanks -- line comments and /* */ block comments,
// preserving byte offsets so clamping can edit the original text.
func stripComments(sql string) string {
	out := []byte(sql)
	for i := 0; i < len(out); {
		if strings.HasPrefix(sql[i:], "--") {
			j := i
			for j < len(out) && out[j] != '\n' {
				out[j] = ' '
				j++
			}
			i = j
			continue
		}
		if strings.HasPrefix(sql[i:], "/*") {
			end := strings.Index(sql[i:], "*/")
			if end < 0 {
				end = len(sql) - i - 2
			}
			for j := i; j < i+end+2 && j < len(out); j++ {
				out[j] = ' '
			}
			i += end + 2
			continue
		}
		i++
	}
	return string(out)
}

// stripLiterals blanks quoted strings and identifiers in place, keeping
// byte offsets stable for later clamping.
func stripLiterals(sql string) string {
	out := []byte(sql)
	for i := 0; i < len(out); {
		q := out[i]
		if q != '\'' && q != '"' {
			i++
			continue
		}
		j := i + 1
		for j < len(out) {
			if out[j] == q {
				if j+1 < len(out) && out[j+1] == q { // escaped quote
					j += 2
					continue
				}
				break
			}
			j++
		}
		for k := i + 1; k < j && k < len(out); k++ {
			out[k] = ' '
		}
		i = j + 1
	}
	return string(out)
}

// tokenize splits on non-identifier characters and uppercases.
func tokenize(sql string) []string {
	fields := strings.FieldsFunc(sql, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}
	return fields
}

func containsSequence(tokens []string, a, b string) bool {
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i] == a && tokens[i+1] == b {
			return true
		}
	}
	return false
}

func firstToken(sql string) string {
	toks := tokenize(sql)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}
