package builder

import (
	"fmt"

	"github.com/consumerlens/consumerlens/internal/domain/rules"
)

// Dimension is one axis of a demographic profile.
type Dimension string

// The four profile dimensions. Each breakdown runs as an independent
// grouped aggregation; they are joined only in the response, never in
// SQL.
const (
	DimGender Dimension = "gender"
	DimAge    Dimension = "age"
	DimClass  Dimension = "class"
	DimRegion Dimension = "region"
)

// Dimensions returns the profile axes in display order.
func Dimensions() []Dimension {
	return []Dimension{DimGender, DimAge, DimClass, DimRegion}
}

// columnExpr maps a dimension to its SQL expression. The class axis
// goes through the merge CASE so raw codes never surface.
func (d Dimension) columnExpr() string {
	switch d {
	case DimGender:
		return rules.ColGender
	case DimAge:
		return rules.ColAgeBucket
	case DimClass:
		return rules.ClassCaseExpr(rules.ColClass)
	case DimRegion:
		return rules.ColRegion
	}
	return string(d)
}

// Canonical returns the full canonical value set for the dimension, or
// nil when the set is open-ended (regions).
func (d Dimension) Canonical() []string {
	switch d {
	case DimGender:
		return rules.Genders()
	case DimAge:
		return rules.AgeBuckets()
	case DimClass:
		return rules.CanonicalClasses()
	}
	return nil
}

// ResolveAppExact matches an app name case-insensitively.
func ResolveAppExact(table string) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE LOWER(%s) = LOWER($1) ORDER BY %s",
		rules.ColAppName, table, rules.ColAppName, rules.ColAppName)
}

// ResolveAppPartial finds candidate app names by substring, capped so
// suggestion lists stay short.
func ResolveAppPartial(table string) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ILIKE '%%' || $1 || '%%' ORDER BY %s LIMIT 8",
		rules.ColAppName, table, rules.ColAppName, rules.ColAppName)
}

// Breakdown builds one weighted grouped aggregation over a dimension.
// withApp adds the app-name predicate ($1); without it the same shape
// yields the population baseline for index computation. The inner
// subquery deduplicates per user so a user's weight counts once.
func Breakdown(table string, dim Dimension, withApp bool) string {
	expr := dim.columnExpr()
	where := ""
	if withApp {
		where = fmt.Sprintf("WHERE %s = $1", rules.ColAppName)
	}
	return fmt.Sprintf(`SELECT segment, SUM(%s) AS reach
FROM (
    SELECT %s, %s AS segment, MAX(%s) AS %s
    FROM %s
    %s
    GROUP BY 1, 2
) AS per_user
GROUP BY segment
ORDER BY reach DESC, segment ASC`,
		rules.ColWeight,
		rules.ColUserID, expr, rules.ColWeight, rules.ColWeight,
		table,
		where)
}
