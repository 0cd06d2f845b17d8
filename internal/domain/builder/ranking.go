// Package builder converts structured filter specifications into
// pre-validated SQL, so common questions never require hand-written
// statements. All weighted totals are computed over per-user
// deduplicated rows: a user with many sessions of the same app
// contributes their weight once.
package builder

import (
	"fmt"
	"strings"

	"github.com/consumerlens/consumerlens/internal/domain/rules"
	"github.com/consumerlens/consumerlens/internal/domain/sqlcheck"
)

// DefaultRankLimit applies when the caller does not bound a ranking.
const DefaultRankLimit = 10

// RankingSpec is the structured form of a "top apps for ..." question.
// Zero-valued filters impose no predicate.
type RankingSpec struct {
	Table     string
	Category  string
	AgeBucket string
	Gender    string
	Class     string // canonical bucket after Normalize
	Metric    rules.Metric
	Limit     int
}

// Normalize canonicalizes filter values and clamps the limit to the
// aggregated-shape ceiling. Raw class codes are folded to their bucket
// here so they never reach the generated SQL as-is.
func (s *RankingSpec) Normalize() error {
	if s.AgeBucket != "" && !rules.ValidAgeBucket(s.AgeBucket) {
		return fmt.Errorf("%w: age bucket %q (valid: %s)", ErrInvalidFilter, s.AgeBucket, strings.Join(rules.AgeBuckets(), ", "))
	}
	if s.Gender != "" {
		if !rules.ValidGender(s.Gender) {
			return fmt.Errorf("%w: gender %q (valid: %s)", ErrInvalidFilter, s.Gender, strings.Join(rules.Genders(), ", "))
		}
		s.Gender = strings.ToUpper(strings.TrimSpace(s.Gender))
	}
	if s.Class != "" {
		merged, ok := rules.MergeClass(s.Class)
		if !ok {
			return fmt.Errorf("%w: socioeconomic class %q (valid: %s)", ErrInvalidFilter, s.Class, strings.Join(rules.CanonicalClasses(), ", "))
		}
		s.Class = merged
	}
	if s.Metric == "" {
		s.Metric = rules.MetricReach
	}
	if s.Limit <= 0 {
		s.Limit = DefaultRankLimit
	}
	if s.Limit > sqlcheck.AggregatedRowLimit {
		s.Limit = sqlcheck.AggregatedRowLimit
	}
	return nil
}

// where renders the filter predicates, appending their arguments.
// A filter on the class bucket matches every raw code in the bucket.
func (s *RankingSpec) where(args *[]any) string {
	var conds []string
	add := func(cond string, vals ...any) {
		for _, v := range vals {
			*args = append(*args, v)
		}
		conds = append(conds, cond)
	}

	if s.Category != "" {
		add(fmt.Sprintf("%s = $%d", rules.ColCategory, len(*args)+1), s.Category)
	}
	if s.AgeBucket != "" {
		add(fmt.Sprintf("%s = $%d", rules.ColAgeBucket, len(*args)+1), s.AgeBucket)
	}
	if s.Gender != "" {
		add(fmt.Sprintf("%s = $%d", rules.ColGender, len(*args)+1), s.Gender)
	}
	if s.Class != "" {
		raws := rules.RawClassesFor(s.Class)
		ph := make([]string, len(raws))
		vals := make([]any, len(raws))
		for i, r := range raws {
			ph[i] = fmt.Sprintf("$%d", len(*args)+1+i)
			vals[i] = r
		}
		add(fmt.Sprintf("%s IN (%s)", rules.ColClass, strings.Join(ph, ", ")), vals...)
	}

	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

// metricExpr returns the outer aggregation for the selected metric.
// Reach sums weights; engagement divides duration by weight, never by
// row count, and is itself never weight-multiplied.
func (s *RankingSpec) metricExpr() (expr, alias string) {
	if s.Metric == rules.MetricEngagement {
		return fmt.Sprintf("SUM(%s) / NULLIF(SUM(%s), 0)", rules.ColDuration, rules.ColWeight), "engagement"
	}
	return fmt.Sprintf("SUM(%s)", rules.ColWeight), "reach"
}

// Ranking builds the grouped-by-app statement. Ordering is descending
// by metric with app name ascending as the deterministic tie-break.
func Ranking(s RankingSpec) (string, []any) {
	var args []any
	where := s.where(&args)
	expr, alias := s.metricExpr()

	sql := fmt.Sprintf(`SELECT %s, %s, %s AS %s
FROM (
    SELECT %s, %s, %s, MAX(%s) AS %s, SUM(%s) AS %s
    FROM %s
    %s
    GROUP BY 1, 2, 3
) AS per_user
GROUP BY %s, %s
ORDER BY %s DESC, %s ASC
LIMIT %d`,
		rules.ColAppName, rules.ColCategory, expr, alias,
		rules.ColUserID, rules.ColAppName, rules.ColCategory, rules.ColWeight, rules.ColWeight, rules.ColDuration, rules.ColDuration,
		s.Table,
		where,
		rules.ColAppName, rules.ColCategory,
		alias, rules.ColAppName,
		s.Limit)
	return sql, args
}

// RankingTotal builds the denominator statement: the same filters
// without app grouping, for market-share computation.
func RankingTotal(s RankingSpec) (string, []any) {
	var args []any
	where := s.where(&args)

	var outer string
	if s.Metric == rules.MetricEngagement {
		outer = fmt.Sprintf("COALESCE(SUM(%s) / NULLIF(SUM(%s), 0), 0)", rules.ColDuration, rules.ColWeight)
	} else {
		outer = fmt.Sprintf("COALESCE(SUM(%s), 0)", rules.ColWeight)
	}

	sql := fmt.Sprintf(`SELECT %s
FROM (
    SELECT %s, MAX(%s) AS %s, SUM(%s) AS %s
    FROM %s
    %s
    GROUP BY 1
) AS per_user`,
		outer,
		rules.ColUserID, rules.ColWeight, rules.ColWeight, rules.ColDuration, rules.ColDuration,
		s.Table,
		where)
	return sql, args
}
