// Package rules centralizes the survey business rules that every query
// must honor: the socioeconomic class merge and the weighting
// substitution for user counts. Callers never apply these rules
// themselves; they ask this package.
package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical column names of the events table.
const (
	ColUserID     = "user_id"
	ColAppPackage = "app_package"
	ColAppName    = "app_name"
	ColDuration   = "total_duration"
	ColEventCount = "event_count"
	ColEventDate  = "event_date"
	ColDayOfWeek  = "day_of_week"
	ColCategory   = "category"
	ColGenre      = "genre"
	ColAgeBucket  = "age_bucket"
	ColGender     = "gender"
	ColClass      = "nccs"
	ColRegion     = "state_grp"
	ColWeight     = "weights"
	ColPopSegment = "pop_segment"
)

// Metric selects how a ranking query scores apps.
type Metric string

const (
	// MetricReach is the weighted count of distinct users.
	MetricReach Metric = "reach"
	// MetricEngagement is average time per user: total duration over
	// total weight, never over row count.
	MetricEngagement Metric = "engagement"
)

// ParseMetric validates a caller-supplied metric selector.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricReach, "":
		return MetricReach, nil
	case MetricEngagement:
		return MetricEngagement, nil
	}
	return "", fmt.Errorf("unknown metric %q (valid: reach, engagement)", s)
}

// classMerge maps every raw socioeconomic code to its canonical bucket.
// A and A1 collapse to A; C, D and E collapse to C/D/E.
var classMerge = map[string]string{
	"A":  "A",
	"A1": "A",
	"B":  "B",
	"C":  "C/D/E",
	"D":  "C/D/E",
	"E":  "C/D/E",
}

// canonicalClasses in display order.
var canonicalClasses = []string{"A", "B", "C/D/E"}

// ageBuckets is the full canonical set of age ranges.
var ageBuckets = []string{"18-24", "25-34", "35-44", "45-54", "55+"}

// genders holds the two recorded gender values.
var genders = []string{"M", "F"}

// MergeClass reduces a raw or canonical class value to its canonical
// bucket. The second return reports whether the value was recognized.
func MergeClass(raw string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "C/D/E" {
		return v, true
	}
	merged, ok := classMerge[v]
	return merged, ok
}

// RawClassesFor returns the raw codes that fold into the given
// canonical bucket, sorted for deterministic SQL.
func RawClassesFor(canonical string) []string {
	var raw []string
	for code, bucket := range classMerge {
		if bucket == canonical {
			raw = append(raw, code)
		}
	}
	sort.Strings(raw)
	return raw
}

// CanonicalClasses returns the three class buckets in display order.
func CanonicalClasses() []string {
	return append([]string(nil), canonicalClasses...)
}

// AgeBuckets returns the five canonical age ranges.
func AgeBuckets() []string {
	return append([]string(nil), ageBuckets...)
}

// Genders returns the two recorded gender values.
func Genders() []string {
	return append([]string(nil), genders...)
}

// ValidAgeBucket reports whether v is one of the canonical age ranges.
func ValidAgeBucket(v string) bool {
	for _, b := range ageBuckets {
		if b == v {
			return true
		}
	}
	return false
}

// ValidGender reports whether v is a recorded gender value.
func ValidGender(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, g := range genders {
		if g == v {
			return true
		}
	}
	return false
}

// ClassCaseExpr renders the merge rule as a SQL CASE expression over
// col, so grouped queries sum counts across the merged raw codes and
// raw codes never reach the caller.
func ClassCaseExpr(col string) string {
	return fmt.Sprintf(
		"CASE WHEN %s IN ('A', 'A1') THEN 'A' WHEN %s = 'B' THEN 'B' WHEN %s IN ('C', 'D', 'E') THEN 'C/D/E' ELSE %s END",
		col, col, col, col,
	)
}

// IsWeightColumn reports whether a result column carries survey
// weights. Matching is by name because raw SQL aliases are free-form.
func IsWeightColumn(name string) bool {
	return strings.Contains(strings.ToLower(name), "weight")
}

// IsUserCountColumn reports whether a result column looks like a
// weighted user count produced by the substitution rule.
func IsUserCountColumn(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "user") || strings.Contains(n, "reach") || IsWeightColumn(name)
}
