// Package insight derives business observations from result sets
// without additional queries: concentration of the metric in few
// entities, demographic skew, and under-served segments. Analysis
// never fails a request; a dimension that cannot be analyzed is
// skipped and logged.
package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	"github.com/consumerlens/consumerlens/internal/domain/builder"
	"github.com/consumerlens/consumerlens/internal/domain/rules"
	"github.com/consumerlens/consumerlens/pkg/logger"
	"github.com/consumerlens/consumerlens/pkg/metrics"
)

// Kind tags what produced an insight.
type Kind string

const (
	KindConcentration Kind = "concentration"
	KindSkew          Kind = "skew"
	KindOpportunity   Kind = "opportunity"
)

// Severity grades an insight.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Insight is a derived, ephemeral observation. Recomputed per query,
// never persisted.
type Insight struct {
	Kind           Kind               `json:"kind"`
	Severity       Severity           `json:"severity"`
	Description    string             `json:"description"`
	Recommendation string             `json:"recommendation,omitempty"`
	Evidence       map[string]float64 `json:"evidence,omitempty"`
}

// Analysis thresholds.
const (
	// concentrationHigh and concentrationMedium bound the top-3 share.
	// Both are exclusive: exactly 50% triggers nothing.
	concentrationHigh   = 0.70
	concentrationMedium = 0.50
	// hhiLimited is on the 0-10000 Herfindahl scale.
	hhiLimited = 2500
	// genderSkewRatio is the multiple between the two gender values.
	genderSkewRatio = 2.0
	// bucketSkewShare flags a single age/class bucket dominating.
	bucketSkewShare = 0.40
	// opportunityMinShare is the floor below which a canonical segment
	// counts as under-represented.
	opportunityMinShare = 0.05
)

// Engine analyzes result sets.
type Engine struct {
	log logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze inspects a generic result set: concentration on the metric
// column, plus skew and opportunity for any demographic column present.
func (e *Engine) Analyze(ctx context.Context, rs *db.RowSet) []Insight {
	if rs.Empty() {
		return nil
	}
	var out []Insight
	out = append(out, e.safely(ctx, "concentration", func() []Insight { return concentrationFromRowSet(rs) })...)
	out = append(out, e.safely(ctx, "demographics", func() []Insight { return demographicsFromRowSet(rs) })...)
	for _, ins := range out {
		metrics.RecordInsight(string(ins.Kind))
	}
	return out
}

// AnalyzeDistribution inspects one labeled distribution (a profile
// breakdown): skew and opportunity for the named dimension.
func (e *Engine) AnalyzeDistribution(ctx context.Context, dim builder.Dimension, labels []string, values []float64) []Insight {
	var out []Insight
	out = append(out, e.safely(ctx, string(dim), func() []Insight { return distributionInsights(dim, labels, values) })...)
	for _, ins := range out {
		metrics.RecordInsight(string(ins.Kind))
	}
	return out
}

// safely runs one analyzer, converting a panic into a logged skip so a
// bad dimension never blocks the data or the other analyzers.
func (e *Engine) safely(ctx context.Context, dimension string, fn func() []Insight) (out []Insight) {
	defer func() {
		if r := recover(); r != nil {
			if e.log != nil {
				e.log.Warn(ctx, "insight analysis skipped",
					logger.String("dimension", dimension),
					logger.Any("cause", r))
			}
			out = nil
		}
	}()
	return fn()
}

// --- concentration ---

func concentrationFromRowSet(rs *db.RowSet) []Insight {
	metricCol := findMetricColumn(rs)
	if metricCol < 0 || len(rs.Rows) < 2 {
		return nil
	}
	values := columnFloats(rs, metricCol)
	return concentration(values)
}

func concentration(values []float64) []Insight {
	shares := builder.Shares(values)
	sorted := append([]float64(nil), shares...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var top3 float64
	for i := 0; i < 3 && i < len(sorted); i++ {
		top3 += sorted[i]
	}
	var hhi float64
	for _, s := range sorted {
		hhi += (s * 100) * (s * 100)
	}

	var out []Insight
	evidence := map[string]float64{"top3_share": top3, "hhi": hhi}
	switch {
	case top3 > concentrationHigh:
		out = append(out, Insight{
			Kind:           KindConcentration,
			Severity:       SeverityHigh,
			Description:    fmt.Sprintf("top 3 entries hold %.1f%% of the metric", top3*100),
			Recommendation: "the market is dominated by a few leaders; differentiation matters more than scale",
			Evidence:       evidence,
		})
	case top3 > concentrationMedium:
		out = append(out, Insight{
			Kind:        KindConcentration,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("top 3 entries hold %.1f%% of the metric", top3*100),
			Evidence:    evidence,
		})
	}
	if hhi > hhiLimited {
		out = append(out, Insight{
			Kind:        KindConcentration,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("limited competition: concentration index %.0f on the 0-10000 scale", hhi),
			Evidence:    evidence,
		})
	}
	return out
}

// --- demographics on raw result sets ---

func demographicsFromRowSet(rs *db.RowSet) []Insight {
	metricCol := findMetricColumn(rs)
	if metricCol < 0 {
		return nil
	}
	var out []Insight
	for _, probe := range []struct {
		dim   builder.Dimension
		names []string
	}{
		{builder.DimGender, []string{rules.ColGender, "gender"}},
		{builder.DimAge, []string{rules.ColAgeBucket, "age"}},
		{builder.DimClass, []string{rules.ColClass, "class", "segment_class"}},
	} {
		col := findColumn(rs, probe.names)
		if col < 0 || col == metricCol {
			continue
		}
		labels, values := aggregateByLabel(rs, col, metricCol)
		if probe.dim == builder.DimClass {
			labels, values = rules.MergeRows(labels, values)
		}
		out = append(out, distributionInsights(probe.dim, labels, values)...)
	}
	return out
}

// distributionInsights derives skew and opportunity for one dimension.
func distributionInsights(dim builder.Dimension, labels []string, values []float64) []Insight {
	var out []Insight
	out = append(out, skew(dim, labels, values)...)
	out = append(out, opportunity(dim, labels, values)...)
	return out
}

func skew(dim builder.Dimension, labels []string, values []float64) []Insight {
	if len(labels) == 0 || len(labels) != len(values) {
		return nil
	}
	if dim == builder.DimGender {
		if len(labels) != 2 || values[0] <= 0 || values[1] <= 0 {
			return nil
		}
		hi, lo := 0, 1
		if values[lo] > values[hi] {
			hi, lo = lo, hi
		}
		ratio := values[hi] / values[lo]
		if ratio <= genderSkewRatio {
			return nil
		}
		return []Insight{{
			Kind:           KindSkew,
			Severity:       SeverityMedium,
			Description:    fmt.Sprintf("audience skews %s: %.1fx the other gender", genderLabel(labels[hi]), ratio),
			Recommendation: fmt.Sprintf("creative and media planning should center the %s audience", genderLabel(labels[hi])),
			Evidence:       map[string]float64{"ratio": ratio},
		}}
	}

	label, share := builder.Dominant(labels, values)
	if share <= bucketSkewShare {
		return nil
	}
	return []Insight{{
		Kind:        KindSkew,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("%s segment %q holds %.1f%% of the metric", dim, label, share*100),
		Evidence:    map[string]float64{"share": share},
	}}
}

func opportunity(dim builder.Dimension, labels []string, values []float64) []Insight {
	canonical := dim.Canonical()
	if len(canonical) == 0 || dim == builder.DimGender {
		return nil
	}
	shares := builder.Shares(values)
	present := make(map[string]float64, len(labels))
	for i, l := range labels {
		present[l] = shares[i]
	}

	var out []Insight
	for _, want := range canonical {
		share, ok := present[want]
		switch {
		case !ok:
			out = append(out, Insight{
				Kind:           KindOpportunity,
				Severity:       SeverityLow,
				Description:    fmt.Sprintf("%s segment %q is absent from the result", dim, want),
				Recommendation: fmt.Sprintf("the %q segment is untapped; consider targeting it", want),
			})
		case share < opportunityMinShare:
			out = append(out, Insight{
				Kind:           KindOpportunity,
				Severity:       SeverityLow,
				Description:    fmt.Sprintf("%s segment %q is under-represented at %.1f%%", dim, want, share*100),
				Evidence:       map[string]float64{"share": share},
			})
		}
	}
	return out
}

func genderLabel(v string) string {
	switch strings.ToUpper(v) {
	case "M":
		return "male"
	case "F":
		return "female"
	}
	return v
}

// --- column helpers ---

// findMetricColumn picks the column carrying the metric: the first
// numeric column whose name hints at weighted users, else the first
// numeric column at all.
func findMetricColumn(rs *db.RowSet) int {
	first := -1
	for i, name := range rs.Columns {
		if !columnIsNumeric(rs, i) {
			continue
		}
		if rules.IsUserCountColumn(name) {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

func findColumn(rs *db.RowSet, names []string) int {
	for i, c := range rs.Columns {
		for _, n := range names {
			if strings.EqualFold(c, n) {
				return i
			}
		}
	}
	return -1
}

func columnIsNumeric(rs *db.RowSet, col int) bool {
	for _, row := range rs.Rows {
		v := row[col]
		if v == nil {
			continue
		}
		switch v.(type) {
		case string, bool, []byte:
			return false
		}
		return true
	}
	return false
}

func columnFloats(rs *db.RowSet, col int) []float64 {
	out := make([]float64, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = db.ToFloat(row[col])
	}
	return out
}

// aggregateByLabel sums the metric per label value, preserving first-
// seen order.
func aggregateByLabel(rs *db.RowSet, labelCol, metricCol int) ([]string, []float64) {
	var labels []string
	sums := make(map[string]float64)
	for _, row := range rs.Rows {
		l := db.ToString(row[labelCol])
		if _, seen := sums[l]; !seen {
			labels = append(labels, l)
		}
		sums[l] += db.ToFloat(row[metricCol])
	}
	values := make([]float64, len(labels))
	for i, l := range labels {
		values[i] = sums[l]
	}
	return labels, values
}
