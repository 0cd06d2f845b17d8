package insight_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	"github.com/consumerlens/consumerlens/internal/domain/builder"
	"github.com/consumerlens/consumerlens/internal/domain/insight"
)

func rowset(columns []string, rows [][]any) *db.RowSet {
	return &db.RowSet{Columns: columns, Rows: rows, Elapsed: time.Millisecond}
}

func kinds(insights []insight.Insight) []insight.Kind {
	out := make([]insight.Kind, 0, len(insights))
	for _, i := range insights {
		out = append(out, i.Kind)
	}
	return out
}

func TestAnalyze_Concentration(t *testing.T) {
	ctx := context.Background()
	engine := insight.NewEngine()

	convey.Convey("Given a result where three apps hold most of the metric", t, func() {
		rs := rowset([]string{"app_name", "reach"}, [][]any{
			{"a", float64(40)}, {"b", float64(25)}, {"c", float64(15)},
			{"d", float64(10)}, {"e", float64(10)},
		})

		convey.Convey("When analyzed", func() {
			insights := engine.Analyze(ctx, rs)

			convey.Convey("Then a high-severity concentration insight appears", func() {
				convey.So(kinds(insights), convey.ShouldContain, insight.KindConcentration)
				found := false
				for _, i := range insights {
					if i.Kind == insight.KindConcentration && i.Severity == insight.SeverityHigh {
						found = true
						convey.So(i.Evidence["top3_share"], convey.ShouldAlmostEqual, 0.8)
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a top-3 share of exactly one half", t, func() {
		// 32+16+16 = 64 of 128; the boundary must not trigger.
		rs := rowset([]string{"app_name", "reach"}, [][]any{
			{"a", float64(32)}, {"b", float64(16)}, {"c", float64(16)},
			{"d", float64(16)}, {"e", float64(16)}, {"f", float64(16)},
			{"g", float64(16)},
		})

		convey.Convey("Then no concentration insight appears", func() {
			insights := engine.Analyze(ctx, rs)
			convey.So(kinds(insights), convey.ShouldNotContain, insight.KindConcentration)
		})
	})

	convey.Convey("Given a near-monopoly", t, func() {
		rs := rowset([]string{"app_name", "reach"}, [][]any{
			{"a", float64(90)}, {"b", float64(10)},
		})

		convey.Convey("Then limited competition is flagged via the concentration index", func() {
			insights := engine.Analyze(ctx, rs)
			limited := false
			for _, i := range insights {
				if i.Kind == insight.KindConcentration && i.Evidence["hhi"] > 2500 {
					limited = true
				}
			}
			convey.So(limited, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an empty result", t, func() {
		convey.So(engine.Analyze(ctx, rowset([]string{"a"}, nil)), convey.ShouldBeEmpty)
	})
}

func TestAnalyzeDistribution_Skew(t *testing.T) {
	ctx := context.Background()
	engine := insight.NewEngine()

	convey.Convey("Given a gender split beyond the ratio threshold", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimGender,
			[]string{"M", "F"}, []float64{75, 25})

		convey.Convey("Then a skew insight names the dominant audience", func() {
			convey.So(kinds(insights), convey.ShouldContain, insight.KindSkew)
			for _, i := range insights {
				if i.Kind == insight.KindSkew {
					convey.So(i.Description, convey.ShouldContainSubstring, "male")
					convey.So(i.Evidence["ratio"], convey.ShouldAlmostEqual, 3.0)
				}
			}
		})
	})

	convey.Convey("Given a gender split at exactly the ratio threshold", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimGender,
			[]string{"M", "F"}, []float64{50, 25})

		convey.Convey("Then no skew insight appears", func() {
			convey.So(kinds(insights), convey.ShouldNotContain, insight.KindSkew)
		})
	})

	convey.Convey("Given one age bucket above forty percent", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimAge,
			[]string{"18-24", "25-34", "35-44", "45-54", "55+"},
			[]float64{50, 20, 15, 10, 5})

		convey.Convey("Then the bucket is flagged", func() {
			skewed := false
			for _, i := range insights {
				if i.Kind == insight.KindSkew {
					skewed = true
					convey.So(i.Description, convey.ShouldContainSubstring, "18-24")
				}
			}
			convey.So(skewed, convey.ShouldBeTrue)
		})
	})
}

func TestAnalyzeDistribution_Opportunity(t *testing.T) {
	ctx := context.Background()
	engine := insight.NewEngine()

	convey.Convey("Given an age distribution missing a canonical bucket", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimAge,
			[]string{"18-24", "25-34", "35-44", "45-54"},
			[]float64{30, 30, 25, 15})

		convey.Convey("Then the absent bucket becomes an opportunity", func() {
			found := false
			for _, i := range insights {
				if i.Kind == insight.KindOpportunity {
					found = true
					convey.So(i.Description, convey.ShouldContainSubstring, "55+")
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a class bucket below five percent", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimClass,
			[]string{"A", "B", "C/D/E"}, []float64{58, 40, 2})

		convey.Convey("Then the under-represented bucket is flagged", func() {
			found := false
			for _, i := range insights {
				if i.Kind == insight.KindOpportunity {
					found = true
					convey.So(i.Description, convey.ShouldContainSubstring, "C/D/E")
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a region distribution", t, func() {
		insights := engine.AnalyzeDistribution(ctx, builder.DimRegion,
			[]string{"North", "South"}, []float64{60, 40})

		convey.Convey("Then no opportunity is derived for the open-ended set", func() {
			convey.So(kinds(insights), convey.ShouldNotContain, insight.KindOpportunity)
		})
	})
}

func TestAnalyze_Demographics(t *testing.T) {
	ctx := context.Background()
	engine := insight.NewEngine()

	convey.Convey("Given a raw result with a gender column and a metric", t, func() {
		rs := rowset([]string{"gender", "weighted_users"}, [][]any{
			{"M", float64(90)}, {"F", float64(10)},
		})

		convey.Convey("Then skew analysis runs on the detected column", func() {
			insights := engine.Analyze(ctx, rs)
			convey.So(kinds(insights), convey.ShouldContain, insight.KindSkew)
		})
	})

	convey.Convey("Given rows with raw class labels", t, func() {
		rs := rowset([]string{"nccs", "reach"}, [][]any{
			{"A", float64(30)}, {"A1", float64(25)},
			{"B", float64(43)}, {"C", float64(2)},
		})

		convey.Convey("Then the merge happens before analysis", func() {
			insights := engine.Analyze(ctx, rs)
			for _, i := range insights {
				if i.Kind == insight.KindSkew {
					convey.So(i.Description, convey.ShouldContainSubstring, `"A"`)
				}
			}
		})
	})
}
