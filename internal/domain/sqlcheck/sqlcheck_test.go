package sqlcheck_test

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/consumerlens/consumerlens/internal/domain/rules"
	"github.com/consumerlens/consumerlens/internal/domain/sqlcheck"
)

func TestCheck_Shapes(t *testing.T) {
	convey.Convey("Given a plain select without grouping", t, func() {
		res, err := sqlcheck.Check("select * from digital_insights", false)

		convey.Convey("Then it is raw and capped at the raw bound", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Parsed, convey.ShouldBeTrue)
			convey.So(res.Shape, convey.ShouldEqual, sqlcheck.ShapeRaw)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.RawRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 5")
		})
	})

	convey.Convey("Given a grouped select", t, func() {
		res, err := sqlcheck.Check("select app_name, sum(weights) from digital_insights group by app_name", false)

		convey.Convey("Then it is aggregated and capped at the aggregated bound", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Shape, convey.ShouldEqual, sqlcheck.ShapeAggregated)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.AggregatedRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 1000")
		})
	})
}

func TestCheck_LimitHandling(t *testing.T) {
	convey.Convey("Given a caller limit below the bound", t, func() {
		res, err := sqlcheck.Check("select app_name, sum(weights) from digital_insights group by app_name limit 50", false)

		convey.Convey("Then the caller limit is preserved", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, 50)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 50")
		})
	})

	convey.Convey("Given a caller limit above the bound", t, func() {
		res, err := sqlcheck.Check("select * from digital_insights limit 50", false)

		convey.Convey("Then the limit is clamped down, never relaxed", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.RawRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 5")
			convey.So(res.SQL, convey.ShouldNotContainSubstring, "limit 50")
		})
	})

	convey.Convey("Given a trailing semicolon", t, func() {
		res, err := sqlcheck.Check("select * from digital_insights;", false)

		convey.Convey("Then it is accepted as a single statement", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 5")
		})
	})
}

func TestCheck_Rejections(t *testing.T) {
	convey.Convey("Given write and DDL statements", t, func() {
		cases := []string{
			"insert into digital_insights values (1)",
			"update digital_insights set weights = 0",
			"delete from digital_insights",
			"drop table digital_insights",
		}
		for _, sql := range cases {
			_, err := sqlcheck.Check(sql, false)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, sqlcheck.ErrValidation), convey.ShouldBeTrue)
		}
	})

	convey.Convey("Given multiple statements in one request", t, func() {
		_, err := sqlcheck.Check("select 1; select 2", false)
		convey.So(errors.Is(err, sqlcheck.ErrValidation), convey.ShouldBeTrue)
	})

	convey.Convey("Given an empty statement", t, func() {
		_, err := sqlcheck.Check("   ", false)
		convey.So(errors.Is(err, sqlcheck.ErrValidation), convey.ShouldBeTrue)
	})

	convey.Convey("Given a rejection", t, func() {
		_, err := sqlcheck.Check("drop table digital_insights", false)

		convey.Convey("Then the error carries a corrective example", func() {
			convey.So(err.Error(), convey.ShouldContainSubstring, "SELECT app_name, SUM(weights)")
		})
	})
}

func TestCheck_LexicalFallback(t *testing.T) {
	convey.Convey("Given a CTE the parser cannot handle", t, func() {
		res, err := sqlcheck.Check("with t as (select app_name from digital_insights) select * from t", false)

		convey.Convey("Then the lexical path accepts it and bounds it", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Parsed, convey.ShouldBeFalse)
			convey.So(res.Shape, convey.ShouldEqual, sqlcheck.ShapeRaw)
			convey.So(res.SQL, convey.ShouldContainSubstring, ") AS bounded LIMIT 5")
		})
	})

	convey.Convey("Given a CTE whose body carries its own limit", t, func() {
		res, err := sqlcheck.Check("with t as (select app_name from digital_insights limit 3) select * from t", false)

		convey.Convey("Then the inner limit does not satisfy the outer bound", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.RawRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 3")
			convey.So(res.SQL, convey.ShouldContainSubstring, ") AS bounded LIMIT 5")
		})
	})

	convey.Convey("Given an unparseable statement ending in a line comment", t, func() {
		res, err := sqlcheck.Check("select * from digital_insights where app_name ilike 'a%' -- top apps", false)

		convey.Convey("Then the bound lands outside the comment", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.RawRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "ilike 'a%') AS bounded LIMIT 5")
		})
	})

	convey.Convey("Given an unparseable statement with a trailing limit", t, func() {
		convey.Convey("Then a limit below the bound is preserved in place", func() {
			res, err := sqlcheck.Check("select * from digital_insights where app_name ilike 'a%' limit 2", false)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, 2)
			convey.So(res.SQL, convey.ShouldNotContainSubstring, "bounded")
		})

		convey.Convey("Then a limit above the bound is clamped in place", func() {
			res, err := sqlcheck.Check("select * from digital_insights where app_name ilike 'a%' limit 5000", false)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.RawRowLimit)
			convey.So(res.SQL, convey.ShouldContainSubstring, "limit 5")
			convey.So(res.SQL, convey.ShouldNotContainSubstring, "5000")
		})
	})

	convey.Convey("Given a CTE with grouping", t, func() {
		res, err := sqlcheck.Check("with t as (select app_name, weights from digital_insights) select app_name, sum(weights) from t group by app_name", false)

		convey.Convey("Then it is classified as aggregated", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Shape, convey.ShouldEqual, sqlcheck.ShapeAggregated)
			convey.So(res.Limit, convey.ShouldEqual, sqlcheck.AggregatedRowLimit)
		})
	})

	convey.Convey("Given a forbidden keyword outside a literal", t, func() {
		_, err := sqlcheck.Check("with t as (select 1) delete from digital_insights", false)
		convey.So(errors.Is(err, sqlcheck.ErrValidation), convey.ShouldBeTrue)
	})

	convey.Convey("Given a forbidden keyword inside a string literal", t, func() {
		// ILIKE forces the lexical path; the literal must not trip the scan.
		res, err := sqlcheck.Check("select * from digital_insights where app_name ilike 'drop%'", false)

		convey.Convey("Then the literal is ignored", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Parsed, convey.ShouldBeFalse)
			convey.So(res.SQL, convey.ShouldContainSubstring, "'drop%'")
		})
	})

	convey.Convey("Given a statement not starting with SELECT or WITH", t, func() {
		_, err := sqlcheck.Check("explain analyze select 1", false)
		convey.So(errors.Is(err, sqlcheck.ErrValidation), convey.ShouldBeTrue)
	})
}

func TestCheck_RuleApplication(t *testing.T) {
	convey.Convey("Given a user count with rules enabled", t, func() {
		res, err := sqlcheck.Check("select category, count(user_id) from digital_insights group by category", true)

		convey.Convey("Then the substitution happens with a warning", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Warnings, convey.ShouldContain, rules.WarnWeightSubstitution)
			convey.So(res.SQL, convey.ShouldContainSubstring, "sum(weights)")
		})
	})

	convey.Convey("Given the same statement with rules disabled", t, func() {
		res, err := sqlcheck.Check("select category, count(user_id) from digital_insights group by category", false)

		convey.Convey("Then the statement passes through unrewritten", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Warnings, convey.ShouldBeEmpty)
			convey.So(res.SQL, convey.ShouldContainSubstring, "count(user_id)")
		})
	})
}
