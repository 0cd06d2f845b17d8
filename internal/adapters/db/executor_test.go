package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigDefaults(t *testing.T) {
	convey.Convey("Given a config with only a connection descriptor", t, func() {
		cfg := Config{DSN: "postgres://localhost:5432/insights"}
		cfg.withDefaults()

		convey.Convey("Then pool and timeout defaults apply", func() {
			convey.So(cfg.MinConns, convey.ShouldEqual, DefaultMinConns)
			convey.So(cfg.MaxConns, convey.ShouldEqual, DefaultMaxConns)
			convey.So(cfg.AcquireWait, convey.ShouldEqual, DefaultAcquireWait)
			convey.So(cfg.StatementTimeout, convey.ShouldEqual, DefaultStatementTimeout)
		})
	})

	convey.Convey("Given explicit bounds", t, func() {
		cfg := Config{DSN: "x", MinConns: 1, MaxConns: 4, AcquireWait: time.Second, StatementTimeout: time.Minute}
		cfg.withDefaults()

		convey.Convey("Then they are preserved", func() {
			convey.So(cfg.MinConns, convey.ShouldEqual, int32(1))
			convey.So(cfg.MaxConns, convey.ShouldEqual, int32(4))
		})
	})
}

func TestSanitize(t *testing.T) {
	convey.Convey("Given driver errors carrying credentials", t, func() {
		cases := map[string]string{
			"dial postgres://user:secret@db:5432/x failed":     "secret",
			"auth failed for password=hunter2 host=db":         "hunter2",
			"connection refused postgresql://u:p@10.0.0.1/db":  "10.0.0.1",
		}

		convey.Convey("Then descriptors and credentials are redacted", func() {
			for msg, leaked := range cases {
				out := sanitize(msg)
				convey.So(out, convey.ShouldContainSubstring, "[redacted]")
				convey.So(out, convey.ShouldNotContainSubstring, leaked)
			}
		})
	})

	convey.Convey("Given a clean error message", t, func() {
		msg := `relation "missing_table" does not exist`
		convey.So(sanitize(msg), convey.ShouldEqual, msg)
	})
}

func TestToFloat(t *testing.T) {
	convey.Convey("Given the cell types pgx hands back", t, func() {
		convey.So(ToFloat(float64(1.5)), convey.ShouldEqual, 1.5)
		convey.So(ToFloat(int64(7)), convey.ShouldEqual, 7)
		convey.So(ToFloat(int32(7)), convey.ShouldEqual, 7)
		convey.So(ToFloat("12.25"), convey.ShouldEqual, 12.25)
		convey.So(ToFloat("not a number"), convey.ShouldEqual, 0)
		convey.So(ToFloat(nil), convey.ShouldEqual, 0)
	})

	convey.Convey("Given a NUMERIC value", t, func() {
		var n pgtype.Numeric
		convey.So(n.Scan("42.5"), convey.ShouldBeNil)
		convey.So(ToFloat(n), convey.ShouldEqual, 42.5)
	})
}

func TestToString(t *testing.T) {
	convey.Convey("Given assorted cell values", t, func() {
		convey.So(ToString(nil), convey.ShouldBeBlank)
		convey.So(ToString("x"), convey.ShouldEqual, "x")
		convey.So(ToString(int64(3)), convey.ShouldEqual, "3")
	})
}

func TestRowSetEmpty(t *testing.T) {
	convey.Convey("Given row sets", t, func() {
		convey.So((&RowSet{}).Empty(), convey.ShouldBeTrue)
		convey.So((&RowSet{Rows: [][]any{{1}}}).Empty(), convey.ShouldBeFalse)
	})
}
