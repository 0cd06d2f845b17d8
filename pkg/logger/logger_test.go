package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/consumerlens/consumerlens/pkg/logger"
)

func TestLogger(t *testing.T) {
	convey.Convey("Given an initialized global logger", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		log := logger.Get()
		convey.So(log, convey.ShouldNotBeNil)

		convey.Convey("Then logging with fields does not panic", func() {
			ctx := context.Background()
			convey.So(func() {
				log.Info(ctx, "dataset registered",
					logger.String("name", "mobile_events"),
					logger.Int("dataset_id", 1),
					logger.Float64("elapsed_ms", 1.5),
					logger.Error(errors.New("boom")),
					logger.Any("extra", map[string]int{"a": 1}),
				)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("Then named loggers derive from the global one", func() {
			convey.So(logger.Named("db"), convey.ShouldNotBeNil)
			convey.So(log.Named("registry"), convey.ShouldNotBeNil)
		})

		convey.Convey("Then level strings parse case-insensitively", func() {
			convey.So(logger.SetLevelString("DEBUG"), convey.ShouldBeNil)
			convey.So(logger.SetLevelString("warning"), convey.ShouldBeNil)
			convey.So(logger.SetLevelString("nope"), convey.ShouldNotBeNil)
			convey.So(logger.SetLevelString(""), convey.ShouldBeNil)
		})

		convey.Convey("Then Sync is a no-op", func() {
			convey.So(logger.Sync(), convey.ShouldBeNil)
		})
	})
}
