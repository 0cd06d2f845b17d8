package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/consumerlens/consumerlens/pkg/metrics"
)

func TestRecordHelpers(t *testing.T) {
	convey.Convey("Given the global metrics manager", t, func() {
		convey.Convey("Then every record helper is safe to call", func() {
			convey.So(func() {
				metrics.RecordQueryExecuted("rank")
				metrics.RecordQueryDuration("rank", 12.5)
				metrics.RecordRowsReturned(10)
				metrics.RecordValidationRejection()
				metrics.RecordRewriteWarning()
				metrics.RecordPoolAcquireLatency(0.5)
				metrics.RecordPoolExhausted()
				metrics.RecordQueryTimeout()
				metrics.RecordInsight("concentration")
				metrics.RecordEmptyResult()
				metrics.RecordHTTPRequest("datasets", "GET", "200")
				metrics.RecordHTTPRequestDuration("datasets", "GET", "200", 3)
				metrics.RecordErrorByComponent("service", "rank")
				metrics.UpdateSystemMemoryUsage(1 << 20)
				metrics.UpdateSystemGoroutineCount(8)
				metrics.RecordSystemGCPauseTime(0.2)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("Then recorded series appear in the registry", func() {
			metrics.RecordQueryExecuted("profile")
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)

			names := make(map[string]struct{}, len(families))
			for _, f := range families {
				names[f.GetName()] = struct{}{}
			}
			convey.So(names, convey.ShouldContainKey, "consumerlens_engine_queries_executed_total")
		})
	})
}

func TestNewManagerWithOptions(t *testing.T) {
	convey.Convey("Given a manager on a private registry", t, func() {
		reg := prometheus.NewRegistry()
		m := metrics.NewManager(
			metrics.WithPrometheusRegistry(reg),
			metrics.WithNamespace("test"),
			metrics.WithSubsystem("unit"),
			metrics.WithCustomLabels(map[string]string{"env": "test"}),
		)
		convey.So(m, convey.ShouldNotBeNil)

		convey.Convey("Then registration does not collide", func() {
			_, err := reg.Gather()
			convey.So(err, convey.ShouldBeNil)
		})
	})
}
