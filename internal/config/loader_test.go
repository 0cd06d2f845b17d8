package config

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLegacyEnvDatasets(t *testing.T) {
	convey.Convey("Given the legacy DATASET_N_* variable scheme", t, func() {
		env := map[string]string{
			"DATASET_1_NAME":       "mobile_events",
			"DATASET_1_DESC":       "smartphone usage panel",
			"DATASET_1_CONNECTION": "postgres://localhost:5432/one",
			"DATASET_1_DICTIONARY": `{"weights": "survey weight per user"}`,
			"DATASET_2_NAME":       "smarttv_events",
			"DATASET_2_CONNECTION": "postgres://localhost:5432/two",
			// Dataset 4 exists but the scan stops at the gap on 3.
			"DATASET_4_NAME": "ignored",
		}
		getenv := func(key string) string { return env[key] }

		convey.Convey("When parsed", func() {
			datasets, err := legacyEnvDatasets(getenv)

			convey.Convey("Then ids are scanned from 1 until the first gap", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(datasets, convey.ShouldHaveLength, 2)
				convey.So(datasets[0].ID, convey.ShouldEqual, 1)
				convey.So(datasets[0].Name, convey.ShouldEqual, "mobile_events")
				convey.So(datasets[0].Dictionary["weights"], convey.ShouldEqual, "survey weight per user")
				convey.So(datasets[1].ID, convey.ShouldEqual, 2)
				convey.So(datasets[1].Description, convey.ShouldBeBlank)
			})
		})
	})

	convey.Convey("Given a malformed dictionary", t, func() {
		env := map[string]string{
			"DATASET_1_NAME":       "mobile_events",
			"DATASET_1_CONNECTION": "postgres://localhost:5432/one",
			"DATASET_1_DICTIONARY": "not json",
		}
		_, err := legacyEnvDatasets(func(key string) string { return env[key] })

		convey.Convey("Then loading fails with a named variable", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "DATASET_1_DICTIONARY")
		})
	})

	convey.Convey("Given no legacy variables at all", t, func() {
		datasets, err := legacyEnvDatasets(func(string) string { return "" })
		convey.So(err, convey.ShouldBeNil)
		convey.So(datasets, convey.ShouldBeEmpty)
	})
}
