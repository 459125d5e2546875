package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are named with the namespace and subsystem", func() {
				So(manager, ShouldNotBeNil)
				manager.RecordDetection("AI-generated text likely.", 12)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_ns_test_sub_detections_total")
				So(names, ShouldContain, "test_ns_test_sub_detection_latency_milliseconds")
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "textguard")
				So(manager.subsystem, ShouldEqual, "api")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))

		Convey("When detections are recorded", func() {
			m.RecordDetection("Human-written text likely.", 30)
			m.RecordDetection("Human-written text likely.", 40)

			Convey("Then the label counter increases", func() {
				So(testutil.ToFloat64(m.detections.WithLabelValues("Human-written text likely.")), ShouldEqual, 2)
			})
		})

		Convey("When inference calls succeed and fail", func() {
			m.RecordInference(12, 5, nil)
			m.RecordInference(0, 7, errors.New("boom"))

			Convey("Then only the failure is counted as an error", func() {
				So(testutil.ToFloat64(m.inferenceErrors), ShouldEqual, 1)
			})
		})

		Convey("When the model info is set twice", func() {
			m.SetModelInfo("gpt2", "r50k_base")
			m.SetModelInfo("gpt2-medium", "r50k_base")

			Convey("Then only the latest identity is exported", func() {
				So(testutil.CollectAndCount(m.modelInfo), ShouldEqual, 1)
				So(testutil.ToFloat64(m.modelInfo.WithLabelValues("gpt2-medium", "r50k_base")), ShouldEqual, 1)
			})
		})

		Convey("When comparisons and memo lookups are recorded", func() {
			m.RecordComparison("Plagiarism detected.", "file", 1)
			m.RecordMemoLookup(true)
			m.RecordMemoLookup(false)
			m.RecordMemoLookup(false)
			m.UpdateMemoSize(3)

			Convey("Then each counter reflects the calls", func() {
				So(testutil.ToFloat64(m.comparisons.WithLabelValues("Plagiarism detected.", "file")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.memoHits), ShouldEqual, 1)
				So(testutil.ToFloat64(m.memoMisses), ShouldEqual, 2)
				So(testutil.ToFloat64(m.memoSize), ShouldEqual, 3)
			})
		})

		Convey("When HTTP requests and errors are recorded", func() {
			m.RecordHTTPRequest("detect", "POST", "400", 1)
			m.RecordHTTPError("detect", "POST", "client_error", "medium", 1)

			Convey("Then the request and error counters move", func() {
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("detect", "POST", "400")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.errorRateByEndpoint.WithLabelValues("detect", "POST", "client_error")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.errorRateByType.WithLabelValues("client_error", "medium")), ShouldEqual, 1)
			})
		})

		Convey("When system gauges are updated", func() {
			m.UpdateSystem(2048, 7, 0.5)

			Convey("Then the gauges hold the values", func() {
				So(testutil.ToFloat64(m.systemMemoryUsage), ShouldEqual, 2048)
				So(testutil.ToFloat64(m.systemGoroutineCount), ShouldEqual, 7)
			})
		})
	})
}

func TestScoreBuckets(t *testing.T) {
	Convey("Given a manager with coarse score buckets", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry), WithScoreBuckets([]float64{0.5, 1}))

		Convey("When comparisons are recorded", func() {
			m.RecordComparison("Plagiarism detected.", "text", 1)
			m.RecordComparison("Plagiarism detected to some extent", "file", 0.3)

			Convey("Then the histogram uses those buckets", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var bounds []float64
				for _, f := range families {
					if f.GetName() != "textguard_api_similarity_score" {
						continue
					}
					h := f.GetMetric()[0].GetHistogram()
					So(h.GetSampleCount(), ShouldEqual, uint64(2))
					for _, b := range h.GetBucket() {
						bounds = append(bounds, b.GetUpperBound())
					}
				}
				So(bounds, ShouldResemble, []float64{0.5, 1})
			})
		})
	})
}

func TestMetricsDisabled(t *testing.T) {
	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithMetricsEnabled(false))

		Convey("When recording", func() {
			m.RecordMemoLookup(true)
			m.RecordDetection("x", 1)

			Convey("Then nothing is counted", func() {
				So(testutil.ToFloat64(m.memoHits), ShouldEqual, 0)
				So(testutil.ToFloat64(m.detections.WithLabelValues("x")), ShouldEqual, 0)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then package helpers do not panic and the registry is exposed", func() {
			So(func() {
				RecordDetection("AI-generated text likely.", 1)
				RecordInference(3, 1, nil)
				SetModelInfo("gpt2", "r50k_base")
				RecordComparison("No plagiarism detected", "text", 0)
				RecordMemoLookup(false)
				UpdateMemoSize(0)
				RecordHTTPRequest("healthz", "GET", "200", 1)
				RecordHTTPError("healthz", "GET", "server_error", "high", 1)
				UpdateSystem(1, 1, 0)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
			So(Default(), ShouldNotBeNil)
		})
	})
}
