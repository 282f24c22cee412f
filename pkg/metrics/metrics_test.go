package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.SampleInterval(), ShouldEqual, defaultSampleInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithSampleInterval(3*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.SampleInterval(), ShouldEqual, 3*time.Second)
			})

			Convey("And metrics carry the constant labels", func() {
				manager.rateLimited.Inc()
				n, err := testutil.GatherAndCount(registry, "test_namespace_test_subsystem_rate_limited_requests_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When creating with zero-valued options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithLatencyBuckets(nil),
				WithSampleInterval(-1*time.Second),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "surfwatch")
				So(manager.subsystem, ShouldEqual, "api")
				So(manager.SampleInterval(), ShouldEqual, defaultSampleInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording a submitted report", func() {
			before := testutil.ToFloat64(globalManager.reportsSubmitted.WithLabelValues("Rip Current", "high"))
			RecordReportSubmitted("Rip Current", "high")

			Convey("Then the labelled counter increments", func() {
				after := testutil.ToFloat64(globalManager.reportsSubmitted.WithLabelValues("Rip Current", "high"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording stored media", func() {
			before := testutil.ToFloat64(globalManager.mediaStoredBytes.WithLabelValues("image"))
			RecordMediaStored("image", 2048)
			RecordMediaStored("image", 0)

			Convey("Then only positive sizes are added", func() {
				after := testutil.ToFloat64(globalManager.mediaStoredBytes.WithLabelValues("image"))
				So(after-before, ShouldEqual, 2048)
			})
		})

		Convey("When updating queue gauges", func() {
			UpdateQueueCapacity(100)
			UpdateQueueSize(25)
			UpdateQueueUtilization(0.25)

			Convey("Then the gauges hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 25)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordReportRejected("description")
					RecordRiskScoreUpdate("beginner")
					RecordAnalysisOutcome("skipped")
					RecordRateLimited()
					UpdateSpotsTotal(12)
					RecordReportStatusChange("verified")
					RecordHTTPRequest("/surf-spots", "GET", "200")
					RecordHTTPRequestDuration("/surf-spots", "GET", "200", 3.5)
					RecordRepositoryLatency("memory", "list_spots", 0.2)
					RecordRepositoryError("sqlite", "get_spot")
					RecordUpstreamRequest("analyze-hazard", "error", 30000)
					RecordQueueEnqueue("analyze")
					RecordQueueDrop("rescore", "full")
					RecordQueueDequeue()
					UpdateWorkerCount(4)
					UpdateWorkerActiveCount(1)
					RecordJobLatency("analyze", 120)
					RecordJobFailure("rescore")
					UpdateWorkerJobsPerSecond(0.5)
					RecordErrorByComponent("", "")
					RecordErrorByEndpoint("/hazard-reports", "POST", "validation")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.3)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordQueueEnqueue("analyze")
						UpdateQueueSize(j)
						RecordJobLatency("analyze", float64(j))
						RecordHTTPRequest("/health", "GET", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
