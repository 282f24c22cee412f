package service_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/internal/adapters/media"
	"github.com/okian/surfwatch/internal/adapters/repository"
	"github.com/okian/surfwatch/internal/adapters/scoring"
	service "github.com/okian/surfwatch/internal/app"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
	"github.com/okian/surfwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var epoch = time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0x11}, 64)...)

// fakeScorer records calls. When hang is set every call blocks until its
// context ends.
type fakeScorer struct {
	mu        sync.Mutex
	analyzed  []string
	rescored  []string
	hang      bool
	failWith  error
	analysis  model.Analysis
	analyzeCh chan struct{}
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{
		analysis:  model.Analysis{DetectedHazards: []string{"rip current"}, ConfidenceScore: 0.9, Suggestions: "stay between the flags"},
		analyzeCh: make(chan struct{}, 64),
	}
}

func (f *fakeScorer) AnalyzeHazard(ctx context.Context, hazardType string, images []scoring.Image) (model.Analysis, error) {
	if f.hang {
		<-ctx.Done()
		return model.Analysis{}, ctx.Err()
	}
	f.mu.Lock()
	f.analyzed = append(f.analyzed, hazardType)
	f.mu.Unlock()
	defer func() { f.analyzeCh <- struct{}{} }()
	if f.failWith != nil {
		return model.Analysis{}, f.failWith
	}
	if len(images) == 0 || len(images[0].Data) == 0 {
		return model.Analysis{}, errors.New("no image data")
	}
	return f.analysis, nil
}

func (f *fakeScorer) RecomputeRisk(ctx context.Context, spotID string) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescored = append(f.rescored, spotID)
	return f.failWith
}

func (f *fakeScorer) Health(context.Context) error { return nil }

func (f *fakeScorer) rescoreCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rescored)
}

type fixture struct {
	svc    *service.Service
	store  repository.Store
	scorer *fakeScorer
	clock  *clockwork.FakeClock
	dir    string
	spot   model.SurfSpot
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := repository.NewMemoryStore(repository.WithClock(clock))
	dir := t.TempDir()
	scorer := newFakeScorer()

	spot, err := store.UpsertSpot(context.Background(), model.NewSurfSpot("Hikkaduwa", "Southern Province", model.Coordinates{Latitude: 6.14, Longitude: 80.1}, epoch))
	if err != nil {
		t.Fatalf("seed spot: %v", err)
	}

	base := []service.Option{
		service.WithStore(store),
		service.WithMedia(media.NewDiskStore(dir, media.WithClock(clock), media.WithMaxSize(model.DefaultMaxFileSize))),
		service.WithScorer(scorer),
		service.WithClock(clock),
		service.WithLogger(logger.Discard()),
		service.WithWorkerCount(2),
		service.WithJobTimeout(200 * time.Millisecond),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return &fixture{svc: svc, store: store, scorer: scorer, clock: clock, dir: dir, spot: spot}
}

func (f *fixture) storedFiles() []os.DirEntry {
	entries, _ := os.ReadDir(filepath.Join(f.dir, "hazards"))
	return entries
}

func jpeg(name string) service.File {
	return service.File{Name: name, MimeType: "image/jpeg", Size: int64(len(jpegBytes)), Body: bytes.NewReader(jpegBytes)}
}

func validSubmission(spotID string, files ...service.File) service.Submission {
	return service.Submission{
		SpotID:      spotID,
		HazardType:  "Rip Current",
		Description: "Strong current near the point, pulled two swimmers out",
		Severity:    "high",
		Media:       files,
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func fieldOf(err error) string {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default collaborators", t, func() {
		svc := service.New(service.WithLogger(logger.Discard()), service.WithQueueSize(8))

		Convey("Then stats are available before start", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["store"], ShouldEqual, repository.BackendMemory)
			So(stats["queueCapacity"], ShouldEqual, 8)
		})

		Convey("When started twice and stopped twice", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			svc.Stop()
			svc.Stop()

			Convey("Then it reported itself started", func() {
				So(stats["started"], ShouldBeTrue)
				So(stats["totalSpots"], ShouldEqual, 0)
				So(stats["jobs"], ShouldNotBeNil)
			})
		})

		Convey("Then health reports scoring as disabled", func() {
			store, scorer, err := svc.Health(context.Background())
			So(err, ShouldBeNil)
			So(store, ShouldEqual, repository.BackendMemory)
			So(scorer, ShouldEqual, "disabled")
		})
	})
}

func TestService_HealthWithUnreachableScorer(t *testing.T) {
	Convey("Given a scoring service that refuses connections", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		f := newFixture(t, service.WithScorer(scoring.NewClient(url,
			scoring.WithTimeout(30*time.Second),
			scoring.WithInitialInterval(10*time.Millisecond),
		)))
		Reset(f.svc.Stop)

		Convey("When health is checked", func() {
			start := time.Now()
			store, scorer, err := f.svc.Health(context.Background())
			elapsed := time.Since(start)

			Convey("Then it answers promptly with scoring unavailable", func() {
				So(err, ShouldBeNil)
				So(store, ShouldEqual, repository.BackendMemory)
				So(scorer, ShouldEqual, "unavailable")
				So(elapsed < 2500*time.Millisecond, ShouldBeTrue)
			})
		})
	})
}

func TestService_Spots(t *testing.T) {
	Convey("Given a service with one spot", t, func() {
		f := newFixture(t)
		Reset(f.svc.Stop)
		ctx := context.Background()

		Convey("When spots are listed", func() {
			spots, err := f.svc.ListSpots(ctx)
			So(err, ShouldBeNil)
			So(spots, ShouldHaveLength, 1)
			So(spots[0].FlagColor, ShouldEqual, risk.Green)
		})

		Convey("When an unknown spot is requested", func() {
			_, err := f.svc.GetSpot(ctx, "missing")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a beginner score is applied", func() {
			score, incidents := 7.5, 2
			spot, err := f.svc.ApplyScore(ctx, f.spot.ID, service.ScoreUpdate{RiskScore: &score, SkillLevel: "Beginner", Incidents: &incidents})

			Convey("Then the sub-record is re-derived", func() {
				So(err, ShouldBeNil)
				So(spot.SkillLevelRisks.Beginner.FlagColor, ShouldEqual, risk.Red)
				So(spot.SkillLevelRisks.Beginner.Incidents, ShouldEqual, 2)
				So(spot.RiskScore, ShouldEqual, 0)
			})
		})

		Convey("When no skill level is given", func() {
			score := 5.0
			spot, err := f.svc.ApplyScore(ctx, f.spot.ID, service.ScoreUpdate{RiskScore: &score})

			Convey("Then the overall score is set", func() {
				So(err, ShouldBeNil)
				So(spot.RiskScore, ShouldEqual, 5.0)
				So(spot.RiskLevel, ShouldEqual, risk.Medium)
				So(spot.FlagColor, ShouldEqual, risk.Yellow)
			})
		})

		Convey("When the score is missing or out of range", func() {
			_, err := f.svc.ApplyScore(ctx, f.spot.ID, service.ScoreUpdate{})
			So(fieldOf(err), ShouldEqual, "riskScore")

			bad := 10.5
			_, err = f.svc.ApplyScore(ctx, f.spot.ID, service.ScoreUpdate{RiskScore: &bad})
			So(fieldOf(err), ShouldEqual, "riskScore")

			ok := 3.0
			_, err = f.svc.ApplyScore(ctx, f.spot.ID, service.ScoreUpdate{RiskScore: &ok, SkillLevel: "expert"})
			So(fieldOf(err), ShouldEqual, "skillLevel")
		})

		Convey("When the spot does not exist", func() {
			score := 3.0
			_, err := f.svc.ApplyScore(ctx, "missing", service.ScoreUpdate{RiskScore: &score})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_SubmitReport(t *testing.T) {
	Convey("Given a service with one spot", t, func() {
		f := newFixture(t)
		Reset(f.svc.Stop)
		ctx := context.Background()

		Convey("When a valid report with one photo is submitted", func() {
			report, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID, jpeg("rip.jpg")))

			Convey("Then it is stored pending with one media item", func() {
				So(err, ShouldBeNil)
				receipt := service.NewReceipt(&report)
				So(receipt.Status, ShouldEqual, model.StatusPending)
				So(receipt.MediaCount, ShouldEqual, 1)
				So(receipt.SpotRef, ShouldEqual, f.spot.ID)
				So(report.ReporterName, ShouldEqual, model.AnonymousReporter)
				So(report.Media[0].Path, ShouldStartWith, media.URLPrefix)
				So(f.storedFiles(), ShouldHaveLength, 1)
			})

			Convey("Then the spot counts it exactly once", func() {
				spot, _ := f.svc.GetSpot(ctx, f.spot.ID)
				So(spot.RecentReports, ShouldResemble, []string{report.ID})
				So(spot.TotalIncidents, ShouldEqual, 1)
			})

			Convey("Then analysis is attached in the background and the spot rescored", func() {
				So(waitFor(func() bool {
					r, _ := f.svc.GetReport(ctx, report.ID)
					return r.Analysis != nil
				}), ShouldBeTrue)
				r, _ := f.svc.GetReport(ctx, report.ID)
				So(r.Analysis.DetectedHazards, ShouldResemble, []string{"rip current"})
				So(r.Analysis.AnalyzedAt.Equal(epoch), ShouldBeTrue)
				So(waitFor(func() bool { return f.scorer.rescoreCount() == 1 }), ShouldBeTrue)
			})

			Convey("Then it is listed among the spot's recent reports", func() {
				reports, err := f.svc.RecentReports(ctx, f.spot.ID)
				So(err, ShouldBeNil)
				So(reports, ShouldHaveLength, 1)
				So(reports[0].ID, ShouldEqual, report.ID)
			})
		})

		Convey("When a report without media is submitted", func() {
			report, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID))

			Convey("Then it is accepted, analysis is skipped and a rescore still runs", func() {
				So(err, ShouldBeNil)
				So(report.Media, ShouldBeEmpty)
				So(waitFor(func() bool { return f.scorer.rescoreCount() == 1 }), ShouldBeTrue)
				r, _ := f.svc.GetReport(ctx, report.ID)
				So(r.Analysis, ShouldBeNil)
			})
		})

		Convey("When the spot does not exist", func() {
			_, err := f.svc.SubmitReport(ctx, validSubmission("no-such-spot", jpeg("a.jpg")))

			Convey("Then NotFound is returned and nothing is stored", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				reports, _ := f.svc.RecentReports(ctx, "no-such-spot")
				So(reports, ShouldBeEmpty)
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When the description is empty", func() {
			sub := validSubmission(f.spot.ID, jpeg("a.jpg"))
			sub.Description = "   "
			_, err := f.svc.SubmitReport(ctx, sub)

			Convey("Then a validation error names description", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(fieldOf(err), ShouldEqual, "description")
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When the description is too long", func() {
			sub := validSubmission(f.spot.ID)
			sub.Description = strings.Repeat("ü", model.DefaultDescriptionMax+1)
			_, err := f.svc.SubmitReport(ctx, sub)
			So(fieldOf(err), ShouldEqual, "description")
		})

		Convey("When enumerated fields are invalid", func() {
			sub := validSubmission(f.spot.ID)
			sub.HazardType = "Tsunami"
			_, err := f.svc.SubmitReport(ctx, sub)
			So(fieldOf(err), ShouldEqual, "hazardType")

			sub = validSubmission(f.spot.ID)
			sub.Severity = "extreme"
			_, err = f.svc.SubmitReport(ctx, sub)
			So(fieldOf(err), ShouldEqual, "severity")

			sub = validSubmission("")
			_, err = f.svc.SubmitReport(ctx, sub)
			So(fieldOf(err), ShouldEqual, "surfSpotId")
		})

		Convey("When six files are attached", func() {
			files := make([]service.File, 6)
			for i := range files {
				files[i] = jpeg("a.jpg")
			}
			_, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID, files...))

			Convey("Then the submission is rejected", func() {
				So(fieldOf(err), ShouldEqual, "media")
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When a file type is not allowed", func() {
			pdf := service.File{Name: "a.pdf", MimeType: "application/pdf", Size: 4, Body: strings.NewReader("%PDF")}
			_, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID, pdf))
			So(fieldOf(err), ShouldEqual, "media")
		})

		Convey("When a declared size exceeds the limit", func() {
			big := jpeg("big.jpg")
			big.Size = model.DefaultMaxFileSize + 1
			_, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID, big))
			So(fieldOf(err), ShouldEqual, "media")
		})

		Convey("When the second file's content does not match its type", func() {
			fake := service.File{Name: "b.jpg", MimeType: "image/jpeg", Size: 11, Body: strings.NewReader("hello world")}
			_, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID, jpeg("a.jpg"), fake))

			Convey("Then the already-written file is cleaned up", func() {
				So(fieldOf(err), ShouldEqual, "media")
				So(f.storedFiles(), ShouldBeEmpty)
				spot, _ := f.svc.GetSpot(ctx, f.spot.ID)
				So(spot.TotalIncidents, ShouldEqual, 0)
			})
		})

		Convey("When eleven reports are submitted in sequence", func() {
			var ids []string
			for i := 0; i < 11; i++ {
				f.clock.Advance(time.Minute)
				r, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID))
				So(err, ShouldBeNil)
				ids = append(ids, r.ID)
			}

			Convey("Then the recent list holds the ten newest, oldest first", func() {
				spot, _ := f.svc.GetSpot(ctx, f.spot.ID)
				So(spot.RecentReports, ShouldResemble, ids[1:])
				So(spot.TotalIncidents, ShouldEqual, 11)

				reports, _ := f.svc.RecentReports(ctx, f.spot.ID)
				So(reports, ShouldHaveLength, 11)
				So(reports[0].ID, ShouldEqual, ids[10])
			})
		})
	})
}

func TestService_SubmitReportLimits(t *testing.T) {
	Convey("Given a service that requires media", t, func() {
		f := newFixture(t, service.WithLimits(model.Limits{MediaRequired: true}))
		Reset(f.svc.Stop)

		Convey("When no media is attached", func() {
			_, err := f.svc.SubmitReport(context.Background(), validSubmission(f.spot.ID))
			So(fieldOf(err), ShouldEqual, "media")
		})

		Convey("When one photo is attached", func() {
			_, err := f.svc.SubmitReport(context.Background(), validSubmission(f.spot.ID, jpeg("a.jpg")))
			So(err, ShouldBeNil)
		})
	})
}

func TestService_SlowCollaborator(t *testing.T) {
	Convey("Given a scoring collaborator that never answers", t, func() {
		f := newFixture(t)
		f.scorer.hang = true
		Reset(f.svc.Stop)

		Convey("When a report with a photo is submitted", func() {
			start := time.Now()
			report, err := f.svc.SubmitReport(context.Background(), validSubmission(f.spot.ID, jpeg("a.jpg")))
			elapsed := time.Since(start)

			Convey("Then the response does not wait for analysis or rescoring", func() {
				So(err, ShouldBeNil)
				So(report.Status, ShouldEqual, model.StatusPending)
				So(elapsed, ShouldBeLessThan, 150*time.Millisecond)
			})
		})
	})

	Convey("Given a scoring collaborator that fails", t, func() {
		f := newFixture(t)
		f.scorer.failWith = errors.New("model not loaded")
		Reset(f.svc.Stop)

		Convey("When a report with a photo is submitted", func() {
			report, err := f.svc.SubmitReport(context.Background(), validSubmission(f.spot.ID, jpeg("a.jpg")))

			Convey("Then it is still accepted and simply lacks analysis", func() {
				So(err, ShouldBeNil)
				select {
				case <-f.scorer.analyzeCh:
				case <-time.After(2 * time.Second):
				}
				r, _ := f.svc.GetReport(context.Background(), report.ID)
				So(r.Analysis, ShouldBeNil)
			})
		})
	})
}

func TestService_SetReportStatus(t *testing.T) {
	Convey("Given a stored report", t, func() {
		f := newFixture(t)
		Reset(f.svc.Stop)
		ctx := context.Background()
		report, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID))
		So(err, ShouldBeNil)

		Convey("When it is verified", func() {
			r, err := f.svc.SetReportStatus(ctx, report.ID, "Verified")
			So(err, ShouldBeNil)
			So(r.Verified, ShouldBeTrue)
		})

		Convey("When it is rejected", func() {
			_, err := f.svc.SetReportStatus(ctx, report.ID, "rejected")
			So(err, ShouldBeNil)

			Convey("Then it leaves the recent list and the spot is rescored again", func() {
				reports, _ := f.svc.RecentReports(ctx, f.spot.ID)
				So(reports, ShouldBeEmpty)
				So(waitFor(func() bool { return f.scorer.rescoreCount() == 2 }), ShouldBeTrue)
			})
		})

		Convey("When the status is unknown", func() {
			_, err := f.svc.SetReportStatus(ctx, report.ID, "archived")
			So(fieldOf(err), ShouldEqual, "status")
		})

		Convey("When the report does not exist", func() {
			_, err := f.svc.SetReportStatus(ctx, "missing", "verified")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_RecentReportsWindow(t *testing.T) {
	Convey("Given a report filed 25 hours ago", t, func() {
		f := newFixture(t)
		Reset(f.svc.Stop)
		ctx := context.Background()
		_, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID))
		So(err, ShouldBeNil)

		f.clock.Advance(25 * time.Hour)
		fresh, err := f.svc.SubmitReport(ctx, validSubmission(f.spot.ID))
		So(err, ShouldBeNil)

		Convey("Then only the last 24 hours are returned", func() {
			reports, err := f.svc.RecentReports(ctx, f.spot.ID)
			So(err, ShouldBeNil)
			So(reports, ShouldHaveLength, 1)
			So(reports[0].ID, ShouldEqual, fresh.ID)
		})
	})
}
