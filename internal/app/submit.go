package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/okian/surfwatch/internal/adapters/media"
	jobqueue "github.com/okian/surfwatch/internal/adapters/mq/queue"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

const sniffLen = 512

// File is one uploaded attachment. MimeType and Size are as declared by the
// client; Size is negative when unknown.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Submission is a hazard report as received from the client.
type Submission struct {
	SpotID       string `json:"surfSpotId" validate:"required,max=128"`
	HazardType   string `json:"hazardType" validate:"required,hazardtype"`
	Description  string `json:"description" validate:"required"`
	Severity     string `json:"severity" validate:"required,severity"`
	ReporterName string `json:"reporterName"`
	Media        []File `json:"media" validate:"-"`
}

// Receipt summarises an accepted report.
type Receipt struct {
	ID         string           `json:"id"`
	SpotRef    string           `json:"spotRef"`
	HazardType model.HazardType `json:"hazardType"`
	Severity   model.Severity   `json:"severity"`
	ReportDate string           `json:"reportDate"`
	MediaCount int              `json:"mediaCount"`
	Status     model.Status     `json:"status"`
}

// NewReceipt builds the acknowledgment for a stored report.
func NewReceipt(r *model.HazardReport) Receipt {
	return Receipt{
		ID:         r.ID,
		SpotRef:    r.SurfSpotID,
		HazardType: r.HazardType,
		Severity:   r.Severity,
		ReportDate: r.ReportDate.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		MediaCount: len(r.Media),
		Status:     r.Status,
	}
}

// SubmitReport validates and stores a hazard report, then schedules image
// analysis (when photos are attached) and a rescore of the spot. Only
// failures up to persistence are returned; background failures are logged.
func (s *Service) SubmitReport(ctx context.Context, sub Submission) (model.HazardReport, error) {
	sub.SpotID = strings.TrimSpace(sub.SpotID)
	sub.Description = strings.TrimSpace(sub.Description)

	if err := s.validateSubmission(ctx, &sub); err != nil {
		s.reject(ctx, err)
		return model.HazardReport{}, err
	}
	if _, err := s.store.GetSpot(ctx, sub.SpotID); err != nil {
		s.reject(ctx, err)
		return model.HazardReport{}, err
	}

	stored, err := s.storeMedia(ctx, sub.Media)
	if err != nil {
		s.reject(ctx, err)
		return model.HazardReport{}, err
	}

	hazard, _ := model.ParseHazardType(sub.HazardType)
	severity, _ := model.ParseSeverity(sub.Severity)
	report := model.NewHazardReport(sub.SpotID, hazard, sub.Description, severity, sub.ReporterName, stored, s.clock.Now())

	if err := s.store.CreateReport(ctx, report); err != nil {
		s.discardMedia(ctx, stored)
		s.reject(ctx, err)
		return model.HazardReport{}, err
	}

	// The report is stored from here on. Spot bookkeeping is best-effort and
	// a failure leaves the counters behind the report set.
	if err := s.store.AppendRecentReport(ctx, report.SurfSpotID, report.ID); err != nil {
		s.logger.Error(ctx, "append recent report failed",
			logger.String("report_id", report.ID),
			logger.String("spot_id", report.SurfSpotID),
			logger.Error(err),
		)
	}
	if err := s.store.IncrementIncidents(ctx, report.SurfSpotID); err != nil {
		s.logger.Error(ctx, "increment incidents failed",
			logger.String("report_id", report.ID),
			logger.String("spot_id", report.SurfSpotID),
			logger.Error(err),
		)
	}

	metrics.RecordReportSubmitted(string(report.HazardType), string(report.Severity))
	for _, m := range stored {
		metrics.RecordMediaStored(string(m.Kind), m.Size)
	}

	if len(report.Images()) > 0 {
		s.dispatch(ctx, jobqueue.KindAnalyze, report.ID, report.SurfSpotID)
	} else {
		metrics.RecordAnalysisOutcome("skipped")
	}
	s.dispatch(ctx, jobqueue.KindRescore, report.ID, report.SurfSpotID)

	s.logger.Info(ctx, "hazard report accepted",
		logger.String("report_id", report.ID),
		logger.String("spot_id", report.SurfSpotID),
		logger.String("hazard", string(report.HazardType)),
		logger.String("severity", string(report.Severity)),
		logger.Int("media", len(report.Media)),
	)
	return report, nil
}

func (s *Service) validateSubmission(ctx context.Context, sub *Submission) error {
	if err := s.validate.StructCtx(ctx, sub); err != nil {
		return validationError(err)
	}
	if n := utf8.RuneCountInString(sub.Description); n > s.limits.DescriptionMaxLen {
		return model.NewValidationError("description", fmt.Sprintf("must be at most %d characters", s.limits.DescriptionMaxLen))
	}

	switch n := len(sub.Media); {
	case n > s.limits.MaxFiles:
		return model.NewValidationError("media", fmt.Sprintf("at most %d files are allowed", s.limits.MaxFiles))
	case n == 0 && s.limits.MediaRequired:
		return model.NewValidationError("media", "at least one photo or video is required")
	}
	for _, f := range sub.Media {
		if _, ok := model.MediaKindOf(f.MimeType); !ok || !s.limits.AllowsMIME(f.MimeType) {
			return model.NewValidationError("media", fmt.Sprintf("file %q has unsupported type %q", f.Name, f.MimeType))
		}
		if f.Size > s.limits.MaxFileSize {
			return model.NewValidationError("media", fmt.Sprintf("file %q exceeds %d MB", f.Name, s.limits.MaxFileSize>>20))
		}
		if f.Body == nil {
			return model.NewValidationError("media", fmt.Sprintf("file %q is empty", f.Name))
		}
	}
	return nil
}

// storeMedia writes every file, removing the ones already written when a
// later file fails.
func (s *Service) storeMedia(ctx context.Context, files []File) ([]model.Media, error) {
	stored := make([]model.Media, 0, len(files))
	for _, f := range files {
		m, err := s.storeFile(ctx, f)
		if err != nil {
			s.discardMedia(ctx, stored)
			return nil, err
		}
		stored = append(stored, m)
	}
	return stored, nil
}

func (s *Service) storeFile(ctx context.Context, f File) (model.Media, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return model.Media{}, fmt.Errorf("read upload %q: %w", f.Name, err)
	}
	if n == 0 {
		return model.Media{}, model.NewValidationError("media", fmt.Sprintf("file %q is empty", f.Name))
	}
	head = head[:n]
	if !contentMatches(f.MimeType, http.DetectContentType(head)) {
		return model.Media{}, model.NewValidationError("media", fmt.Sprintf("file %q content does not match %q", f.Name, f.MimeType))
	}

	m, err := s.media.Save(ctx, media.Upload{
		OriginalName: f.Name,
		MimeType:     f.MimeType,
		Body:         io.MultiReader(bytes.NewReader(head), f.Body),
	})
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return model.Media{}, model.NewValidationError("media", fmt.Sprintf("file %q exceeds %d MB", f.Name, s.limits.MaxFileSize>>20))
	case err != nil:
		return model.Media{}, model.StorageError("store media", err)
	}
	return m, nil
}

// contentMatches checks the sniffed type against the declared one. Video
// containers the sniffer does not know come back as octet-stream and are
// accepted for declared videos.
func contentMatches(declared, sniffed string) bool {
	want, _ := model.MediaKindOf(declared)
	got, ok := model.MediaKindOf(sniffed)
	if ok {
		return got == want
	}
	return want == model.MediaVideo && strings.HasPrefix(sniffed, "application/octet-stream")
}

func (s *Service) discardMedia(ctx context.Context, stored []model.Media) {
	for _, m := range stored {
		if err := s.media.Delete(m.Filename); err != nil {
			s.logger.Warn(ctx, "media cleanup failed", logger.String("name", m.Filename), logger.Error(err))
		}
	}
}

func (s *Service) reject(ctx context.Context, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		metrics.RecordReportRejected("invalid_" + ve.Field)
	case errors.Is(err, model.ErrNotFound):
		metrics.RecordReportRejected("spot_not_found")
	default:
		metrics.RecordReportRejected("storage")
		s.logger.Error(ctx, "hazard report not stored", logger.Error(err))
	}
}
