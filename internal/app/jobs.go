package service

import (
	"context"
	"fmt"
	"io"

	jobqueue "github.com/okian/surfwatch/internal/adapters/mq/queue"
	"github.com/okian/surfwatch/internal/adapters/scoring"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// jobHandler runs background jobs against the service's collaborators.
type jobHandler struct {
	s *Service
}

// Handle implements worker.Handler.
func (h jobHandler) Handle(ctx context.Context, j jobqueue.Job) error { //nolint:gocritic // Job is passed by value
	switch j.Kind {
	case jobqueue.KindAnalyze:
		err := h.analyze(ctx, j.ReportID)
		if err != nil {
			metrics.RecordAnalysisOutcome("failed")
			return err
		}
		metrics.RecordAnalysisOutcome("success")
		return nil
	case jobqueue.KindRescore:
		return h.s.scorer.RecomputeRisk(ctx, j.SpotID)
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (h jobHandler) analyze(ctx context.Context, reportID string) error {
	s := h.s
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	var images []scoring.Image
	for _, m := range report.Images() {
		data, err := h.read(m.Filename)
		if err != nil {
			s.logger.Warn(ctx, "media unreadable for analysis",
				logger.String("report_id", reportID),
				logger.String("name", m.Filename),
				logger.Error(err),
			)
			continue
		}
		images = append(images, scoring.Image{Name: m.Filename, MimeType: m.MimeType, Data: data})
	}
	if len(images) == 0 {
		return fmt.Errorf("report %s: no readable images", reportID)
	}

	analysis, err := s.scorer.AnalyzeHazard(ctx, string(report.HazardType), images)
	if err != nil {
		return err
	}
	analysis.AnalyzedAt = s.clock.Now()
	if err := s.store.SetAnalysis(ctx, reportID, analysis); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	s.logger.Info(ctx, "hazard analysis attached",
		logger.String("report_id", reportID),
		logger.Int("detected", len(analysis.DetectedHazards)),
		logger.Float64("confidence", analysis.ConfidenceScore),
	)
	return nil
}

func (h jobHandler) read(name string) ([]byte, error) {
	rc, err := h.s.media.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, h.s.limits.MaxFileSize))
}
