package service

import (
	"context"
	"strings"

	jobqueue "github.com/okian/surfwatch/internal/adapters/mq/queue"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// GetReport returns one hazard report.
func (s *Service) GetReport(ctx context.Context, id string) (model.HazardReport, error) {
	if strings.TrimSpace(id) == "" {
		return model.HazardReport{}, model.NewValidationError("id", "is required")
	}
	return s.store.GetReport(ctx, id)
}

// RecentReports returns the spot's reports from the last 24 hours, newest
// first, excluding rejected ones. An unknown spot yields an empty list.
func (s *Service) RecentReports(ctx context.Context, spotID string) ([]model.HazardReport, error) {
	if strings.TrimSpace(spotID) == "" {
		return nil, model.NewValidationError("spotId", "is required")
	}
	return s.store.RecentReports(ctx, spotID, s.clock.Now().Add(-model.ReportTTL))
}

// SetReportStatus records a verification decision and schedules a rescore of
// the report's spot, since rejected reports stop counting towards its risk.
func (s *Service) SetReportStatus(ctx context.Context, id, status string) (model.HazardReport, error) {
	st, ok := model.ParseStatus(status)
	if !ok {
		return model.HazardReport{}, model.NewValidationError("status", "must be one of pending, verified, rejected")
	}
	r, err := s.store.SetStatus(ctx, id, st)
	if err != nil {
		return model.HazardReport{}, err
	}
	metrics.RecordReportStatusChange(string(st))
	s.logger.Info(ctx, "report status changed",
		logger.String("report_id", id),
		logger.String("spot_id", r.SurfSpotID),
		logger.String("status", string(st)),
	)
	s.dispatch(ctx, jobqueue.KindRescore, r.ID, r.SurfSpotID)
	return r, nil
}
