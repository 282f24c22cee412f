package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
	"github.com/okian/surfwatch/pkg/metrics"
)

type instrumented struct {
	Store
	backend string
}

// Instrument records latency and storage failures for every operation of st.
func Instrument(st Store) Store {
	if _, ok := st.(*instrumented); ok {
		return st
	}
	return &instrumented{Store: st, backend: st.Backend()}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	metrics.RecordRepositoryLatency(s.backend, op, float64(time.Since(start).Microseconds())/1000)
	// Not-found and validation are caller errors, not backend failures.
	if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrValidation) {
		metrics.RecordRepositoryError(s.backend, op)
	}
}

func (s *instrumented) ListSpots(ctx context.Context) ([]model.SurfSpot, error) {
	start := time.Now()
	out, err := s.Store.ListSpots(ctx)
	s.observe("list_spots", start, err)
	return out, err
}

func (s *instrumented) GetSpot(ctx context.Context, id string) (model.SurfSpot, error) {
	start := time.Now()
	sp, err := s.Store.GetSpot(ctx, id)
	s.observe("get_spot", start, err)
	return sp, err
}

func (s *instrumented) UpsertSpot(ctx context.Context, spot model.SurfSpot) (model.SurfSpot, error) {
	start := time.Now()
	sp, err := s.Store.UpsertSpot(ctx, spot)
	s.observe("upsert_spot", start, err)
	return sp, err
}

func (s *instrumented) ApplyScore(ctx context.Context, id string, skill risk.SkillLevel, score float64, incidents *int) (model.SurfSpot, error) {
	start := time.Now()
	sp, err := s.Store.ApplyScore(ctx, id, skill, score, incidents)
	s.observe("apply_score", start, err)
	return sp, err
}

func (s *instrumented) AppendRecentReport(ctx context.Context, spotID, ref string) error {
	start := time.Now()
	err := s.Store.AppendRecentReport(ctx, spotID, ref)
	s.observe("append_recent_report", start, err)
	return err
}

func (s *instrumented) IncrementIncidents(ctx context.Context, spotID string) error {
	start := time.Now()
	err := s.Store.IncrementIncidents(ctx, spotID)
	s.observe("increment_incidents", start, err)
	return err
}

func (s *instrumented) CountSpots(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.Store.CountSpots(ctx)
	s.observe("count_spots", start, err)
	return n, err
}

func (s *instrumented) CreateReport(ctx context.Context, r model.HazardReport) error {
	start := time.Now()
	err := s.Store.CreateReport(ctx, r)
	s.observe("create_report", start, err)
	return err
}

func (s *instrumented) GetReport(ctx context.Context, id string) (model.HazardReport, error) {
	start := time.Now()
	r, err := s.Store.GetReport(ctx, id)
	s.observe("get_report", start, err)
	return r, err
}

func (s *instrumented) RecentReports(ctx context.Context, spotID string, since time.Time) ([]model.HazardReport, error) {
	start := time.Now()
	out, err := s.Store.RecentReports(ctx, spotID, since)
	s.observe("recent_reports", start, err)
	return out, err
}

func (s *instrumented) SetAnalysis(ctx context.Context, id string, a model.Analysis) error {
	start := time.Now()
	err := s.Store.SetAnalysis(ctx, id, a)
	s.observe("set_analysis", start, err)
	return err
}

func (s *instrumented) SetStatus(ctx context.Context, id string, status model.Status) (model.HazardReport, error) {
	start := time.Now()
	r, err := s.Store.SetStatus(ctx, id, status)
	s.observe("set_status", start, err)
	return r, err
}
