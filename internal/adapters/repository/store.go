// Package repository defines the surf spot and hazard report store
// contracts and their memory, SQLite and MongoDB implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
)

// SpotStore provides read access to surf spots and the narrow writes the
// pipeline and the scoring collaborator need.
type SpotStore interface {
	// ListSpots returns every spot ordered by name ascending. An empty store
	// yields an empty, non-nil slice.
	ListSpots(ctx context.Context) ([]model.SurfSpot, error)

	// GetSpot returns model.ErrNotFound when id does not resolve.
	GetSpot(ctx context.Context, id string) (model.SurfSpot, error)

	// UpsertSpot inserts spot, or updates the location and coordinates of
	// the existing spot with the same name while keeping its ID and scores.
	UpsertSpot(ctx context.Context, spot model.SurfSpot) (model.SurfSpot, error)

	// ApplyScore writes an externally computed score for skill and
	// re-derives levels, flag colors and the blended overall score.
	ApplyScore(ctx context.Context, id string, skill risk.SkillLevel, score float64, incidents *int) (model.SurfSpot, error)

	// AppendRecentReport pushes ref onto the spot's recent-reports window.
	// Duplicates are not removed.
	AppendRecentReport(ctx context.Context, spotID, ref string) error

	// IncrementIncidents adds one to the spot's total incident count.
	IncrementIncidents(ctx context.Context, spotID string) error

	// CountSpots returns the number of stored spots.
	CountSpots(ctx context.Context) (int, error)
}

// ReportStore persists hazard reports.
type ReportStore interface {
	CreateReport(ctx context.Context, r model.HazardReport) error
	GetReport(ctx context.Context, id string) (model.HazardReport, error)

	// RecentReports returns the spot's reports dated at or after since,
	// newest first, excluding rejected ones.
	RecentReports(ctx context.Context, spotID string, since time.Time) ([]model.HazardReport, error)

	SetAnalysis(ctx context.Context, id string, a model.Analysis) error
	SetStatus(ctx context.Context, id string, s model.Status) (model.HazardReport, error)
}

// Store is a complete persistence backend.
type Store interface {
	SpotStore
	ReportStore

	// Backend names the implementation: memory, sqlite or mongo.
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}
