package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
)

// BackendMemory names the in-memory store.
const BackendMemory = "memory"

// MemoryStore keeps spots and reports in mutex-guarded maps. Values are
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    options
	spots   map[string]model.SurfSpot
	byName  map[string]string // name -> id
	reports map[string]model.HazardReport
	bySpot  map[string][]string // spot id -> report ids in insertion order
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:    buildOptions(opts),
		spots:   make(map[string]model.SurfSpot),
		byName:  make(map[string]string),
		reports: make(map[string]model.HazardReport),
		bySpot:  make(map[string][]string),
	}
}

// Backend implements Store.
func (s *MemoryStore) Backend() string { return BackendMemory }

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store. Every later call fails with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ListSpots implements SpotStore.
func (s *MemoryStore) ListSpots(context.Context) ([]model.SurfSpot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]model.SurfSpot, 0, len(s.spots))
	for _, sp := range s.spots {
		out = append(out, sp.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetSpot implements SpotStore.
func (s *MemoryStore) GetSpot(_ context.Context, id string) (model.SurfSpot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.SurfSpot{}, ErrClosed
	}

	sp, ok := s.spots[id]
	if !ok {
		return model.SurfSpot{}, model.NotFoundf("surf spot %q", id)
	}
	return sp.Clone(), nil
}

// UpsertSpot implements SpotStore.
func (s *MemoryStore) UpsertSpot(_ context.Context, spot model.SurfSpot) (model.SurfSpot, error) {
	if err := spot.Validate(); err != nil {
		return model.SurfSpot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.SurfSpot{}, ErrClosed
	}

	if id, ok := s.byName[spot.Name]; ok {
		existing := s.spots[id]
		existing.Location = spot.Location
		existing.Coordinates = spot.Coordinates
		s.spots[id] = existing
		return existing.Clone(), nil
	}

	spot = spot.Clone()
	spot.Derive()
	s.spots[spot.ID] = spot
	s.byName[spot.Name] = spot.ID
	return spot.Clone(), nil
}

// ApplyScore implements SpotStore.
func (s *MemoryStore) ApplyScore(_ context.Context, id string, skill risk.SkillLevel, score float64, incidents *int) (model.SurfSpot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.SurfSpot{}, ErrClosed
	}

	sp, ok := s.spots[id]
	if !ok {
		return model.SurfSpot{}, model.NotFoundf("surf spot %q", id)
	}
	sp = sp.Clone()
	if err := sp.ApplySkillScore(skill, score, incidents, s.opts.clock.Now()); err != nil {
		return model.SurfSpot{}, err
	}
	s.spots[id] = sp
	return sp.Clone(), nil
}

// AppendRecentReport implements SpotStore.
func (s *MemoryStore) AppendRecentReport(_ context.Context, spotID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	sp, ok := s.spots[spotID]
	if !ok {
		return model.NotFoundf("surf spot %q", spotID)
	}
	sp.RecentReports = model.PushRecent(append([]string{}, sp.RecentReports...), ref)
	s.spots[spotID] = sp
	return nil
}

// IncrementIncidents implements SpotStore.
func (s *MemoryStore) IncrementIncidents(_ context.Context, spotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	sp, ok := s.spots[spotID]
	if !ok {
		return model.NotFoundf("surf spot %q", spotID)
	}
	sp.TotalIncidents++
	s.spots[spotID] = sp
	return nil
}

// CountSpots implements SpotStore.
func (s *MemoryStore) CountSpots(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.spots), nil
}

// CreateReport implements ReportStore.
func (s *MemoryStore) CreateReport(_ context.Context, r model.HazardReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.spots[r.SurfSpotID]; !ok {
		return model.NotFoundf("surf spot %q", r.SurfSpotID)
	}
	s.reports[r.ID] = r.Clone()
	s.bySpot[r.SurfSpotID] = append(s.bySpot[r.SurfSpotID], r.ID)
	return nil
}

// GetReport implements ReportStore.
func (s *MemoryStore) GetReport(_ context.Context, id string) (model.HazardReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.HazardReport{}, ErrClosed
	}

	r, ok := s.reports[id]
	if !ok {
		return model.HazardReport{}, model.NotFoundf("hazard report %q", id)
	}
	return r.Clone(), nil
}

// RecentReports implements ReportStore.
func (s *MemoryStore) RecentReports(_ context.Context, spotID string, since time.Time) ([]model.HazardReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := s.bySpot[spotID]
	out := []model.HazardReport{}
	for i := len(ids) - 1; i >= 0; i-- {
		r := s.reports[ids[i]]
		if r.Status == model.StatusRejected || r.ReportDate.Before(since) {
			continue
		}
		out = append(out, r.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// SetAnalysis implements ReportStore.
func (s *MemoryStore) SetAnalysis(_ context.Context, id string, a model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	r, ok := s.reports[id]
	if !ok {
		return model.NotFoundf("hazard report %q", id)
	}
	a.DetectedHazards = append([]string{}, a.DetectedHazards...)
	r.Analysis = &a
	s.reports[id] = r
	return nil
}

// SetStatus implements ReportStore.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status model.Status) (model.HazardReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.HazardReport{}, ErrClosed
	}

	r, ok := s.reports[id]
	if !ok {
		return model.HazardReport{}, model.NotFoundf("hazard report %q", id)
	}
	r.SetStatus(status)
	s.reports[id] = r
	return r.Clone(), nil
}

func sortNewestFirst(rs []model.HazardReport) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].ReportDate.After(rs[j].ReportDate)
	})
}
