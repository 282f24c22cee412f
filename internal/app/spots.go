package service

import (
	"context"
	"strings"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// ScoreUpdate is a risk-score write from the scoring service or an operator.
// SkillLevel empty means overall; Incidents, when set, replaces the skill's
// incident count.
type ScoreUpdate struct {
	RiskScore  *float64 `json:"riskScore" validate:"required,gte=0,lte=10"`
	SkillLevel string   `json:"skillLevel" validate:"skill"`
	Incidents  *int     `json:"incidents"`
}

// ListSpots returns every surf spot ordered by name.
func (s *Service) ListSpots(ctx context.Context) ([]model.SurfSpot, error) {
	spots, err := s.store.ListSpots(ctx)
	if err != nil {
		return nil, err
	}
	metrics.UpdateSpotsTotal(len(spots))
	return spots, nil
}

// GetSpot returns one surf spot.
func (s *Service) GetSpot(ctx context.Context, id string) (model.SurfSpot, error) {
	if strings.TrimSpace(id) == "" {
		return model.SurfSpot{}, model.NewValidationError("id", "is required")
	}
	return s.store.GetSpot(ctx, id)
}

// ApplyScore writes a score and returns the re-derived spot.
func (s *Service) ApplyScore(ctx context.Context, id string, in ScoreUpdate) (model.SurfSpot, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return model.SurfSpot{}, validationError(err)
	}
	skill, _ := risk.ParseSkillLevel(in.SkillLevel)

	spot, err := s.store.ApplyScore(ctx, id, skill, *in.RiskScore, in.Incidents)
	if err != nil {
		return model.SurfSpot{}, err
	}
	metrics.RecordRiskScoreUpdate(string(skill))
	s.logger.Debug(ctx, "risk score applied",
		logger.String("spot_id", id),
		logger.String("skill", string(skill)),
		logger.Float64("score", *in.RiskScore),
		logger.String("flag", string(spot.FlagColor)),
	)
	return spot, nil
}
