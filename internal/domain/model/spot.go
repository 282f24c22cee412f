// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/surfwatch/internal/domain/risk"
)

// RecentReportsCap bounds SurfSpot.RecentReports.
const RecentReportsCap = 10

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Valid reports whether the position is within latitude/longitude bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// SkillRisk is the per-skill breakdown. Score is nil until the scoring
// service has produced a value; Level and FlagColor always follow Score.
type SkillRisk struct {
	Incidents int            `json:"incidents" bson:"incidents"`
	Score     *float64       `json:"riskScore" bson:"riskScore,omitempty"`
	Level     risk.Level     `json:"riskLevel" bson:"riskLevel"`
	FlagColor risk.FlagColor `json:"flagColor" bson:"flagColor"`
}

// NewSkillRisk builds a sub-record with level and flag derived from score.
func NewSkillRisk(skill risk.SkillLevel, score *float64, incidents int) SkillRisk {
	sr := SkillRisk{Incidents: incidents, Score: score}
	sr.derive(skill)
	return sr
}

func (sr *SkillRisk) derive(skill risk.SkillLevel) {
	var v float64
	if sr.Score != nil {
		v = *sr.Score
	}
	c := risk.Classify(v, skill)
	sr.Level, sr.FlagColor = c.Level, c.FlagColor
}

// SkillLevelRisks holds one SkillRisk per skill level.
type SkillLevelRisks struct {
	Beginner     SkillRisk `json:"beginner" bson:"beginner"`
	Intermediate SkillRisk `json:"intermediate" bson:"intermediate"`
	Advanced     SkillRisk `json:"advanced" bson:"advanced"`
}

// SurfSpot is a surf break with its risk summary.
type SurfSpot struct {
	ID              string          `json:"id" bson:"_id"`
	Name            string          `json:"name" bson:"name"`
	Location        string          `json:"location" bson:"location"`
	Coordinates     Coordinates     `json:"coordinates" bson:"coordinates"`
	RiskScore       float64         `json:"riskScore" bson:"riskScore"`
	RiskLevel       risk.Level      `json:"riskLevel" bson:"riskLevel"`
	FlagColor       risk.FlagColor  `json:"flagColor" bson:"flagColor"`
	SkillLevelRisks SkillLevelRisks `json:"skillLevelRisks" bson:"skillLevelRisks"`
	TotalIncidents  int             `json:"totalIncidents" bson:"totalIncidents"`
	LastUpdated     time.Time       `json:"lastUpdated" bson:"lastUpdated"`
	RecentReports   []string        `json:"recentHazardReports" bson:"recentHazardReports"`
}

// NewSurfSpot creates an unscored spot with a generated ID.
func NewSurfSpot(name, location string, coords Coordinates, now time.Time) SurfSpot {
	s := SurfSpot{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(name),
		Location:      strings.TrimSpace(location),
		Coordinates:   coords,
		LastUpdated:   now,
		RecentReports: []string{},
	}
	s.Derive()
	return s
}

// Clone returns a deep copy.
func (s SurfSpot) Clone() SurfSpot {
	s.RecentReports = append([]string{}, s.RecentReports...)
	for _, skill := range risk.SkillLevels {
		sr := s.Skill(skill)
		if sr.Score != nil {
			v := *sr.Score
			sr.Score = &v
		}
	}
	return s
}

// Validate checks identity fields.
func (s *SurfSpot) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if !s.Coordinates.Valid() {
		return NewValidationError("coordinates", "latitude must be within [-90,90] and longitude within [-180,180]")
	}
	return nil
}

// Skill returns the sub-record for skill, or nil for Overall/unknown.
func (s *SurfSpot) Skill(skill risk.SkillLevel) *SkillRisk {
	switch skill {
	case risk.Beginner:
		return &s.SkillLevelRisks.Beginner
	case risk.Intermediate:
		return &s.SkillLevelRisks.Intermediate
	case risk.Advanced:
		return &s.SkillLevelRisks.Advanced
	default:
		return nil
	}
}

// Derive recomputes every level and flag color from the stored scores.
func (s *SurfSpot) Derive() {
	c := risk.Classify(s.RiskScore, risk.Overall)
	s.RiskLevel, s.FlagColor = c.Level, c.FlagColor
	for _, skill := range risk.SkillLevels {
		s.Skill(skill).derive(skill)
	}
	if s.RecentReports == nil {
		s.RecentReports = []string{}
	}
}

// ApplySkillScore sets the score for skill and re-derives the overall
// summary. When all three skill scores are present the overall score is
// their weighted blend. incidents, when non-nil, replaces the skill's
// incident count.
func (s *SurfSpot) ApplySkillScore(skill risk.SkillLevel, score float64, incidents *int, now time.Time) error {
	if !risk.InRange(score) {
		return NewValidationError("riskScore", "must be a number within [0,10]")
	}
	if incidents != nil && *incidents < 0 {
		return NewValidationError("incidents", "must not be negative")
	}

	if sr := s.Skill(skill); sr != nil {
		v := score
		sr.Score = &v
		if incidents != nil {
			sr.Incidents = *incidents
		}
		if b, i, a, ok := s.skillScores(); ok {
			s.RiskScore = risk.Blend(b, i, a)
		}
	} else {
		s.RiskScore = score
	}

	s.Derive()
	s.LastUpdated = now
	return nil
}

func (s *SurfSpot) skillScores() (b, i, a float64, ok bool) {
	r := s.SkillLevelRisks
	if r.Beginner.Score == nil || r.Intermediate.Score == nil || r.Advanced.Score == nil {
		return 0, 0, 0, false
	}
	return *r.Beginner.Score, *r.Intermediate.Score, *r.Advanced.Score, true
}

// PushRecentReport appends ref to the recent-reports window.
func (s *SurfSpot) PushRecentReport(ref string) {
	s.RecentReports = PushRecent(s.RecentReports, ref)
}

// PushRecent appends ref and evicts the oldest entries beyond
// RecentReportsCap. Duplicates are kept.
func PushRecent(list []string, ref string) []string {
	out := append(list, ref)
	if n := len(out) - RecentReportsCap; n > 0 {
		out = append([]string(nil), out[n:]...)
	}
	return out
}
