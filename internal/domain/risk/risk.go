// Package risk maps 0-10 risk scores to discrete levels and flag colors
// using skill-specific thresholds.
package risk

import (
	"math"
	"strings"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// SkillLevel selects the threshold table used for classification.
type SkillLevel string

// Supported skill levels. Overall is also the fallback for unknown levels.
const (
	Beginner     SkillLevel = "beginner"
	Intermediate SkillLevel = "intermediate"
	Advanced     SkillLevel = "advanced"
	Overall      SkillLevel = "overall"
)

// SkillLevels lists the per-skill breakdown axes in display order.
var SkillLevels = []SkillLevel{Beginner, Intermediate, Advanced}

// ParseSkillLevel resolves s case-insensitively. Unknown or empty input
// returns Overall with ok=false.
func ParseSkillLevel(s string) (SkillLevel, bool) {
	switch SkillLevel(strings.ToLower(strings.TrimSpace(s))) {
	case Beginner:
		return Beginner, true
	case Intermediate:
		return Intermediate, true
	case Advanced:
		return Advanced, true
	case Overall:
		return Overall, true
	default:
		return Overall, false
	}
}

// Level is the discrete risk level.
type Level string

// Risk levels.
const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// FlagColor is the visual encoding of a Level.
type FlagColor string

// Flag colors.
const (
	Green  FlagColor = "green"
	Yellow FlagColor = "yellow"
	Red    FlagColor = "red"
)

// Thresholds are inclusive upper bounds: score <= Low is Low,
// Low < score <= Medium is Medium, anything above is High.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
}

var thresholds = map[SkillLevel]Thresholds{
	Beginner:     {Low: 5.0, Medium: 6.5},
	Intermediate: {Low: 6.0, Medium: 7.2},
	Advanced:     {Low: 7.0, Medium: 8.0},
	Overall:      {Low: 3.3, Medium: 6.6},
}

// ThresholdsFor returns the table for skill, falling back to Overall.
func ThresholdsFor(skill SkillLevel) Thresholds {
	if t, ok := thresholds[skill]; ok {
		return t
	}
	return thresholds[Overall]
}

// Classification is the derived level and flag color for a score.
type Classification struct {
	Level     Level     `json:"riskLevel"`
	FlagColor FlagColor `json:"flagColor"`
}

// Normalize treats NaN, infinities and out-of-range scores as 0.
func Normalize(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < MinScore || score > MaxScore {
		return 0
	}
	return score
}

// Classify is total over its input domain and never fails.
func Classify(score float64, skill SkillLevel) Classification {
	score = Normalize(score)
	t := ThresholdsFor(skill)
	switch {
	case score <= t.Low:
		return Classification{Level: Low, FlagColor: Green}
	case score <= t.Medium:
		return Classification{Level: Medium, FlagColor: Yellow}
	default:
		return Classification{Level: High, FlagColor: Red}
	}
}

// Weights used to blend per-skill scores into the overall score.
var Weights = map[SkillLevel]float64{
	Beginner:     0.5,
	Intermediate: 0.3,
	Advanced:     0.2,
}

// Blend returns the weighted overall score rounded to two decimals.
func Blend(beginner, intermediate, advanced float64) float64 {
	v := beginner*Weights[Beginner] + intermediate*Weights[Intermediate] + advanced*Weights[Advanced]
	return math.Round(v*100) / 100
}

// InRange reports whether score is a finite value within [0,10].
func InRange(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= MinScore && score <= MaxScore
}
