package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Report constants.
const (
	ReportTTL             = 24 * time.Hour
	MaxMediaPerReport     = 5
	AnonymousReporter     = "Anonymous"
	maxReporterNameLen    = 50
	DefaultDescriptionMax = 500
)

// HazardType is one of the enumerated hazard categories.
type HazardType string

// Hazard types.
const (
	HazardRipCurrent    HazardType = "Rip Current"
	HazardHighSurf      HazardType = "High Surf"
	HazardReefCuts      HazardType = "Reef Cuts"
	HazardRocks         HazardType = "Rocks"
	HazardJellyfish     HazardType = "Jellyfish"
	HazardShark         HazardType = "Shark Sighting"
	HazardStrongWinds   HazardType = "Strong Winds"
	HazardPollution     HazardType = "Pollution"
	HazardCrowdedLineup HazardType = "Crowded Lineup"
	HazardOther         HazardType = "Other"
)

// HazardTypes lists every accepted HazardType.
var HazardTypes = []HazardType{
	HazardRipCurrent, HazardHighSurf, HazardReefCuts, HazardRocks, HazardJellyfish,
	HazardShark, HazardStrongWinds, HazardPollution, HazardCrowdedLineup, HazardOther,
}

// ParseHazardType matches s against HazardTypes ignoring case and
// surrounding whitespace.
func ParseHazardType(s string) (HazardType, bool) {
	s = strings.TrimSpace(s)
	for _, h := range HazardTypes {
		if strings.EqualFold(string(h), s) {
			return h, true
		}
	}
	return "", false
}

// Severity of a reported hazard.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity accepts low, medium or high in any case.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	default:
		return "", false
	}
}

// Status is the verification state of a report.
type Status string

// Report statuses.
const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts pending, verified or rejected in any case.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusVerified:
		return StatusVerified, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

// MediaKind distinguishes photo and video evidence.
type MediaKind string

// Media kinds.
const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaKindOf derives the kind from a MIME type; ok is false for anything
// that is neither image/* nor video/*.
func MediaKindOf(mimeType string) (MediaKind, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return MediaImage, true
	case strings.HasPrefix(mt, "video/"):
		return MediaVideo, true
	default:
		return "", false
	}
}

// Media is one stored attachment. Filename is the generated storage name,
// Path the URL it is served from.
type Media struct {
	Kind         MediaKind `json:"type" bson:"type"`
	Path         string    `json:"url" bson:"url"`
	Filename     string    `json:"filename" bson:"filename"`
	OriginalName string    `json:"originalName,omitempty" bson:"originalName,omitempty"`
	MimeType     string    `json:"mimeType" bson:"mimeType"`
	Size         int64     `json:"size" bson:"size"`
}

// Analysis is the external image-analysis result attached to a report.
type Analysis struct {
	DetectedHazards []string  `json:"detectedHazards" bson:"detectedHazards"`
	ConfidenceScore float64   `json:"confidenceScore" bson:"confidenceScore"`
	Suggestions     string    `json:"aiSuggestions" bson:"aiSuggestions"`
	AnalyzedAt      time.Time `json:"analyzedAt" bson:"analyzedAt"`
}

// HazardReport is a user-submitted observation at a surf spot.
type HazardReport struct {
	ID           string     `json:"id" bson:"_id"`
	SurfSpotID   string     `json:"surfSpot" bson:"surfSpot"`
	HazardType   HazardType `json:"hazardType" bson:"hazardType"`
	Description  string     `json:"description" bson:"description"`
	Severity     Severity   `json:"severity" bson:"severity"`
	ReporterName string     `json:"reporterName" bson:"reporterName"`
	Media        []Media    `json:"media" bson:"media"`
	Analysis     *Analysis  `json:"aiAnalysis,omitempty" bson:"aiAnalysis,omitempty"`
	Status       Status     `json:"status" bson:"status"`
	Verified     bool       `json:"verified" bson:"verified"`
	ReportDate   time.Time  `json:"reportDate" bson:"reportDate"`
	ExpiresAt    time.Time  `json:"expiresAt" bson:"expiresAt"`
}

// NewHazardReport creates a pending report stamped at now.
func NewHazardReport(spotID string, hazard HazardType, description string, severity Severity, reporter string, media []Media, now time.Time) HazardReport {
	if media == nil {
		media = []Media{}
	}
	return HazardReport{
		ID:           uuid.NewString(),
		SurfSpotID:   spotID,
		HazardType:   hazard,
		Description:  description,
		Severity:     severity,
		ReporterName: SanitizeReporterName(reporter),
		Media:        media,
		Status:       StatusPending,
		ReportDate:   now,
		ExpiresAt:    now.Add(ReportTTL),
	}
}

// SetStatus updates Status and keeps Verified in sync.
func (r *HazardReport) SetStatus(s Status) {
	r.Status = s
	r.Verified = s == StatusVerified
}

// Clone returns a deep copy.
func (r HazardReport) Clone() HazardReport {
	r.Media = append([]Media{}, r.Media...)
	if r.Analysis != nil {
		a := *r.Analysis
		a.DetectedHazards = append([]string{}, a.DetectedHazards...)
		r.Analysis = &a
	}
	return r
}

// Images returns the image attachments.
func (r *HazardReport) Images() []Media {
	var out []Media
	for _, m := range r.Media {
		if m.Kind == MediaImage {
			out = append(out, m)
		}
	}
	return out
}

// SanitizeReporterName trims s and falls back to AnonymousReporter when the
// name is blank, too long or contains control characters.
func SanitizeReporterName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > maxReporterNameLen || !utf8.ValidString(s) {
		return AnonymousReporter
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return AnonymousReporter
		}
	}
	return s
}
