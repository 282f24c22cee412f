package model

import "strings"

// Default upload limits.
const (
	DefaultMaxFileSize = 50 << 20
	DefaultMaxFiles    = MaxMediaPerReport
)

// DefaultMIMETypes are the accepted attachment types.
var DefaultMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
}

// Limits constrain a submission.
type Limits struct {
	MaxFileSize       int64
	MaxFiles          int
	AllowedMIMETypes  []string
	MediaRequired     bool
	DescriptionMaxLen int
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:       DefaultMaxFileSize,
		MaxFiles:          DefaultMaxFiles,
		AllowedMIMETypes:  append([]string(nil), DefaultMIMETypes...),
		DescriptionMaxLen: DefaultDescriptionMax,
	}
}

// Normalize fills zero values with defaults and clamps MaxFiles to the
// data model cap.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxFiles <= 0 || l.MaxFiles > MaxMediaPerReport {
		l.MaxFiles = d.MaxFiles
	}
	if len(l.AllowedMIMETypes) == 0 {
		l.AllowedMIMETypes = d.AllowedMIMETypes
	}
	if l.DescriptionMaxLen <= 0 {
		l.DescriptionMaxLen = d.DescriptionMaxLen
	}
	return l
}

// AllowsMIME reports whether mimeType (parameters ignored) is accepted.
func (l Limits) AllowsMIME(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, a := range l.AllowedMIMETypes {
		if strings.EqualFold(a, mt) {
			return true
		}
	}
	return false
}
