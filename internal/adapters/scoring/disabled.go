package scoring

import (
	"context"
	"fmt"

	"github.com/okian/surfwatch/internal/domain/model"
)

// ErrNotConfigured is returned by Disabled for every call.
var ErrNotConfigured = fmt.Errorf("%w: scoring service not configured", model.ErrUpstream)

// Disabled is the Collaborator used when no scoring service is configured.
type Disabled struct{}

// AnalyzeHazard implements Collaborator.
func (Disabled) AnalyzeHazard(context.Context, string, []Image) (model.Analysis, error) {
	return model.Analysis{}, ErrNotConfigured
}

// RecomputeRisk implements Collaborator.
func (Disabled) RecomputeRisk(context.Context, string) error { return ErrNotConfigured }

// Health implements Collaborator.
func (Disabled) Health(context.Context) error { return ErrNotConfigured }

// New returns a Client for baseURL, or Disabled when baseURL is empty.
func New(baseURL string, opts ...Option) Collaborator {
	if baseURL == "" {
		return Disabled{}
	}
	return NewClient(baseURL, opts...)
}
