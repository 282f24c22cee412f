// Package scoring talks to the external hazard analysis and risk scoring
// service.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// Endpoint paths on the scoring service.
const (
	pathAnalyze = "/analyze-hazard"
	pathRescore = "/update-risk-score"
	pathHealth  = "/health"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultInitialInterval = 250 * time.Millisecond
	defaultHealthTimeout   = 2 * time.Second
	maxErrorBody           = 1 << 10
)

// Image is one photo sent for analysis.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Collaborator is the external scoring service as seen by the pipeline.
type Collaborator interface {
	// AnalyzeHazard sends images for hazard detection.
	AnalyzeHazard(ctx context.Context, hazardType string, images []Image) (model.Analysis, error)
	// RecomputeRisk asks the service to rescore a spot; it writes the result
	// back through the risk-score endpoint.
	RecomputeRisk(ctx context.Context, spotID string) error
	// Health reports whether the service is reachable.
	Health(ctx context.Context) error
}

// Client is the HTTP Collaborator.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
	healthTimeout   time.Duration
	log             logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each HTTP attempt and the total retry budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
			c.maxElapsed = d
		}
	}
}

// WithHealthTimeout bounds the single health check attempt.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

// WithInitialInterval sets the first retry delay.
func WithInitialInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialInterval = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: defaultTimeout},
		maxElapsed:      defaultTimeout,
		initialInterval: defaultInitialInterval,
		healthTimeout:   defaultHealthTimeout,
		log:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeResponse struct {
	Success         bool     `json:"success"`
	DetectedHazards []string `json:"detectedHazards"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Suggestions     string   `json:"aiSuggestions"`
	Error           string   `json:"error"`
}

// AnalyzeHazard implements Collaborator.
func (c *Client) AnalyzeHazard(ctx context.Context, hazardType string, images []Image) (model.Analysis, error) {
	if len(images) == 0 {
		return model.Analysis{}, fmt.Errorf("%w: no images to analyze", model.ErrUpstream)
	}
	body, contentType, err := encodeImages(hazardType, images)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("encode analysis request: %w", err)
	}

	var out analyzeResponse
	if err := c.do(ctx, "analyze", http.MethodPost, pathAnalyze, contentType, body, &out); err != nil {
		return model.Analysis{}, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "analysis unsuccessful"
		}
		return model.Analysis{}, fmt.Errorf("%w: %s", model.ErrUpstream, msg)
	}
	if out.DetectedHazards == nil {
		out.DetectedHazards = []string{}
	}
	return model.Analysis{
		DetectedHazards: out.DetectedHazards,
		ConfidenceScore: out.ConfidenceScore,
		Suggestions:     out.Suggestions,
	}, nil
}

// RecomputeRisk implements Collaborator.
func (c *Client) RecomputeRisk(ctx context.Context, spotID string) error {
	body, err := json.Marshal(map[string]string{"surf_spot_id": spotID})
	if err != nil {
		return fmt.Errorf("encode rescore request: %w", err)
	}
	return c.do(ctx, "rescore", http.MethodPost, pathRescore, "application/json", body, nil)
}

// Health implements Collaborator. It makes one attempt within the health
// timeout and never retries.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := c.attempt(ctx, http.MethodGet, pathHealth, "", nil, nil)
	metrics.RecordUpstreamRequest("health", outcome, float64(time.Since(start).Milliseconds()))
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: health: %v", model.ErrUpstream, err)
}

// do sends one logical request with retries. Transport errors, 429 and 5xx
// are retried until maxElapsed; other statuses fail immediately.
func (c *Client) do(ctx context.Context, endpoint, method, path, contentType string, body []byte, out any) error {
	var attempts int
	op := func() error {
		attempts++
		start := time.Now()
		outcome, err := c.attempt(ctx, method, path, contentType, body, out)
		metrics.RecordUpstreamRequest(endpoint, outcome, float64(time.Since(start).Milliseconds()))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxElapsedTime = c.maxElapsed
	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}

	c.log.Debug(ctx, "scoring request failed",
		logger.String("endpoint", endpoint),
		logger.Int("attempts", attempts),
		logger.Error(err),
	)
	if errors.Is(err, model.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", model.ErrUpstream, endpoint, err)
}

func (c *Client) attempt(ctx context.Context, method, path, contentType string, body []byte, out any) (string, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return "error", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "timeout", backoff.Permanent(err)
		}
		return "error", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "retry", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "rejected", backoff.Permanent(fmt.Errorf("%w: status %d: %s", model.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "invalid", backoff.Permanent(fmt.Errorf("%w: decode response: %v", model.ErrUpstream, err))
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return "success", nil
}

func encodeImages(hazardType string, images []Image) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("hazard_type", hazardType); err != nil {
		return nil, "", err
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Name))
		h.Set("Content-Type", img.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
