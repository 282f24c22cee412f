// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading layers defaults, an optional YAML file and SURFWATCH_ env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
)

// Supported store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: memory, sqlite or mongo.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	MongoURI    string `koanf:"mongo_uri"`
	MongoDB     string `koanf:"mongo_db"`

	// UploadDir is the media root; hazard media live under UploadDir/hazards.
	UploadDir string `koanf:"upload_dir"`

	MaxFileSizeMB     int      `koanf:"max_file_size_mb"`
	MaxFiles          int      `koanf:"max_files"`
	AllowedMIMETypes  []string `koanf:"allowed_mime_types"`
	MediaRequired     bool     `koanf:"media_required"`
	DescriptionMaxLen int      `koanf:"description_max_len"`

	// UploadTimeoutS bounds how long one report submission may take to
	// upload; the receipt gets a further grace period to be written.
	UploadTimeoutS int `koanf:"upload_timeout_s"`

	// ScoringBaseURL points at the external ML service. Empty disables it.
	ScoringBaseURL   string `koanf:"scoring_base_url"`
	ScoringTimeoutMS int    `koanf:"scoring_timeout_ms"`

	// WorkerCount and QueueSize size the background job pool.
	WorkerCount int `koanf:"worker_count"`
	QueueSize   int `koanf:"queue_size"`

	// RateLimitRequests per RateLimitWindowS per client on submissions. 0 disables.
	RateLimitRequests int `koanf:"rate_limit_requests"`
	RateLimitWindowS  int `koanf:"rate_limit_window_s"`
	RateLimitClients  int `koanf:"rate_limit_clients"`

	// TrustedProxies are addresses or CIDRs of reverse proxies whose
	// X-Forwarded-For header identifies the client. Empty trusts nobody.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// New creates a Config holding the documented defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       DriverMemory,
		SQLitePath:        "data/surfwatch.db",
		MongoURI:          "mongodb://localhost:27017",
		MongoDB:           "surf-risk-analyzer",
		UploadDir:         "uploads",
		MaxFileSizeMB:     50,
		MaxFiles:          model.MaxMediaPerReport,
		AllowedMIMETypes:  append([]string(nil), model.DefaultMIMETypes...),
		DescriptionMaxLen: model.DefaultDescriptionMax,
		UploadTimeoutS:    600,
		ScoringTimeoutMS:  30_000,
		WorkerCount:       4,
		QueueSize:         1024,
		RateLimitRequests: 30,
		RateLimitWindowS:  60,
		RateLimitClients:  10_000,
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite && c.StoreDriver != DriverMongo:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.MaxFileSizeMB <= 0:
		return fmt.Errorf("%w: max_file_size_mb must be positive", ErrInvalidConfig)
	case c.MaxFiles <= 0 || c.MaxFiles > model.MaxMediaPerReport:
		return fmt.Errorf("%w: max_files must be within [1,%d]", ErrInvalidConfig, model.MaxMediaPerReport)
	case c.DescriptionMaxLen <= 0:
		return fmt.Errorf("%w: description_max_len must be positive", ErrInvalidConfig)
	case c.UploadTimeoutS <= 0:
		return fmt.Errorf("%w: upload_timeout_s must be positive", ErrInvalidConfig)
	case c.ScoringTimeoutMS <= 0:
		return fmt.Errorf("%w: scoring_timeout_ms must be positive", ErrInvalidConfig)
	case c.RateLimitRequests < 0 || c.RateLimitWindowS <= 0:
		return fmt.Errorf("%w: rate limit must be non-negative with a positive window", ErrInvalidConfig)
	}
	for _, p := range c.TrustedProxies {
		if _, err := parseProxy(p); err != nil {
			return fmt.Errorf("%w: trusted_proxies: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// TrustedProxyPrefixes returns TrustedProxies as prefixes, skipping blanks and
// entries Validate would reject.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, p := range c.TrustedProxies {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if prefix, err := parseProxy(p); err == nil {
			out = append(out, prefix)
		}
	}
	return out
}

// parseProxy accepts a bare address or a CIDR.
func parseProxy(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, nil
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Limits returns the submission limits.
func (c *Config) Limits() model.Limits {
	return model.Limits{
		MaxFileSize:       int64(c.MaxFileSizeMB) << 20,
		MaxFiles:          c.MaxFiles,
		AllowedMIMETypes:  c.AllowedMIMETypes,
		MediaRequired:     c.MediaRequired,
		DescriptionMaxLen: c.DescriptionMaxLen,
	}.Normalize()
}

// ScoringTimeout is the bounded wait for each external call.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.ScoringTimeoutMS) * time.Millisecond
}

// UploadTimeout is the window for receiving one report submission.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutS) * time.Second
}

// RateLimitWindow is the fixed counting window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowS) * time.Second
}
