package worker

import (
	"time"

	"github.com/okian/surfwatch/pkg/logger"
)

// Option applies a configuration option to a worker or pool.
type Option func(*settings)

type settings struct {
	name       string
	logger     logger.Logger
	jobTimeout time.Duration
}

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJobTimeout bounds each job. Zero or less keeps the default.
func WithJobTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

func buildSettings(defaultName string, opts []Option) settings {
	s := settings{name: defaultName, jobTimeout: defaultJobTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named(s.name)
	return s
}
