package repository

import (
	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/pkg/logger"
)

type options struct {
	clock  clockwork.Clock
	logger logger.Logger
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock sets the time source used for lastUpdated stamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used for migrations and index setup.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}
	return o
}
