package lsh

import (
	"log/slog"

	"github.com/jcalabro/sketchy"
)

// Options configures the LSH indexes.
type Options struct {
	// Bands and Rows fix the banding of a MinHashLSH. Both zero means
	// derive them from the threshold with OptimalParams.
	Bands int
	Rows  int

	// Logger receives index build events. Defaults to a discarding logger.
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithParams fixes the band count and rows per band. b*r must equal the
// signature length.
func WithParams(b, r int) Option {
	return func(o *Options) {
		o.Bands, o.Rows = b, r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func buildOptions(optFns []Option) Options {
	var o Options
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = sketchy.NoopLogger()
	}
	return o
}
