package aggregate

import (
	log "github.com/rs/zerolog"
)

type Options struct {
	// includeZero keeps symbols without samples.
	includeZero bool
	// debugInfo attaches source locations, which is slow.
	debugInfo bool
	// details records the count of every sampled address.
	details bool

	names  *Names
	logger log.Logger
}

type Option func(o *Options)

func WithZeroSymbols(include bool) Option {
	return func(o *Options) {
		o.includeZero = include
	}
}

func WithDebugInfo(debugInfo bool) Option {
	return func(o *Options) {
		o.debugInfo = debugInfo
	}
}

func WithDetails(details bool) Option {
	return func(o *Options) {
		o.details = details
	}
}

// WithNames shares a name context between aggregations.
func WithNames(names *Names) Option {
	return func(o *Options) {
		o.names = names
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}
