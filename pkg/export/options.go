package export

import (
	"github.com/maxgio92/xprof/pkg/aggregate"
)

type Options struct {
	event    string
	period   int64
	details  bool
	demangle aggregate.DemangleMode
}

type Option func(o *Options)

// WithEvent names the sampled event and its sampling period.
func WithEvent(event string, period uint32) Option {
	return func(o *Options) {
		o.event = event
		o.period = int64(period)
	}
}

// WithDetails exports one location per sampled address instead of one per
// symbol.
func WithDetails(details bool) Option {
	return func(o *Options) {
		o.details = details
	}
}

func WithDemangle(mode aggregate.DemangleMode) Option {
	return func(o *Options) {
		o.demangle = mode
	}
}
