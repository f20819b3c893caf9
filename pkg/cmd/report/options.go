package report

import (
	"context"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xprof/pkg/cmd/common"
	"github.com/maxgio92/xprof/pkg/cmd/options"
)

type Options struct {
	common.SessionFlags

	symbols        bool
	details        bool
	debugInfo      bool
	threshold      float64
	until          bool
	sort           string
	reverse        bool
	format         string
	demangle       string
	image          string
	noHeader       bool
	shortFilenames bool
	json           bool

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := new(Options)
	o.CommonOptions = new(options.CommonOptions)

	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
