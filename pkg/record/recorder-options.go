package record

import (
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/internal/config"
)

type Options struct {
	config  *config.Config
	fs      afero.Fs
	logger  log.Logger
	status  bool
	onReady func()
}

type Option func(o *Options)

func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.config = cfg
	}
}

// WithFs sets the filesystem profiled binaries are inspected on.
func WithFs(fs afero.Fs) Option {
	return func(o *Options) {
		o.fs = fs
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func WithStatus(status bool) Option {
	return func(o *Options) {
		o.status = status
	}
}

// WithReadyFunc sets a function called once the stream is being consumed.
func WithReadyFunc(f func()) Option {
	return func(o *Options) {
		o.onReady = f
	}
}
