package locate

import (
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type Options struct {
	fs     afero.Fs
	roots  []string
	logger log.Logger
}

type Option func(o *Options)

// WithFs sets the filesystem searched. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *Options) {
		o.fs = fs
	}
}

// WithPaths adds directories searched recursively for images missing at
// their recorded path.
func WithPaths(roots ...string) Option {
	return func(o *Options) {
		o.roots = append(o.roots, roots...)
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}
