package session

import (
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/locate"
	"github.com/maxgio92/xprof/pkg/partition"
	"github.com/maxgio92/xprof/pkg/symtable"
)

// TableOpener loads the symbol table of the image at path.
type TableOpener func(path string, opts ...symtable.Option) (symtable.Table, error)

type Options struct {
	fs         afero.Fs
	samplesDir string
	merge      partition.MergeOption
	locator    *locate.Locator
	symOpts    []symtable.Option
	aggOpts    []aggregate.Option
	openTable  TableOpener
	logger     log.Logger
}

type Option func(o *Options)

// WithFs sets the filesystem the samples directory is listed on.
func WithFs(fs afero.Fs) Option {
	return func(o *Options) {
		o.fs = fs
	}
}

func WithSamplesDir(dir string) Option {
	return func(o *Options) {
		o.samplesDir = dir
	}
}

func WithMerge(m partition.MergeOption) Option {
	return func(o *Options) {
		o.merge = m
	}
}

// WithLocator sets where images missing from their recorded path are
// searched.
func WithLocator(l *locate.Locator) Option {
	return func(o *Options) {
		o.locator = l
	}
}

func WithSymtabOptions(opts ...symtable.Option) Option {
	return func(o *Options) {
		o.symOpts = append(o.symOpts, opts...)
	}
}

func WithAggregateOptions(opts ...aggregate.Option) Option {
	return func(o *Options) {
		o.aggOpts = append(o.aggOpts, opts...)
	}
}

func WithTableOpener(f TableOpener) Option {
	return func(o *Options) {
		o.openTable = f
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}
