package symtable

import (
	"regexp"

	log "github.com/rs/zerolog"
)

type Options struct {
	symPatternInclude *regexp.Regexp
	symPatternExclude *regexp.Regexp
	kernel            bool
	startOffset       uint64
	imageEnd          uint64
	cacheSize         int

	logger log.Logger
}

type Option func(o *Options)

func newOptions(opts ...Option) *Options {
	o := &Options{
		cacheSize: defaultCacheSize,
		logger:    log.Nop(),
	}
	for _, f := range opts {
		f(o)
	}

	return o
}

// WithSymPatternInclude keeps only the symbols matching re.
func WithSymPatternInclude(re *regexp.Regexp) Option {
	return func(o *Options) {
		o.symPatternInclude = re
	}
}

// WithSymPatternExclude drops the symbols matching re.
func WithSymPatternExclude(re *regexp.Regexp) Option {
	return func(o *Options) {
		o.symPatternExclude = re
	}
}

// WithKernel reads the image as a kernel or kernel module: symbol ranges
// stay virtual addresses and the .text address becomes the start offset.
func WithKernel(kernel bool) Option {
	return func(o *Options) {
		o.kernel = kernel
	}
}

func WithStartOffset(offset uint64) Option {
	return func(o *Options) {
		o.startOffset = offset
	}
}

// WithImageEnd sets the end of the image address range of a StaticTab.
func WithImageEnd(end uint64) Option {
	return func(o *Options) {
		o.imageEnd = end
	}
}

// WithCacheSize bounds the address lookup cache.
func WithCacheSize(size int) Option {
	return func(o *Options) {
		o.cacheSize = size
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func (o *Options) ShouldIncludeSymbol(name string) bool {
	// Exclude symbols that match a specific regex pattern.
	if o.symPatternExclude != nil && o.symPatternExclude.MatchString(name) {
		return false
	}
	// Include only symbols that match a specific regex pattern.
	if o.symPatternInclude != nil {
		return o.symPatternInclude.MatchString(name)
	}

	return true
}
