package report

import (
	"github.com/maxgio92/xprof/pkg/aggregate"
)

type Options struct {
	flags     Flag
	noHeader  bool
	threshold float64
	// until selects symbols until their cumulated share reaches
	// threshold.
	until          bool
	image          string
	sort           []SortOrder
	reverse        bool
	details        bool
	shortFilenames bool
	demangle       aggregate.DemangleMode
}

type Option func(o *Options)

func WithFlags(flags Flag) Option {
	return func(o *Options) {
		o.flags = flags
	}
}

func WithoutHeader() Option {
	return func(o *Options) {
		o.noHeader = true
	}
}

// WithThreshold drops symbols below percent of the samples.
func WithThreshold(percent float64) Option {
	return func(o *Options) {
		o.threshold = percent
	}
}

// WithUntil keeps the most sampled symbols until their cumulated share
// reaches percent.
func WithUntil(percent float64) Option {
	return func(o *Options) {
		o.threshold = percent
		o.until = true
	}
}

// WithImage restricts the report to the symbols of one image.
func WithImage(image string) Option {
	return func(o *Options) {
		o.image = image
	}
}

func WithSort(orders ...SortOrder) Option {
	return func(o *Options) {
		o.sort = orders
	}
}

func WithReverse(reverse bool) Option {
	return func(o *Options) {
		o.reverse = reverse
	}
}

// WithDetails adds a row for every sampled address below its symbol.
func WithDetails(details bool) Option {
	return func(o *Options) {
		o.details = details
	}
}

// WithShortFilenames prints base names of images and source files.
func WithShortFilenames(short bool) Option {
	return func(o *Options) {
		o.shortFilenames = short
	}
}

func WithDemangle(mode aggregate.DemangleMode) Option {
	return func(o *Options) {
		o.demangle = mode
	}
}
