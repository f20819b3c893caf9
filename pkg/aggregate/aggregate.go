// Package aggregate folds profiles onto symbol tables: it sums the samples
// of every symbol, merges identical symbols coming from different profiles
// and ranks them by their share of the total.
//
// An Aggregator is filled with Add and then queried. The first query
// freezes it: later calls to Add fail.
package aggregate

import (
	"math"
	"path/filepath"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/profile"
	"github.com/maxgio92/xprof/pkg/symtable"
)

type Aggregator struct {
	symbols    []*Symbol
	byIdentity map[identity]*Symbol
	total      uint64

	// zero-count symbols skipped, for diagnostics.
	skipped int

	frozen bool
	idx    indexes

	*Options
}

func New(opts ...Option) *Aggregator {
	o := &Options{logger: log.Nop()}
	for _, f := range opts {
		f(o)
	}
	if o.names == nil {
		o.names = NewNames()
	}

	return &Aggregator{
		byIdentity: make(map[identity]*Symbol),
		Options:    o,
	}
}

// Names returns the name context of the aggregation.
func (a *Aggregator) Names() *Names { return a.names }

// Add sums the samples of p over every symbol of tab. app is the owning
// application of the image when it differs from the image itself.
func (a *Aggregator) Add(p *profile.Profile, tab symtable.Table, app string) error {
	const op = "aggregate.Add"

	switch {
	case a.frozen:
		return fault.UsageErr(op, ErrFrozen)
	case p == nil:
		return fault.UsageErr(op, ErrNilProfile)
	case tab == nil:
		return fault.UsageErr(op, ErrNilTable)
	}

	image := a.names.Intern(tab.Image())
	if app == "" {
		app = image
	}
	app = a.names.Intern(app)

	p.SetStartOffset(tab.StartOffset())

	// highest symbol end seen so far, gaps past it have no owner. Gap
	// addresses are translated through the symbol that ends the gap's
	// left edge, or the first symbol for a leading gap.
	var covered uint64
	coveredBy := 0
	for i := 0; i < tab.Count(); i++ {
		start, end := tab.Range(i)
		if start > covered {
			ref := coveredBy
			if covered == 0 {
				ref = i
			}
			a.addArtificial(p, tab, ref, image, app, covered, start)
		}
		if end > covered {
			covered, coveredBy = end, i
		}

		count := p.RangeSum(start, end)
		if count == 0 && !a.includeZero {
			a.skipped++
			continue
		}

		sym := &Symbol{
			Image: image,
			App:   app,
			Name:  a.names.Intern(tab.Name(i)),
			Size:  end - start,
			Sample: Sample{
				VMA:   tab.VMA(i, start),
				Count: count,
			},
		}
		if a.debugInfo {
			if file, line, ok := tab.Line(i, start); ok {
				sym.FileLocation = FileLocation{File: a.names.Intern(file), Line: line}
			}
		}
		sym = a.insert(sym)

		if a.details {
			p.Range(start, end, func(addr uint64, n uint32) {
				var loc FileLocation
				if a.debugInfo {
					if file, line, ok := tab.Line(i, addr); ok {
						loc = FileLocation{File: a.names.Intern(file), Line: line}
					}
				}
				sym.addSample(tab.VMA(i, addr), uint64(n), loc)
			})
		}
	}
	if end := a.imageEnd(p, tab); end > covered {
		ref := coveredBy
		if tab.Count() == 0 {
			ref = -1
		}
		a.addArtificial(p, tab, ref, image, app, covered, end)
	}

	a.logger.Debug().
		Str("profile", p.Path()).
		Str("image", image).
		Int("symbols", len(a.symbols)).
		Int("skipped", a.skipped).
		Uint64("total", a.total).
		Msg("profile aggregated")

	return nil
}

// imageEnd bounds the trailing gap: the end of the image when the table
// knows it, past the highest sample otherwise.
func (a *Aggregator) imageEnd(p *profile.Profile, tab symtable.Table) uint64 {
	if end := tab.End(); end != 0 {
		return end
	}
	last, ok := p.Last()
	if !ok || last == math.MaxUint64 {
		return last
	}

	return last + 1
}

// addArtificial accounts the samples in [start, end), which no symbol
// owns, to a symbol spanning the whole gap. Addresses are translated to
// virtual addresses relative to symbol ref, or kept as is when ref < 0.
func (a *Aggregator) addArtificial(p *profile.Profile, tab symtable.Table, ref int, image, app string, start, end uint64) {
	count := p.RangeSum(start, end)
	if count == 0 {
		return
	}

	vma := func(addr uint64) uint64 {
		if ref < 0 {
			return addr
		}
		return tab.VMA(ref, addr)
	}

	sym := a.insert(&Symbol{
		Image:      image,
		App:        app,
		Name:       a.names.Intern("?" + filepath.Base(image)),
		Size:       end - start,
		Sample:     Sample{VMA: vma(start), Count: count},
		Artificial: true,
	})
	if a.details {
		p.Range(start, end, func(addr uint64, n uint32) {
			sym.addSample(vma(addr), uint64(n), FileLocation{})
		})
	}
}

// insert adds sym, or adds its count to the symbol with the same identity.
func (a *Aggregator) insert(sym *Symbol) *Symbol {
	a.total += sym.Count

	id := sym.identity()
	if prev, ok := a.byIdentity[id]; ok {
		prev.Count += sym.Count
		prev.Size = max(prev.Size, sym.Size)
		return prev
	}
	sym.order = len(a.symbols)
	a.symbols = append(a.symbols, sym)
	a.byIdentity[id] = sym

	return sym
}

// SamplesCount returns the total count of the aggregation.
func (a *Aggregator) SamplesCount() uint64 { return a.total }

// Len returns the number of distinct symbols.
func (a *Aggregator) Len() int { return len(a.symbols) }

// Percent returns the share of count over the total, in percent.
func (a *Aggregator) Percent(count uint64) float64 {
	if a.total == 0 {
		return 0
	}
	return float64(count) * 100.0 / float64(a.total)
}

func ratio(count, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}
