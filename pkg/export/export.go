// Package export converts aggregated samples to the pprof format.
package export

import (
	"io"

	"github.com/google/pprof/profile"

	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/fault"
)

const appLabel = "app"

type builder struct {
	*Options
	p *profile.Profile

	mappings  map[string]*profile.Mapping
	functions map[functionKey]*profile.Function
}

type functionKey struct {
	name, file string
}

// Profile converts agg to a pprof profile with a sample per symbol, or per
// sampled address with details. Every sample has a single location since
// no call graph is recorded.
func Profile(agg *aggregate.Aggregator, opts ...Option) (*profile.Profile, error) {
	b := &builder{
		Options:   &Options{event: "samples", period: 1},
		mappings:  make(map[string]*profile.Mapping),
		functions: make(map[functionKey]*profile.Function),
	}
	for _, f := range opts {
		f(b.Options)
	}
	if b.period <= 0 {
		b.period = 1
	}

	b.p = &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: b.event, Unit: "events"},
		},
		DefaultSampleType: "samples",
		PeriodType:        &profile.ValueType{Type: b.event, Unit: "events"},
		Period:            b.period,
	}

	names := agg.Names()
	for _, sym := range agg.Symbols() {
		m := b.mapping(sym.Image)
		fn := b.function(names.Demangle(sym.Name, b.demangle), sym.Name, sym.File)

		if !b.details || len(sym.Samples()) == 0 {
			b.sample(sym, b.location(m, fn, sym.VMA, sym.Line), sym.Count)
			continue
		}
		for _, smp := range sym.Samples() {
			line := smp.Line
			if line == 0 {
				line = sym.Line
			}
			b.sample(sym, b.location(m, fn, smp.VMA, line), smp.Count)
		}
	}

	if err := b.p.CheckValid(); err != nil {
		return nil, fault.Corrupt("export.Profile", err)
	}

	return b.p, nil
}

func (b *builder) mapping(image string) *profile.Mapping {
	if m, ok := b.mappings[image]; ok {
		return m
	}
	m := &profile.Mapping{
		ID:           uint64(len(b.p.Mapping) + 1),
		Limit:        ^uint64(0),
		File:         image,
		HasFunctions: true,
	}
	b.p.Mapping = append(b.p.Mapping, m)
	b.mappings[image] = m

	return m
}

func (b *builder) function(name, systemName, file string) *profile.Function {
	key := functionKey{name: name, file: file}
	if fn, ok := b.functions[key]; ok {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(b.p.Function) + 1),
		Name:       name,
		SystemName: systemName,
		Filename:   file,
	}
	b.p.Function = append(b.p.Function, fn)
	b.functions[key] = fn

	return fn
}

func (b *builder) location(m *profile.Mapping, fn *profile.Function, addr uint64, line int) *profile.Location {
	if fn.Filename != "" {
		m.HasFilenames = true
	}
	if line != 0 {
		m.HasLineNumbers = true
	}
	loc := &profile.Location{
		ID:      uint64(len(b.p.Location) + 1),
		Mapping: m,
		Address: addr,
		Line:    []profile.Line{{Function: fn, Line: int64(line)}},
	}
	b.p.Location = append(b.p.Location, loc)

	return loc
}

func (b *builder) sample(sym *aggregate.Symbol, loc *profile.Location, count uint64) {
	s := &profile.Sample{
		Location: []*profile.Location{loc},
		Value:    []int64{int64(count), int64(count) * b.period},
	}
	if sym.App != sym.Image {
		s.Label = map[string][]string{appLabel: {sym.App}}
	}
	b.p.Sample = append(b.p.Sample, s)
}

// Write exports agg as a gzip compressed pprof profile.
func Write(w io.Writer, agg *aggregate.Aggregator, opts ...Option) error {
	p, err := Profile(agg, opts...)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fault.ResourceErr("export.Write", err)
	}

	return nil
}
