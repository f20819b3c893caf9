package aggregate

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// Selection is the result of SelectSymbols.
type Selection struct {
	Symbols []*Symbol
	// MultipleApps is set when the symbols belong to more than one owning
	// application.
	MultipleApps bool
	// VMA64 is set when an address needs more than 32 bits.
	VMA64 bool
}

// SelectSymbols returns the symbols holding at least threshold percent of
// the samples, most sampled first. A non-empty image restricts the
// selection to that image.
func (a *Aggregator) SelectSymbols(threshold float64, image string) Selection {
	a.freeze()

	var sel Selection
	var app string
	for _, sym := range a.idx.byCount {
		if image != "" && sym.Image != image {
			continue
		}
		if ratio(sym.Count, a.total) < threshold/100 {
			continue
		}
		sel.Symbols = append(sel.Symbols, sym)

		if app == "" {
			app = sym.App
		} else if app != sym.App {
			sel.MultipleApps = true
		}
		if sym.VMA&^0xffffffff != 0 {
			sel.VMA64 = true
		}
	}

	return sel
}

// SelectSymbolsUntil returns the most sampled symbols until their
// cumulated share reaches threshold percent.
func (a *Aggregator) SelectSymbolsUntil(threshold float64, image string) Selection {
	all := a.SelectSymbols(0, image)

	var sel Selection
	var app string
	var cumulated uint64
	for _, sym := range all.Symbols {
		if ratio(cumulated, a.total) >= threshold/100 {
			break
		}
		cumulated += sym.Count
		sel.Symbols = append(sel.Symbols, sym)

		if app == "" {
			app = sym.App
		} else if app != sym.App {
			sel.MultipleApps = true
		}
		if sym.VMA&^0xffffffff != 0 {
			sel.VMA64 = true
		}
	}

	return sel
}

type filenameShare struct {
	file    string
	percent float64
}

// SelectFilenames returns the source files holding at least threshold
// percent of the detailed samples, most sampled first. It needs both
// details and debug information.
func (a *Aggregator) SelectFilenames(threshold float64) []string {
	a.freeze()

	// a file may hold samples but no symbol start, when only inlined
	// code from it was sampled.
	files := lo.Uniq(lo.Map(a.idx.samplesByLoc, func(s *Sample, _ int) string {
		return s.File
	}))

	shares := lo.Map(files, func(f string, _ int) filenameShare {
		return filenameShare{file: f, percent: ratio(a.SamplesCountFile(f), a.total)}
	})
	slices.SortFunc(shares, func(x, y filenameShare) int {
		if c := cmp.Compare(y.percent, x.percent); c != 0 {
			return c
		}
		return cmp.Compare(x.file, y.file)
	})

	var out []string
	for _, s := range shares {
		if s.percent >= threshold/100 {
			out = append(out, s.file)
		}
	}

	return out
}
