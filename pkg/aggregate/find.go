package aggregate

import (
	"cmp"
	"slices"
	"sort"

	"github.com/samber/lo"
)

// indexes are built once, on the first query.
type indexes struct {
	byCount      []*Symbol
	byVMA        map[string][]*Symbol
	symbolsByLoc []*Symbol
	samplesByLoc []*Sample
}

func (a *Aggregator) freeze() {
	if a.frozen {
		return
	}
	a.frozen = true

	a.idx.byCount = slices.Clone(a.symbols)
	slices.SortStableFunc(a.idx.byCount, func(x, y *Symbol) int {
		return cmp.Compare(y.Count, x.Count)
	})

	a.idx.byVMA = lo.GroupBy(a.symbols, func(s *Symbol) string { return s.Image })
	for _, syms := range a.idx.byVMA {
		slices.SortStableFunc(syms, func(x, y *Symbol) int {
			return cmp.Compare(x.VMA, y.VMA)
		})
	}

	for _, sym := range a.symbols {
		slices.SortFunc(sym.samples, func(x, y *Sample) int {
			return cmp.Compare(x.VMA, y.VMA)
		})
		if sym.FileLocation.Valid() {
			a.idx.symbolsByLoc = append(a.idx.symbolsByLoc, sym)
		}
		for _, smp := range sym.samples {
			if smp.File != "" {
				a.idx.samplesByLoc = append(a.idx.samplesByLoc, smp)
			}
		}
	}
	slices.SortStableFunc(a.idx.symbolsByLoc, func(x, y *Symbol) int {
		return compareLoc(x.FileLocation, y.FileLocation)
	})
	slices.SortStableFunc(a.idx.samplesByLoc, func(x, y *Sample) int {
		return compareLoc(x.FileLocation, y.FileLocation)
	})
}

func compareLoc(x, y FileLocation) int {
	switch {
	case x.less(y):
		return -1
	case y.less(x):
		return 1
	}
	return 0
}

// Symbols returns every symbol in insertion order.
func (a *Aggregator) Symbols() []*Symbol {
	a.freeze()
	return a.symbols
}

// FindSymbolsByName returns the symbols called name.
func (a *Aggregator) FindSymbolsByName(name string) []*Symbol {
	a.freeze()
	return lo.Filter(a.symbols, func(s *Symbol, _ int) bool {
		return s.Name == name
	})
}

// FindSymbolByVMA returns the symbol of image containing vma.
func (a *Aggregator) FindSymbolByVMA(image string, vma uint64) *Symbol {
	a.freeze()

	syms := a.idx.byVMA[image]
	i := sort.Search(len(syms), func(i int) bool {
		return syms[i].VMA > vma
	})
	// symbols may nest, walk back to the innermost one containing vma.
	for j := i - 1; j >= 0; j-- {
		if vma < syms[j].End() {
			return syms[j]
		}
	}

	return nil
}

// FindSymbolByLine returns the symbol starting at file:line.
func (a *Aggregator) FindSymbolByLine(file string, line int) *Symbol {
	a.freeze()

	loc := FileLocation{File: file, Line: line}
	syms := a.idx.symbolsByLoc
	i := sort.Search(len(syms), func(i int) bool {
		return !syms[i].FileLocation.less(loc)
	})
	if i < len(syms) && syms[i].FileLocation == loc {
		return syms[i]
	}

	return nil
}

// FindSample returns the detail of sym at vma.
func (a *Aggregator) FindSample(sym *Symbol, vma uint64) *Sample {
	a.freeze()

	i := sort.Search(len(sym.samples), func(i int) bool {
		return sym.samples[i].VMA >= vma
	})
	if i < len(sym.samples) && sym.samples[i].VMA == vma {
		return sym.samples[i]
	}

	return nil
}

// SamplesCountFile returns the detailed count of the source file.
func (a *Aggregator) SamplesCountFile(file string) uint64 {
	a.freeze()

	smps := a.idx.samplesByLoc
	first := sort.Search(len(smps), func(i int) bool { return smps[i].File >= file })
	last := sort.Search(len(smps), func(i int) bool { return smps[i].File > file })

	return sumCounts(smps[first:last])
}

// SamplesCountLine returns the detailed count of file:line.
func (a *Aggregator) SamplesCountLine(file string, line int) uint64 {
	a.freeze()

	loc := FileLocation{File: file, Line: line}
	smps := a.idx.samplesByLoc
	first := sort.Search(len(smps), func(i int) bool { return !smps[i].FileLocation.less(loc) })
	last := sort.Search(len(smps), func(i int) bool { return loc.less(smps[i].FileLocation) })

	return sumCounts(smps[first:last])
}

func sumCounts(smps []*Sample) uint64 {
	return lo.SumBy(smps, func(s *Sample) uint64 { return s.Count })
}
