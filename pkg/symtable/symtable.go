// Package symtable maps an executable image to its ordered function
// symbols and their source lines.
package symtable

import (
	"cmp"
	"slices"
	"sort"
)

// Table is what the aggregation needs from an image's symbols. Ranges are
// expressed in the address space samples are recorded in.
type Table interface {
	// Image is the path of the image the symbols were read from.
	Image() string
	Count() int
	// Range returns the half-open address range [start, end) of symbol i.
	Range(i int) (start, end uint64)
	Name(i int) string
	// Line returns the source location of addr, which lies in symbol i.
	Line(i int, addr uint64) (file string, line int, ok bool)
	// VMA translates addr to a virtual address, relative to symbol i.
	// addr may lie outside the symbol, e.g. in a gap next to it.
	VMA(i int, addr uint64) uint64
	// End bounds the address range of the image. Zero means unknown.
	End() uint64
	// StartOffset is the distance between symbol and sample addresses for
	// kernel images, zero otherwise.
	StartOffset() uint64
}

// Symbol is one function symbol.
type Symbol struct {
	Name  string
	Start uint64
	Size  uint64
	// VMA is the virtual address of Start. Zero means Start.
	VMA  uint64
	File string
	Line int
}

func (s Symbol) End() uint64 { return s.Start + s.Size }

func (s Symbol) vma() uint64 {
	if s.VMA == 0 {
		return s.Start
	}
	return s.VMA
}

// StaticTab is a Table over symbols already known to the caller.
type StaticTab struct {
	image       string
	syms        []Symbol
	startOffset uint64
	end         uint64
}

// NewStaticTab sorts syms by address and applies the include/exclude
// filters carried by opts.
func NewStaticTab(image string, syms []Symbol, opts ...Option) *StaticTab {
	o := newOptions(opts...)

	tab := &StaticTab{image: image, startOffset: o.startOffset, end: o.imageEnd}
	for _, s := range syms {
		if o.ShouldIncludeSymbol(s.Name) {
			tab.syms = append(tab.syms, s)
		}
	}
	slices.SortStableFunc(tab.syms, func(a, b Symbol) int {
		return cmp.Compare(a.Start, b.Start)
	})

	return tab
}

func (t *StaticTab) Image() string { return t.image }

func (t *StaticTab) Count() int { return len(t.syms) }

func (t *StaticTab) Range(i int) (uint64, uint64) {
	return t.syms[i].Start, t.syms[i].End()
}

func (t *StaticTab) Name(i int) string { return t.syms[i].Name }

func (t *StaticTab) Line(i int, _ uint64) (string, int, bool) {
	s := t.syms[i]
	return s.File, s.Line, s.File != ""
}

func (t *StaticTab) VMA(i int, addr uint64) uint64 {
	s := t.syms[i]
	return addr - s.Start + s.vma()
}

func (t *StaticTab) StartOffset() uint64 { return t.startOffset }

func (t *StaticTab) End() uint64 { return t.end }

// Lookup returns the index of the symbol containing addr.
func Lookup(t Table, addr uint64) (int, bool) {
	n := t.Count()
	// first symbol starting after addr.
	i := sort.Search(n, func(i int) bool {
		start, _ := t.Range(i)
		return start > addr
	})
	if i == 0 {
		return 0, false
	}
	if _, end := t.Range(i - 1); addr >= end {
		return 0, false
	}

	return i - 1, true
}
