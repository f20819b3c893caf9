package symtable

import (
	"cmp"
	"debug/dwarf"
	"debug/elf"
	"io"
	"slices"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const defaultCacheSize = 4096

type elfSym struct {
	name       string
	start, end uint64
	value      uint64
}

type lineEntry struct {
	addr uint64
	file string
	line int
	end  bool
}

// ELFSymTab is a Table read from the symbol table and the DWARF line
// information of an ELF file.
type ELFSymTab struct {
	path        string
	file        *elf.File
	syms        []elfSym
	startOffset uint64
	end         uint64

	lines       []lineEntry
	linesLoaded bool

	cache *lru.Cache[uint64, int]

	*Options
}

// NewELFSymTab opens the ELF file at path and loads its function symbols.
func NewELFSymTab(path string, opts ...Option) (*ELFSymTab, error) {
	tab := &ELFSymTab{path: path, Options: newOptions(opts...)}

	var err error
	if tab.cacheSize > 0 {
		tab.cache, err = lru.New[uint64, int](tab.cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "error creating symbol cache")
		}
	}

	tab.file, err = elf.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening ELF file")
	}
	if err := tab.load(); err != nil {
		tab.file.Close()
		return nil, err
	}

	return tab, nil
}

func (e *ELFSymTab) load() error {
	syms, err := e.file.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		syms, err = e.file.DynamicSymbols()
	}
	if err != nil {
		return errors.Wrap(err, "error reading ELF symtable section")
	}

	if e.kernel {
		text := e.file.Section(".text")
		if text == nil {
			return ErrNoTextSection
		}
		e.startOffset = text.Addr
	}

	for _, sec := range e.file.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		// kernel symbols are addresses, user symbols are file offsets.
		switch {
		case e.kernel:
			e.end = max(e.end, sec.Addr+sec.Size)
		case sec.Type != elf.SHT_NOBITS:
			e.end = max(e.end, sec.Offset+sec.Size)
		}
	}

	var funcs []elf.Symbol
	for _, sym := range syms {
		// Exclude non-function symbols.
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Value == 0 || sym.Section == elf.SHN_UNDEF || int(sym.Section) >= len(e.file.Sections) {
			continue
		}
		if !e.ShouldIncludeSymbol(sym.Name) {
			continue
		}
		funcs = append(funcs, sym)
	}
	if len(funcs) == 0 {
		return ErrNoFunctionSymbols
	}

	slices.SortStableFunc(funcs, func(a, b elf.Symbol) int {
		return cmp.Compare(a.Value, b.Value)
	})
	// aliases share an address, keep the first one.
	funcs = slices.CompactFunc(funcs, func(a, b elf.Symbol) bool {
		return a.Value == b.Value
	})

	e.syms = make([]elfSym, 0, len(funcs))
	for i, sym := range funcs {
		sec := e.file.Sections[sym.Section]

		size := sym.Size
		if size == 0 {
			// extend to the next symbol or the end of the section.
			limit := sec.Addr + sec.Size
			if i+1 < len(funcs) && funcs[i+1].Value < limit {
				limit = funcs[i+1].Value
			}
			if limit > sym.Value {
				size = limit - sym.Value
			}
		}
		if size == 0 {
			continue
		}

		start := sym.Value
		if !e.kernel {
			start = sym.Value - sec.Addr + sec.Offset
		}
		e.syms = append(e.syms, elfSym{
			name:  sym.Name,
			start: start,
			end:   start + size,
			value: sym.Value,
		})
	}
	e.logger.Debug().
		Str("image", e.path).
		Int("functions", len(e.syms)).
		Msg("loaded function symbols")

	return nil
}

// Close releases the underlying ELF file.
func (e *ELFSymTab) Close() error {
	return e.file.Close()
}

func (e *ELFSymTab) Image() string { return e.path }

func (e *ELFSymTab) Count() int { return len(e.syms) }

func (e *ELFSymTab) Range(i int) (uint64, uint64) {
	return e.syms[i].start, e.syms[i].end
}

func (e *ELFSymTab) Name(i int) string { return e.syms[i].name }

func (e *ELFSymTab) VMA(i int, addr uint64) uint64 {
	return addr - e.syms[i].start + e.syms[i].value
}

func (e *ELFSymTab) StartOffset() uint64 { return e.startOffset }

func (e *ELFSymTab) End() uint64 { return e.end }

// Lookup returns the index of the symbol containing addr.
func (e *ELFSymTab) Lookup(addr uint64) (int, bool) {
	if e.cache != nil {
		if i, ok := e.cache.Get(addr); ok {
			return i, true
		}
	}
	i, ok := Lookup(e, addr)
	if ok && e.cache != nil {
		e.cache.Add(addr, i)
	}

	return i, ok
}

// GetName returns the name of the symbol containing addr.
func (e *ELFSymTab) GetName(addr uint64) (string, error) {
	if len(e.syms) == 0 {
		return "", ErrSymTableEmpty
	}
	i, ok := e.Lookup(addr)
	if !ok {
		return "", ErrSymNotFound
	}

	return e.syms[i].name, nil
}

func (e *ELFSymTab) Line(i int, addr uint64) (string, int, bool) {
	if !e.linesLoaded {
		e.linesLoaded = true
		if err := e.loadLines(); err != nil {
			e.logger.Debug().Err(err).Str("image", e.path).Msg("no line information")
		}
	}
	if len(e.lines) == 0 {
		return "", 0, false
	}

	vma := e.VMA(i, addr)
	// last entry at or below vma.
	j := sort.Search(len(e.lines), func(j int) bool {
		return e.lines[j].addr > vma
	}) - 1
	if j < 0 || e.lines[j].end {
		return "", 0, false
	}

	return e.lines[j].file, e.lines[j].line, true
}

func (e *ELFSymTab) loadLines() error {
	data, err := e.file.DWARF()
	if err != nil {
		return errors.Wrap(err, "error reading DWARF")
	}

	r := data.Reader()
	for {
		ent, err := r.Next()
		if err != nil {
			return errors.Wrap(err, "error reading DWARF entry")
		}
		if ent == nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		lr, err := data.LineReader(ent)
		if err != nil {
			return errors.Wrap(err, "error reading DWARF line table")
		}
		if lr == nil {
			continue
		}

		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				return errors.Wrap(err, "error reading DWARF line entry")
			}
			entry := lineEntry{addr: le.Address, line: le.Line, end: le.EndSequence}
			if le.File != nil {
				entry.file = le.File.Name
			}
			e.lines = append(e.lines, entry)
		}
	}

	// a sequence end sorts before a sequence starting at the same address.
	slices.SortStableFunc(e.lines, func(a, b lineEntry) int {
		if c := cmp.Compare(a.addr, b.addr); c != 0 {
			return c
		}
		switch {
		case a.end && !b.end:
			return -1
		case b.end && !a.end:
			return 1
		}
		return 0
	})

	return nil
}
