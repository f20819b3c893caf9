package symtable_test

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/pkg/symtable"
)

func TestStaticTab(t *testing.T) {
	tab := symtable.NewStaticTab("/bin/a", []symtable.Symbol{
		{Name: "bar", Start: 0x1800, Size: 0x1000},
		{Name: "foo", Start: 0x1000, Size: 0x800, File: "foo.c", Line: 10},
		{Name: "_init", Start: 0x800, Size: 0x10, VMA: 0x400800},
	})

	require.Equal(t, "/bin/a", tab.Image())
	require.Equal(t, 3, tab.Count())
	require.Equal(t, "_init", tab.Name(0))
	require.Equal(t, "foo", tab.Name(1))

	start, end := tab.Range(2)
	require.Equal(t, uint64(0x1800), start)
	require.Equal(t, uint64(0x2800), end)

	file, line, ok := tab.Line(1, 0x1004)
	require.True(t, ok)
	require.Equal(t, "foo.c", file)
	require.Equal(t, 10, line)
	_, _, ok = tab.Line(2, 0x1804)
	require.False(t, ok)

	require.Equal(t, uint64(0x400804), tab.VMA(0, 0x804))
	require.Equal(t, uint64(0x1010), tab.VMA(1, 0x1010))
	// addresses outside the symbol translate with the same displacement.
	require.Equal(t, uint64(0x400900), tab.VMA(0, 0x900))
	require.Zero(t, tab.End())

	bounded := symtable.NewStaticTab("/bin/a", nil, symtable.WithImageEnd(0x3000))
	require.Equal(t, uint64(0x3000), bounded.End())
}

func TestLookup(t *testing.T) {
	tab := symtable.NewStaticTab("a", []symtable.Symbol{
		{Name: "foo", Start: 0x1000, Size: 0x100},
		{Name: "bar", Start: 0x2000, Size: 0x100},
	})

	tests := []struct {
		addr uint64
		name string
		ok   bool
	}{
		{0x0fff, "", false},
		{0x1000, "foo", true},
		{0x10ff, "foo", true},
		{0x1100, "", false},
		{0x2050, "bar", true},
		{0x3000, "", false},
	}

	for _, tt := range tests {
		i, ok := symtable.Lookup(tab, tt.addr)
		require.Equal(t, tt.ok, ok, "addr %#x", tt.addr)
		if ok {
			require.Equal(t, tt.name, tab.Name(i))
		}
	}
}

func TestSymbolFilters(t *testing.T) {
	syms := []symtable.Symbol{
		{Name: "main.main", Start: 0x10, Size: 1},
		{Name: "main.helper", Start: 0x20, Size: 1},
		{Name: "runtime.gc", Start: 0x30, Size: 1},
	}

	tests := []struct {
		name string
		opts []symtable.Option
		want []string
	}{
		{"none", nil, []string{"main.main", "main.helper", "runtime.gc"}},
		{"include", []symtable.Option{symtable.WithSymPatternInclude(regexp.MustCompile(`^main\.`))}, []string{"main.main", "main.helper"}},
		{"exclude", []symtable.Option{symtable.WithSymPatternExclude(regexp.MustCompile(`helper`))}, []string{"main.main", "runtime.gc"}},
		{"both", []symtable.Option{
			symtable.WithSymPatternInclude(regexp.MustCompile(`^main\.`)),
			symtable.WithSymPatternExclude(regexp.MustCompile(`helper`)),
		}, []string{"main.main"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab := symtable.NewStaticTab("a", syms, tt.opts...)
			var got []string
			for i := 0; i < tab.Count(); i++ {
				got = append(got, tab.Name(i))
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestELFSymTab(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	tab, err := symtable.NewELFSymTab(exe,
		symtable.WithSymPatternInclude(regexp.MustCompile(`symtable_test\.TestELFSymTab$`)),
	)
	require.NoError(t, err)
	defer tab.Close()

	require.Equal(t, 1, tab.Count())
	require.True(t, strings.HasSuffix(tab.Name(0), "TestELFSymTab"))
	require.Zero(t, tab.StartOffset())

	start, end := tab.Range(0)
	require.Less(t, start, end)
	// the text section lies inside the allocated sections of the file.
	require.GreaterOrEqual(t, tab.End(), end)

	name, err := tab.GetName(start + 1)
	require.NoError(t, err)
	require.Equal(t, tab.Name(0), name)
	// served from the cache the second time.
	name, err = tab.GetName(start + 1)
	require.NoError(t, err)
	require.Equal(t, tab.Name(0), name)

	_, err = tab.GetName(end)
	require.ErrorIs(t, err, symtable.ErrSymNotFound)

	file, _, ok := tab.Line(0, start)
	if !ok {
		t.Skip("test binary carries no DWARF line information")
	}
	require.True(t, strings.HasSuffix(file, "symtable_test.go"))
}

func TestELFSymTabErrors(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	_, err = symtable.NewELFSymTab(exe, symtable.WithSymPatternInclude(regexp.MustCompile(`^no such symbol$`)))
	require.ErrorIs(t, err, symtable.ErrNoFunctionSymbols)

	_, err = symtable.NewELFSymTab("/nonexistent/image")
	require.Error(t, err)
}
