package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
)

// Flag selects a report column. Columns are printed in flag order.
type Flag uint32

const (
	FlagVMA Flag = 1 << iota
	FlagSamples
	FlagSamplesCumulated
	FlagPercent
	FlagPercentCumulated
	FlagLineInfo
	FlagImageName
	FlagAppName
	FlagSymbolName
	// FlagPercentDetails prints detail percentages relative to the total
	// instead of the owning symbol.
	FlagPercentDetails
	FlagPercentCumulatedDetails

	flagLast = FlagPercentCumulatedDetails

	// immutableFlags are left blank on detail rows.
	immutableFlags = FlagSymbolName | FlagImageName | FlagAppName
)

// DefaultFlags is the column set of a symbol report.
const DefaultFlags = FlagVMA | FlagSamples | FlagPercent | FlagSymbolName

type column struct {
	letter byte
	header string
	help   string
}

var columns = map[Flag]column{
	FlagVMA:                     {'v', "vma", "vma offset"},
	FlagSamples:                 {'s', "samples", "nr samples"},
	FlagSamplesCumulated:        {'S', "cum. samples", "nr cumulated samples"},
	FlagPercent:                 {'p', "%", "nr percent samples"},
	FlagPercentCumulated:        {'P', "cum. %", "nr cumulated percent samples"},
	FlagPercentDetails:          {'q', "%", "nr percent samples details"},
	FlagPercentCumulatedDetails: {'Q', "cum. %", "nr cumulated percent samples details"},
	FlagSymbolName:              {'n', "symbol name", "symbol name"},
	FlagLineInfo:                {'l', "linenr info", "source file name and line nr"},
	FlagImageName:               {'i', "image name", "image name"},
	FlagAppName:                 {'e', "app name", "owning application name"},
}

// ParseFlags parses a string of column letters, for example "vspn".
func ParseFlags(s string) (Flag, error) {
	var f Flag
	for i := 0; i < len(s); i++ {
		found := false
		for flag, c := range columns {
			if c.letter == s[i] {
				f |= flag
				found = true
				break
			}
		}
		if !found {
			return 0, fault.UsageErr("report.ParseFlags", errors.Wrapf(ErrUnknownFormat, "%q", s[i]))
		}
	}

	return f, nil
}

// FlagsHelp describes the column letters.
func FlagsHelp() string {
	var sb strings.Builder
	for f := Flag(1); f <= flagLast; f <<= 1 {
		c := columns[f]
		fmt.Fprintf(&sb, "%c\t%s\n", c.letter, c.help)
	}

	return sb.String()
}

func (f Flag) each(fn func(Flag)) {
	for bit := Flag(1); bit <= flagLast; bit <<= 1 {
		if f&bit != 0 {
			fn(bit)
		}
	}
}

func (f Flag) headers() []string {
	var out []string
	f.each(func(bit Flag) {
		out = append(out, columns[bit].header)
	})

	return out
}

func formatVMA(vma uint64, vma64 bool) string {
	if vma64 {
		return fmt.Sprintf("%016x", vma)
	}
	return fmt.Sprintf("%08x", vma)
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'g', 6, 64)
}

func percent(count, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) * 100 / float64(total)
}
