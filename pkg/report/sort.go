package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/fault"
)

// SortOrder is a symbol ordering criterion.
type SortOrder string

const (
	SortSample SortOrder = "sample"
	SortSymbol SortOrder = "symbol"
	SortImage  SortOrder = "image"
	SortVMA    SortOrder = "vma"
	SortDebug  SortOrder = "debug"
)

// ParseSortOrders parses a comma separated list of sort orders.
func ParseSortOrders(s string) ([]SortOrder, error) {
	var out []SortOrder
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		switch o := SortOrder(tok); o {
		case SortSample, SortSymbol, SortImage, SortVMA, SortDebug:
			out = append(out, o)
		default:
			return nil, fault.UsageErr("report.ParseSortOrders", errors.Wrapf(ErrUnknownSort, "%q", tok))
		}
	}

	return out, nil
}

func (o SortOrder) compare(x, y *aggregate.Symbol) int {
	switch o {
	case SortSample:
		return cmp.Compare(y.Count, x.Count)
	case SortSymbol:
		return cmp.Compare(x.Name, y.Name)
	case SortImage:
		return cmp.Compare(x.Image, y.Image)
	case SortVMA:
		return cmp.Compare(x.VMA, y.VMA)
	case SortDebug:
		if c := cmp.Compare(x.File, y.File); c != 0 {
			return c
		}
		return cmp.Compare(x.Line, y.Line)
	}

	return 0
}

// Sort orders symbols by each criterion in turn. The order is stable.
func Sort(symbols []*aggregate.Symbol, orders []SortOrder, reverse bool) {
	if len(orders) == 0 {
		if reverse {
			slices.Reverse(symbols)
		}
		return
	}
	slices.SortStableFunc(symbols, func(x, y *aggregate.Symbol) int {
		for _, o := range orders {
			c := o.compare(x, y)
			if reverse {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
