// Package report renders aggregated samples as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/maxgio92/xprof/pkg/aggregate"
)

// NoLocation is displayed in place of an unknown source location.
const NoLocation = "(no location information)"

// Row is one symbol, or one sampled address of a symbol.
type Row struct {
	VMA               uint64  `json:"vma"`
	Samples           uint64  `json:"samples"`
	SamplesCumulated  uint64  `json:"cum_samples"`
	Percent           float64 `json:"percent"`
	PercentCumulated  float64 `json:"cum_percent"`
	Symbol            string  `json:"symbol,omitempty"`
	File              string  `json:"file,omitempty"`
	Line              int     `json:"line,omitempty"`
	Image             string  `json:"image,omitempty"`
	App               string  `json:"app,omitempty"`
	PercentDetails    float64 `json:"percent_details,omitempty"`
	PercentCumDetails float64 `json:"cum_percent_details,omitempty"`
	Details           []Row   `json:"details,omitempty"`
}

// SymbolReport lists the symbols of an aggregation.
type SymbolReport struct {
	*Options `json:"-"`

	Total        uint64 `json:"total"`
	MultipleApps bool   `json:"multiple_apps,omitempty"`
	VMA64        bool   `json:"-"`
	Rows         []Row  `json:"symbols"`
}

// NewSymbolReport selects and orders the symbols of agg.
func NewSymbolReport(agg *aggregate.Aggregator, opts ...Option) *SymbolReport {
	r := &SymbolReport{
		Options: &Options{flags: DefaultFlags},
	}
	for _, f := range opts {
		f(r.Options)
	}

	var sel aggregate.Selection
	if r.until {
		sel = agg.SelectSymbolsUntil(r.threshold, r.image)
	} else {
		sel = agg.SelectSymbols(r.threshold, r.image)
	}
	Sort(sel.Symbols, r.sort, r.reverse)

	r.Total = agg.SamplesCount()
	r.MultipleApps = sel.MultipleApps
	r.VMA64 = sel.VMA64

	names := agg.Names()
	shorten := func(s string) string {
		if r.shortFilenames && s != "" {
			return names.Basename(s)
		}
		return s
	}

	var cumulated, cumDetails uint64
	for _, sym := range sel.Symbols {
		cumulated += sym.Count
		row := Row{
			VMA:              sym.VMA,
			Samples:          sym.Count,
			SamplesCumulated: cumulated,
			Percent:          percent(sym.Count, r.Total),
			PercentCumulated: percent(cumulated, r.Total),
			Symbol:           names.Demangle(sym.Name, r.demangle),
			File:             shorten(sym.File),
			Line:             sym.Line,
			Image:            shorten(sym.Image),
			App:              shorten(sym.App),
			PercentDetails:   percent(sym.Count, r.Total),
		}

		if r.details {
			// detail cumulation restarts for every symbol, except
			// for the total based one.
			var symCumulated uint64
			for _, smp := range sym.Samples() {
				symCumulated += smp.Count
				cumDetails += smp.Count
				row.Details = append(row.Details, Row{
					VMA:               smp.VMA,
					Samples:           smp.Count,
					SamplesCumulated:  symCumulated,
					Percent:           percent(smp.Count, sym.Count),
					PercentCumulated:  percent(symCumulated, sym.Count),
					File:              shorten(smp.File),
					Line:              smp.Line,
					PercentDetails:    percent(smp.Count, r.Total),
					PercentCumDetails: percent(cumDetails, r.Total),
				})
			}
		} else {
			cumDetails += sym.Count
		}
		row.PercentCumDetails = percent(cumDetails, r.Total)

		r.Rows = append(r.Rows, row)
	}

	return r
}

func (r *SymbolReport) cells(flags Flag, row Row, detail bool) []string {
	var out []string
	flags.each(func(f Flag) {
		if detail && f&immutableFlags != 0 {
			out = append(out, "")
			return
		}
		var s string
		switch f {
		case FlagVMA:
			s = formatVMA(row.VMA, r.VMA64)
		case FlagSamples:
			s = strconv.FormatUint(row.Samples, 10)
		case FlagSamplesCumulated:
			s = strconv.FormatUint(row.SamplesCumulated, 10)
		case FlagPercent:
			s = formatPercent(row.Percent)
		case FlagPercentCumulated:
			s = formatPercent(row.PercentCumulated)
		case FlagPercentDetails:
			s = formatPercent(row.PercentDetails)
		case FlagPercentCumulatedDetails:
			s = formatPercent(row.PercentCumDetails)
		case FlagSymbolName:
			s = row.Symbol
		case FlagLineInfo:
			if row.File == "" {
				s = NoLocation
			} else {
				s = fmt.Sprintf("%s:%d", row.File, row.Line)
			}
		case FlagImageName:
			s = row.Image
		case FlagAppName:
			s = row.App
		}
		out = append(out, s)
	})

	return out
}

// Write prints the report as columned text.
func (r *SymbolReport) Write(w io.Writer) error {
	flags := r.flags
	if r.MultipleApps {
		flags |= FlagAppName
	}

	table := newTable(w)
	if !r.noHeader {
		table.SetHeader(flags.headers())
	}
	for _, row := range r.Rows {
		table.Append(r.cells(flags, row, false))
		for _, d := range row.Details {
			table.Append(r.cells(flags, d, true))
		}
	}
	table.Render()

	return nil
}

// WriteReport prints the report as JSON.
func (r *SymbolReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	return table
}
