package report

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/report"
	"github.com/maxgio92/xprof/pkg/session"
)

const CmdName = "report"

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName + " [image...] [tag:value...]",
		Short: "Report the samples of a session",
		Long: fmt.Sprintf(`
%s sums the sample files selected by a profile specification. By default
it prints the share of samples of every image; with --symbols it breaks the
samples down per symbol of the sampled binaries.

Sample files that differ only by a merged dimension are summed together; the
others are reported separately.
`, CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&o.symbols, "symbols", "l", false, "Report per symbol")
	cmd.Flags().BoolVarP(&o.details, "details", "d", false, "Report the samples of every address of each symbol")
	cmd.Flags().BoolVarP(&o.debugInfo, "debug-info", "g", false, "Report source file and line of each symbol")
	cmd.Flags().Float64VarP(&o.threshold, "threshold", "t", 0, "Hide entries below this percentage of the samples")
	cmd.Flags().BoolVar(&o.until, "until", false, "Show the symbols until their cumulated percentage reaches the threshold")
	cmd.Flags().StringVar(&o.sort, "sort", "", "Comma separated sort keys (sample, symbol, image, vma, debug)")
	cmd.Flags().BoolVarP(&o.reverse, "reverse", "r", false, "Reverse the sort order")
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "Columns to print, "+report.FlagsHelp())
	cmd.Flags().StringVarP(&o.demangle, "demangle", "D", string(aggregate.DemangleSimplified), "Demangle symbol names (none, simplified, full)")
	cmd.Flags().StringVar(&o.image, "image", "", "Report only the symbols of this image")
	cmd.Flags().BoolVar(&o.noHeader, "no-header", false, "Do not print column headers")
	cmd.Flags().BoolVar(&o.shortFilenames, "short-filenames", false, "Print file basenames only")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print one JSON document per reported group")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	if err := o.InitLogger(cmd, CmdName); err != nil {
		return err
	}

	reportOpts, err := o.reportOptions()
	if err != nil {
		return err
	}

	s, err := o.Open(args, o.Logger, session.WithAggregateOptions(
		aggregate.WithDetails(o.details),
		aggregate.WithDebugInfo(o.debugInfo),
		aggregate.WithLogger(o.Logger),
	))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	groups := s.Groups()
	for _, g := range groups {
		if len(groups) > 1 && !o.json {
			fmt.Fprintf(out, "\n%s\n", g.Label)
		}
		if o.symbols {
			err = o.writeSymbols(out, s, g, reportOpts)
		} else {
			err = o.writeSummary(out, s, g)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Options) reportOptions() ([]report.Option, error) {
	const op = "report.options"

	opts := []report.Option{
		report.WithDetails(o.details),
		report.WithReverse(o.reverse),
		report.WithShortFilenames(o.shortFilenames),
		report.WithImage(o.image),
	}

	switch mode := aggregate.DemangleMode(o.demangle); mode {
	case aggregate.DemangleNone, aggregate.DemangleSimplified, aggregate.DemangleFull:
		opts = append(opts, report.WithDemangle(mode))
	default:
		return nil, fault.Usagef(op, "unknown demangling mode %q", o.demangle)
	}

	if o.format != "" {
		flags, err := report.ParseFlags(o.format)
		if err != nil {
			return nil, err
		}
		opts = append(opts, report.WithFlags(flags))
	}
	if o.sort != "" {
		orders, err := report.ParseSortOrders(o.sort)
		if err != nil {
			return nil, err
		}
		opts = append(opts, report.WithSort(orders...))
	}
	if o.until {
		opts = append(opts, report.WithUntil(o.threshold))
	} else {
		opts = append(opts, report.WithThreshold(o.threshold))
	}
	if o.noHeader {
		opts = append(opts, report.WithoutHeader())
	}

	return opts, nil
}

func (o *Options) writeSymbols(w io.Writer, s *session.Session, g session.Group, opts []report.Option) error {
	agg, err := s.Aggregate(g)
	if err != nil {
		return err
	}
	r := report.NewSymbolReport(agg, opts...)
	if o.json {
		return r.WriteReport(w)
	}

	return r.Write(w)
}

func (o *Options) writeSummary(w io.Writer, s *session.Session, g session.Group) error {
	counts, err := s.ImageCounts(g)
	if err != nil {
		return err
	}
	event, _ := s.Event()
	sum := report.FileCounts(event, counts, o.threshold)
	if o.json {
		return sum.WriteReport(w)
	}

	return sum.Write(w)
}
