package export

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/export"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/session"
)

const (
	CmdName = "export"

	defaultOutput = "xprof.pb.gz"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName + " [image...] [tag:value...]",
		Short: "Export the samples of a session as a pprof profile",
		Long: fmt.Sprintf(`
%s sums the sample files selected by a profile specification per symbol and
writes them as a gzip compressed pprof profile. The selection must form a
single group of mergeable sample files.
`, CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&o.output, "output", "o", defaultOutput, "Path of the profile to write")
	cmd.Flags().BoolVarP(&o.details, "details", "d", false, "Export one location per sampled address")
	cmd.Flags().StringVarP(&o.demangle, "demangle", "D", string(aggregate.DemangleSimplified), "Demangle symbol names (none, simplified, full)")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	const op = "export.Run"

	if err := o.InitLogger(cmd, CmdName); err != nil {
		return err
	}

	mode := aggregate.DemangleMode(o.demangle)
	switch mode {
	case aggregate.DemangleNone, aggregate.DemangleSimplified, aggregate.DemangleFull:
	default:
		return fault.Usagef(op, "unknown demangling mode %q", o.demangle)
	}

	s, err := o.Open(args, o.Logger, session.WithAggregateOptions(
		aggregate.WithDetails(o.details),
		aggregate.WithDebugInfo(true),
		aggregate.WithLogger(o.Logger),
	))
	if err != nil {
		return err
	}
	if n := len(s.Groups()); n > 1 {
		return fault.Usagef(op, "the selection spans %d groups, narrow it or use --merge", n)
	}

	agg, err := s.Aggregate(s.Groups()[0])
	if err != nil {
		return err
	}

	f, err := os.Create(o.output)
	if err != nil {
		return fault.ResourceErr(op, err)
	}
	defer f.Close()

	event, count := s.Event()
	if err := export.Write(f, agg,
		export.WithEvent(event, count),
		export.WithDetails(o.details),
		export.WithDemangle(mode),
	); err != nil {
		return err
	}
	o.Logger.Info().Str("output", o.output).Uint64("samples", agg.SamplesCount()).Msg("profile exported")

	return f.Close()
}
