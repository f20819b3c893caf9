package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/pkg/cmd/export"
	"github.com/maxgio92/xprof/pkg/cmd/list"
	"github.com/maxgio92/xprof/pkg/cmd/record"
	"github.com/maxgio92/xprof/pkg/cmd/report"
	"github.com/maxgio92/xprof/pkg/cmd/status"
	"github.com/maxgio92/xprof/pkg/cmd/stop"
	"github.com/maxgio92/xprof/pkg/cmd/wait"
	"github.com/maxgio92/xprof/pkg/fault"
)

const (
	logLevelInfo = "info"

	exitFailure = 1
	exitUsage   = 2
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: fmt.Sprintf("%s is a statistical system profiler", settings.CmdName),
		Long: fmt.Sprintf(`
%s records the program counter samples taken by hardware and software counters
into per image sample files, and reports how the samples spread over the
symbols of the sampled binaries.
`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", logLevelInfo, "Set the log level (trace, debug, info, warn, error, fatal, panic)")

	cmd.AddCommand(record.NewCommand(record.NewOptions(
		record.WithContext(o.Ctx),
		record.WithLogger(o.Logger),
	)))
	cmd.AddCommand(status.NewCommand(status.NewOptions(
		status.WithLogger(o.Logger),
	)))
	cmd.AddCommand(stop.NewCommand(stop.NewOptions(
		stop.WithLogger(o.Logger),
	)))
	cmd.AddCommand(wait.NewCommand(wait.NewOptions(
		wait.WithContext(o.Ctx),
		wait.WithLogger(o.Logger),
	)))
	cmd.AddCommand(list.NewCommand(list.NewOptions(
		list.WithLogger(o.Logger),
	)))
	cmd.AddCommand(report.NewCommand(report.NewOptions(
		report.WithContext(o.Ctx),
		report.WithLogger(o.Logger),
	)))
	cmd.AddCommand(export.NewCommand(export.NewOptions(
		export.WithContext(o.Ctx),
		export.WithLogger(o.Logger),
	)))

	return cmd
}

// ExitCode maps an error to the process exit status. Usage errors exit
// with 2, any other failure with 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case fault.Is(err, fault.Usage):
		return exitUsage
	default:
		return exitFailure
	}
}

// Execute adds all child commands to the root commands and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := NewOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		cancel()
		os.Exit(ExitCode(err))
	}
}
