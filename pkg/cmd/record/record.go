package record

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maxgio92/xprof/internal/config"
	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/internal/utils"
	"github.com/maxgio92/xprof/pkg/cmd/common"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/healthcheck"
	"github.com/maxgio92/xprof/pkg/record"
)

const (
	CmdName = "record"

	stdinInput = "-"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Record samples into the current session",
		Long: fmt.Sprintf(`
%s consumes a stream of sampling records and writes the samples into one
sample file per image, event and separated dimension, below the session
directory.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.configPath, "config", "c", settings.ConfigFile, "Path to the configuration file")
	cmd.Flags().StringArrayVar(&o.counters, "counter", nil, "Counter to sample as EVENT:COUNT[:UNITMASK], can be repeated")
	cmd.Flags().StringVar(&o.samplesDir, "samples-dir", "", "Directory holding the sessions")
	cmd.Flags().StringVar(&o.session, "session", "", "Session to record into")
	cmd.Flags().StringSliceVar(&o.separate, "separate", nil, "Dimensions to separate samples along (lib, kernel, thread, cpu, none)")
	cmd.Flags().StringVarP(&o.input, "input", "i", stdinInput, "Sampling stream to consume, a file or a FIFO")
	cmd.Flags().StringVarP(&o.socketPath, "socket-path", "s", settings.SocketPath, fmt.Sprintf("Path to the %s socket file", settings.CmdName))

	cmd.Flags().BoolVarP(&o.detach, "detach", "d", false, fmt.Sprintf("Run %s as daemon", settings.CmdName))
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the recording")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if err := o.InitLogger(cmd, CmdName); err != nil {
		return err
	}

	cfg, err := o.config()
	if err != nil {
		return err
	}

	if o.detach {
		return o.daemonize(cmd)
	}

	// Store PID file.
	if err := utils.WritePidFile(settings.PidFile, os.Getpid()); err != nil {
		o.Logger.Warn().Err(err).Msg("failed to write PID file")
	}
	defer os.Remove(settings.PidFile)

	hc := healthcheck.NewServer(o.socketPath, o.Logger)
	if err := hc.Listen(o.Ctx); err != nil {
		return errors.Wrap(err, "failed to start health check")
	}
	defer hc.Shutdown()

	src, err := o.openInput()
	if err != nil {
		return err
	}

	recorder, err := record.New(
		record.WithConfig(cfg),
		record.WithLogger(o.Logger),
		record.WithStatus(o.status),
		record.WithReadyFunc(hc.NotifyReady),
	)
	if err != nil {
		return err
	}
	if err := recorder.Run(o.Ctx, src); err != nil {
		return errors.Wrap(err, "failed to record samples")
	}

	stats := recorder.Stats()
	o.Logger.Info().
		Uint64("samples", stats.Samples).
		Uint64("lost", stats.Lost).
		Str("session", cfg.SessionDir()).
		Msg("recording stopped")

	return nil
}

// config loads the configuration file and applies the flags over it.
func (o *Options) config() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fault.UsageErr("record.config", err)
	}

	if o.samplesDir != "" {
		cfg.SamplesDir = o.samplesDir
	}
	if o.session != "" {
		cfg.Session = o.session
	}
	if len(o.counters) > 0 {
		cfg.Counters = cfg.Counters[:0]
		for _, s := range o.counters {
			c, err := config.ParseCounter(s)
			if err != nil {
				return nil, fault.UsageErr("record.config", err)
			}
			cfg.Counters = append(cfg.Counters, c)
		}
	}
	if len(o.separate) > 0 {
		sep, err := parseSeparate(o.separate)
		if err != nil {
			return nil, err
		}
		cfg.Separate = sep
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.UsageErr("record.config", err)
	}

	return cfg, nil
}

func parseSeparate(dims []string) (config.Separate, error) {
	var sep config.Separate
	for _, d := range dims {
		switch strings.TrimSpace(d) {
		case "none":
			sep = config.Separate{}
		case "lib":
			sep.Lib = true
		case "kernel":
			sep.Kernel = true
		case "thread":
			sep.Thread = true
		case "cpu":
			sep.CPU = true
		case "all":
			sep = config.Separate{Lib: true, Kernel: true, Thread: true, CPU: true}
		default:
			return config.Separate{}, fault.Usagef("record.parseSeparate", "unknown separation %q", d)
		}
	}

	return sep, nil
}

func (o *Options) openInput() (io.Reader, error) {
	if o.input == stdinInput {
		return os.Stdin, nil
	}
	f, err := os.Open(o.input)
	if err != nil {
		return nil, fault.ResourceErr("record.openInput", err)
	}

	return f, nil
}

func (o *Options) daemonize(cmd *cobra.Command) error {
	// Check if already running.
	if common.IsDaemonRunning() {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon already running")
		return nil
	}
	if o.input == stdinInput {
		return fault.Usagef("record.daemonize", "a daemon cannot read samples from the standard input, use --input")
	}

	// Start the daemon process.
	args := append([]string{CmdName}, daemonArgs(cmd.Flags())...)
	args = append(args, fmt.Sprintf("--log-level=%s", o.LogLevel))

	proc := exec.Command(os.Args[0], args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Redirect output to log file.
	if settings.LogFile != "" {
		f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			o.Logger.Error().Err(err).Msg("failed to open log file")
			return err
		}
		defer f.Close()
		proc.Stdout = f
		proc.Stderr = f
	}

	if err := proc.Start(); err != nil {
		o.Logger.Error().Err(err).Msgf("failed to start %s", settings.CmdName)
		return err
	}

	// Store PID file.
	if err := utils.WritePidFile(settings.PidFile, proc.Process.Pid); err != nil {
		o.Logger.Error().Err(err).Msg("failed to write PID file")
		return err
	}
	o.Logger.Info().Int("pid", proc.Process.Pid).Msg("recorder started")

	return nil
}

// daemonArgs repeats the flags set on the command line, except detach.
func daemonArgs(fs *pflag.FlagSet) []string {
	var args []string
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "detach" || f.Name == "log-level" {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, v := range sv.GetSlice() {
				args = append(args, fmt.Sprintf("--%s=%s", f.Name, v))
			}
			return
		}
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})

	return args
}
